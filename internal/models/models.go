package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent    UserRole = "STUDENT"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleLabManager UserRole = "LAB_MANAGER"
	UserRoleProfessor  UserRole = "PROFESSOR"
)

type Program string

const (
	ProgramMecatronica Program = "MECATRONICA"
	ProgramManufactura Program = "MANUFACTURA"
)

type Lab string

const (
	LabElectronics Lab = "LAB_ELECT"
	LabEngineering Lab = "LAB_ING"
)

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "PENDING"
	LoanStatusApproved LoanStatus = "APPROVED"
	LoanStatusRejected LoanStatus = "REJECTED"
	LoanStatusPickedUp LoanStatus = "PICKED_UP"
	LoanStatusReturned LoanStatus = "RETURNED"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusApproved  ReservationStatus = "APPROVED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

type RoomType string

const (
	RoomTypeLaboratorio RoomType = "LABORATORIO"
	RoomTypeAula        RoomType = "AULA"
	RoomTypeTaller      RoomType = "TALLER"
)

// ParseUserRole accepts both the upper-case enum form and the lower-case
// form used by spreadsheet imports ("lab_manager").
func ParseUserRole(s string) (UserRole, bool) {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case UserRoleStudent, UserRoleAdmin, UserRoleLabManager, UserRoleProfessor:
		return r, true
	}
	return "", false
}

func ParseProgram(s string) (Program, bool) {
	p := Program(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProgramMecatronica, ProgramManufactura:
		return p, true
	}
	return "", false
}

func ParseLab(s string) (Lab, bool) {
	l := Lab(strings.ToUpper(strings.TrimSpace(s)))
	switch l {
	case LabElectronics, LabEngineering:
		return l, true
	}
	return "", false
}

func ParseLoanStatus(s string) (LoanStatus, bool) {
	st := LoanStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case LoanStatusPending, LoanStatusApproved, LoanStatusRejected,
		LoanStatusPickedUp, LoanStatusReturned, LoanStatusOverdue:
		return st, true
	}
	return "", false
}

func ParseRoomType(s string) (RoomType, bool) {
	t := RoomType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case RoomTypeLaboratorio, RoomTypeAula, RoomTypeTaller:
		return t, true
	}
	return "", false
}

// Base gives every table a client-generated UUID so the schema works on
// both postgres and sqlite.
type Base struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type User struct {
	Base
	Email     string   `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name      string   `gorm:"size:255;not null" json:"name"`
	Role      UserRole `gorm:"size:32;not null;index" json:"role"`
	Program   *Program `gorm:"size:32" json:"program"`
	StudentID *string  `gorm:"size:64" json:"student_id"`
	// AssignedLab is only meaningful for LAB_MANAGER. NULL means the
	// manager has not been assigned yet and acts unscoped on loans.
	AssignedLab  *Lab      `gorm:"size:32" json:"assigned_lab"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Material struct {
	Base
	Name              string    `gorm:"size:255;not null" json:"name"`
	Description       *string   `json:"description"`
	Category          string    `gorm:"size:120;not null;index" json:"category"`
	TotalQuantity     int       `gorm:"not null;check:total_quantity >= 0" json:"total_quantity"`
	AvailableQuantity int       `gorm:"not null;check:available_quantity >= 0 AND available_quantity <= total_quantity" json:"available_quantity"`
	Location          *string   `gorm:"size:255" json:"location"`
	Lab               *Lab      `gorm:"size:32;index" json:"lab"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Loan struct {
	Base
	StudentID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	Student            *User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"student,omitempty"`
	Status             LoanStatus     `gorm:"size:32;not null;index" json:"status"`
	RequestDate        time.Time      `gorm:"not null" json:"request_date"`
	ExpectedPickupDate datatypes.Date `gorm:"not null" json:"expected_pickup_date"`
	ExpectedReturnDate datatypes.Date `gorm:"not null;index" json:"expected_return_date"`
	ActualPickupDate   *time.Time     `json:"actual_pickup_date"`
	ActualReturnDate   *time.Time     `json:"actual_return_date"`
	Notes              *string        `json:"notes"`
	AdminNotes         *string        `json:"admin_notes"`
	ApprovedBy         *uuid.UUID     `gorm:"type:uuid" json:"approved_by"`
	Program            *Program       `gorm:"size:32" json:"program"`
	Items              []LoanItem     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type LoanItem struct {
	Base
	LoanID     uuid.UUID `gorm:"type:uuid;not null;index" json:"loan_id"`
	MaterialID uuid.UUID `gorm:"type:uuid;not null;index" json:"material_id"`
	Material   *Material `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"material,omitempty"`
	Quantity   int       `gorm:"not null;check:quantity >= 1" json:"quantity"`
	// Position keeps items in request order.
	Position  int       `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Room struct {
	Base
	Name          string     `gorm:"size:255;not null" json:"name"`
	Capacity      *int       `json:"capacity"`
	Type          RoomType   `gorm:"size:32;not null" json:"type"`
	Location      *string    `gorm:"size:255" json:"location"`
	Program       *Program   `gorm:"size:32" json:"program"`
	ResponsibleID *uuid.UUID `gorm:"type:uuid" json:"responsible_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Reservation struct {
	Base
	RoomID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"room_id"`
	Room         *Room             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"room,omitempty"`
	RequestedBy  uuid.UUID         `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester    *User             `gorm:"foreignKey:RequestedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"requester,omitempty"`
	Program      *Program          `gorm:"size:32" json:"program"`
	StartTime    time.Time         `gorm:"not null;index" json:"start_time"`
	EndTime      time.Time         `gorm:"not null" json:"end_time"`
	Status       ReservationStatus `gorm:"size:32;not null;index" json:"status"`
	Reason       *string           `json:"reason"`
	CancelReason *string           `json:"cancel_reason"`
	ApprovedBy   *uuid.UUID        `gorm:"type:uuid" json:"approved_by"`
	CreatedAt    time.Time         `json:"created_at"`
}

type Subject struct {
	Base
	Name      string    `gorm:"size:255;not null" json:"name"`
	Program   Program   `gorm:"size:32;not null" json:"program"`
	Semester  int       `gorm:"not null" json:"semester"`
	CreatedAt time.Time `json:"created_at"`
}

type PracticeReport struct {
	Base
	RoomID              uuid.UUID `gorm:"type:uuid;not null;index" json:"room_id"`
	Room                *Room     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"room,omitempty"`
	SubjectID           uuid.UUID `gorm:"type:uuid;not null;index" json:"subject_id"`
	Subject             *Subject  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"subject,omitempty"`
	Program             Program   `gorm:"size:32;not null" json:"program"`
	StudentsCount       int       `gorm:"not null" json:"students_count"`
	PracticeName        string    `gorm:"size:255;not null" json:"practice_name"`
	PracticeDescription *string   `json:"practice_description"`
	StartTime           time.Time `gorm:"not null" json:"start_time"`
	EndTime             time.Time `gorm:"not null" json:"end_time"`
	CreatedBy           uuid.UUID `gorm:"type:uuid;not null;index" json:"created_by"`
	Author              *User     `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"author,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// All lists every model in dependency order for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Material{},
		&Loan{},
		&LoanItem{},
		&Room{},
		&Reservation{},
		&Subject{},
		&PracticeReport{},
	}
}
