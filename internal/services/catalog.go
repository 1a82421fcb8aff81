package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloans/internal/authz"
	"labloans/internal/logger"
	"labloans/internal/models"
	"labloans/internal/repositories"
)

type MaterialInput struct {
	Name          string
	Description   *string
	Category      string
	TotalQuantity int
	Location      *string
	Lab           *models.Lab
}

// MaterialPatch carries optional changes; nil fields are left alone.
type MaterialPatch struct {
	Name          *string
	Description   *string
	Category      *string
	TotalQuantity *int
	Location      *string
	Lab           *models.Lab
}

type RoomInput struct {
	Name          string
	Capacity      *int
	Type          models.RoomType
	Location      *string
	Program       *models.Program
	ResponsibleID *uuid.UUID
}

type SubjectInput struct {
	Name     string
	Program  models.Program
	Semester int
}

type PracticeReportInput struct {
	RoomID              uuid.UUID
	SubjectID           uuid.UUID
	Program             *models.Program
	StudentsCount       int
	PracticeName        string
	PracticeDescription *string
	StartTime           *time.Time
	EndTime             *time.Time
}

// CatalogService manages the simple catalog entities: materials, rooms,
// subjects and practice reports.
type CatalogService interface {
	ListMaterials(ctx context.Context, filter repositories.MaterialFilter) ([]models.Material, error)
	GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	CreateMaterial(ctx context.Context, caller *authz.Caller, in MaterialInput) (*models.Material, error)
	UpdateMaterial(ctx context.Context, caller *authz.Caller, id uuid.UUID, patch MaterialPatch) (*models.Material, error)
	DeleteMaterial(ctx context.Context, caller *authz.Caller, id uuid.UUID) error

	ListRooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, caller *authz.Caller, in RoomInput) (*models.Room, error)

	ListSubjects(ctx context.Context) ([]models.Subject, error)
	CreateSubject(ctx context.Context, caller *authz.Caller, in SubjectInput) (*models.Subject, error)

	ListPracticeReports(ctx context.Context, caller *authz.Caller) ([]models.PracticeReport, error)
	CreatePracticeReport(ctx context.Context, caller *authz.Caller, in PracticeReportInput) (*models.PracticeReport, error)
	DeletePracticeReport(ctx context.Context, caller *authz.Caller, id uuid.UUID) error
}

type catalogService struct {
	db        *gorm.DB
	materials repositories.MaterialRepository
	rooms     repositories.RoomRepository
	subjects  repositories.SubjectRepository
	reports   repositories.PracticeReportRepository
	ledger    *InventoryLedger
	log       *logger.Logger
}

func NewCatalogService(
	db *gorm.DB,
	materials repositories.MaterialRepository,
	rooms repositories.RoomRepository,
	subjects repositories.SubjectRepository,
	reports repositories.PracticeReportRepository,
	ledger *InventoryLedger,
	log *logger.Logger,
) CatalogService {
	return &catalogService{
		db:        db,
		materials: materials,
		rooms:     rooms,
		subjects:  subjects,
		reports:   reports,
		ledger:    ledger,
		log:       log.With("service", "CatalogService"),
	}
}

// ─── Materials ────────────────────────────────────────────────────────────────

func (s *catalogService) ListMaterials(ctx context.Context, filter repositories.MaterialFilter) ([]models.Material, error) {
	return s.materials.List(s.db.WithContext(ctx), filter)
}

func (s *catalogService) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	m, err := s.materials.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMaterialNotFound
		}
		return nil, err
	}
	return m, nil
}

// CreateMaterial adds a material with its whole stock available.
func (s *catalogService) CreateMaterial(ctx context.Context, caller *authz.Caller, in MaterialInput) (*models.Material, error) {
	if err := authz.Authorize(caller, authz.ActionMaterialCreate, authz.Scope{Labs: []*models.Lab{in.Lab}}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Category) == "" || in.TotalQuantity < 0 {
		return nil, ErrInvalidMaterial
	}

	m := &models.Material{
		Name:              strings.TrimSpace(in.Name),
		Description:       nonEmpty(in.Description),
		Category:          strings.TrimSpace(in.Category),
		TotalQuantity:     in.TotalQuantity,
		AvailableQuantity: in.TotalQuantity,
		Location:          nonEmpty(in.Location),
		Lab:               in.Lab,
	}
	if err := s.materials.Create(s.db.WithContext(ctx), m); err != nil {
		s.log.Error("CreateMaterial: failed to create material", "name", m.Name, "error", err)
		return nil, err
	}
	s.log.Info("CreateMaterial: material created", "material_id", m.ID, "total", m.TotalQuantity, "actor_id", caller.ID)
	return m, nil
}

// UpdateMaterial edits descriptive fields directly; a new total goes
// through the inventory ledger so units on loan stay accounted for.
func (s *catalogService) UpdateMaterial(ctx context.Context, caller *authz.Caller, id uuid.UUID, patch MaterialPatch) (*models.Material, error) {
	var updated *models.Material
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.materials.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMaterialNotFound
			}
			return err
		}

		labs := []*models.Lab{current.Lab}
		if patch.Lab != nil {
			labs = append(labs, patch.Lab)
		}
		if err := authz.Authorize(caller, authz.ActionMaterialUpdate, authz.Scope{Labs: labs}); err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return ErrInvalidMaterial
			}
			fields["name"] = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			if strings.TrimSpace(*patch.Category) == "" {
				return ErrInvalidMaterial
			}
			fields["category"] = strings.TrimSpace(*patch.Category)
		}
		if patch.Description != nil {
			fields["description"] = nonEmpty(patch.Description)
		}
		if patch.Location != nil {
			fields["location"] = nonEmpty(patch.Location)
		}
		if patch.Lab != nil {
			fields["lab"] = *patch.Lab
		}
		if err := s.materials.UpdateDetails(tx, id, fields); err != nil {
			return err
		}

		if patch.TotalQuantity != nil && *patch.TotalQuantity != current.TotalQuantity {
			if err := s.ledger.Resize(tx, id, *patch.TotalQuantity); err != nil {
				return err
			}
		}

		reloaded, err := s.materials.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) && !isAuthzError(err) {
			s.log.Error("UpdateMaterial: transaction failed", "material_id", id, "error", err)
		}
		return nil, err
	}
	s.log.Info("UpdateMaterial: material updated", "material_id", id, "actor_id", caller.ID)
	return updated, nil
}

// DeleteMaterial removes a material that no loan has ever referenced.
func (s *catalogService) DeleteMaterial(ctx context.Context, caller *authz.Caller, id uuid.UUID) error {
	if err := authz.Can(caller, authz.ActionMaterialDelete); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.materials.GetByIDForUpdate(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMaterialNotFound
			}
			return err
		}
		n, err := s.materials.CountLoanItems(tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrMaterialInUse
		}
		if err := s.materials.Delete(tx, id); err != nil {
			s.log.Error("DeleteMaterial: failed to delete material", "material_id", id, "error", err)
			return err
		}
		s.log.Info("DeleteMaterial: material deleted", "material_id", id, "actor_id", caller.ID)
		return nil
	})
}

// ─── Rooms & Subjects ─────────────────────────────────────────────────────────

func (s *catalogService) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.rooms.List(s.db.WithContext(ctx))
}

func (s *catalogService) CreateRoom(ctx context.Context, caller *authz.Caller, in RoomInput) (*models.Room, error) {
	if err := authz.Can(caller, authz.ActionRoomCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || in.Type == "" {
		return nil, ErrInvalidRoom
	}
	room := &models.Room{
		Name:          strings.TrimSpace(in.Name),
		Capacity:      in.Capacity,
		Type:          in.Type,
		Location:      nonEmpty(in.Location),
		Program:       in.Program,
		ResponsibleID: in.ResponsibleID,
	}
	if err := s.rooms.Create(s.db.WithContext(ctx), room); err != nil {
		s.log.Error("CreateRoom: failed to create room", "name", room.Name, "error", err)
		return nil, err
	}
	s.log.Info("CreateRoom: room created", "room_id", room.ID)
	return room, nil
}

func (s *catalogService) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	return s.subjects.List(s.db.WithContext(ctx))
}

func (s *catalogService) CreateSubject(ctx context.Context, caller *authz.Caller, in SubjectInput) (*models.Subject, error) {
	if err := authz.Can(caller, authz.ActionSubjectCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || in.Program == "" || in.Semester < 1 {
		return nil, ErrInvalidSubject
	}
	subject := &models.Subject{
		Name:     strings.TrimSpace(in.Name),
		Program:  in.Program,
		Semester: in.Semester,
	}
	if err := s.subjects.Create(s.db.WithContext(ctx), subject); err != nil {
		s.log.Error("CreateSubject: failed to create subject", "name", subject.Name, "error", err)
		return nil, err
	}
	s.log.Info("CreateSubject: subject created", "subject_id", subject.ID)
	return subject, nil
}

// ─── Practice reports ─────────────────────────────────────────────────────────

// ListPracticeReports shows professors their own reports and everyone else
// all of them.
func (s *catalogService) ListPracticeReports(ctx context.Context, caller *authz.Caller) ([]models.PracticeReport, error) {
	if caller == nil || caller.ID == uuid.Nil {
		return nil, authz.ErrUnauthenticated
	}
	var author *uuid.UUID
	if err := authz.Can(caller, authz.ActionPracticeReportReadAll); err != nil {
		author = &caller.ID
	}
	return s.reports.List(s.db.WithContext(ctx), author)
}

func (s *catalogService) CreatePracticeReport(ctx context.Context, caller *authz.Caller, in PracticeReportInput) (*models.PracticeReport, error) {
	if err := authz.Can(caller, authz.ActionPracticeReportCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PracticeName) == "" || in.StudentsCount < 1 {
		return nil, ErrInvalidReport
	}
	if in.StartTime == nil || in.EndTime == nil {
		return nil, ErrDatesRequired
	}
	if !in.EndTime.After(*in.StartTime) {
		return nil, ErrInvalidTimeRange
	}
	program := in.Program
	if program == nil {
		program = caller.Program
	}
	if program == nil {
		return nil, ErrInvalidProgram
	}

	db := s.db.WithContext(ctx)
	if _, err := s.rooms.GetByID(db, in.RoomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownRoom
		}
		return nil, err
	}
	if _, err := s.subjects.GetByID(db, in.SubjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, err
	}

	report := &models.PracticeReport{
		RoomID:              in.RoomID,
		SubjectID:           in.SubjectID,
		Program:             *program,
		StudentsCount:       in.StudentsCount,
		PracticeName:        strings.TrimSpace(in.PracticeName),
		PracticeDescription: nonEmpty(in.PracticeDescription),
		StartTime:           in.StartTime.UTC(),
		EndTime:             in.EndTime.UTC(),
		CreatedBy:           caller.ID,
	}
	if err := s.reports.Create(db, report); err != nil {
		s.log.Error("CreatePracticeReport: failed to create report", "room_id", in.RoomID, "error", err)
		return nil, err
	}
	s.log.Info("CreatePracticeReport: report created", "report_id", report.ID, "author_id", caller.ID)
	return report, nil
}

func (s *catalogService) DeletePracticeReport(ctx context.Context, caller *authz.Caller, id uuid.UUID) error {
	db := s.db.WithContext(ctx)
	report, err := s.reports.GetByID(db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPracticeReportNotFound
		}
		return err
	}
	if err := authz.Authorize(caller, authz.ActionPracticeReportDelete, authz.Scope{OwnerID: report.CreatedBy}); err != nil {
		return err
	}
	return s.reports.Delete(db, id)
}
