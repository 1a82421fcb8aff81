package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labloans/internal/models"
)

type RoomRepository interface {
	Create(db *gorm.DB, room *models.Room) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Room, error)
	List(db *gorm.DB) ([]models.Room, error)
}

type SubjectRepository interface {
	Create(db *gorm.DB, subject *models.Subject) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Subject, error)
	List(db *gorm.DB) ([]models.Subject, error)
}

type PracticeReportRepository interface {
	Create(db *gorm.DB, report *models.PracticeReport) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.PracticeReport, error)
	List(db *gorm.DB, createdBy *uuid.UUID) ([]models.PracticeReport, error)
	Delete(db *gorm.DB, id uuid.UUID) error
}

type roomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(db *gorm.DB, room *models.Room) error {
	if db == nil {
		db = r.db
	}
	return db.Create(room).Error
}

func (r *roomRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Room, error) {
	if db == nil {
		db = r.db
	}
	var room models.Room
	if err := db.First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) List(db *gorm.DB) ([]models.Room, error) {
	if db == nil {
		db = r.db
	}
	var rooms []models.Room
	if err := db.Order("name ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

type subjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

func (r *subjectRepository) Create(db *gorm.DB, subject *models.Subject) error {
	if db == nil {
		db = r.db
	}
	return db.Create(subject).Error
}

func (r *subjectRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Subject, error) {
	if db == nil {
		db = r.db
	}
	var s models.Subject
	if err := db.First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subjectRepository) List(db *gorm.DB) ([]models.Subject, error) {
	if db == nil {
		db = r.db
	}
	var subjects []models.Subject
	if err := db.Order("name ASC").Find(&subjects).Error; err != nil {
		return nil, err
	}
	return subjects, nil
}

type practiceReportRepository struct {
	db *gorm.DB
}

func NewPracticeReportRepository(db *gorm.DB) PracticeReportRepository {
	return &practiceReportRepository{db: db}
}

func (r *practiceReportRepository) Create(db *gorm.DB, report *models.PracticeReport) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(report).Error
}

func (r *practiceReportRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.PracticeReport, error) {
	if db == nil {
		db = r.db
	}
	var pr models.PracticeReport
	if err := db.First(&pr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pr, nil
}

// List returns reports newest first, optionally restricted to one author.
func (r *practiceReportRepository) List(db *gorm.DB, createdBy *uuid.UUID) ([]models.PracticeReport, error) {
	if db == nil {
		db = r.db
	}
	q := db.Preload("Room").Preload("Subject").Preload("Author").Order("created_at DESC")
	if createdBy != nil {
		q = q.Where("created_by = ?", *createdBy)
	}
	var reports []models.PracticeReport
	if err := q.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *practiceReportRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.PracticeReport{}, "id = ?", id).Error
}
