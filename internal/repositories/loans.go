package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labloans/internal/models"
)

type LoanFilter struct {
	StudentID *uuid.UUID
	Status    *models.LoanStatus
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	CreateItems(db *gorm.DB, items []models.LoanItem) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	List(db *gorm.DB, filter LoanFilter) ([]models.Loan, error)
	ListOverdue(db *gorm.DB, asOf time.Time) ([]models.Loan, error)
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Items.Material")
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) CreateItems(db *gorm.DB, items []models.LoanItem) error {
	if db == nil {
		db = r.db
	}
	if len(items) == 0 {
		return nil
	}
	return db.Omit(clause.Associations).Create(&items).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := withItems(db).First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetByIDForUpdate locks the loan row; items and materials are loaded
// without locks (material rows are locked by the inventory ledger).
func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := withItems(db.Clauses(clause.Locking{Strength: "UPDATE"})).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).Where("id = ?", id).Updates(fields).Error
}

func (r *loanRepository) List(db *gorm.DB, filter LoanFilter) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	q := withItems(db).Order("request_date DESC")
	if filter.StudentID != nil {
		q = q.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	var loans []models.Loan
	if err := q.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// ListOverdue returns picked-up loans whose expected return date is before
// asOf.
func (r *loanRepository) ListOverdue(db *gorm.DB, asOf time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := withItems(db).
		Preload("Student").
		Where("status = ? AND expected_return_date < ?", models.LoanStatusPickedUp, asOf).
		Order("expected_return_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}
