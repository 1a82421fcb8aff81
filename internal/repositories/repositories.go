package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labloans/internal/models"
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	List(db *gorm.DB, role *models.UserRole) ([]models.User, error)
}

type MaterialFilter struct {
	Lab      *models.Lab
	Category string
}

type MaterialRepository interface {
	Create(db *gorm.DB, material *models.Material) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Material, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Material, error)
	GetByIDsForUpdate(db *gorm.DB, ids []uuid.UUID) ([]models.Material, error)
	List(db *gorm.DB, filter MaterialFilter) ([]models.Material, error)
	UpdateDetails(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(db *gorm.DB, id uuid.UUID) error
	CountLoanItems(db *gorm.DB, id uuid.UUID) (int64, error)

	// Quantity columns. Only the inventory ledger calls these.
	DecrementAvailable(db *gorm.DB, id uuid.UUID, qty int) (int64, error)
	IncrementAvailable(db *gorm.DB, id uuid.UUID, qty int) (int64, error)
	SetQuantities(db *gorm.DB, id uuid.UUID, total, available int) error
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *userRepository) List(db *gorm.DB, role *models.UserRole) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("name ASC")
	if role != nil {
		q = q.Where("role = ?", *role)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

type materialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) Create(db *gorm.DB, material *models.Material) error {
	if db == nil {
		db = r.db
	}
	return db.Create(material).Error
}

func (r *materialRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Material, error) {
	if db == nil {
		db = r.db
	}
	var m models.Material
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *materialRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Material, error) {
	if db == nil {
		db = r.db
	}
	var m models.Material
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByIDsForUpdate locks the rows in id order so that two transactions
// touching the same materials cannot deadlock each other.
func (r *materialRepository) GetByIDsForUpdate(db *gorm.DB, ids []uuid.UUID) ([]models.Material, error) {
	if db == nil {
		db = r.db
	}
	var ms []models.Material
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *materialRepository) List(db *gorm.DB, filter MaterialFilter) ([]models.Material, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("name ASC")
	if filter.Lab != nil {
		q = q.Where("lab = ?", *filter.Lab)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	var ms []models.Material
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *materialRepository) UpdateDetails(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	delete(fields, "total_quantity")
	delete(fields, "available_quantity")
	if len(fields) == 0 {
		return nil
	}
	return db.Model(&models.Material{}).Where("id = ?", id).Updates(fields).Error
}

func (r *materialRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Material{}, "id = ?", id).Error
}

func (r *materialRepository) CountLoanItems(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.LoanItem{}).Where("material_id = ?", id).Count(&n).Error
	return n, err
}

// DecrementAvailable is a conditional decrement: it only touches the row
// when enough units are available, so the check and the write happen under
// the same row lock. Zero rows affected means the material is missing or
// short.
func (r *materialRepository) DecrementAvailable(db *gorm.DB, id uuid.UUID, qty int) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Material{}).
		Where("id = ? AND available_quantity >= ?", id, qty).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", qty))
	return res.RowsAffected, res.Error
}

func (r *materialRepository) IncrementAvailable(db *gorm.DB, id uuid.UUID, qty int) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Material{}).
		Where("id = ? AND available_quantity + ? <= total_quantity", id, qty).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity + ?", qty))
	return res.RowsAffected, res.Error
}

func (r *materialRepository) SetQuantities(db *gorm.DB, id uuid.UUID, total, available int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Material{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"total_quantity":     total,
			"available_quantity": available,
		}).Error
}
