package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labloans/internal/models"
)

type ReservationRepository interface {
	Create(db *gorm.DB, reservation *models.Reservation) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Reservation, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Reservation, error)
	UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	List(db *gorm.DB, roomID *uuid.UUID) ([]models.Reservation, error)
}

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(db *gorm.DB, reservation *models.Reservation) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(reservation).Error
}

func (r *reservationRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res models.Reservation
	if err := db.Preload("Room").First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res models.Reservation
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Reservation{}).Where("id = ?", id).Updates(fields).Error
}

func (r *reservationRepository) List(db *gorm.DB, roomID *uuid.UUID) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	q := db.Preload("Room").Preload("Requester").Order("start_time ASC")
	if roomID != nil {
		q = q.Where("room_id = ?", *roomID)
	}
	var res []models.Reservation
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
