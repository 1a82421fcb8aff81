package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloans/internal/database"
	"labloans/internal/logger"
	"labloans/internal/metrics"
	"labloans/internal/models"
	"labloans/internal/repositories"
)

// InventoryLedger is the only writer of Material quantity columns. Every
// operation must run inside the transaction of the loan or catalog change
// that triggered it.
type InventoryLedger struct {
	materials repositories.MaterialRepository
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewInventoryLedger(materials repositories.MaterialRepository, log *logger.Logger, m *metrics.Metrics) *InventoryLedger {
	return &InventoryLedger{
		materials: materials,
		log:       log.With("component", "InventoryLedger"),
		metrics:   m,
	}
}

func inTransaction(tx *gorm.DB) bool {
	if tx == nil {
		return false
	}
	_, ok := tx.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// Reserve takes qty units out of the available pool.
func (l *InventoryLedger) Reserve(tx *gorm.DB, materialID uuid.UUID, qty int) error {
	if !inTransaction(tx) {
		return ErrLedgerOutsideTx
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	rows, err := l.materials.DecrementAvailable(tx, materialID, qty)
	if err != nil {
		if database.IsCheckViolation(err) {
			l.metrics.InventoryRejected("reserve")
			return fmt.Errorf("%w: material %s", ErrInsufficientStock, materialID)
		}
		l.log.Error("Reserve: decrement failed", "material_id", materialID, "qty", qty, "error", err)
		return err
	}
	if rows == 1 {
		l.log.Debug("Reserve: units taken", "material_id", materialID, "qty", qty)
		return nil
	}

	m, err := l.materials.GetByID(tx, materialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}
	l.metrics.InventoryRejected("reserve")
	l.log.Warn("Reserve: insufficient stock", "material_id", materialID, "requested", qty, "available", m.AvailableQuantity)
	return wrapInsufficient(m, qty)
}

// Release puts qty units back into the available pool. Available may never
// exceed total.
func (l *InventoryLedger) Release(tx *gorm.DB, materialID uuid.UUID, qty int) error {
	if !inTransaction(tx) {
		return ErrLedgerOutsideTx
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	rows, err := l.materials.IncrementAvailable(tx, materialID, qty)
	if err != nil {
		l.log.Error("Release: increment failed", "material_id", materialID, "qty", qty, "error", err)
		return err
	}
	if rows == 1 {
		l.log.Debug("Release: units returned", "material_id", materialID, "qty", qty)
		return nil
	}

	m, err := l.materials.GetByID(tx, materialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}
	l.metrics.InventoryRejected("release")
	l.log.Error("Release: would exceed total quantity", "material_id", materialID, "qty", qty,
		"available", m.AvailableQuantity, "total", m.TotalQuantity)
	return fmt.Errorf("%w: %s (disponibles %d + %d > total %d)", ErrInvariantViolation, m.Name, m.AvailableQuantity, qty, m.TotalQuantity)
}

// Resize changes the total stock of a material while keeping the number of
// units on loan constant.
func (l *InventoryLedger) Resize(tx *gorm.DB, materialID uuid.UUID, newTotal int) error {
	if !inTransaction(tx) {
		return ErrLedgerOutsideTx
	}
	if newTotal < 0 {
		return ErrInvalidMaterial
	}

	m, err := l.materials.GetByIDForUpdate(tx, materialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}

	onLoan := m.TotalQuantity - m.AvailableQuantity
	if newTotal < onLoan {
		l.metrics.InventoryRejected("resize")
		return fmt.Errorf("%w (%d)", ErrTotalBelowOnLoan, onLoan)
	}
	if err := l.materials.SetQuantities(tx, materialID, newTotal, newTotal-onLoan); err != nil {
		l.log.Error("Resize: update failed", "material_id", materialID, "error", err)
		return err
	}
	l.log.Info("Resize: total changed", "material_id", materialID, "old_total", m.TotalQuantity, "new_total", newTotal)
	return nil
}

// reserveItems and releaseItems walk items in material-id order so
// concurrent transactions lock material rows in the same order.
func (l *InventoryLedger) reserveItems(tx *gorm.DB, items []models.LoanItem) error {
	for _, it := range sortedByMaterial(items) {
		if err := l.Reserve(tx, it.MaterialID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (l *InventoryLedger) releaseItems(tx *gorm.DB, items []models.LoanItem) error {
	for _, it := range sortedByMaterial(items) {
		if err := l.Release(tx, it.MaterialID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func wrapInsufficient(m *models.Material, qty int) error {
	return fmt.Errorf("%w: %s (disponibles %d, solicitados %d)", ErrInsufficientStock, m.Name, m.AvailableQuantity, qty)
}
