// Package testutil provides an in-memory database and fixtures shared by
// package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"labloans/internal/database"
	"labloans/internal/logger"
	"labloans/internal/models"
)

// DB returns a fresh, migrated in-memory sqlite database. The pool is
// pinned to one connection so concurrent transactions serialize the way
// row locks would serialize them on postgres.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("generic db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

type UserOption func(*models.User)

func WithProgram(p models.Program) UserOption {
	return func(u *models.User) { u.Program = &p }
}

func WithAssignedLab(l models.Lab) UserOption {
	return func(u *models.User) { u.AssignedLab = &l }
}

func WithPasswordHash(h string) UserOption {
	return func(u *models.User) { u.PasswordHash = h }
}

func CreateUser(tb testing.TB, db *gorm.DB, role models.UserRole, opts ...UserOption) *models.User {
	tb.Helper()
	id := uuid.New()
	u := &models.User{
		Base:  models.Base{ID: id},
		Email: fmt.Sprintf("%s@lab.test", id.String()[:8]),
		Name:  "Usuario " + id.String()[:4],
		Role:  role,
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("create user: %v", err)
	}
	return u
}

// CreateMaterial inserts a material with available == total.
func CreateMaterial(tb testing.TB, db *gorm.DB, name string, total int, lab *models.Lab) *models.Material {
	tb.Helper()
	m := &models.Material{
		Name:              name,
		Category:          "general",
		TotalQuantity:     total,
		AvailableQuantity: total,
		Lab:               lab,
	}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("create material: %v", err)
	}
	return m
}

func CreateRoom(tb testing.TB, db *gorm.DB, name string, program *models.Program) *models.Room {
	tb.Helper()
	r := &models.Room{Name: name, Type: models.RoomTypeLaboratorio, Program: program}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("create room: %v", err)
	}
	return r
}

func CreateSubject(tb testing.TB, db *gorm.DB, name string, program models.Program) *models.Subject {
	tb.Helper()
	s := &models.Subject{Name: name, Program: program, Semester: 1}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("create subject: %v", err)
	}
	return s
}

// Material re-reads a material row.
func Material(tb testing.TB, db *gorm.DB, id uuid.UUID) *models.Material {
	tb.Helper()
	var m models.Material
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		tb.Fatalf("load material: %v", err)
	}
	return &m
}

func LabPtr(l models.Lab) *models.Lab { return &l }

func ProgramPtr(p models.Program) *models.Program { return &p }
