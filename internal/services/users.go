package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"labloans/internal/authz"
	"labloans/internal/database"
	"labloans/internal/logger"
	"labloans/internal/models"
	"labloans/internal/repositories"
)

const minPasswordLength = 8

// UpdateUserInput is a partial profile edit. Enum fields arrive as raw
// strings; an empty string clears the nullable column.
type UpdateUserInput struct {
	Name        *string
	StudentID   *string
	Role        *string
	Program     *string
	AssignedLab *string
}

type CreateUserInput struct {
	Email     string
	FullName  string
	StudentID *string
	Role      string
	Program   *string
}

// BulkUserRow is one row of a bulk profile update, keyed by email.
type BulkUserRow struct {
	Email     string
	FullName  *string
	StudentID *string
	Role      *string
	Program   *string
}

type BulkUserResult struct {
	Email   string `json:"email"`
	Updated bool   `json:"updated"`
	Reason  string `json:"reason,omitempty"`
}

type BulkResult struct {
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Results []BulkUserResult `json:"results"`
}

type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, caller *authz.Caller, in CreateUserInput) (*models.User, string, error)
	UpdateUser(ctx context.Context, caller *authz.Caller, id uuid.UUID, in UpdateUserInput) (*models.User, error)
	BulkUpdate(ctx context.Context, caller *authz.Caller, rows []BulkUserRow) (*BulkResult, error)
	ChangePassword(ctx context.Context, caller *authz.Caller, current, next string) error
}

type userService struct {
	db    *gorm.DB
	users repositories.UserRepository
	log   *logger.Logger
}

func NewUserService(db *gorm.DB, users repositories.UserRepository, log *logger.Logger) UserService {
	return &userService{
		db:    db,
		users: users,
		log:   log.With("service", "UserService"),
	}
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// CreateUser registers a user with a random temporary password, which is
// returned once so an admin can hand it over.
func (s *userService) CreateUser(ctx context.Context, caller *authz.Caller, in CreateUserInput) (*models.User, string, error) {
	if err := authz.Can(caller, authz.ActionUserCreate); err != nil {
		return nil, "", err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.FullName)
	if email == "" || name == "" {
		return nil, "", ErrEmailAndNameRequired
	}
	role, ok := models.ParseUserRole(in.Role)
	if !ok {
		return nil, "", ErrInvalidRole
	}
	program, err := optionalProgram(in.Program)
	if err != nil {
		return nil, "", err
	}

	db := s.db.WithContext(ctx)
	if _, err := s.users.GetByEmail(db, email); err == nil {
		return nil, "", ErrDuplicateEmail
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	temp, err := temporaryPassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		Role:         role,
		Program:      program,
		StudentID:    nonEmpty(in.StudentID),
		PasswordHash: string(hash),
	}
	if err := s.users.Create(db, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, "", ErrDuplicateEmail
		}
		s.log.Error("CreateUser: failed to create user", "email", email, "error", err)
		return nil, "", err
	}
	s.log.Info("CreateUser: user created", "user_id", user.ID, "role", role, "actor_id", caller.ID)
	return user, temp, nil
}

// UpdateUser edits a profile. The assigned lab is kept only when the
// resulting role is LAB_MANAGER and cleared for any other role.
func (s *userService) UpdateUser(ctx context.Context, caller *authz.Caller, id uuid.UUID, in UpdateUserInput) (*models.User, error) {
	if err := authz.Can(caller, authz.ActionUserUpdate); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.Program != nil {
		p, err := optionalProgram(in.Program)
		if err != nil {
			return nil, err
		}
		fields["program"] = p
	}
	var lab *models.Lab
	if in.AssignedLab != nil && strings.TrimSpace(*in.AssignedLab) != "" {
		l, ok := models.ParseLab(*in.AssignedLab)
		if !ok {
			return nil, ErrInvalidLab
		}
		lab = &l
	}
	var role *models.UserRole
	if in.Role != nil {
		r, ok := models.ParseUserRole(*in.Role)
		if !ok {
			return nil, ErrInvalidRole
		}
		role = &r
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, ErrEmailAndNameRequired
		}
		fields["name"] = name
	}
	if in.StudentID != nil {
		fields["student_id"] = nonEmpty(in.StudentID)
	}

	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.users.GetByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		finalRole := current.Role
		if role != nil {
			finalRole = *role
			fields["role"] = *role
		}
		if finalRole == models.UserRoleLabManager {
			if in.AssignedLab != nil {
				fields["assigned_lab"] = lab
			}
		} else if current.AssignedLab != nil {
			fields["assigned_lab"] = nil
		}

		if len(fields) > 0 {
			if err := s.users.Update(tx, id, fields); err != nil {
				s.log.Error("UpdateUser: failed to update user", "user_id", id, "error", err)
				return err
			}
		}
		reloaded, err := s.users.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("UpdateUser: user updated", "user_id", id, "actor_id", caller.ID)
	return updated, nil
}

// BulkUpdate applies each row independently; a failing row never stops
// the rest. Rows only update existing profiles.
func (s *userService) BulkUpdate(ctx context.Context, caller *authz.Caller, rows []BulkUserRow) (*BulkResult, error) {
	if err := authz.Can(caller, authz.ActionUserUpdate); err != nil {
		return nil, err
	}

	res := &BulkResult{Results: make([]BulkUserResult, 0, len(rows))}
	for _, row := range rows {
		r := s.applyBulkRow(ctx, row)
		if r.Updated {
			res.Updated++
		} else {
			res.Failed++
		}
		res.Results = append(res.Results, r)
	}
	s.log.Info("BulkUpdate: finished", "rows", len(rows), "updated", res.Updated, "failed", res.Failed, "actor_id", caller.ID)
	return res, nil
}

func (s *userService) applyBulkRow(ctx context.Context, row BulkUserRow) BulkUserResult {
	email := strings.ToLower(strings.TrimSpace(row.Email))
	if email == "" {
		return BulkUserResult{Reason: "email vacío"}
	}
	out := BulkUserResult{Email: email}

	fields := map[string]interface{}{}
	if row.Program != nil {
		p, err := optionalProgram(row.Program)
		if err != nil {
			out.Reason = "programa inválido"
			return out
		}
		fields["program"] = p
	}
	if row.Role != nil && strings.TrimSpace(*row.Role) != "" {
		r, ok := models.ParseUserRole(*row.Role)
		if !ok {
			out.Reason = "rol inválido"
			return out
		}
		fields["role"] = r
	}
	if row.FullName != nil && strings.TrimSpace(*row.FullName) != "" {
		fields["name"] = strings.TrimSpace(*row.FullName)
	}
	if row.StudentID != nil {
		fields["student_id"] = nonEmpty(row.StudentID)
	}
	if len(fields) == 0 {
		out.Reason = "sin cambios"
		return out
	}

	db := s.db.WithContext(ctx)
	profile, err := s.users.GetByEmail(db, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out.Reason = "perfil no encontrado"
		} else {
			out.Reason = err.Error()
		}
		return out
	}
	if r, ok := fields["role"].(models.UserRole); ok && r != models.UserRoleLabManager && profile.AssignedLab != nil {
		fields["assigned_lab"] = nil
	}
	if err := s.users.Update(db, profile.ID, fields); err != nil {
		s.log.Warn("BulkUpdate: row failed", "email", email, "error", err)
		out.Reason = err.Error()
		return out
	}
	out.Updated = true
	return out
}

func (s *userService) ChangePassword(ctx context.Context, caller *authz.Caller, current, next string) error {
	if caller == nil || caller.ID == uuid.Nil {
		return authz.ErrUnauthenticated
	}
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}

	db := s.db.WithContext(ctx)
	user, err := s.users.GetByID(db, caller.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.Update(db, user.ID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		s.log.Error("ChangePassword: failed to store hash", "user_id", user.ID, "error", err)
		return err
	}
	s.log.Info("ChangePassword: password changed", "user_id", user.ID)
	return nil
}

// optionalProgram parses a nullable program; nil or blank means NULL.
func optionalProgram(s *string) (*models.Program, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	p, ok := models.ParseProgram(*s)
	if !ok {
		return nil, ErrInvalidProgram
	}
	return &p, nil
}

func temporaryPassword() (string, error) {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
