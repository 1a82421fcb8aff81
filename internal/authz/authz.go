// Package authz is the authorization gate. Every decision is a pure
// function of the caller, the action and the scope of the target resource;
// a nil error means allow.
package authz

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"labloans/internal/models"
)

var (
	ErrUnauthenticated = errors.New("no autorizado")
	ErrForbiddenRole   = errors.New("no tienes permisos para realizar esta acción")
	ErrForbiddenScope  = errors.New("acción fuera de tu ámbito")
)

// Caller is the resolved identity of whoever issued the request.
type Caller struct {
	ID          uuid.UUID
	Role        models.UserRole
	Program     *models.Program
	AssignedLab *models.Lab
}

func CallerFromUser(u *models.User) *Caller {
	if u == nil {
		return nil
	}
	return &Caller{
		ID:          u.ID,
		Role:        u.Role,
		Program:     u.Program,
		AssignedLab: u.AssignedLab,
	}
}

type Action string

const (
	ActionLoanCreate            Action = "loan:create"
	ActionLoanReadAll           Action = "loan:read-all"
	ActionLoanTransition        Action = "loan:transition"
	ActionReservationCreate     Action = "reservation:create"
	ActionReservationReview     Action = "reservation:review"
	ActionMaterialCreate        Action = "material:create"
	ActionMaterialUpdate        Action = "material:update"
	ActionMaterialDelete        Action = "material:delete"
	ActionRoomCreate            Action = "room:create"
	ActionSubjectCreate         Action = "subject:create"
	ActionUserCreate            Action = "user:create"
	ActionUserUpdate            Action = "user:update"
	ActionPracticeReportCreate  Action = "practice-report:create"
	ActionPracticeReportReadAll Action = "practice-report:read-all"
	ActionPracticeReportDelete  Action = "practice-report:delete"
)

type rule int

const (
	deny rule = iota
	allow
	scoped
)

// Scope describes the target resource attributes that scoped rules look at.
type Scope struct {
	// Labs holds the lab tag of every material touched by the action, one
	// entry per material. A nil entry is an untagged material.
	Labs    []*models.Lab
	Program *models.Program
	OwnerID uuid.UUID
}

var (
	admin      = models.UserRoleAdmin
	labManager = models.UserRoleLabManager
	student    = models.UserRoleStudent
	professor  = models.UserRoleProfessor
)

var capabilities = map[Action]map[models.UserRole]rule{
	ActionLoanCreate:            {student: allow},
	ActionLoanReadAll:           {admin: allow, labManager: allow},
	ActionLoanTransition:        {admin: allow, labManager: scoped},
	ActionReservationCreate:     {admin: allow, labManager: allow, student: allow, professor: allow},
	ActionReservationReview:     {admin: allow, labManager: scoped},
	ActionMaterialCreate:        {admin: allow, labManager: scoped},
	ActionMaterialUpdate:        {admin: allow, labManager: scoped},
	ActionMaterialDelete:        {admin: allow},
	ActionRoomCreate:            {admin: allow},
	ActionSubjectCreate:         {admin: allow},
	ActionUserCreate:            {admin: allow},
	ActionUserUpdate:            {admin: allow},
	ActionPracticeReportCreate:  {professor: allow},
	ActionPracticeReportReadAll: {admin: allow, labManager: allow, student: allow},
	ActionPracticeReportDelete:  {admin: allow, professor: scoped},
}

var scopeChecks = map[Action]func(*Caller, Scope) error{
	ActionLoanTransition:       loanLabScope,
	ActionReservationReview:    programScope,
	ActionMaterialCreate:       materialLabScope,
	ActionMaterialUpdate:       materialLabScope,
	ActionPracticeReportDelete: ownerScope,
}

// Authorize decides whether caller may perform action on a target
// described by scope.
func Authorize(caller *Caller, action Action, scope Scope) error {
	if caller == nil || caller.ID == uuid.Nil {
		return ErrUnauthenticated
	}
	switch capabilities[action][caller.Role] {
	case allow:
		return nil
	case scoped:
		check, ok := scopeChecks[action]
		if !ok {
			return fmt.Errorf("%w: %s", ErrForbiddenRole, action)
		}
		return check(caller, scope)
	default:
		return ErrForbiddenRole
	}
}

// Can is Authorize for actions that carry no scope.
func Can(caller *Caller, action Action) error {
	return Authorize(caller, action, Scope{})
}

// loanLabScope requires every material in the loan to belong to the
// manager's lab. Managers without an assigned lab are treated as unscoped
// until every manager has been assigned one.
func loanLabScope(caller *Caller, scope Scope) error {
	if caller.AssignedLab == nil {
		return nil
	}
	for _, lab := range scope.Labs {
		if lab == nil || *lab != *caller.AssignedLab {
			return fmt.Errorf("%w: lab-scope mismatch", ErrForbiddenScope)
		}
	}
	return nil
}

func materialLabScope(caller *Caller, scope Scope) error {
	if caller.AssignedLab == nil {
		return fmt.Errorf("%w: sin laboratorio asignado", ErrForbiddenScope)
	}
	if len(scope.Labs) == 0 {
		return fmt.Errorf("%w: lab-scope mismatch", ErrForbiddenScope)
	}
	for _, lab := range scope.Labs {
		if lab == nil || *lab != *caller.AssignedLab {
			return fmt.Errorf("%w: lab-scope mismatch", ErrForbiddenScope)
		}
	}
	return nil
}

func programScope(caller *Caller, scope Scope) error {
	if caller.Program == nil || scope.Program == nil || *caller.Program != *scope.Program {
		return fmt.Errorf("%w: program-scope mismatch", ErrForbiddenScope)
	}
	return nil
}

func ownerScope(caller *Caller, scope Scope) error {
	if scope.OwnerID == uuid.Nil || scope.OwnerID != caller.ID {
		return fmt.Errorf("%w: not the author", ErrForbiddenScope)
	}
	return nil
}
