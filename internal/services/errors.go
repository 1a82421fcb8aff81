package services

import (
	"errors"
	"fmt"

	"labloans/internal/models"
)

// Error kinds. Every service error unwraps to exactly one of these, which
// the HTTP layer maps to a status code.
var (
	ErrNotFound   = errors.New("recurso no encontrado")
	ErrValidation = errors.New("datos inválidos")
	ErrInternal   = errors.New("error interno del servidor")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func notFound(msg string) error   { return &kindError{kind: ErrNotFound, msg: msg} }
func validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }
func internal(msg string) error   { return &kindError{kind: ErrInternal, msg: msg} }

var (
	ErrLoanNotFound           = notFound("préstamo no encontrado")
	ErrMaterialNotFound       = notFound("material no encontrado")
	ErrUserNotFound           = notFound("usuario no encontrado")
	ErrReservationNotFound    = notFound("reserva no encontrada")
	ErrRoomNotFound           = notFound("sala no encontrada")
	ErrSubjectNotFound        = notFound("materia no encontrada")
	ErrPracticeReportNotFound = notFound("reporte de práctica no encontrado")
)

var (
	ErrNoItems           = validation("debes seleccionar al menos un material")
	ErrInvalidQuantity   = validation("la cantidad debe ser al menos 1")
	ErrDatesRequired     = validation("las fechas son requeridas")
	ErrInvalidDate       = validation("formato de fecha inválido")
	ErrInvalidID         = validation("identificador inválido")
	ErrInvalidDateRange  = validation("la fecha de devolución debe ser posterior a la de recogida")
	ErrUnknownMaterial   = validation("material inexistente")
	ErrInsufficientStock = validation("stock insuficiente")
	ErrInvalidStatus     = validation("estado de préstamo inválido")
	ErrInvalidTransition = validation("transición de estado inválida")
	ErrMaterialInUse     = validation("el material tiene préstamos asociados")
	ErrTotalBelowOnLoan  = validation("la cantidad total no puede ser menor que las unidades prestadas")
	ErrInvalidMaterial   = validation("nombre, categoría y cantidad total son requeridos")
	ErrInvalidLab        = validation("laboratorio asignado inválido")

	ErrInvalidAction                = validation("acción inválida")
	ErrInvalidTimeRange             = validation("la hora de fin debe ser posterior a la de inicio")
	ErrUnknownRoom                  = validation("sala inexistente")
	ErrInvalidReservationTransition = validation("la reserva no admite esta acción en su estado actual")

	ErrInvalidRoom    = validation("nombre y tipo de sala son requeridos")
	ErrInvalidSubject = validation("nombre, programa y semestre son requeridos")
	ErrUnknownSubject = validation("materia inexistente")
	ErrInvalidReport  = validation("nombre de práctica y número de estudiantes son requeridos")

	ErrEmailAndNameRequired = validation("email y nombre completo son requeridos")
	ErrInvalidRole          = validation("rol inválido")
	ErrInvalidProgram       = validation("programa inválido")
	ErrDuplicateEmail       = validation("ya existe un usuario con este email")
	ErrWrongPassword        = validation("la contraseña actual es incorrecta")
	ErrWeakPassword         = validation("la nueva contraseña debe tener al menos 8 caracteres")
)

var (
	ErrInvariantViolation = internal("violación de invariante de inventario")
	ErrLedgerOutsideTx    = internal("operación de inventario fuera de una transacción")
)

// InvalidTransitionError names the rejected (from, to) pair.
type InvalidTransitionError struct {
	From models.LoanStatus
	To   models.LoanStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("no se puede cambiar el estado de %s a %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
