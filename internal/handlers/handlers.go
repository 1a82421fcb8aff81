package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labloans/internal/authz"
	"labloans/internal/logger"
	"labloans/internal/middleware"
	"labloans/internal/services"
)

type Deps struct {
	Loans        services.LoanService
	Reservations services.ReservationService
	Catalog      services.CatalogService
	Users        services.UserService

	// Auth attaches the caller; every route except /healthz and /metrics
	// runs behind it.
	Auth    gin.HandlerFunc
	Health  func(ctx context.Context) error
	Metrics http.Handler
	Log     *logger.Logger
}

type Handler struct {
	loans        services.LoanService
	reservations services.ReservationService
	catalog      services.CatalogService
	users        services.UserService
	health       func(ctx context.Context) error
	log          *logger.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &Handler{
		loans:        d.Loans,
		reservations: d.Reservations,
		catalog:      d.Catalog,
		users:        d.Users,
		health:       d.Health,
		log:          d.Log.With("component", "handlers"),
	}

	r.GET("/healthz", h.healthz)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := r.Group("/")
	if d.Auth != nil {
		api.Use(d.Auth)
	}

	// Loans
	api.POST("/loans", h.createLoan)
	api.GET("/loans", h.listLoans)
	api.GET("/loans/overdue", h.listOverdueLoans)
	api.GET("/loans/:id", h.getLoan)
	api.PATCH("/loans/:id/status", h.transitionLoan)

	// Materials
	api.GET("/materials", h.listMaterials)
	api.GET("/materials/:id", h.getMaterial)
	api.POST("/materials", h.createMaterial)
	api.PATCH("/materials/:id", h.updateMaterial)
	api.DELETE("/materials/:id", h.deleteMaterial)

	// Rooms, subjects and reservations
	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", h.createRoom)
	api.GET("/subjects", h.listSubjects)
	api.POST("/subjects", h.createSubject)
	api.GET("/reservations", h.listReservations)
	api.POST("/reservations", h.createReservation)
	api.PATCH("/reservations", h.reviewReservation)

	// Practice reports
	api.GET("/practice-reports", h.listPracticeReports)
	api.POST("/practice-reports", h.createPracticeReport)
	api.DELETE("/practice-reports/:id", h.deletePracticeReport)

	// Users
	api.POST("/users", h.createUser)
	api.POST("/users/bulk", h.bulkUpdateUsers)
	api.PATCH("/users/:id", h.updateUser)
	api.POST("/account/password", h.changePassword)
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Error("healthz: database ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Base de datos no disponible"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrForbiddenRole), errors.Is(err, authz.ErrForbiddenScope):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = services.ErrInternal.Error()
	}
	c.JSON(status, gin.H{"error": capitalize(msg)})
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func (h *Handler) badBody(c *gin.Context, err error) {
	h.log.Debug("invalid request body", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": capitalize(services.ErrInvalidID.Error())})
		return uuid.Nil, false
	}
	return id, true
}

// parseTime accepts RFC 3339 timestamps and bare YYYY-MM-DD dates. Blank
// input yields nil.
func parseTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, services.ErrInvalidDate
}

func parseUUIDPtr(s *string, invalid error) (*uuid.UUID, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		return nil, invalid
	}
	return &id, nil
}

func caller(c *gin.Context) *authz.Caller {
	return middleware.CallerFrom(c)
}
