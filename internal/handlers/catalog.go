package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labloans/internal/models"
	"labloans/internal/repositories"
	"labloans/internal/services"
)

// ─── Materials ────────────────────────────────────────────────────────────────

type materialRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	TotalQuantity *int    `json:"total_quantity"`
	Location      *string `json:"location"`
	Lab           *string `json:"lab"`
}

func parseLab(s *string) (*models.Lab, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	l, ok := models.ParseLab(*s)
	if !ok {
		return nil, services.ErrInvalidLab
	}
	return &l, nil
}

func parseProgram(s *string) (*models.Program, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	p, ok := models.ParseProgram(*s)
	if !ok {
		return nil, services.ErrInvalidProgram
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *Handler) listMaterials(c *gin.Context) {
	filter := repositories.MaterialFilter{Category: c.Query("category")}
	if raw := c.Query("lab"); raw != "" {
		lab, err := parseLab(&raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		filter.Lab = lab
	}
	materials, err := h.catalog.ListMaterials(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, materials)
}

func (h *Handler) getMaterial(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	m, err := h.catalog.GetMaterial(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) createMaterial(c *gin.Context) {
	var req materialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	lab, err := parseLab(req.Lab)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.TotalQuantity == nil {
		h.fail(c, services.ErrInvalidMaterial)
		return
	}

	m, err := h.catalog.CreateMaterial(c.Request.Context(), caller(c), services.MaterialInput{
		Name:          deref(req.Name),
		Description:   req.Description,
		Category:      deref(req.Category),
		TotalQuantity: *req.TotalQuantity,
		Location:      req.Location,
		Lab:           lab,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) updateMaterial(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req materialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	lab, err := parseLab(req.Lab)
	if err != nil {
		h.fail(c, err)
		return
	}

	m, err := h.catalog.UpdateMaterial(c.Request.Context(), caller(c), id, services.MaterialPatch{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		TotalQuantity: req.TotalQuantity,
		Location:      req.Location,
		Lab:           lab,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) deleteMaterial(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteMaterial(c.Request.Context(), caller(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Rooms & Subjects ─────────────────────────────────────────────────────────

type roomRequest struct {
	Name          string  `json:"name"`
	Capacity      *int    `json:"capacity"`
	Type          string  `json:"type"`
	Location      *string `json:"location"`
	Program       *string `json:"program"`
	ResponsibleID *string `json:"responsible_id"`
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.catalog.ListRooms(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) createRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	in := services.RoomInput{
		Name:     req.Name,
		Capacity: req.Capacity,
		Location: req.Location,
	}
	if req.Type != "" {
		t, ok := models.ParseRoomType(req.Type)
		if !ok {
			h.fail(c, services.ErrInvalidRoom)
			return
		}
		in.Type = t
	}
	var err error
	if in.Program, err = parseProgram(req.Program); err != nil {
		h.fail(c, err)
		return
	}
	if in.ResponsibleID, err = parseUUIDPtr(req.ResponsibleID, services.ErrInvalidID); err != nil {
		h.fail(c, err)
		return
	}

	room, err := h.catalog.CreateRoom(c.Request.Context(), caller(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

type subjectRequest struct {
	Name     string `json:"name"`
	Program  string `json:"program"`
	Semester int    `json:"semester"`
}

func (h *Handler) listSubjects(c *gin.Context) {
	subjects, err := h.catalog.ListSubjects(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (h *Handler) createSubject(c *gin.Context) {
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	program, err := parseProgram(&req.Program)
	if err != nil {
		h.fail(c, err)
		return
	}
	in := services.SubjectInput{Name: req.Name, Semester: req.Semester}
	if program != nil {
		in.Program = *program
	}

	subject, err := h.catalog.CreateSubject(c.Request.Context(), caller(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

// ─── Practice reports ─────────────────────────────────────────────────────────

type practiceReportRequest struct {
	RoomID              string  `json:"room_id"`
	SubjectID           string  `json:"subject_id"`
	Program             *string `json:"program"`
	StudentsCount       int     `json:"students_count"`
	PracticeName        string  `json:"practice_name"`
	PracticeDescription *string `json:"practice_description"`
	StartTime           *string `json:"start_time"`
	EndTime             *string `json:"end_time"`
}

func (h *Handler) listPracticeReports(c *gin.Context) {
	reports, err := h.catalog.ListPracticeReports(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *Handler) createPracticeReport(c *gin.Context) {
	var req practiceReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		h.fail(c, services.ErrUnknownRoom)
		return
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		h.fail(c, services.ErrUnknownSubject)
		return
	}
	in := services.PracticeReportInput{
		RoomID:              roomID,
		SubjectID:           subjectID,
		StudentsCount:       req.StudentsCount,
		PracticeName:        req.PracticeName,
		PracticeDescription: req.PracticeDescription,
	}
	if in.Program, err = parseProgram(req.Program); err != nil {
		h.fail(c, err)
		return
	}
	if in.StartTime, err = parseTime(req.StartTime); err != nil {
		h.fail(c, err)
		return
	}
	if in.EndTime, err = parseTime(req.EndTime); err != nil {
		h.fail(c, err)
		return
	}

	report, err := h.catalog.CreatePracticeReport(c.Request.Context(), caller(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *Handler) deletePracticeReport(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeletePracticeReport(c.Request.Context(), caller(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
