package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labloans/internal/services"
)

type createReservationRequest struct {
	RoomID    string  `json:"room_id"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason"`
	Program   *string `json:"program"`
}

// Both spellings of the cancel reason are accepted.
type reviewReservationRequest struct {
	ID                string  `json:"id"`
	Action            string  `json:"action"`
	CancelReason      *string `json:"cancelReason"`
	CancelReasonSnake *string `json:"cancel_reason"`
}

func (h *Handler) listReservations(c *gin.Context) {
	raw := c.Query("room_id")
	roomID, err := parseUUIDPtr(&raw, services.ErrUnknownRoom)
	if err != nil {
		h.fail(c, err)
		return
	}
	reservations, err := h.reservations.ListReservations(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

func (h *Handler) createReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		h.fail(c, services.ErrUnknownRoom)
		return
	}
	in := services.CreateReservationInput{RoomID: roomID, Reason: req.Reason}
	if in.StartTime, err = parseTime(req.StartTime); err != nil {
		h.fail(c, err)
		return
	}
	if in.EndTime, err = parseTime(req.EndTime); err != nil {
		h.fail(c, err)
		return
	}
	if in.Program, err = parseProgram(req.Program); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.reservations.CreateReservation(c.Request.Context(), caller(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) reviewReservation(c *gin.Context) {
	var req reviewReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.fail(c, services.ErrInvalidID)
		return
	}
	reason := req.CancelReason
	if reason == nil {
		reason = req.CancelReasonSnake
	}

	action := services.ReservationAction(strings.ToLower(strings.TrimSpace(req.Action)))
	res, err := h.reservations.ReviewReservation(c.Request.Context(), caller(c), id, action, reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
