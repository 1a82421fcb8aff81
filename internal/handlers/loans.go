package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labloans/internal/models"
	"labloans/internal/services"
)

type loanItemRequest struct {
	MaterialID string `json:"materialId"`
	Quantity   int    `json:"quantity"`
}

type createLoanRequest struct {
	Materials  []loanItemRequest `json:"materials"`
	PickupDate *string           `json:"pickupDate"`
	ReturnDate *string           `json:"returnDate"`
	Notes      *string           `json:"notes"`
}

func (h *Handler) createLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	in := services.CreateLoanInput{Notes: req.Notes}
	for _, m := range req.Materials {
		id, err := uuid.Parse(m.MaterialID)
		if err != nil {
			h.fail(c, services.ErrUnknownMaterial)
			return
		}
		in.Items = append(in.Items, services.LoanItemInput{MaterialID: id, Quantity: m.Quantity})
	}
	var err error
	if in.PickupDate, err = parseTime(req.PickupDate); err != nil {
		h.fail(c, err)
		return
	}
	if in.ReturnDate, err = parseTime(req.ReturnDate); err != nil {
		h.fail(c, err)
		return
	}

	loan, err := h.loans.CreateLoan(c.Request.Context(), caller(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"loanId": loan.ID})
}

type transitionLoanRequest struct {
	Status     string  `json:"status" binding:"required"`
	AdminNotes *string `json:"adminNotes"`
}

func (h *Handler) transitionLoan(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req transitionLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, services.ErrInvalidStatus)
		return
	}

	loan, err := h.loans.TransitionLoan(c.Request.Context(), caller(c), id, models.LoanStatus(req.Status), req.AdminNotes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan})
}

func (h *Handler) getLoan(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	loan, err := h.loans.GetLoan(c.Request.Context(), caller(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) listLoans(c *gin.Context) {
	var status *models.LoanStatus
	if raw := c.Query("status"); raw != "" {
		st, ok := models.ParseLoanStatus(raw)
		if !ok {
			h.fail(c, services.ErrInvalidStatus)
			return
		}
		status = &st
	}
	loans, err := h.loans.ListLoans(c.Request.Context(), caller(c), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *Handler) listOverdueLoans(c *gin.Context) {
	loans, err := h.loans.ListOverdueLoans(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}
