package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"labloans/internal/services"
)

type createUserRequest struct {
	Email     string  `json:"email"`
	FullName  string  `json:"fullName"`
	StudentID *string `json:"studentId"`
	Role      string  `json:"role"`
	Program   *string `json:"program"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	user, temp, err := h.users.CreateUser(c.Request.Context(), caller(c), services.CreateUserInput{
		Email:     req.Email,
		FullName:  req.FullName,
		StudentID: req.StudentID,
		Role:      req.Role,
		Program:   req.Program,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "temporaryPassword": temp})
}

type updateUserRequest struct {
	Name        *string `json:"name"`
	StudentID   *string `json:"studentId"`
	Role        *string `json:"role"`
	Program     *string `json:"program"`
	AssignedLab *string `json:"assignedLab"`
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	user, err := h.users.UpdateUser(c.Request.Context(), caller(c), id, services.UpdateUserInput{
		Name:        req.Name,
		StudentID:   req.StudentID,
		Role:        req.Role,
		Program:     req.Program,
		AssignedLab: req.AssignedLab,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type bulkUserRow struct {
	Email     string  `json:"email"`
	FullName  *string `json:"fullName"`
	StudentID *string `json:"studentId"`
	Role      *string `json:"role"`
	Program   *string `json:"program"`
}

type bulkUsersRequest struct {
	Users []bulkUserRow `json:"users"`
}

func (h *Handler) bulkUpdateUsers(c *gin.Context) {
	var req bulkUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	rows := make([]services.BulkUserRow, 0, len(req.Users))
	for _, u := range req.Users {
		rows = append(rows, services.BulkUserRow{
			Email:     u.Email,
			FullName:  u.FullName,
			StudentID: u.StudentID,
			Role:      u.Role,
			Program:   u.Program,
		})
	}
	res, err := h.users.BulkUpdate(c.Request.Context(), caller(c), rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), caller(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contraseña actualizada exitosamente"})
}
