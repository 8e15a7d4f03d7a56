package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"internattend/internal/attendance"
)

func (h *Handler) activeSchedule(c *gin.Context) {
	s, err := h.Svc.ActiveSchedule(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) scheduleHistory(c *gin.Context) {
	versions, err := h.Svc.ScheduleHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": versions})
}

func (h *Handler) activateSchedule(c *gin.Context) {
	var in attendance.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	s, err := h.Svc.ActivateSchedule(c.Request.Context(), in, caller(c).Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}
