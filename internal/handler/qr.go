package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/auth"
	"internattend/internal/queue"
)

func (h *Handler) studentQR(c *gin.Context) {
	id := c.Param("id")
	claims := caller(c)
	if claims.Role != auth.RoleAdmin && claims.Subject != id {
		forbidden(c)
		return
	}
	st, err := h.Svc.Student(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !st.Active {
		h.writeError(c, attendance.ErrStudentInactive)
		return
	}
	png, err := h.Codec.Render(h.Codec.Issue(st.ID, st.Code), h.QRSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// regenerateQR accepts an optional {"previous_code": "..."} body naming an
// artifact to retire alongside the new one.
func (h *Handler) regenerateQR(c *gin.Context) {
	var req struct {
		PreviousCode string `json:"previous_code"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	st, err := h.Svc.Student(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	job := queue.Job{Kind: queue.KindRegenerateQR, SubjectID: st.ID}
	if req.PreviousCode != st.Code {
		job.PreviousCode = req.PreviousCode
	}
	if err := h.Queue.Publish(c.Request.Context(), job); err != nil {
		h.Log.Error("queue publish failed", zap.String("student_id", st.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not queue regeneration", "code": "queue_unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"student_id": st.ID, "status": "queued"})
}
