package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"internattend/internal/attendance"
	"internattend/internal/auth"
)

func (h *Handler) submitLeave(c *gin.Context) {
	var in attendance.LeaveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	in.StudentID = caller(c).Subject

	req, err := h.Svc.SubmitLeave(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) listLeave(c *gin.Context) {
	claims := caller(c)
	f := attendance.LeaveFilter{
		StudentID:    c.Query("student_id"),
		SupervisorID: c.Query("supervisor_id"),
		Status:       attendance.LeaveStatus(c.Query("status")),
	}
	switch claims.Role {
	case auth.RoleStudent:
		f.StudentID = claims.Subject
	case auth.RoleSupervisor:
		f.SupervisorID = claims.Subject
	}
	f.Limit, f.Offset = pagination(c)

	reqs, err := h.Svc.ListLeaveRequests(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave_requests": reqs})
}

func (h *Handler) getLeave(c *gin.Context) {
	req, err := h.Svc.GetLeaveRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	claims := caller(c)
	if (claims.Role == auth.RoleStudent && req.StudentID != claims.Subject) ||
		(claims.Role == auth.RoleSupervisor && req.SupervisorID != claims.Subject) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) decideLeave(c *gin.Context) {
	var d attendance.Decision
	if err := c.ShouldBindJSON(&d); err != nil {
		badRequest(c, "invalid body")
		return
	}
	claims := caller(c)
	d.DeciderID = claims.Subject
	d.AsAdmin = claims.Role == auth.RoleAdmin

	req, res, err := h.Svc.DecideLeave(c.Request.Context(), c.Param("id"), d)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave_request": req, "reconciled": res})
}

func (h *Handler) reconcileLeave(c *gin.Context) {
	res, err := h.Svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciled": res})
}
