// Package handler exposes the attendance engine over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/auth"
	"internattend/internal/qrtoken"
	"internattend/internal/queue"
)

// Handler holds the dependencies shared by every route.
type Handler struct {
	Svc    *attendance.Service
	Codec  *qrtoken.Codec
	Queue  queue.Queue
	Log    *zap.Logger
	QRSize int
}

// Register mounts the /v1 routes behind authn.
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	admin := auth.RequireRole(auth.RoleAdmin)
	staff := auth.RequireRole(auth.RoleSupervisor, auth.RoleAdmin)

	v1 := r.Group("/v1", authn)

	v1.POST("/scans", h.scan)
	v1.GET("/attendance", h.listAttendance)

	v1.GET("/schedule", h.activeSchedule)
	v1.GET("/schedule/history", h.scheduleHistory)
	v1.PUT("/schedule", admin, h.activateSchedule)

	v1.POST("/leave-requests", auth.RequireRole(auth.RoleStudent), h.submitLeave)
	v1.GET("/leave-requests", h.listLeave)
	v1.GET("/leave-requests/:id", h.getLeave)
	v1.POST("/leave-requests/:id/decision", staff, h.decideLeave)
	v1.POST("/leave-requests/:id/reconcile", admin, h.reconcileLeave)

	v1.POST("/absences/materialize", admin, h.materializeAbsences)

	v1.GET("/students/:id/qr", h.studentQR)
	v1.POST("/students/:id/qr/regenerate", admin, h.regenerateQR)
}

var statusByErr = []struct {
	err    error
	status int
}{
	{qrtoken.ErrInvalidToken, http.StatusBadRequest},
	{attendance.ErrInvalidLocation, http.StatusBadRequest},
	{attendance.ErrOutOfRange, http.StatusUnprocessableEntity},
	{attendance.ErrNoActiveSchedule, http.StatusConflict},
	{attendance.ErrStudentNotFound, http.StatusNotFound},
	{attendance.ErrStudentInactive, http.StatusForbidden},
	{attendance.ErrTooEarly, http.StatusUnprocessableEntity},
	{attendance.ErrAlreadyComplete, http.StatusConflict},
	{attendance.ErrOnLeave, http.StatusConflict},
	{attendance.ErrDuplicateScan, http.StatusConflict},
	{attendance.ErrScanInProgress, http.StatusConflict},
	{attendance.ErrLeaveOverlap, http.StatusConflict},
	{attendance.ErrLeaveSpanTooLong, http.StatusUnprocessableEntity},
	{attendance.ErrInvalidLeave, http.StatusBadRequest},
	{attendance.ErrLeaveNotFound, http.StatusNotFound},
	{attendance.ErrLeaveAlreadyDecided, http.StatusConflict},
	{attendance.ErrLeaveNotApproved, http.StatusConflict},
	{attendance.ErrInvalidDecision, http.StatusBadRequest},
	{attendance.ErrNotSupervisor, http.StatusForbidden},
	{attendance.ErrInvalidSchedule, http.StatusBadRequest},
	{attendance.ErrFutureDate, http.StatusBadRequest},
	{attendance.ErrRecordNotFound, http.StatusNotFound},
}

// writeError maps core errors to a status and reason code. Anything the core
// does not name is logged and hidden behind a 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := attendance.Code(err)
	if code == "" {
		h.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	status := http.StatusBadRequest
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			status = s.status
			break
		}
	}
	body := gin.H{"error": err.Error(), "code": code}
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.FieldErrors
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "not allowed for this account", "code": "forbidden"})
}

func caller(c *gin.Context) auth.Claims {
	claims, _ := auth.FromContext(c)
	return claims
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
