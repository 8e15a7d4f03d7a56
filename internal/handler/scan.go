package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/auth"
	"internattend/internal/geo"
)

type scanRequest struct {
	Payload    string   `json:"payload" binding:"required"`
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
	DeviceInfo string   `json:"device_info"`
}

func (h *Handler) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "payload, latitude and longitude are required")
		return
	}

	subject, err := h.Codec.VerifyPayload(req.Payload)
	if err != nil {
		h.Log.Warn("QR signature rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		h.writeError(c, err)
		return
	}
	claims := caller(c)
	if claims.Role == auth.RoleStudent && claims.Subject != subject.ID {
		forbidden(c)
		return
	}

	device := req.DeviceInfo
	if device == "" {
		device = c.Request.UserAgent()
	}
	out, err := h.Svc.RecordScan(c.Request.Context(), attendance.ScanInput{
		StudentID:   subject.ID,
		SubjectCode: subject.Code,
		Point:       geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude},
		DeviceInfo:  device,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listAttendance(c *gin.Context) {
	claims := caller(c)
	f := attendance.RecordFilter{StudentID: c.Query("student_id")}
	if claims.Role == auth.RoleStudent {
		f.StudentID = claims.Subject
	}
	var err error
	if v := c.Query("from"); v != "" {
		if f.From, err = attendance.ParseDate(v); err != nil {
			badRequest(c, "from must be YYYY-MM-DD")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if f.To, err = attendance.ParseDate(v); err != nil {
			badRequest(c, "to must be YYYY-MM-DD")
			return
		}
	}
	f.Limit, f.Offset = pagination(c)

	records, err := h.Svc.ListRecords(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) materializeAbsences(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	date := h.Svc.Today()
	if req.Date != "" {
		d, err := attendance.ParseDate(req.Date)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	n, err := h.Svc.MaterializeAbsences(c.Request.Context(), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format(time.DateOnly), "inserted": n})
}
