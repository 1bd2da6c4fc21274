package handler

import (
	"fmt"
	"net/http"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reports service.ReportService
	auth    *middleware.Auth
}

func NewReportHandler(reports service.ReportService, auth *middleware.Auth) *ReportHandler {
	return &ReportHandler{reports: reports, auth: auth}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/api/admin/reports", h.auth.RequireRole(model.RoleAdmin))
	{
		reports.GET("/decisions", h.ExportDecisions)
	}
}

// ExportDecisions handles GET /api/admin/reports/decisions?from=&to=&status=&role=&format=
// from and to accept RFC3339 or YYYY-MM-DD; a bare date in "to" covers the
// whole day. format=xlsx returns a workbook download.
func (h *ReportHandler) ExportDecisions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.reports.ExportDecisions(c.Request.Context(), service.ExportFilter{
		CompanyID: p.CompanyID,
		From:      from,
		To:        to,
		Status:    c.Query("status"),
		Role:      c.Query("role"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("format") != "xlsx" {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
		return
	}

	data, err := h.reports.RenderXLSX(rows)
	if err != nil {
		writeError(c, err)
		return
	}
	filename := fmt.Sprintf("decisions_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("from and to are required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	return d, nil
}
