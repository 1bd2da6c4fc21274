package handler

import (
	"net/http"
	"strconv"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type BudgetHandler struct {
	ledger service.LedgerService
	auth   *middleware.Auth
	now    service.Clock
}

func NewBudgetHandler(ledger service.LedgerService, auth *middleware.Auth, now service.Clock) *BudgetHandler {
	if now == nil {
		now = service.SystemClock
	}
	return &BudgetHandler{ledger: ledger, auth: auth, now: now}
}

func (h *BudgetHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/budgets/summary", h.auth.RequireAuth(), h.Summary)

	admin := router.Group("/api/admin", h.auth.RequireRole(model.RoleAdmin))
	{
		admin.GET("/budgets", h.ListBudgets)
		admin.PUT("/budgets", h.UpsertBudget)
		admin.PUT("/criteria", h.UpsertCriteria)
	}
}

// Summary handles GET /api/budgets/summary?year=&month=, defaulting to the
// current month.
func (h *BudgetHandler) Summary(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	period := model.PeriodOf(h.now())
	if v := c.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		period.Year = year
	}
	if v := c.Query("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		period.Month = month
	}

	summary, err := h.ledger.Summary(c.Request.Context(), p.CompanyID, period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// ListBudgets handles GET /api/admin/budgets?year=
func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	year, _ := strconv.Atoi(c.DefaultQuery("year", "0"))

	budgets, err := h.ledger.ListBudgets(c.Request.Context(), p.CompanyID, year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budgets))
}

// UpsertBudget handles PUT /api/admin/budgets: 201 when the month had no
// budget yet, 200 when it was overwritten.
func (h *BudgetHandler) UpsertBudget(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.UpsertBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	budget, created, err := h.ledger.UpsertBudget(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, response.Success(status, budget))
}

// UpsertCriteria handles PUT /api/admin/criteria
func (h *BudgetHandler) UpsertCriteria(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.UpsertCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	criteria, created, err := h.ledger.UpsertCriteria(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, response.Success(status, criteria))
}
