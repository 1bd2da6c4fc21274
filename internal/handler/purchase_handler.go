package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type PurchaseHandler struct {
	purchases service.PurchaseService
	auth      *middleware.Auth
}

func NewPurchaseHandler(purchases service.PurchaseService, auth *middleware.Auth) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, auth: auth}
}

func (h *PurchaseHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/purchase-requests", h.auth.RequireAuth())
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id/cancel", h.CancelRequest)
	}

	admin := router.Group("/api/admin", h.auth.RequireRole(model.RoleAdmin))
	{
		admin.PUT("/purchase-requests/:id/approve", h.decide(model.EventApprove))
		admin.PUT("/purchase-requests/:id/reject", h.decide(model.EventReject))
		admin.POST("/purchases", h.PurchaseNow)
	}
}

// CreateRequest handles POST /api/purchase-requests. Over-budget requests
// answer 422 with the budget figures in data.
func (h *PurchaseHandler) CreateRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.purchases.CreateRequest(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListRequests handles GET /api/purchase-requests?status=&mine=
func (h *PurchaseHandler) ListRequests(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)
	mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false"))

	list, total, err := h.purchases.ListRequests(c.Request.Context(), p, service.ListRequestsInput{
		Status: c.Query("status"),
		Mine:   mine,
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, params.Wrap(list, total)))
}

func (h *PurchaseHandler) GetRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	res, err := h.purchases.GetRequest(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CancelRequest handles PUT /api/purchase-requests/:id/cancel
func (h *PurchaseHandler) CancelRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	res, err := h.purchases.Cancel(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

type decisionBody struct {
	Message string `json:"message"`
}

// decide builds the approve and reject handlers. The body is optional for
// approvals; a rejection without a message fails in the service.
func (h *PurchaseHandler) decide(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var body decisionBody
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}

		res, err := h.purchases.Decide(c.Request.Context(), p, c.Param("id"), service.DecisionInput{
			Action:  action,
			Message: body.Message,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
	}
}

// PurchaseNow handles POST /api/admin/purchases
func (h *PurchaseHandler) PurchaseNow(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.PurchaseNowInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.purchases.PurchaseNow(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}
