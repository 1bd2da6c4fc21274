package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("handler-test-secret")

// --- Mocks ---

type mockPurchaseService struct {
	mock.Mock
}

func (m *mockPurchaseService) CreateRequest(ctx context.Context, actor model.Principal, in service.CreateRequestInput) (service.PurchaseRequestResponse, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(service.PurchaseRequestResponse), args.Error(1)
}

func (m *mockPurchaseService) Decide(ctx context.Context, actor model.Principal, id string, in service.DecisionInput) (service.PurchaseRequestResponse, error) {
	args := m.Called(ctx, actor, id, in)
	return args.Get(0).(service.PurchaseRequestResponse), args.Error(1)
}

func (m *mockPurchaseService) Cancel(ctx context.Context, actor model.Principal, id string) (service.PurchaseRequestResponse, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(service.PurchaseRequestResponse), args.Error(1)
}

func (m *mockPurchaseService) PurchaseNow(ctx context.Context, actor model.Principal, in service.PurchaseNowInput) (service.PurchaseRequestResponse, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(service.PurchaseRequestResponse), args.Error(1)
}

func (m *mockPurchaseService) GetRequest(ctx context.Context, actor model.Principal, id string) (service.PurchaseRequestResponse, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(service.PurchaseRequestResponse), args.Error(1)
}

func (m *mockPurchaseService) ListRequests(ctx context.Context, actor model.Principal, in service.ListRequestsInput) ([]service.PurchaseRequestResponse, int64, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).([]service.PurchaseRequestResponse), args.Get(1).(int64), args.Error(2)
}

type mockLedgerService struct {
	mock.Mock
}

func (m *mockLedgerService) EffectiveBudget(ctx context.Context, companyID uuid.UUID, period model.Period) (service.EffectiveBudget, error) {
	args := m.Called(ctx, companyID, period)
	return args.Get(0).(service.EffectiveBudget), args.Error(1)
}

func (m *mockLedgerService) CommittedSpend(ctx context.Context, companyID uuid.UUID, period model.Period) (int64, error) {
	args := m.Called(ctx, companyID, period)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedgerService) Reserve(ctx context.Context, companyID uuid.UUID, period model.Period, amount int64) (service.Reservation, error) {
	args := m.Called(ctx, companyID, period, amount)
	return args.Get(0).(service.Reservation), args.Error(1)
}

func (m *mockLedgerService) UpsertBudget(ctx context.Context, actor model.Principal, req service.UpsertBudgetRequest) (service.BudgetResponse, bool, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(service.BudgetResponse), args.Bool(1), args.Error(2)
}

func (m *mockLedgerService) UpsertCriteria(ctx context.Context, actor model.Principal, req service.UpsertCriteriaRequest) (service.CriteriaResponse, bool, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(service.CriteriaResponse), args.Bool(1), args.Error(2)
}

func (m *mockLedgerService) Summary(ctx context.Context, companyID uuid.UUID, period model.Period) (service.BudgetSummary, error) {
	args := m.Called(ctx, companyID, period)
	return args.Get(0).(service.BudgetSummary), args.Error(1)
}

func (m *mockLedgerService) ListBudgets(ctx context.Context, companyID uuid.UUID, year int) ([]service.BudgetResponse, error) {
	args := m.Called(ctx, companyID, year)
	return args.Get(0).([]service.BudgetResponse), args.Error(1)
}

type mockReportService struct {
	mock.Mock
}

func (m *mockReportService) ExportDecisions(ctx context.Context, filter service.ExportFilter) ([]model.DecisionRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.DecisionRow), args.Error(1)
}

func (m *mockReportService) RenderXLSX(rows []model.DecisionRow) ([]byte, error) {
	args := m.Called(rows)
	return args.Get(0).([]byte), args.Error(1)
}

// --- Helpers ---

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func newPrincipal(role string) model.Principal {
	return model.Principal{UserID: uuid.New(), CompanyID: uuid.New(), Role: role}
}

func bearer(t *testing.T, p model.Principal) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        p.UserID.String(),
		"company_id": p.CompanyID.String(),
		"role":       p.Role,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

type routes interface {
	RegisterRoutes(router *gin.RouterGroup)
}

func newRouter(h routes) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group(""))
	return r
}

func do(t *testing.T, r http.Handler, method, path string, who *model.Principal, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("Authorization", bearer(t, *who))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != xlsxContentType {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

// --- Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad", model.ErrInvalidInput), http.StatusBadRequest, CodeInvalidInput},
		{fmt.Errorf("%w: x", service.ErrProductNotFound), http.StatusNotFound, CodeProductNotFound},
		{fmt.Errorf("request: %w", service.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{model.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{model.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
		{service.ErrConflict, http.StatusConflict, CodeConflict},
		{&service.BudgetExceededError{}, http.StatusUnprocessableEntity, CodeBudgetExceeded},
		{service.ErrExportLimitExceeded, http.StatusUnprocessableEntity, CodeExportLimitExceeded},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestCreateRequest_BudgetExceededDetails(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	alice := newPrincipal(model.RoleUser)

	in := service.CreateRequestInput{
		Items:   []service.LineInput{{ProductID: uuid.NewString(), Quantity: 2}},
		Message: "restock",
	}
	svc.On("CreateRequest", mock.Anything, alice, in).Return(service.PurchaseRequestResponse{}, &service.BudgetExceededError{
		Year: 2024, Month: 5, Effective: 100000, Committed: 90000, Requested: 15000,
	})

	w, env := do(t, r, http.MethodPost, "/api/purchase-requests", &alice, in)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeBudgetExceeded, env.Code)

	var details budgetDetails
	require.NoError(t, json.Unmarshal(env.Data, &details))
	assert.Equal(t, budgetDetails{Year: 2024, Month: 5, Effective: 100000, Committed: 90000, Requested: 15000, Remaining: 10000}, details)
	svc.AssertExpectations(t)
}

func TestCreateRequest_Created(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	alice := newPrincipal(model.RoleUser)

	svc.On("CreateRequest", mock.Anything, alice, mock.Anything).
		Return(service.PurchaseRequestResponse{ID: "r-1", Status: model.StatusPending}, nil)

	w, env := do(t, r, http.MethodPost, "/api/purchase-requests", &alice, service.CreateRequestInput{FromCart: true, Message: "hi"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", env.Status)
	assert.Contains(t, string(env.Data), `"r-1"`)
}

func TestCreateRequest_Unauthenticated(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))

	w, _ := do(t, r, http.MethodPost, "/api/purchase-requests", nil, service.CreateRequestInput{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecide_Routes(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	admin := newPrincipal(model.RoleAdmin)

	svc.On("Decide", mock.Anything, admin, "r-1", service.DecisionInput{Action: model.EventApprove}).
		Return(service.PurchaseRequestResponse{ID: "r-1", Status: model.StatusApproved}, nil)
	svc.On("Decide", mock.Anything, admin, "r-2", service.DecisionInput{Action: model.EventReject, Message: "too pricey"}).
		Return(service.PurchaseRequestResponse{ID: "r-2", Status: model.StatusRejected}, nil)
	svc.On("Decide", mock.Anything, admin, "r-3", mock.Anything).
		Return(service.PurchaseRequestResponse{}, fmt.Errorf("%w: cannot approve a rejected request", model.ErrInvalidTransition))

	w, _ := do(t, r, http.MethodPut, "/api/admin/purchase-requests/r-1/approve", &admin, nil)
	assert.Equal(t, http.StatusOK, w.Code, "approval body is optional")

	w, _ = do(t, r, http.MethodPut, "/api/admin/purchase-requests/r-2/reject", &admin, gin.H{"message": "too pricey"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodPut, "/api/admin/purchase-requests/r-3/approve", &admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeInvalidTransition, env.Code)

	svc.AssertExpectations(t)
}

func TestDecide_RequiresAdminRole(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	manager := newPrincipal(model.RoleManager)

	w, _ := do(t, r, http.MethodPut, "/api/admin/purchase-requests/r-1/approve", &manager, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListRequests_PageEnvelope(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	bob := newPrincipal(model.RoleManager)

	svc.On("ListRequests", mock.Anything, bob, service.ListRequestsInput{Status: "PENDING", Mine: true, Page: 2, Limit: 5}).
		Return([]service.PurchaseRequestResponse{{ID: "r-9"}}, int64(6), nil)

	w, env := do(t, r, http.MethodGet, "/api/purchase-requests?status=PENDING&mine=true&page=2&limit=5", &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Total int64 `json:"total"`
		Page  int   `json:"page"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(6), page.Total)
	assert.Equal(t, 2, page.Page)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	svc := &mockPurchaseService{}
	r := newRouter(NewPurchaseHandler(svc, middleware.NewAuth(testSecret, false)))
	alice := newPrincipal(model.RoleUser)

	svc.On("GetRequest", mock.Anything, alice, "r-1").
		Return(service.PurchaseRequestResponse{}, errors.New("pq: connection refused"))

	w, env := do(t, r, http.MethodGet, "/api/purchase-requests/r-1", &alice, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, env.Code)
	assert.NotContains(t, env.Error, "pq:")
}

func TestUpsertBudget_CreatedVersusUpdated(t *testing.T) {
	ledger := &mockLedgerService{}
	r := newRouter(NewBudgetHandler(ledger, middleware.NewAuth(testSecret, false), nil))
	admin := newPrincipal(model.RoleAdmin)

	may := service.UpsertBudgetRequest{Year: 2024, Month: 5, Amount: 1000}
	june := service.UpsertBudgetRequest{Year: 2024, Month: 6, Amount: 1000}
	ledger.On("UpsertBudget", mock.Anything, admin, may).Return(service.BudgetResponse{Year: 2024, Month: 5}, true, nil)
	ledger.On("UpsertBudget", mock.Anything, admin, june).Return(service.BudgetResponse{Year: 2024, Month: 6}, false, nil)

	w, _ := do(t, r, http.MethodPut, "/api/admin/budgets", &admin, may)
	assert.Equal(t, http.StatusCreated, w.Code)
	w, _ = do(t, r, http.MethodPut, "/api/admin/budgets", &admin, june)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodPut, "/api/admin/budgets", &admin, gin.H{"year": 2024, "month": 13, "amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidInput, env.Code)
	ledger.AssertExpectations(t)
}

func TestSummary_DefaultsToCurrentMonth(t *testing.T) {
	ledger := &mockLedgerService{}
	now := func() time.Time { return time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC) }
	r := newRouter(NewBudgetHandler(ledger, middleware.NewAuth(testSecret, false), now))
	bob := newPrincipal(model.RoleManager)

	ledger.On("Summary", mock.Anything, bob.CompanyID, model.Period{Year: 2024, Month: 3}).
		Return(service.BudgetSummary{Year: 2024, Month: 3, Utilization: "0.00"}, nil)
	ledger.On("Summary", mock.Anything, bob.CompanyID, model.Period{Year: 2023, Month: 12}).
		Return(service.BudgetSummary{Year: 2023, Month: 12, Utilization: "0.00"}, nil)

	w, _ := do(t, r, http.MethodGet, "/api/budgets/summary", &bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/budgets/summary?year=2023&month=12", &bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/budgets/summary?month=may", &bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ledger.AssertExpectations(t)
}

func TestExportDecisions_Handler(t *testing.T) {
	reports := &mockReportService{}
	r := newRouter(NewReportHandler(reports, middleware.NewAuth(testSecret, false)))
	admin := newPrincipal(model.RoleAdmin)

	filter := service.ExportFilter{
		CompanyID: admin.CompanyID,
		From:      time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2024, time.May, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC),
		Status:    "APPROVED",
	}
	rows := []model.DecisionRow{{RequestID: "r-1"}}
	reports.On("ExportDecisions", mock.Anything, filter).Return(rows, nil)
	reports.On("RenderXLSX", rows).Return([]byte("PK-fake"), nil)

	w, env := do(t, r, http.MethodGet, "/api/admin/reports/decisions?from=2024-05-01&to=2024-05-31&status=APPROVED", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "r-1")

	w, _ = do(t, r, http.MethodGet, "/api/admin/reports/decisions?from=2024-05-01&to=2024-05-31&status=APPROVED&format=xlsx", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="decisions_20240501_20240531.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK-fake", w.Body.String())

	w, _ = do(t, r, http.MethodGet, "/api/admin/reports/decisions?to=2024-05-31", &admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reports.AssertExpectations(t)
}

func TestExportDecisions_LimitExceeded(t *testing.T) {
	reports := &mockReportService{}
	r := newRouter(NewReportHandler(reports, middleware.NewAuth(testSecret, false)))
	admin := newPrincipal(model.RoleAdmin)

	reports.On("ExportDecisions", mock.Anything, mock.Anything).Return([]model.DecisionRow(nil), service.ErrExportLimitExceeded)

	w, env := do(t, r, http.MethodGet, "/api/admin/reports/decisions?from=2024-05-01T00:00:00Z&to=2024-06-01T00:00:00Z", &admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeExportLimitExceeded, env.Code)
}
