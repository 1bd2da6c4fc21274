package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"procurement/internal/database/databasetest"
	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testClock is a settable Clock safe for concurrent reads.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []PurchaseEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e PurchaseEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db     *gorm.DB
	clock  *testClock
	events *recordingPublisher

	companyRepo  repository.CompanyRepository
	userRepo     repository.UserRepository
	productRepo  repository.ProductRepository
	cartRepo     repository.CartRepository
	budgetRepo   repository.BudgetRepository
	purchaseRepo repository.PurchaseRequestRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager

	ledger    LedgerService
	catalog   CatalogService
	cart      CartService
	purchases PurchaseService
	reports   ReportService
	audit     AuditService

	company model.Company
	admin   model.Principal
	alice   model.Principal
	bob     model.Principal
}

// may15 is the default test date; requests created at it are charged to 2024-05.
var may15 = time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, databasetest.Open(t))
}

// newTestEnvOn wires every service over db and seeds the Acme company.
func newTestEnvOn(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	e := &testEnv{
		db:           db,
		clock:        &testClock{now: may15},
		events:       &recordingPublisher{},
		companyRepo:  repository.NewCompanyRepository(db),
		userRepo:     repository.NewUserRepository(db),
		productRepo:  repository.NewProductRepository(db),
		cartRepo:     repository.NewCartRepository(db),
		budgetRepo:   repository.NewBudgetRepository(db),
		purchaseRepo: repository.NewPurchaseRequestRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
		txManager:    repository.NewTransactionManager(db),
	}

	e.ledger = NewLedgerService(e.companyRepo, e.budgetRepo, e.purchaseRepo, e.auditRepo, e.txManager, e.clock.Now)
	e.catalog = NewCatalogService(e.productRepo, e.auditRepo, e.txManager, e.clock.Now)
	e.cart = NewCartService(e.cartRepo, e.productRepo, e.txManager)
	e.purchases = NewPurchaseService(e.purchaseRepo, e.cartRepo, e.auditRepo, e.txManager, e.ledger, e.catalog, e.events, e.clock.Now)
	e.reports = NewReportService(e.purchaseRepo, 100)
	e.audit = NewAuditService(e.auditRepo)

	e.company, e.admin = e.newCompany(t, "Acme")
	e.alice = e.newUser(t, e.company.ID, "alice", model.RoleUser)
	e.bob = e.newUser(t, e.company.ID, "bob", model.RoleManager)
	return e
}

func (e *testEnv) newCompany(t *testing.T, name string) (model.Company, model.Principal) {
	t.Helper()
	company := model.Company{Name: name}
	require.NoError(t, e.companyRepo.Create(context.Background(), &company))
	admin := e.newUser(t, company.ID, name+"-admin", model.RoleAdmin)
	return company, admin
}

func (e *testEnv) newUser(t *testing.T, companyID uuid.UUID, username, role string) model.Principal {
	t.Helper()
	user := model.User{
		CompanyID: companyID,
		Username:  username,
		Email:     username + "@example.com",
		Password:  "not-a-real-hash",
		Role:      role,
	}
	require.NoError(t, e.userRepo.Create(context.Background(), &user))
	return model.Principal{UserID: user.ID, CompanyID: companyID, Role: role}
}

func (e *testEnv) newProduct(t *testing.T, name string, price int64) model.Product {
	t.Helper()
	product := model.Product{SKU: "SKU-" + name, Name: name, Price: price}
	require.NoError(t, e.productRepo.Create(context.Background(), &product))
	return product
}

func (e *testEnv) setBudget(t *testing.T, year, month int, amount int64) {
	t.Helper()
	_, _, err := e.ledger.UpsertBudget(context.Background(), e.admin, UpsertBudgetRequest{Year: year, Month: month, Amount: amount})
	require.NoError(t, err)
}

func (e *testEnv) committed(t *testing.T, year, month int) int64 {
	t.Helper()
	sum, err := e.ledger.CommittedSpend(context.Background(), e.company.ID, model.Period{Year: year, Month: month})
	require.NoError(t, err)
	return sum
}

// request creates a PENDING request of exactly amount (one line, no shipping).
func (e *testEnv) request(t *testing.T, who model.Principal, product model.Product, qty int) PurchaseRequestResponse {
	t.Helper()
	res, err := e.purchases.CreateRequest(context.Background(), who, CreateRequestInput{
		Items:   []LineInput{{ProductID: product.ID.String(), Quantity: qty}},
		Message: "restock",
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) countRequests(t *testing.T, status string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.PurchaseRequest{}).Where("status = ?", status).Count(&n).Error)
	return n
}
