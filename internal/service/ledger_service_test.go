package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"procurement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveBudget_Fallbacks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	may := model.Period{Year: 2024, Month: 5}
	june := model.Period{Year: 2024, Month: 6}

	eff, err := e.ledger.EffectiveBudget(ctx, e.company.ID, may)
	require.NoError(t, err)
	assert.Equal(t, EffectiveBudget{Amount: 0, Source: model.BudgetSourceNone}, eff)

	_, created, err := e.ledger.UpsertCriteria(ctx, e.admin, UpsertCriteriaRequest{Amount: 50000})
	require.NoError(t, err)
	assert.True(t, created)

	eff, err = e.ledger.EffectiveBudget(ctx, e.company.ID, may)
	require.NoError(t, err)
	assert.Equal(t, EffectiveBudget{Amount: 50000, Source: model.BudgetSourceCriteria}, eff)

	e.setBudget(t, 2024, 5, 80000)

	eff, err = e.ledger.EffectiveBudget(ctx, e.company.ID, may)
	require.NoError(t, err)
	assert.Equal(t, EffectiveBudget{Amount: 80000, Source: model.BudgetSourceMonthly}, eff)

	// Other months still fall back to the criteria.
	eff, err = e.ledger.EffectiveBudget(ctx, e.company.ID, june)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), eff.Amount)
}

func TestEffectiveBudget_ZeroMonthlyBudgetOverridesCriteria(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, _, err := e.ledger.UpsertCriteria(ctx, e.admin, UpsertCriteriaRequest{Amount: 50000})
	require.NoError(t, err)
	e.setBudget(t, 2024, 5, 0)

	eff, err := e.ledger.EffectiveBudget(ctx, e.company.ID, model.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, EffectiveBudget{Amount: 0, Source: model.BudgetSourceMonthly}, eff)
}

func TestUpsertBudget_CreatedThenUpdated(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, created, err := e.ledger.UpsertBudget(ctx, e.admin, UpsertBudgetRequest{Year: 2024, Month: 5, Amount: 1000})
	require.NoError(t, err)
	assert.True(t, created)

	e.clock.Advance(time.Minute)
	second, created, err := e.ledger.UpsertBudget(ctx, e.admin, UpsertBudgetRequest{Year: 2024, Month: 5, Amount: 2000})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2000), second.Amount)

	budgets, err := e.ledger.ListBudgets(ctx, e.company.ID, 2024)
	require.NoError(t, err)
	require.Len(t, budgets, 1)

	logs, total, err := e.audit.GetAuditLogs(ctx, e.company.ID, model.ActionUpsertBudget, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Contains(t, logs[0].Details, `"previous_amount":1000`)
}

func TestUpsertBudget_InvalidInput(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, req := range []UpsertBudgetRequest{
		{Year: 2024, Month: 13, Amount: 1},
		{Year: 2024, Month: 0, Amount: 1},
		{Year: 2024, Month: 5, Amount: -1},
	} {
		_, _, err := e.ledger.UpsertBudget(ctx, e.admin, req)
		assert.ErrorIs(t, err, model.ErrInvalidInput, "%+v", req)
	}

	_, _, err := e.ledger.UpsertCriteria(ctx, e.admin, UpsertCriteriaRequest{Amount: -5})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = e.ledger.UpsertBudget(ctx, e.admin, UpsertBudgetRequest{Year: 2024, Month: 5, Amount: model.MaxAmount + 1})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = e.ledger.UpsertCriteria(ctx, e.admin, UpsertCriteriaRequest{Amount: math.MaxInt64})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestReserve_RequiresTransaction(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.ledger.Reserve(context.Background(), e.company.ID, model.Period{Year: 2024, Month: 5}, 10)
	require.Error(t, err)
}

func TestReserve_DecisionAndDenial(t *testing.T) {
	e := newTestEnv(t)
	e.setBudget(t, 2024, 5, 100000)
	period := model.Period{Year: 2024, Month: 5}

	var allowed, denied Reservation
	err := e.txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		var err error
		if allowed, err = e.ledger.Reserve(ctx, e.company.ID, period, 100000); err != nil {
			return err
		}
		denied, err = e.ledger.Reserve(ctx, e.company.ID, period, 100001)
		return err
	})
	require.NoError(t, err)

	assert.True(t, allowed.Allowed, "spending exactly the budget is allowed")
	assert.False(t, denied.Allowed)

	exceeded := denied.Exceeded()
	assert.True(t, errors.Is(exceeded, ErrBudgetExceeded))
	assert.Equal(t, int64(100000), exceeded.Effective)
	assert.Equal(t, int64(100001), exceeded.Requested)
	assert.Equal(t, int64(100000), exceeded.Remaining())
}

func TestReserve_HugeAmountIsDenied(t *testing.T) {
	e := newTestEnv(t)
	e.setBudget(t, 2024, 5, 100)
	product := e.newProduct(t, "Pen", 10)
	e.request(t, e.alice, product, 1)
	period := model.Period{Year: 2024, Month: 5}

	err := e.txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		res, err := e.ledger.Reserve(ctx, e.company.ID, period, math.MaxInt64-5)
		require.NoError(t, err)
		assert.False(t, res.Allowed, "committed plus amount must not wrap around")
		assert.Equal(t, int64(10), res.Committed)
		return nil
	})
	require.NoError(t, err)

	_, err = e.purchases.CreateRequest(context.Background(), e.alice, CreateRequestInput{
		Items:   []LineInput{{ProductID: product.ID.String(), Quantity: math.MaxInt64 - 5}},
		Message: "everything",
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Equal(t, int64(10), e.committed(t, 2024, 5))
}

func TestReserve_NoBudgetAllowsOnlyZero(t *testing.T) {
	e := newTestEnv(t)
	period := model.Period{Year: 2024, Month: 5}

	err := e.txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		res, err := e.ledger.Reserve(ctx, e.company.ID, period, 0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = e.ledger.Reserve(ctx, e.company.ID, period, 1)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, model.BudgetSourceNone, res.Effective.Source)
		return nil
	})
	require.NoError(t, err)
}

func TestReserve_InvalidInput(t *testing.T) {
	e := newTestEnv(t)

	err := e.txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := e.ledger.Reserve(ctx, e.company.ID, model.Period{Year: 2024, Month: 5}, -1)
		assert.ErrorIs(t, err, model.ErrInvalidInput)

		_, err = e.ledger.Reserve(ctx, e.company.ID, model.Period{Year: 2024, Month: 13}, 1)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
		return nil
	})
	require.NoError(t, err)
}

func TestSummary_Utilization(t *testing.T) {
	e := newTestEnv(t)
	e.setBudget(t, 2024, 5, 30000)
	pen := e.newProduct(t, "Pen", 1000)
	e.request(t, e.alice, pen, 10)

	summary, err := e.ledger.Summary(context.Background(), e.company.ID, model.Period{Year: 2024, Month: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(30000), summary.Effective)
	assert.Equal(t, int64(10000), summary.Committed)
	assert.Equal(t, int64(20000), summary.Remaining)
	assert.Equal(t, "33.33", summary.Utilization)
	assert.Equal(t, model.BudgetSourceMonthly, summary.Source)
}

func TestSummary_NoBudget(t *testing.T) {
	e := newTestEnv(t)

	summary, err := e.ledger.Summary(context.Background(), e.company.ID, model.Period{Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, "0.00", summary.Utilization)
	assert.Equal(t, int64(0), summary.Remaining)
}
