package service

import (
	"context"
	"sync"
	"testing"

	"procurement/internal/database/databasetest"
	"procurement/internal/model"

	"github.com/stretchr/testify/assert"
)

// Runs against a real pool so concurrent transactions contend on the
// company row lock instead of queueing behind a single connection.
func TestPostgres_ConcurrentCreatesNeverOvershoot(t *testing.T) {
	e := newTestEnvOn(t, databasetest.OpenPostgres(t))
	e.setBudget(t, 2024, 5, 5000)
	unit := e.newProduct(t, "Unit", 4000)
	ctx := context.Background()

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		who := e.alice
		if i%2 == 1 {
			who = e.bob
		}
		wg.Add(1)
		go func(i int, who model.Principal) {
			defer wg.Done()
			<-start
			_, errs[i] = e.purchases.CreateRequest(ctx, who, CreateRequestInput{
				Items:   []LineInput{{ProductID: unit.ID.String(), Quantity: 1}},
				Message: "race",
			})
		}(i, who)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrBudgetExceeded)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(4000), e.committed(t, 2024, 5))
	assert.Equal(t, int64(1), e.countRequests(t, model.StatusPending))
}

func TestPostgres_ConcurrentDecisionsTransitionOnce(t *testing.T) {
	e := newTestEnvOn(t, databasetest.OpenPostgres(t))
	e.setBudget(t, 2024, 5, 100000)
	pen := e.newProduct(t, "Pen", 1000)
	req := e.request(t, e.alice, pen, 2)
	ctx := context.Background()

	const workers = 6
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		action := model.EventApprove
		if i%2 == 1 {
			action = model.EventReject
		}
		wg.Add(1)
		go func(i int, action string) {
			defer wg.Done()
			<-start
			_, errs[i] = e.purchases.Decide(ctx, e.admin, req.ID, DecisionInput{Action: action, Message: "race"})
		}(i, action)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), e.countRequests(t, model.StatusPending))
}
