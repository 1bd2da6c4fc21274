package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: TotalOf is the fee plus the sum of the line amounts.
func TestTotalOfProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total equals fee plus line amounts", prop.ForAll(
		func(quantities []int, price int64, fee int64) bool {
			if len(quantities) == 0 {
				return true
			}
			items := make([]PurchaseRequestItem, len(quantities))
			want := fee
			for i, q := range quantities {
				items[i] = PurchaseRequestItem{Quantity: q, UnitPrice: price + int64(i)}
				want += int64(q) * (price + int64(i))
			}
			got, err := TotalOf(items, fee)
			return err == nil && got == want
		},
		gen.SliceOfN(8, gen.IntRange(1, 1000)),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 10_000),
	))

	properties.TestingRun(t)
}

var events = []string{EventApprove, EventReject, EventCancel}

// Property: whatever sequence of events is applied, a request leaves PENDING
// at most once and never leaves a terminal status.
func TestSingleTransitionProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("at most one transition", prop.ForAll(
		func(sequence []int) bool {
			req := &PurchaseRequest{Status: StatusPending, RequesterID: uuid.New()}
			admin := uuid.New()

			applied := 0
			for _, n := range sequence {
				var err error
				switch events[n] {
				case EventApprove:
					err = req.Approve(admin, "", testAt)
				case EventReject:
					err = req.Reject(admin, "no", testAt)
				case EventCancel:
					err = req.Cancel(req.RequesterID, testAt)
				}
				if err == nil {
					applied++
				}
			}
			if len(sequence) == 0 {
				return applied == 0 && req.Status == StatusPending
			}
			return applied == 1 && IsTerminal(req.Status)
		},
		gen.SliceOf(gen.IntRange(0, len(events)-1)),
	))

	properties.TestingRun(t)
}
