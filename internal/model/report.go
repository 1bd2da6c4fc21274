package model

import (
	"time"
)

// DecisionRow is one line of the decision export
type DecisionRow struct {
	RequestID       string    `json:"request_id"`
	CompanyName     string    `json:"company_name"`
	RequesterName   string    `json:"requester_name"`
	RequesterRole   string    `json:"requester_role"`
	ItemsSummary    string    `json:"items_summary"`
	ShippingFee     int64     `json:"shipping_fee"`
	TotalPrice      int64     `json:"total_price"`
	Status          string    `json:"status"`
	RequestedAt     time.Time `json:"requested_at"`
	DecidedAt       time.Time `json:"decided_at"`
	DeciderName     string    `json:"decider_name"`
	DecisionMessage string    `json:"decision_message"`
	RejectionReason string    `json:"rejection_reason"`
}
