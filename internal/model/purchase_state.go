package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Events accepted by the purchase request state machine
const (
	EventApprove = "APPROVE"
	EventReject  = "REJECT"
	EventCancel  = "CANCEL"
)

// transitions lists every legal move; anything absent is rejected.
var transitions = map[string]map[string]string{
	StatusPending: {
		EventApprove: StatusApproved,
		EventReject:  StatusRejected,
		EventCancel:  StatusCancelled,
	},
}

// NextStatus returns the status reached by applying event to from.
func NextStatus(from, event string) (string, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: cannot %s a %s request", ErrInvalidTransition, strings.ToLower(event), strings.ToLower(from))
}

// IsTerminal reports whether no event can leave status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// Approve records an admin approval. The spend was already reserved at creation.
func (r *PurchaseRequest) Approve(adminID uuid.UUID, message string, at time.Time) error {
	to, err := NextStatus(r.Status, EventApprove)
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if err := checkMessage("decision message", message); err != nil {
		return err
	}

	r.Status = to
	r.DecidedBy = &adminID
	r.DecisionMessage = message
	r.UpdatedAt = at
	return nil
}

// Reject records an admin rejection. The spend is released implicitly because
// REJECTED is not a spend-committing status.
func (r *PurchaseRequest) Reject(adminID uuid.UUID, reason string, at time.Time) error {
	to, err := NextStatus(r.Status, EventReject)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}
	if err := checkMessage("rejection reason", reason); err != nil {
		return err
	}

	r.Status = to
	r.DecidedBy = &adminID
	r.RejectionReason = reason
	r.UpdatedAt = at
	return nil
}

// Cancel withdraws the request on behalf of its requester. Ownership is
// checked before status so a stranger always gets ErrForbidden.
func (r *PurchaseRequest) Cancel(actorID uuid.UUID, at time.Time) error {
	if actorID != r.RequesterID {
		return fmt.Errorf("%w: only the requester can cancel a purchase request", ErrForbidden)
	}
	to, err := NextStatus(r.Status, EventCancel)
	if err != nil {
		return err
	}

	r.Status = to
	r.UpdatedAt = at
	return nil
}
