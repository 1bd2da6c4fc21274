package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, companyID uuid.UUID, action string, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns one page of the company's audit trail, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, companyID uuid.UUID, action string, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, companyID, action, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}

// auditEntry describes one audit row written alongside a state change.
type auditEntry struct {
	actorID    uuid.UUID
	companyID  uuid.UUID
	action     string
	entityID   string
	entityName string
	details    map[string]interface{}
	at         time.Time
}

// writeAudit appends the entry through the context transaction, so it commits
// or rolls back with the change it describes.
func writeAudit(ctx context.Context, repo repository.AuditRepository, e auditEntry) error {
	details, err := json.Marshal(e.details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	actorID := e.actorID
	companyID := e.companyID
	entry := model.AuditLog{
		CompanyID:  &companyID,
		UserID:     &actorID,
		Action:     e.action,
		EntityID:   e.entityID,
		EntityName: e.entityName,
		Details:    string(details),
		CreatedAt:  e.at,
	}
	if err := repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
