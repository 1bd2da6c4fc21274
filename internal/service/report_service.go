package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultExportMaxRows caps a decision export when no limit is configured.
const DefaultExportMaxRows = 10000

// --- DTOs ---

type ExportFilter struct {
	CompanyID uuid.UUID
	From      time.Time
	To        time.Time
	Status    string // APPROVED or REJECTED; empty means both
	Role      string // requester role; empty means any
}

// --- Interface ---

// ReportService produces read-only projections of decided purchase requests.
type ReportService interface {
	ExportDecisions(ctx context.Context, filter ExportFilter) ([]model.DecisionRow, error)
	RenderXLSX(rows []model.DecisionRow) ([]byte, error)
}

type reportService struct {
	repo    repository.PurchaseRequestRepository
	maxRows int64
}

func NewReportService(repo repository.PurchaseRequestRepository, maxRows int64) ReportService {
	if maxRows <= 0 {
		maxRows = DefaultExportMaxRows
	}
	return &reportService{repo: repo, maxRows: maxRows}
}

// --- Implementation ---

// ExportDecisions lists approved and rejected requests whose decision falls in
// [From, To]. The result is never truncated: a window holding more rows than
// the cap fails with ErrExportLimitExceeded.
func (s *reportService) ExportDecisions(ctx context.Context, filter ExportFilter) (rows []model.DecisionRow, err error) {
	ctx, span := startSpan(ctx, "report.ExportDecisions")
	defer func() { endSpan(span, err) }()

	if filter.From.IsZero() || filter.To.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", model.ErrInvalidInput)
	}
	if filter.From.After(filter.To) {
		return nil, fmt.Errorf("%w: from must not be after to", model.ErrInvalidInput)
	}

	statuses := model.DecidedStatuses
	if filter.Status != "" {
		status := strings.ToUpper(filter.Status)
		if status != model.StatusApproved && status != model.StatusRejected {
			return nil, fmt.Errorf("%w: status must be APPROVED or REJECTED", model.ErrInvalidInput)
		}
		statuses = []string{status}
	}
	role := strings.ToLower(filter.Role)
	if role != "" && !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrInvalidInput, filter.Role)
	}

	query := repository.DecisionFilter{
		CompanyID: filter.CompanyID,
		From:      filter.From,
		To:        filter.To,
		Statuses:  statuses,
		Role:      role,
	}

	count, err := s.repo.CountDecisions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	span.SetAttributes(attribute.Int64("rows", count))
	if count > s.maxRows {
		return nil, fmt.Errorf("%w: %d rows match, limit is %d", ErrExportLimitExceeded, count, s.maxRows)
	}
	if count == 0 {
		return []model.DecisionRow{}, nil
	}

	// Rows committed between the count and the load must not slip past the cap.
	query.Limit = int(s.maxRows) + 1
	requests, err := s.repo.FindDecisions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	if int64(len(requests)) > s.maxRows {
		return nil, fmt.Errorf("%w: more than %d rows match", ErrExportLimitExceeded, s.maxRows)
	}

	rows = make([]model.DecisionRow, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, toDecisionRow(r))
	}
	return rows, nil
}

var decisionHeaders = []string{
	"Request ID", "Company", "Requester", "Role", "Items", "Shipping Fee",
	"Total Price", "Status", "Requested At", "Decided At", "Decided By",
	"Decision Message", "Rejection Reason",
}

// RenderXLSX writes rows to a single-sheet workbook.
func (s *reportService) RenderXLSX(rows []model.DecisionRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Decisions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(decisionHeaders))
	for i, h := range decisionHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			r.RequestID, r.CompanyName, r.RequesterName, r.RequesterRole, r.ItemsSummary,
			r.ShippingFee, r.TotalPrice, r.Status,
			r.RequestedAt.Format(time.RFC3339), r.DecidedAt.Format(time.RFC3339),
			r.DeciderName, r.DecisionMessage, r.RejectionReason,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// --- Helpers ---

func toDecisionRow(r model.PurchaseRequest) model.DecisionRow {
	row := model.DecisionRow{
		RequestID:       r.ID.String(),
		ItemsSummary:    itemsSummary(r.Items),
		ShippingFee:     r.ShippingFee,
		TotalPrice:      r.TotalPrice,
		Status:          r.Status,
		RequestedAt:     r.CreatedAt,
		DecidedAt:       r.UpdatedAt,
		DecisionMessage: r.DecisionMessage,
		RejectionReason: r.RejectionReason,
	}
	if r.Company != nil {
		row.CompanyName = r.Company.Name
	}
	if r.Requester != nil {
		row.RequesterName = r.Requester.Username
		row.RequesterRole = r.Requester.Role
	}
	if r.Decider != nil {
		row.DeciderName = r.Decider.Username
	}
	return row
}

// itemsSummary renders lines as "Paper x2, Stapler x1".
func itemsSummary(items []model.PurchaseRequestItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", item.ProductName, item.Quantity))
	}
	return strings.Join(parts, ", ")
}
