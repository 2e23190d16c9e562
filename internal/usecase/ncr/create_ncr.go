package ncr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// CreateNCR validates the PO/supplier relation, stamps the SLA due date from
// the severity window, and persists the NCR as OPEN with its CREATED entry.
func (s *Service) CreateNCR(ctx context.Context, input CreateNCRInput) (NCRView, error) {
	if ctx == nil {
		return NCRView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return NCRView{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return NCRView{}, err
	}
	if s.refs == nil {
		return NCRView{}, errors.New("reference repository is required")
	}
	if err := input.Actor.Authorize(domainncr.ActionCreate); err != nil {
		return NCRView{}, err
	}

	input = normalizeCreateInput(input)
	if err := s.validateInput(input); err != nil {
		return NCRView{}, err
	}
	severity, err := domainncr.ParseSeverity(input.Severity)
	if err != nil {
		return NCRView{}, err
	}

	po, err := s.refs.GetPurchaseOrder(ctx, input.PurchaseOrderID)
	if err != nil {
		if errors.Is(err, ports.ErrPurchaseOrderNotFound) {
			return NCRView{}, errs.Kindf(domainncr.ErrNotFound, "purchase order %s", input.PurchaseOrderID)
		}
		return NCRView{}, err
	}
	if _, err := s.refs.GetSupplier(ctx, input.SupplierID); err != nil {
		if errors.Is(err, ports.ErrSupplierNotFound) {
			return NCRView{}, errs.Kindf(domainncr.ErrNotFound, "supplier %s", input.SupplierID)
		}
		return NCRView{}, err
	}
	if err := checkPurchaseOrderRelation(po, input); err != nil {
		return NCRView{}, err
	}

	policy := s.policy.Current()
	requiresCreditNote := domainncr.RequiresCreditNote(severity, policy.CreditNoteSeverities())
	if input.RequiresCreditNote != nil {
		requiresCreditNote = *input.RequiresCreditNote
	}

	now := s.now()
	nowStr := formatTime(now)
	record := ports.NCRRecord{
		NCRID:              s.newID(),
		OrganizationID:     input.OrganizationID,
		ProjectID:          input.ProjectID,
		PurchaseOrderID:    input.PurchaseOrderID,
		SupplierID:         input.SupplierID,
		AffectedBoqItemID:  optionalString(input.AffectedBoqItemID),
		BatchID:            optionalString(input.BatchID),
		SourceDocumentID:   optionalString(input.SourceDocumentID),
		QAInspectionTaskID: optionalString(input.QAInspectionTaskID),
		Title:              input.Title,
		Description:        input.Description,
		IssueType:          input.IssueType,
		Severity:           string(severity),
		Status:             string(domainncr.StatusOpen),
		ReporterID:         input.ReporterID,
		AssigneeID:         optionalString(input.AssigneeID),
		RequiresCreditNote: requiresCreditNote,
		CreatedAt:          nowStr,
		UpdatedAt:          nowStr,
		SLADueAt:           formatTime(policy.Windows().DueAt(severity, now)),
	}

	var created ports.NCRRecord
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.repo.CreateNCR(txCtx, record)
		if err != nil {
			return err
		}
		return appendAuditTx(txCtx, s.repo, created.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditCreated, map[string]any{
			"number":             domainncr.FormatNumber(created.Seq),
			"severity":           created.Severity,
			"purchaseOrderId":    created.PurchaseOrderID,
			"supplierId":         created.SupplierID,
			"slaDueAt":           created.SLADueAt,
			"requiresCreditNote": created.RequiresCreditNote,
		}, nowStr)
	}); err != nil {
		return NCRView{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.ncr"))
	logging.Info(logCtx, "ncr created",
		slog.String("ncr_id", created.NCRID),
		slog.String("number", domainncr.FormatNumber(created.Seq)),
		slog.String("severity", created.Severity),
	)
	s.notifyBestEffort(logCtx, created, domainncr.NotifyCreated, map[string]any{
		"title":           created.Title,
		"severity":        created.Severity,
		"slaDueAt":        created.SLADueAt,
		"purchaseOrderNo": po.Number,
	})
	return toNCRView(created, now), nil
}

func normalizeCreateInput(input CreateNCRInput) CreateNCRInput {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	input.ProjectID = strings.TrimSpace(input.ProjectID)
	input.PurchaseOrderID = strings.TrimSpace(input.PurchaseOrderID)
	input.SupplierID = strings.TrimSpace(input.SupplierID)
	input.Title = strings.TrimSpace(input.Title)
	input.Severity = strings.TrimSpace(input.Severity)
	input.IssueType = strings.TrimSpace(input.IssueType)
	input.ReporterID = strings.TrimSpace(input.ReporterID)
	input.Description = strings.TrimSpace(input.Description)
	return input
}

func checkPurchaseOrderRelation(po ports.PurchaseOrder, input CreateNCRInput) error {
	if po.SupplierID != input.SupplierID {
		return errs.Kindf(domainncr.ErrValidation, "purchase order %s is not issued to supplier %s", po.PurchaseOrderID, input.SupplierID)
	}
	if po.OrganizationID != input.OrganizationID {
		return errs.Kindf(domainncr.ErrValidation, "purchase order %s belongs to another organization", po.PurchaseOrderID)
	}
	if po.ProjectID != input.ProjectID {
		return errs.Kindf(domainncr.ErrValidation, "purchase order %s belongs to another project", po.PurchaseOrderID)
	}
	return nil
}
