// Package ncrreport renders an NCR export for humans and for other tools.
package ncrreport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
)

type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatText:
		return FormatText, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected: text, yaml or json)", raw)
	}
}

// Render writes export to w in the given format.
func Render(w io.Writer, export ncr.NCRExport, format Format) error {
	if w == nil {
		return fmt.Errorf("writer is required")
	}

	var (
		payload []byte
		err     error
	)
	switch format {
	case FormatText, "":
		payload = []byte(renderText(export))
	case FormatYAML:
		payload, err = yaml.Marshal(toDocument(export))
		if err != nil {
			return errs.Wrap(err, "encode ncr report as yaml")
		}
	case FormatJSON:
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(export); err != nil {
			return errs.Wrap(err, "encode ncr report as json")
		}
		payload = buf.Bytes()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	if _, err := w.Write(payload); err != nil {
		return errs.Wrap(err, "write ncr report")
	}
	return nil
}

func renderText(export ncr.NCRExport) string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	alertStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	view := export.NCR
	var builder strings.Builder
	builder.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", view.Number, view.Title)))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("generated=%s version=%d", export.GeneratedAt, view.Version)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Summary"))
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Status: %s\n", view.Status))
	builder.WriteString(fmt.Sprintf("Severity: %s\n", view.Severity))
	builder.WriteString(fmt.Sprintf("Issue Type: %s\n", view.IssueType))
	builder.WriteString(fmt.Sprintf("Purchase Order: %s\n", view.PurchaseOrderID))
	builder.WriteString(fmt.Sprintf("Supplier: %s\n", view.SupplierID))
	builder.WriteString(fmt.Sprintf("Reporter: %s\n", view.ReporterID))
	builder.WriteString(fmt.Sprintf("Assignee: %s\n", firstNonEmpty(view.AssigneeID, "-")))
	sla := fmt.Sprintf("SLA Due: %s", view.SLADueAt)
	if view.Overdue {
		builder.WriteString(alertStyle.Render(sla + " (overdue)"))
	} else {
		builder.WriteString(sla)
	}
	builder.WriteString("\n")
	if view.RequiresCreditNote {
		builder.WriteString(fmt.Sprintf("Credit Note: %s\n", firstNonEmpty(view.CreditNoteDocumentID, "required")))
	}
	if view.ClosedAt != "" {
		builder.WriteString(fmt.Sprintf("Closed: %s by %s (%s)\n", view.ClosedAt, view.ClosedBy, view.ClosedReason))
	}
	if view.Description != "" {
		builder.WriteString("\n" + view.Description + "\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Comments"))
	builder.WriteString("\n")
	if len(export.Comments) == 0 {
		builder.WriteString(dimStyle.Render("- none"))
		builder.WriteString("\n")
	}
	for _, comment := range export.Comments {
		author := firstNonEmpty(comment.AuthorUserID, comment.AuthorMagicLinkID)
		line := fmt.Sprintf("- %s %s/%s", comment.CreatedAt, comment.AuthorRole, author)
		if comment.IsInternal {
			line += " [internal]"
		}
		builder.WriteString(line + ": " + firstNonEmpty(comment.Content, "(attachments)") + "\n")
		for _, url := range comment.AttachmentURLs {
			builder.WriteString("    " + url + "\n")
		}
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Magic Links"))
	builder.WriteString("\n")
	if len(export.MagicLinks) == 0 {
		builder.WriteString(dimStyle.Render("- none"))
		builder.WriteString("\n")
	}
	for _, link := range export.MagicLinks {
		state := "active"
		if link.RevokedAt != "" {
			state = "revoked"
		}
		builder.WriteString(fmt.Sprintf("- %s supplier=%s %s viewed=%s actions=%d expires=%s\n",
			link.LinkID, link.SupplierID, state, firstNonEmpty(link.ViewedAt, "never"), link.ActionCount, link.ExpiresAt))
	}
	builder.WriteString("\n")

	if len(export.Escalations) > 0 {
		builder.WriteString(sectionStyle.Render("Escalations"))
		builder.WriteString("\n")
		for _, escalation := range export.Escalations {
			builder.WriteString(fmt.Sprintf("- level %d to %s at %s\n", escalation.Level, escalation.Recipient, escalation.CreatedAt))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Audit Trail"))
	builder.WriteString("\n")
	for _, entry := range export.AuditTrail {
		builder.WriteString(fmt.Sprintf("- #%d %s %s %s\n", entry.ID, entry.CreatedAt, entry.Actor, entry.Action))
	}
	return builder.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
