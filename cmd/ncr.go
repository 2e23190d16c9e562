package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ncrflow/internal/bootstrap"
	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
	"ncrflow/internal/usecase/ncrreport"
)

var ncrCmd = &cobra.Command{
	Use:   "ncr",
	Short: "Manage non-conformance reports",
}

var ncrCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Raise a new NCR against a purchase order",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		input := ncr.CreateNCRInput{Actor: actor}
		input.OrganizationID, _ = flags.GetString("org")
		input.ProjectID, _ = flags.GetString("project")
		input.PurchaseOrderID, _ = flags.GetString("po")
		input.SupplierID, _ = flags.GetString("supplier")
		input.Title, _ = flags.GetString("title")
		input.Severity, _ = flags.GetString("severity")
		input.IssueType, _ = flags.GetString("issue-type")
		input.Description, _ = flags.GetString("description")
		input.AssigneeID, _ = flags.GetString("assignee")
		input.AffectedBoqItemID, _ = flags.GetString("boq-item")
		input.BatchID, _ = flags.GetString("batch")
		input.QAInspectionTaskID, _ = flags.GetString("inspection-task")
		input.SourceDocumentID, _ = flags.GetString("source-document")
		input.ReporterID, _ = flags.GetString("reporter")
		if strings.TrimSpace(input.ReporterID) == "" {
			input.ReporterID = actor.UserID
		}
		if flags.Changed("credit-note") {
			required, _ := flags.GetBool("credit-note")
			input.RequiresCreditNote = &required
		}

		view, err := svc.CreateNCR(ctx, input)
		if err != nil {
			return err
		}
		return writeJSON(cmd, view)
	}),
}

var ncrGetCmd = &cobra.Command{
	Use:   "get <id-or-number>",
	Short: "Show one NCR with its comments",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		includeInternal, _ := cmd.Flags().GetBool("internal")
		detail, err := svc.GetNCRByID(cmd.Context(), cmd.Flags().Arg(0), includeInternal)
		if err != nil {
			return err
		}
		return writeJSON(cmd, detail)
	}),
}

var ncrListCmd = &cobra.Command{
	Use:   "list",
	Short: "List NCRs by organization or purchase order",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		flags := cmd.Flags()
		input := ncr.ListNCRsInput{}
		input.OrganizationID, _ = flags.GetString("org")
		input.PurchaseOrderID, _ = flags.GetString("po")
		input.Status, _ = flags.GetString("status")
		input.IncludeClosed, _ = flags.GetBool("include-closed")

		items, err := svc.ListNCRs(cmd.Context(), input)
		if err != nil {
			return err
		}
		return writeJSON(cmd, items)
	}),
}

var ncrStatusCmd = &cobra.Command{
	Use:   "status <id-or-number> <status>",
	Short: "Move an NCR to OPEN, PENDING_SUPPLIER_RESPONSE or RESOLVED",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		view, err := svc.UpdateStatus(cmd.Context(), ncr.UpdateStatusInput{
			Actor:  actor,
			NCRRef: cmd.Flags().Arg(0),
			Status: strings.ToUpper(cmd.Flags().Arg(1)),
			Reason: reason,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd, view)
	}),
}

var ncrCloseCmd = &cobra.Command{
	Use:   "close <id-or-number>",
	Short: "Close an NCR",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		input := ncr.CloseNCRInput{Actor: actor, NCRRef: flags.Arg(0)}
		input.ClosedReason, _ = flags.GetString("reason")
		input.ProofOfFixDocumentID, _ = flags.GetString("proof-of-fix")
		input.CreditNoteDocumentID, _ = flags.GetString("credit-note-doc")

		view, err := svc.CloseNCR(cmd.Context(), input)
		if err != nil {
			return err
		}
		return writeJSON(cmd, view)
	}),
}

var ncrReopenCmd = &cobra.Command{
	Use:   "reopen <id-or-number>",
	Short: "Reopen a closed NCR",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		view, err := svc.ReopenNCR(cmd.Context(), ncr.ReopenNCRInput{
			Actor:  actor,
			NCRRef: cmd.Flags().Arg(0),
			Reason: reason,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd, view)
	}),
}

var ncrCommentCmd = &cobra.Command{
	Use:   "comment <id-or-number>",
	Short: "Add a staff comment",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		input := ncr.AddCommentInput{Actor: &actor, NCRRef: flags.Arg(0)}
		input.Content, _ = flags.GetString("message")
		input.AttachmentURLs, _ = flags.GetStringSlice("attachment")
		input.VoiceNoteURL, _ = flags.GetString("voice-note")
		input.IsInternal, _ = flags.GetBool("internal")

		comment, err := svc.AddComment(cmd.Context(), input)
		if err != nil {
			return err
		}
		return writeJSON(cmd, comment)
	}),
}

var ncrDashboardCmd = &cobra.Command{
	Use:   "dashboard <organization-id>",
	Short: "Show NCR KPIs for an organization",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		dashboard, err := svc.GetNCRDashboard(cmd.Context(), cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		return writeJSON(cmd, dashboard)
	}),
}

var ncrExportCmd = &cobra.Command{
	Use:   "export <id-or-number>",
	Short: "Export an NCR with comments, link activity and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		rawFormat, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		format, err := ncrreport.ParseFormat(rawFormat)
		if err != nil {
			return err
		}

		export, err := svc.ExportNCR(ctx, cmd.Flags().Arg(0))
		if err != nil {
			logging.Error(ctx, "export ncr failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "export ncr")
		}

		out := cmd.OutOrStdout()
		if trimmed := strings.TrimSpace(outPath); trimmed != "" {
			f, err := os.Create(trimmed)
			if err != nil {
				return errs.Wrapf(err, "open output file %q", trimmed)
			}
			defer f.Close()
			out = f
		}
		if err := ncrreport.Render(out, export, format); err != nil {
			return err
		}
		if outPath != "" {
			logging.Info(ctx, "ncr exported", slog.String("path", outPath), slog.String("format", string(format)))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ncrCmd)
	addActorFlags(ncrCmd)
	ncrCmd.AddCommand(ncrCreateCmd, ncrGetCmd, ncrListCmd, ncrStatusCmd, ncrCloseCmd, ncrReopenCmd, ncrCommentCmd, ncrDashboardCmd, ncrExportCmd)

	create := ncrCreateCmd.Flags()
	create.String("org", "", "Organization id")
	create.String("project", "", "Project id")
	create.String("po", "", "Purchase order id")
	create.String("supplier", "", "Supplier id")
	create.String("title", "", "Short title")
	create.String("severity", "MAJOR", "Severity: CRITICAL|MAJOR|MINOR")
	create.String("issue-type", "", "Issue type, for example DIMENSIONAL")
	create.String("description", "", "Long description")
	create.String("assignee", "", "Assignee user id")
	create.String("reporter", "", "Reporter user id (default: --actor)")
	create.String("boq-item", "", "Affected BOQ item id")
	create.String("batch", "", "Batch id")
	create.String("inspection-task", "", "QA inspection task id")
	create.String("source-document", "", "Source document id")
	create.Bool("credit-note", false, "Override whether closing needs a credit note")
	for _, name := range []string{"org", "project", "po", "supplier", "title", "issue-type"} {
		_ = ncrCreateCmd.MarkFlagRequired(name)
	}

	ncrGetCmd.Flags().Bool("internal", false, "Include internal comments")

	ncrListCmd.Flags().String("org", "", "Organization id")
	ncrListCmd.Flags().String("po", "", "Purchase order id")
	ncrListCmd.Flags().String("status", "", "Only this status")
	ncrListCmd.Flags().Bool("include-closed", false, "Include CLOSED NCRs")

	ncrStatusCmd.Flags().String("reason", "", "Reason recorded in the audit log")

	ncrCloseCmd.Flags().String("reason", "", "Closure reason")
	ncrCloseCmd.Flags().String("proof-of-fix", "", "Proof-of-fix document id")
	ncrCloseCmd.Flags().String("credit-note-doc", "", "Credit note document id")
	_ = ncrCloseCmd.MarkFlagRequired("reason")

	ncrReopenCmd.Flags().String("reason", "", "Why the NCR is reopened")
	_ = ncrReopenCmd.MarkFlagRequired("reason")

	ncrCommentCmd.Flags().String("message", "", "Comment text")
	ncrCommentCmd.Flags().StringSlice("attachment", nil, "Attachment URL (repeatable)")
	ncrCommentCmd.Flags().String("voice-note", "", "Voice note URL")
	ncrCommentCmd.Flags().Bool("internal", false, "Hide the comment from suppliers")

	ncrExportCmd.Flags().String("format", "text", "Output format: text|yaml|json")
	ncrExportCmd.Flags().String("out", "", "Output file path (default: stdout)")
}
