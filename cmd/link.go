package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ncrflow/internal/bootstrap"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Issue, revoke and resolve supplier magic links",
}

var linkIssueCmd = &cobra.Command{
	Use:   "issue <ncr-id-or-number>",
	Short: "Issue a magic link for the NCR's supplier",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		supplierID, _ := cmd.Flags().GetString("supplier")
		hours, _ := cmd.Flags().GetInt("hours")

		issued, err := svc.CreateMagicLink(cmd.Context(), ncr.CreateMagicLinkInput{
			Actor:          actor,
			NCRRef:         cmd.Flags().Arg(0),
			SupplierID:     supplierID,
			ExpiresInHours: hours,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd, issued)
	}),
}

var linkRevokeCmd = &cobra.Command{
	Use:   "revoke <link-id>",
	Short: "Revoke a magic link",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		actor, err := actorFromFlags(cmd)
		if err != nil {
			return err
		}
		linkID := cmd.Flags().Arg(0)
		if err := svc.RevokeMagicLink(cmd.Context(), ncr.RevokeMagicLinkInput{Actor: actor, LinkID: linkID}); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "magic link revoked: %s\n", linkID); err != nil {
			return errs.Wrap(err, "write revoke output")
		}
		return nil
	}),
}

var linkResolveCmd = &cobra.Command{
	Use:   "resolve <token>",
	Short: "Resolve a token to the supplier view of its NCR",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *ncr.Service) error {
		return resolveLink(cmd, svc, cmd.Flags().Arg(0))
	}),
}

type supplierViewResolver interface {
	GetSupplierView(ctx context.Context, token string) (ncr.NCRDetail, error)
}

func resolveLink(cmd *cobra.Command, svc supplierViewResolver, token string) error {
	view, err := svc.GetSupplierView(cmd.Context(), token)
	if err != nil {
		return linkTokenError(err)
	}
	return writeJSON(cmd, view)
}

// linkTokenError folds unknown, revoked and expired tokens into one
// NotFound error so no surface tells them apart.
func linkTokenError(err error) error {
	if isLinkTokenError(err) {
		return errs.Kindf(domainncr.ErrNotFound, "%s", portalLinkMessage)
	}
	return err
}

func isLinkTokenError(err error) bool {
	return errors.Is(err, domainncr.ErrNotFound) || errors.Is(err, domainncr.ErrExpired)
}

func init() {
	rootCmd.AddCommand(linkCmd)
	addActorFlags(linkCmd)
	linkCmd.AddCommand(linkIssueCmd, linkRevokeCmd, linkResolveCmd)

	linkIssueCmd.Flags().String("supplier", "", "Supplier id (must match the NCR supplier)")
	linkIssueCmd.Flags().Int("hours", 0, "Hours until expiry (default: magic_link.default_expiry_hours)")
	_ = linkIssueCmd.MarkFlagRequired("supplier")
}
