package cmd

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
)

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return errs.Wrap(err, "write json output")
	}
	return nil
}

// actorFromFlags reads the --actor and --role persistent flags that stand in
// for the auth collaborator on the CLI.
func actorFromFlags(cmd *cobra.Command) (domainncr.Actor, error) {
	userID, _ := cmd.Flags().GetString("actor")
	rawRole, _ := cmd.Flags().GetString("role")

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domainncr.Actor{}, errors.New("--actor is required")
	}
	role, err := domainncr.ParseRole(rawRole)
	if err != nil {
		return domainncr.Actor{}, err
	}
	return domainncr.Actor{UserID: userID, Role: role}, nil
}

func addActorFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("actor", "", "Acting staff user id")
	cmd.PersistentFlags().String("role", "QA", "Acting staff role: ADMIN|PM|QA|MEMBER")
}
