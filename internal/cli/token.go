package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newTokenCommand constructs the `token` command group.
func (a *app) newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{Use: "token", Short: "Inspect the persisted sequence token"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted token for the configured stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := a.openTokens(cmd.Context())
			if err != nil {
				return err
			}
			defer tokens.Close()

			token, ok, err := tokens.Read(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				token = "(none)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the persisted token; the next append sends none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := a.openTokens(cmd.Context())
			if err != nil {
				return err
			}
			defer tokens.Close()
			return tokens.Write(cmd.Context(), "")
		},
	}

	tokenCmd.AddCommand(show, reset)
	return tokenCmd
}
