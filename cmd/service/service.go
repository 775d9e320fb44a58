package service

import (
	"context"

	"s5-keeper/cmd/root"

	"github.com/spf13/cobra"
)

/**
 * Build a top level command running one management verb
 * @param {string} verb - Dispatcher verb
 * @param {string} short - One line help
 * @returns {*cobra.Command} Command registered on the root
 */
func newVerbCmd(verb, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return root.Dispatch(ctx, verb)
		},
	}
	cmd.Example = "  s5 " + verb
	root.RootCmd.AddCommand(cmd)
	return cmd
}
