package commands

import (
	"github.com/spf13/cobra"
)

func newOutletsCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "outlets",
		Short: "List outlets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := rt.client.Get(cmd.Context(), "outlets", nil)
			return writeEnvelope(cmd.OutOrStdout(), resp, err)
		},
	}
}
