package commands

import (
	"github.com/spf13/cobra"

	"github.com/vapeshed/cis-bricks/lightspeed"
)

func newSnapshotCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [resources...]",
		Short: "Fetch every page of several resources concurrently",
		Long: `Fetches all pages of each resource in parallel, bounded by sync.max_concurrent.
Without arguments, sync.resources from the configuration is used, and when that
is empty the reference data set (outlets, suppliers, brands, product_types, users).`,
		Example: `  lsctl snapshot outlets brands
  CIS_SYNC_MAX_CONCURRENT=2 lsctl snapshot products customers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = rt.cfg.Sync.Resources
			}
			resources, err := lightspeed.ParseResources(names)
			if err != nil {
				return err
			}

			result, callErr := rt.client.Snapshot(cmd.Context(), resources...)
			if callErr != nil {
				return writeEnvelope(cmd.OutOrStdout(), nil, callErr)
			}
			env, err := dataEnvelope(result)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), env)
		},
	}
}
