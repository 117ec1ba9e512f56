package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type getOptions struct {
	Query []string
}

func newGetCommand(rt *session) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET any API path and print the envelope",
		Example: `  lsctl get outlets
  lsctl get products -q page_size=10 -q deleted=true
  lsctl get consignments/0af7b240-ab2c-11ef-f4ab-2a7ba8fe2b7e`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseQuery(opts.Query)
			if err != nil {
				return err
			}
			resp, callErr := rt.client.Get(cmd.Context(), args[0], query)
			return writeEnvelope(cmd.OutOrStdout(), resp, callErr)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	return cmd
}

// parseQuery turns key=value pairs into url.Values.
func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	query := make(url.Values, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query %q: expected key=value", pair)
		}
		query.Add(key, value)
	}
	return query, nil
}
