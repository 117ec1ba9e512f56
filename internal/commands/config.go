package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vapeshed/cis-bricks/logger"
)

func newConfigCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "config [key]",
		Short: "Print the effective configuration with secrets masked",
		Long: `Prints every resolved configuration key after defaults, YAML files, legacy
environment aliases and CIS_* variables have been applied. Values whose key is
on the masking denylist are replaced. With a key argument only that value is
printed, or with a section name such as lightspeed every key below it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := logger.NewSensitiveDataFilter(rt.cfg.FilterConfig())
			if len(args) == 0 {
				return writeJSON(cmd.OutOrStdout(), maskConfig(rt.cfg.All(), filter))
			}
			if !rt.cfg.Exists(args[0]) {
				return &unknownKeyError{key: args[0]}
			}
			return writeJSON(cmd.OutOrStdout(), maskConfig(rt.cfg.Section(args[0]), filter))
		},
	}
}

// maskConfig filters each flattened key by its last segment, so
// lightspeed.token is masked like a field named token.
func maskConfig(all map[string]any, filter *logger.SensitiveDataFilter) map[string]any {
	out := make(map[string]any, len(all))
	for key, value := range all {
		name := key
		if i := strings.LastIndex(key, "."); i >= 0 {
			name = key[i+1:]
		}
		out[key] = filter.FilterValue(name, value)
	}
	return out
}

type unknownKeyError struct {
	key string
}

func (e *unknownKeyError) Error() string {
	return "unknown configuration key " + e.key
}
