package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type migrateOutput struct {
	Backend string `json:"backend"`
	Version int    `json:"version"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local store and print its schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStores(ctx, opts.cfg, false)
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := st.local.Version(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "read schema version", err)
			}
			if opts.Format == "text" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d\n", st.backend, v)
				return err
			}
			return writeJSON(cmd.OutOrStdout(), migrateOutput{Backend: st.backend, Version: v})
		},
	}
}
