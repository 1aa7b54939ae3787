package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/wedding-invite-backend/internal/services"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	File string
}

// seedFile is the accepted YAML layout: a top-level guests list.
//
//	guests:
//	  - slug: ana-y-luis
//	    guestName: Ana
//	    weddingDate: "2026-06-20"
//	    weddingInfo:
//	      venue: Finca El Olivo
type seedFile struct {
	Guests []services.ImportRecord `yaml:"guests"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import guest invitations from a YAML file into the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := readSeedFile(opts.File)
			if err != nil {
				return WrapExitError(ExitCommandError, "read seed file", err)
			}

			ctx := cmd.Context()
			st, err := openStores(ctx, opts.cfg, true)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := services.NewAdminService(st.local, st.remote).Import(ctx, recs)
			if err != nil {
				return WrapExitError(ExitFailure, "import", err)
			}
			for _, f := range res.Failed {
				log.Warn().Str("slug", f.Slug).Str("error", f.Error).Msg("guest not imported")
			}

			if opts.Format == "text" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d failed=%d\n",
					res.Created, res.Updated, len(res.Failed))
			} else {
				err = writeJSON(cmd.OutOrStdout(), res)
			}
			if err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d guest(s) not imported", len(res.Failed)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file with a guests list (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readSeedFile(path string) ([]services.ImportRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Guests) == 0 {
		return nil, fmt.Errorf("%s: no guests", path)
	}
	return f.Guests, nil
}
