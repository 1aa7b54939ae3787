package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued RSVPs to the remote store once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStores(ctx, opts.cfg, true)
			if err != nil {
				return err
			}
			defer st.Close()

			sc := services.NewSyncCoordinator(st.local, st.remote, opts.cfg.RemoteTimeout)
			res, err := sc.Flush(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "flush", err)
			}
			log.Info().
				Int("attempted", res.Attempted).
				Int("synced", res.Synced).
				Int("failed", res.Failed).
				Int("skipped", res.Skipped).
				Msg("flush finished")

			if opts.Format == "text" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d synced=%d failed=%d skipped=%d\n",
					res.Attempted, res.Synced, res.Failed, res.Skipped)
			} else {
				err = writeJSON(cmd.OutOrStdout(), res)
			}
			if err != nil {
				return err
			}
			if res.Failed > 0 || res.Skipped > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d rsvp(s) still pending", res.Failed+res.Skipped))
			}
			return nil
		},
	}
}

// pendingOutput is the JSON shape printed by the pending command.
type pendingOutput struct {
	Count   int                  `json:"count"`
	Pending []domain.PendingRSVP `json:"pending"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Print RSVPs queued in the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStores(ctx, opts.cfg, false)
			if err != nil {
				return err
			}
			defer st.Close()

			pending, err := st.local.GetPendingRSVPs(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "read outbox", err)
			}
			if pending == nil {
				pending = []domain.PendingRSVP{}
			}
			if opts.Format == "text" {
				return printPendingTable(cmd.OutOrStdout(), pending)
			}
			return writeJSON(cmd.OutOrStdout(), pendingOutput{Count: len(pending), Pending: pending})
		},
	}
}

func printPendingTable(w io.Writer, pending []domain.PendingRSVP) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tATTENDING\tSUBMITTED")
	for _, r := range pending {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Slug, strconv.FormatBool(r.Attending),
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
