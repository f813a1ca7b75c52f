package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosight/perfship/internal/event"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/shipper"
	"github.com/gosight/perfship/internal/tokenstore"
)

// newShipCommand constructs the `ship` subcommand.
func (a *app) newShipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Append newline-delimited performance records to the configured stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			if batchSize <= 0 {
				batchSize = a.cfg.Shipper.BatchSize
			}

			in := a.opts.Stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx := cmd.Context()
			tokens, err := a.openTokens(ctx)
			if errors.Is(err, tokenstore.ErrUnknownDriver) {
				return err
			}
			if err != nil {
				// Shipping continues without a persisted token; the stale-token
				// answer resynchronizes each run.
				metrics.IncTokenStoreError("open")
				log.Warn().Err(err).Str("driver", a.cfg.TokenStore.Driver).Msg("Token store unavailable, shipping without a persisted token")
				tokens = tokenstore.NewUnavailable(err)
			}
			defer tokens.Close()

			t, err := a.opts.NewTransport(ctx, a.cfg.Transport)
			if err != nil {
				return err
			}

			s, err := shipper.New(t, tokens, shipper.Options{
				Group:      a.cfg.Stream.Group,
				Stream:     a.cfg.Stream.Stream,
				MaxRetries: a.cfg.Shipper.MaxRetries,
			})
			if err != nil {
				return err
			}

			filter := event.Filter{
				Include: a.cfg.Filter.Include,
				Exclude: a.cfg.Filter.Exclude,
				SinkURL: sinkURL(a.cfg.Transport),
			}

			var shipped, batches int
			decoder := event.NewDecoder(in)
			for {
				batch, err := decoder.Next(batchSize)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}

				ack, err := s.Append(ctx, filter.Apply(batch))
				if err != nil {
					log.Error().Err(err).Int("shipped", shipped).Msg("Append failed")
					return err
				}
				if ack.Count > 0 {
					shipped += ack.Count
					batches++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "shipped %d records in %d batches\n", shipped, batches)
			return nil
		},
	}
	cmd.Flags().String("file", "-", "NDJSON input file, - for stdin")
	cmd.Flags().Int("batch-size", 0, "records per append (defaults to shipper.batch_size)")
	return cmd
}
