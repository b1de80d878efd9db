package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fittogether/internal/outbox"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay undeliverable outbox events",
}

var dlqStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the number of entries waiting for replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		backlog, err := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay).Backlog(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries awaiting replay\n", backlog)
		return nil
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Requeue due entries into the outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay,
			outbox.WithDLQLogger(log.With().Str("component", "dlq").Logger()))

		runOnce := func() {
			requeued, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("dlq replay failed")
				return
			}
			log.Info().Int("requeued", requeued).Msg("dlq replay finished")
		}
		runOnce()
		if !watch {
			return nil
		}

		serveMetrics(ctx, cfg.MetricsAddress)
		ticker := time.NewTicker(cfg.DLQPollInterval)
		defer ticker.Stop()
		log.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq manager started")
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	},
}

func init() {
	dlqReplayCmd.Flags().Bool("watch", false, "keep replaying every DLQ_POLL_INTERVAL")
	dlqCmd.AddCommand(dlqStatusCmd, dlqReplayCmd)
	rootCmd.AddCommand(dlqCmd)
}
