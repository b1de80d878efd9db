package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fittogether/internal/consumer"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Maintain workout statistics from the workout events topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		serveMetrics(ctx, cfg.MetricsAddress)

		reader := consumer.NewKafkaReader(cfg.KafkaBrokers, cfg.ConsumerGroupID, cfg.ConsumerTopics)
		defer reader.Close()
		proc := consumer.NewProcessor(reader, consumer.NewStatsHandler(pool))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Strs("topics", cfg.ConsumerTopics).Str("group", cfg.ConsumerGroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("consumer stopped")
			}
		}()

		<-ctx.Done()
		log.Info().Msg("consumer shutdown requested")
		wg.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
