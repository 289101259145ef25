package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srikanta2006/smart-parking/internal/config"
	"github.com/srikanta2006/smart-parking/internal/redisstore"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print reservation outcome totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.StatsRedisAddr == "" {
				return fmt.Errorf("stats: STATS_REDIS_ADDR is not set")
			}

			ctx := context.Background()
			rdb := newRedisClient(cfg.StatsRedisAddr, cfg.RedisPassword, cfg.RedisDB)
			defer rdb.Close()

			totals, err := redisstore.NewStatsRecorder(rdb).Totals(ctx)
			if err != nil {
				return err
			}
			for _, o := range []slots.Outcome{slots.OutcomeReserved, slots.OutcomeNotFound, slots.OutcomeOccupied, slots.OutcomeError} {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%d\n", o, totals[o])
			}
			return nil
		},
	}
}
