package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srikanta2006/smart-parking/internal/config"
	"github.com/srikanta2006/smart-parking/internal/ratelimit"
	"github.com/srikanta2006/smart-parking/internal/receipt"
	"github.com/srikanta2006/smart-parking/internal/redisstore"
	"github.com/srikanta2006/smart-parking/internal/slots"
	"github.com/srikanta2006/smart-parking/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the parking slot API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)

			store, closeStore, err := openStore(ctx, cfg, migrateUp)
			if err != nil {
				return err
			}
			defer closeStore()
			logger.Printf("slot store: %s", cfg.StoreDriver)

			opts := []slots.Option{
				slots.WithTimeout(cfg.StoreTimeout),
				slots.WithLogger(logger),
			}

			// stats
			if cfg.StatsRedisAddr != "" {
				rdb := newRedisClient(cfg.StatsRedisAddr, cfg.RedisPassword, cfg.RedisDB)
				defer rdb.Close()
				opts = append(opts, slots.WithRecorder(redisstore.NewStatsRecorder(rdb)))
				logger.Printf("reservation stats: %s", cfg.StatsRedisAddr)
			}

			ws := &web.Server{
				Slots:              slots.NewService(store, opts...),
				TrustXForwardedFor: cfg.TrustXForwardedFor,
				CORSAllowedOrigins: cfg.CORSAllowedOrigins,
				Logger:             logger,
			}

			if cfg.RateEnabled {
				ws.Limiter = ratelimit.NewStore(cfg.RateRPS, cfg.RateBurst)
				ws.Limiter.StartJanitor(ctx)
			}
			if cfg.ReceiptsEnabled() {
				ws.Receipts = receipt.NewCodec(cfg.ReceiptHashKey, cfg.ReceiptBlockKey)
			}

			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), logger)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup (postgres only)")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
