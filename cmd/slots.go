package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srikanta2006/smart-parking/internal/config"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage parking slot records (operator only)",
	}
	cmd.AddCommand(newSlotsSeedCmd())
	cmd.AddCommand(newSlotsListCmd())
	return cmd
}

func newSlotsSeedCmd() *cobra.Command {
	var (
		ids      string
		count    int
		occupied string
	)

	c := &cobra.Command{
		Use:   "seed",
		Short: "Insert slot records into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.DriverMemory {
				return fmt.Errorf("slots seed: STORE_DRIVER=memory does not persist")
			}

			in, err := buildSeed(ids, count, occupied)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeStore()

			seeder, ok := store.(slots.Seeder)
			if !ok {
				return fmt.Errorf("slots seed: %s store cannot seed", cfg.StoreDriver)
			}
			if err := seeder.Seed(ctx, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d slots into %s\n", len(in), cfg.StoreDriver)
			return nil
		},
	}

	c.Flags().StringVar(&ids, "ids", "", "comma-separated slot ids")
	c.Flags().IntVar(&count, "count", 0, "seed slots 1..N (ignored when --ids is set)")
	c.Flags().StringVar(&occupied, "occupied", "", "comma-separated slot ids to seed as occupied")
	return c
}

func newSlotsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List slot records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			list, err := slots.NewService(store, slots.WithTimeout(cfg.StoreTimeout)).List(ctx)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%d occupied=%t\n", s.ID, s.Occupied)
			}
			return nil
		},
	}
}

// buildSeed turns the seed flags into records. Ids keep the order given.
func buildSeed(ids string, count int, occupied string) ([]slots.Slot, error) {
	var list []int
	switch {
	case ids != "":
		var err error
		if list, err = parseIDs(ids); err != nil {
			return nil, fmt.Errorf("invalid --ids: %w", err)
		}
	case count > 0:
		for i := 1; i <= count; i++ {
			list = append(list, i)
		}
	default:
		return nil, fmt.Errorf("one of --ids or --count is required")
	}

	taken, err := parseIDs(occupied)
	if err != nil {
		return nil, fmt.Errorf("invalid --occupied: %w", err)
	}
	busy := make(map[int]bool, len(taken))
	for _, id := range taken {
		busy[id] = true
	}

	out := make([]slots.Slot, 0, len(list))
	for _, id := range list {
		out = append(out, slots.Slot{ID: id, Occupied: busy[id]})
	}
	return out, nil
}

func parseIDs(s string) ([]int, error) {
	var out []int
	for _, p := range splitCSV(s) {
		id, err := strconv.Atoi(p)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("bad slot id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
