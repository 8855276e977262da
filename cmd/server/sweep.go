package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Удалить объекты, создание которых не завершилось",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.objects.SweepUncommitted(ctx, a.cfg.Sweep.OlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d uncommitted object(s) older than %s\n", n, a.cfg.Sweep.OlderThan)
		return nil
	},
}

func init() {
	sweepCmd.Flags().String("older-than", "", "minimum age, e.g. 30m")
}

// sweepLoop чистит незавершённые объекты раз в OlderThan, пока жив ctx.
func sweepLoop(ctx context.Context, a *app) {
	age := a.cfg.Sweep.OlderThan
	t := time.NewTicker(age)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.objects.SweepUncommitted(ctx, age)
			if err != nil {
				a.log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				a.log.Info().Int("removed", n).Msg("uncommitted objects swept")
			}
		}
	}
}
