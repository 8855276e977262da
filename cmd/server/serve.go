package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recordkit/internal/api"
	"recordkit/internal/dsl"
)

var applyOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if applyOnStart {
			if err := applyDir(ctx, a, a.cfg.DSLDir, "system"); err != nil {
				return err
			}
		}
		go sweepLoop(ctx, a)

		srv := api.NewServer(a.objects, a.fields, a.records,
			api.WithLogger(a.log),
			api.WithApplier(a.applier, a.cfg.DSLDir),
			api.WithSweepAge(a.cfg.Sweep.OlderThan),
		)
		return api.RunServer(ctx, ":"+a.cfg.Port, srv)
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("port", "", "HTTP port")
	f.String("dsl-dir", "", "directory with *.dsl files")
	f.String("older-than", "", "age of uncommitted objects removed by the periodic sweep")
	f.BoolVar(&applyOnStart, "apply", false, "apply *.dsl from --dsl-dir before serving")
}

func applyDir(ctx context.Context, a *app, dir, actor string) error {
	objs, err := dsl.LoadAll(dir)
	if err != nil {
		return err
	}
	rep, err := a.applier.Apply(ctx, objs, actor)
	if err != nil {
		return err
	}
	a.log.Info().Str("dir", dir).Strs("created", rep.Created).Int("fields", rep.Fields).Int("skipped", rep.Skipped).Msg("schema applied")
	return nil
}
