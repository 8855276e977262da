package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recordkit/internal/dsl"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Работа со схемой из *.dsl",
}

var schemaActor string

var schemaApplyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Создать недостающие объекты и поля из *.dsl",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		dir := a.cfg.DSLDir
		if len(args) == 1 {
			dir = args[0]
		}
		objs, err := dsl.LoadAll(dir)
		if err != nil {
			return err
		}
		rep, err := a.applier.Apply(ctx, objs, schemaActor)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "objects created: %d, fields defined: %d, skipped: %d\n",
			len(rep.Created), rep.Fields, rep.Skipped)
		return nil
	},
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Разобрать *.dsl без записи в хранилище",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := v.GetString("dsl_dir")
		if len(args) == 1 {
			dir = args[0]
		}
		objs, err := dsl.LoadAll(dir)
		if err != nil {
			return err
		}
		n := 0
		for _, o := range objs {
			n += len(o.Fields)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d object(s), %d field(s): ok\n", len(objs), n)
		return nil
	},
}

func init() {
	schemaApplyCmd.Flags().StringVar(&schemaActor, "actor", "system", "actor recorded as created_by")
	schemaApplyCmd.Flags().String("dsl-dir", "", "directory with *.dsl files")
	schemaCmd.AddCommand(schemaApplyCmd, schemaCheckCmd)
}
