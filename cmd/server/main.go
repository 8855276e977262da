package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	v          *viper.Viper
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "recordkit",
	Short:         "Схемы объектов, поля и записи поверх документного хранилища",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		v, err = loadViper(cmd)
		return err
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: ./recordkit.yaml)")
	pf.String("store-driver", "", "memory | postgres | sqlite")
	pf.String("db-url", "", "postgres connection string")
	pf.String("db-schema", "", "postgres schema")
	pf.String("sqlite-path", "", "sqlite database file")
	pf.String("log-level", "", "trace | debug | info | warn | error")
	pf.String("log-format", "", "console | json")
	pf.String("enums-dir", "", "directory with option catalogs (*.yaml)")

	rootCmd.AddCommand(serveCmd, schemaCmd, sweepCmd)
}
