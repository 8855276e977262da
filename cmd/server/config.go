package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recordkit/internal/config"
)

// ключ viper -> имя флага; флаг перекрывает файл и окружение, только если задан
var flagKeys = map[string]string{
	"port":              "port",
	"dsl_dir":           "dsl-dir",
	"enums_dir":         "enums-dir",
	"store.driver":      "store-driver",
	"store.db_url":      "db-url",
	"store.schema":      "db-schema",
	"store.sqlite_path": "sqlite-path",
	"log.level":         "log-level",
	"log.format":        "log-format",
	"sweep.older_than":  "older-than",
}

func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	vp, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := vp.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return vp, nil
}
