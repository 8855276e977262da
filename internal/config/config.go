package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "RECORDKIT"
	DefaultFile = "recordkit.yaml"
)

type Config struct {
	Port     string `mapstructure:"port" validate:"required,numeric"`
	DSLDir   string `mapstructure:"dsl_dir"`
	EnumsDir string `mapstructure:"enums_dir"`
	Store    Store  `mapstructure:"store"`
	Log      Log    `mapstructure:"log"`
	Sweep    Sweep  `mapstructure:"sweep"`
}

type Store struct {
	Driver     string `mapstructure:"driver" validate:"oneof=memory postgres sqlite"`
	DBURL      string `mapstructure:"db_url" validate:"required_if=Driver postgres"`
	Schema     string `mapstructure:"schema" validate:"required_if=Driver postgres"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`

	// пул postgres; нули — значения по умолчанию пакета pg
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type Sweep struct {
	// незавершённые объекты старше этого возраста удаляются
	OlderThan time.Duration `mapstructure:"older_than" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("dsl_dir", "dsl")
	v.SetDefault("enums_dir", "reference/enums")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.db_url", "")
	v.SetDefault("store.schema", "recordkit")
	v.SetDefault("store.sqlite_path", "recordkit.db")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("sweep.older_than", time.Hour)
}

// New готовит viper: значения по умолчанию, затем файл, затем RECORDKIT_* из окружения.
// Флаги привязываются вызывающим через BindPFlag и перекрывают всё остальное.
// Отсутствие файла по умолчанию не ошибка; явно указанный файл обязан существовать.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// с SetConfigFile viper отдаёт *fs.PathError, а не ConfigFileNotFoundError
		var notFound viper.ConfigFileNotFoundError
		if !explicit && (errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			return v, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

var validate = validator.New()

// Load собирает и проверяет Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
