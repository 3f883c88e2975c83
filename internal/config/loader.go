package config

import (
	"fmt"

	"github.com/goodpartydata/voterflow/internal/db"
	"github.com/spf13/viper"
)

// Config gathers everything a pipeline invocation needs: the warehouse
// connection, the source file location, the dbt project to trigger, and the
// listen address for the optional HTTP surface.
type Config struct {
	Database db.Config
	Source   SourceConfig
	DBT      DBTConfig
	HTTPAddr string
}

// SourceConfig locates the voter roll file.
type SourceConfig struct {
	Path string
}

// DBTConfig locates the downstream dbt project.
type DBTConfig struct {
	ProjectDir  string
	ProfilesDir string
	Selectors   []string
}

// DefaultConfig returns the defaults the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Source: SourceConfig{
			Path: "./data/raw/goodparty_voters.csv",
		},
		DBT: DBTConfig{
			ProjectDir:  "./dbt_voter_project",
			ProfilesDir: "./dbt_voter_project",
			Selectors:   []string{"staging.*", "intermediate.*", "marts.*"},
		},
		HTTPAddr: ":8080",
	}
}

// Load reads config.yaml from configPath, starting from defaults and
// allowing environment overrides like VOTERFLOW_DATABASE_HOST.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("VOTERFLOW")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("source.path")
	v.BindEnv("dbt.project_dir")
	v.BindEnv("dbt.profiles_dir")
	v.BindEnv("http.addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("source.path") {
		cfg.Source.Path = v.GetString("source.path")
	}
	if v.IsSet("dbt.project_dir") {
		cfg.DBT.ProjectDir = v.GetString("dbt.project_dir")
	}
	if v.IsSet("dbt.profiles_dir") {
		cfg.DBT.ProfilesDir = v.GetString("dbt.profiles_dir")
	}
	if v.IsSet("dbt.selectors") {
		cfg.DBT.Selectors = v.GetStringSlice("dbt.selectors")
	}
	if v.IsSet("http.addr") {
		cfg.HTTPAddr = v.GetString("http.addr")
	}

	return cfg, nil
}
