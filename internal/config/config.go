package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the importer reads from the environment
type Config struct {
	Port                string        // http listen port
	DBURL               string        // postgres dsn, empty means in-memory store
	WorkDir             string        // where cartridges get extracted
	LogMode             string        // "dev" or "prod"
	QTIEnabled          bool          // hand assessments to the assessment converter
	MergeOnError        string        // "skip" or "abort"
	MaxParallelImports  int           // batch import fan out
	TaskMaxAge          time.Duration // finished tasks older than this get cleaned
	TaskCleanupInterval time.Duration
	MaxUploadBytes      int64
}

const (
	MergeOnErrorSkip  = "skip"
	MergeOnErrorAbort = "abort"
)

// Load reads .env files (if any exist) and then the process environment.
// Missing .env files are fine, Docker sets the variables anyway.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db_url", "")
	v.SetDefault("work_dir", filepath.Join(os.TempDir(), "cartridges"))
	v.SetDefault("log_mode", "dev")
	v.SetDefault("qti_enabled", false)
	v.SetDefault("merge_on_error", MergeOnErrorSkip)
	v.SetDefault("max_parallel_imports", 4)
	v.SetDefault("task_max_age", 24*time.Hour)
	v.SetDefault("task_cleanup_interval", time.Hour)
	v.SetDefault("max_upload_bytes", int64(512<<20))
	v.AutomaticEnv()

	cfg := &Config{
		Port:                v.GetString("port"),
		DBURL:               v.GetString("db_url"),
		WorkDir:             v.GetString("work_dir"),
		LogMode:             v.GetString("log_mode"),
		QTIEnabled:          v.GetBool("qti_enabled"),
		MergeOnError:        strings.ToLower(v.GetString("merge_on_error")),
		MaxParallelImports:  v.GetInt("max_parallel_imports"),
		TaskMaxAge:          v.GetDuration("task_max_age"),
		TaskCleanupInterval: v.GetDuration("task_cleanup_interval"),
		MaxUploadBytes:      v.GetInt64("max_upload_bytes"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate catches settings that would only blow up later at import time
func (c *Config) Validate() error {
	switch c.MergeOnError {
	case MergeOnErrorSkip, MergeOnErrorAbort:
	default:
		return fmt.Errorf("MERGE_ON_ERROR must be %q or %q, got %q", MergeOnErrorSkip, MergeOnErrorAbort, c.MergeOnError)
	}
	if c.MaxParallelImports <= 0 {
		return fmt.Errorf("MAX_PARALLEL_IMPORTS must be positive, got %d", c.MaxParallelImports)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("WORK_DIR cannot be empty")
	}
	return nil
}

// Addr is the listen address for http.ListenAndServe
func (c *Config) Addr() string {
	return ":" + c.Port
}
