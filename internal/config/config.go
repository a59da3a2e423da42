// Package config loads the JSON settings file and the environment/.env
// connection strings into a typed configuration, and validates
// method-specific processing settings before any database connection
// opens.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Error marks a configuration problem: bad JSON, a missing DSN, or an
// unknown processing method. Always fatal before any DB work starts.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Method enumerates the transformer variants a settings file may select.
type Method string

const (
	MethodCopy         Method = "copy"
	MethodAggr         Method = "aggr"
	MethodReduceAggr   Method = "reduce_aggr"
	MethodShuffle      Method = "shuffle"
	MethodSelectRandom Method = "select_random"
	MethodUUID         Method = "uuid"
)

// ProcessingSettings holds the method-specific knobs recognized under the
// "processing_settings" key of a settings file.
type ProcessingSettings struct {
	Method         Method            `mapstructure:"method"`
	BatchSize      int               `mapstructure:"batch_size"`
	BatchSleepMs   int               `mapstructure:"batch_sleep_ms"`
	DeleteSleepS   int               `mapstructure:"delete_sleep_s"`
	ContinuousMode bool              `mapstructure:"continuous_mode"`
	Columns        []string          `mapstructure:"columns"`
	ColumnOps      map[string]string `mapstructure:"column_operations"`
	Groups         [][]string        `mapstructure:"groups"`

	SrcTable        string `mapstructure:"src_table"`
	TransferTable   string `mapstructure:"transfer_table"`
	ProcessedColumn string `mapstructure:"processed_column"`
	IDColumn        string `mapstructure:"id_column"`
	Publication     string `mapstructure:"publication"`
	Subscription    string `mapstructure:"subscription"`
}

// Settings is the top-level shape of the JSON settings file.
type Settings struct {
	LogsDir            string             `mapstructure:"logs_dir"`
	MetricsDir         string             `mapstructure:"metrics_dir"`
	ProcessingSettings ProcessingSettings `mapstructure:"processing_settings"`
}

// Connections holds the DSNs read from the environment.
type Connections struct {
	Src string
	Dst []string
}

const (
	defaultProcessedColumn = "processed"
	defaultIDColumn        = "xfer_id"
	defaultPublication     = "xfer_pub"
	defaultSubscription    = "xfer_sub"
)

// LoadSettings reads and validates the JSON settings file at path.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)

	v.SetDefault("processing_settings.processed_column", defaultProcessedColumn)
	v.SetDefault("processing_settings.id_column", defaultIDColumn)
	v.SetDefault("processing_settings.publication", defaultPublication)
	v.SetDefault("processing_settings.subscription", defaultSubscription)

	if err := v.ReadInConfig(); err != nil {
		return nil, errf("reading settings file %s: %v", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errf("decoding settings file %s: %v", path, err)
	}

	if err := validate(&s.ProcessingSettings); err != nil {
		return nil, err
	}
	return &s, nil
}

func validate(p *ProcessingSettings) error {
	switch p.Method {
	case MethodCopy, MethodAggr, MethodReduceAggr, MethodShuffle, MethodSelectRandom, MethodUUID:
	default:
		return errf("unknown processing method %q", p.Method)
	}
	if p.SrcTable == "" {
		return errf("processing_settings.src_table is required")
	}
	if p.TransferTable == "" {
		return errf("processing_settings.transfer_table is required")
	}
	if p.BatchSize <= 0 {
		return errf("processing_settings.batch_size must be > 0, got %d", p.BatchSize)
	}
	if p.BatchSleepMs < 0 {
		return errf("processing_settings.batch_sleep_ms must be >= 0")
	}
	if p.DeleteSleepS < 0 {
		return errf("processing_settings.delete_sleep_s must be >= 0")
	}

	switch p.Method {
	case MethodCopy:
		if len(p.Columns) == 0 {
			return errf("method %q requires a non-empty columns list", p.Method)
		}
	case MethodAggr, MethodReduceAggr, MethodUUID:
		if len(p.ColumnOps) == 0 {
			return errf("method %q requires a non-empty column_operations map", p.Method)
		}
	case MethodShuffle, MethodSelectRandom:
		if len(p.Groups) == 0 {
			return errf("method %q requires a non-empty groups list", p.Method)
		}
	}
	return nil
}

// LoadConnections loads .env (from envPath, or the working directory's
// .env if envPath is empty — a missing file is not an error, matching
// python-dotenv's tolerant behavior) and reads SRC_CONN_STRING and
// DST_CONN_STRINGS from the environment. replicated controls whether
// DST_CONN_STRINGS is required.
func LoadConnections(envPath string, replicated bool) (*Connections, error) {
	if envPath != "" {
		if err := gotenv.Load(envPath); err != nil {
			return nil, errf("loading env file %s: %v", envPath, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(".env"); err != nil {
			return nil, errf("loading .env: %v", err)
		}
	}

	src := os.Getenv("SRC_CONN_STRING")
	if src == "" {
		return nil, errf("SRC_CONN_STRING is not set")
	}

	c := &Connections{Src: src}

	raw := os.Getenv("DST_CONN_STRINGS")
	if raw == "" {
		if replicated {
			return nil, errf("DST_CONN_STRINGS is required in replicated mode")
		}
		return c, nil
	}

	var dst []string
	if err := json.Unmarshal([]byte(raw), &dst); err != nil {
		return nil, errf("DST_CONN_STRINGS is not a JSON array of strings: %v", err)
	}
	if replicated && len(dst) == 0 {
		return nil, errf("DST_CONN_STRINGS is required in replicated mode")
	}
	c.Dst = dst
	return c, nil
}
