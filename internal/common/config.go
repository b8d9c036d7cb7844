package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"

	"github.com/joseph-ayodele/ocr-fusion/constants"
)

// ConfigRelPath is the config file location relative to the XDG config directories.
const ConfigRelPath = "ocrfuse/config.toml"

// Config holds all application configuration
type Config struct {
	Store  StoreConfig  `toml:"store"`
	Server ServerConfig `toml:"server"`
	OCR    OCRConfig    `toml:"ocr"`
	Export ExportConfig `toml:"export"`
	Eval   EvalConfig   `toml:"eval"`
	Fusion FusionConfig `toml:"fusion"`
	Log    LogConfig    `toml:"log"`
}

// StoreConfig holds run-store configuration. An empty DSN disables the store.
type StoreConfig struct {
	DSN              string        `toml:"dsn"`
	MaxConns         int32         `toml:"max_conns"`
	MinConns         int32         `toml:"min_conns"`
	MaxConnLifetime  time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `toml:"max_conn_idle_time"`
	DialTimeout      time.Duration `toml:"dial_timeout"`
	StatementTimeout time.Duration `toml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `toml:"grpc_addr"`
}

// OCRConfig holds OCR batch configuration
type OCRConfig struct {
	Glob          string   `toml:"glob"`
	Engines       []string `toml:"engines"`
	Tesseract     string   `toml:"tesseract"`
	TessdataDir   string   `toml:"tessdata_dir"`
	Lang          string   `toml:"lang"`
	OEM           int      `toml:"oem"`
	PSM           []int    `toml:"psm"`
	Outputs       []string `toml:"outputs"`
	WriteManifest bool     `toml:"write_manifest"`
	DryRun        bool     `toml:"dry_run"`
	GPU           bool     `toml:"gpu"`
	EasyOCRLangs  []string `toml:"easyocr_langs"`
	PaddleLang    string   `toml:"paddle_lang"`
	PaddleCommand string   `toml:"paddle_command"`
	PaddleArgs    []string `toml:"paddle_args"`
	EasyCommand   string   `toml:"easyocr_command"`
	EasyArgs      []string `toml:"easyocr_args"`
	InProcess     bool     `toml:"in_process"`
	Workers       int      `toml:"workers"`
}

// ExportConfig holds dataset export configuration
type ExportConfig struct {
	Glob             string `toml:"glob"`
	GoldSuffix       string `toml:"gold_suffix"`
	MultiHyp         string `toml:"multi_hyp"`
	FailIfNoGold     bool   `toml:"fail_if_no_gold"`
	WriteHypothesis  bool   `toml:"write_hypothesis"`
	HypothesisSuffix string `toml:"hypothesis_suffix"`
	XLSX             bool   `toml:"xlsx"`
	Concurrency      int    `toml:"concurrency"`
}

// EvalConfig holds evaluation configuration
type EvalConfig struct {
	Glob       string `toml:"glob"`
	GoldSuffix string `toml:"gold_suffix"`
	XLSX       bool   `toml:"xlsx"`
}

// FusionConfig overrides voting weights by engine family prefix or exact candidate key.
type FusionConfig struct {
	Weights map[string]float64 `toml:"weights"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr: ":8080",
		},
		OCR: OCRConfig{
			Glob:          "**/*.jpg",
			Engines:       append([]string(nil), constants.AllEngines...),
			Tesseract:     "tesseract",
			Lang:          "por",
			OEM:           3,
			PSM:           []int{3, 4, 6, 11, 12},
			Outputs:       []string{"txt"},
			WriteManifest: true,
			EasyOCRLangs:  []string{"pt"},
			PaddleLang:    "pt",
			PaddleCommand: "paddleocr",
			PaddleArgs:    []string{"--image_dir", "{image}", "--lang", "{lang}", "--use_gpu", "{gpu}"},
			EasyCommand:   "easyocr",
			EasyArgs:      []string{"-l", "{langs}", "-f", "{image}", "--detail", "0", "--gpu", "{gpu}"},
			Workers:       2,
		},
		Export: ExportConfig{
			Glob:             "**/*.jpg",
			GoldSuffix:       ".curator.txt",
			MultiHyp:         "concat",
			FailIfNoGold:     true,
			HypothesisSuffix: ".fuse.txt",
			Concurrency:      4,
		},
		Eval: EvalConfig{
			Glob:       "**/*.jpg",
			GoldSuffix: ".curator.txt",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig layers defaults, the TOML file at path and environment variables.
// An empty path falls back to the XDG config file when one exists; an explicit
// path that does not exist is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		if found, err := xdg.SearchConfigFile(ConfigRelPath); err == nil {
			path = found
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, NewAppError(CodeConfig, fmt.Sprintf("config file %q", path), errors.Join(ErrConfig, err))
			}
		} else if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, NewAppError(CodeConfig, "failed to decode TOML config", errors.Join(ErrConfig, err))
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store.DSN = getEnv("OCRFUSE_DB_URL", c.Store.DSN)
	c.Store.MaxConns = getEnvAsInt32("OCRFUSE_DB_MAX_CONNS", c.Store.MaxConns)
	c.Store.MinConns = getEnvAsInt32("OCRFUSE_DB_MIN_CONNS", c.Store.MinConns)
	c.Store.MaxConnLifetime = getEnvAsDuration("OCRFUSE_DB_MAX_CONN_LIFETIME", c.Store.MaxConnLifetime)
	c.Store.MaxConnIdleTime = getEnvAsDuration("OCRFUSE_DB_MAX_CONN_IDLE_TIME", c.Store.MaxConnIdleTime)
	c.Store.DialTimeout = getEnvAsDuration("OCRFUSE_DB_DIAL_TIMEOUT", c.Store.DialTimeout)
	c.Store.StatementTimeout = getEnvAsDuration("OCRFUSE_DB_STATEMENT_TIMEOUT", c.Store.StatementTimeout)

	c.Server.GRPCAddr = getEnv("OCRFUSE_GRPC_ADDR", c.Server.GRPCAddr)

	c.OCR.Tesseract = getEnv("OCRFUSE_TESSERACT", c.OCR.Tesseract)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.Lang = getEnv("OCRFUSE_TESSERACT_LANG", c.OCR.Lang)
	c.OCR.GPU = getEnvAsBool("OCRFUSE_GPU", c.OCR.GPU)
	c.OCR.Engines = getEnvAsList("OCRFUSE_ENGINES", c.OCR.Engines)
	c.OCR.Workers = getEnvAsInt("OCRFUSE_OCR_WORKERS", c.OCR.Workers)

	c.Export.MultiHyp = getEnv("OCRFUSE_MULTI_HYP", c.Export.MultiHyp)
	c.Export.GoldSuffix = getEnv("OCRFUSE_GOLD_SUFFIX", c.Export.GoldSuffix)
	c.Eval.GoldSuffix = getEnv("OCRFUSE_GOLD_SUFFIX", c.Eval.GoldSuffix)

	c.Log.Level = getEnv("OCRFUSE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("OCRFUSE_LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("ocr.engines", c.OCR.Engines, Required, OneOf(constants.AllEngines...))
	v.Field("ocr.outputs", c.OCR.Outputs, Required, OneOf(constants.OutputFormats...))
	v.Field("ocr.psm", c.OCR.PSM, IntRange(0, 13))
	v.Field("ocr.oem", c.OCR.OEM, IntRange(0, 3))
	v.Field("ocr.lang", c.OCR.Lang, Required)
	v.Field("ocr.workers", c.OCR.Workers, Positive)
	v.Field("export.gold_suffix", c.Export.GoldSuffix, Required)
	v.Field("export.multi_hyp", strings.ToLower(strings.TrimSpace(c.Export.MultiHyp)), OneOf("concat", "best", "fuse"))
	v.Field("export.hypothesis_suffix", c.Export.HypothesisSuffix, Required)
	v.Field("export.concurrency", c.Export.Concurrency, Positive)
	v.Field("eval.gold_suffix", c.Eval.GoldSuffix, Required)
	v.Field("server.grpc_addr", c.Server.GRPCAddr, Required)
	for key, w := range c.Fusion.Weights {
		v.Field("fusion.weights."+key, w, Positive)
	}
	if _, ok := ParseLevel(c.Log.Level); !ok {
		v.Field("log.level", c.Log.Level, OneOf("debug", "info", "warn", "error"))
	}
	return v.ConfigError()
}
