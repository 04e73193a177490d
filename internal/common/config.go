package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/idscan/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Queue    QueueConfig
	Watch    WatchConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract        string
	Lang             string
	TessdataDir      string
	HeicConverter    string
	ArtifactCacheDir string
	PSM              int
	TSVConfidence    bool
	MinConfidence    float32
}

// QueueConfig sizes the background processing queue.
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
	RateLimit      float64 // files per second; 0 disables
	RateBurst      int
}

// WatchConfig enables ingestion of files dropped into directories.
type WatchConfig struct {
	Dirs         []string
	DocumentType string
	Debounce     time.Duration
	InitialScan  bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"database.dsn":                "DB_URL",
	"database.max_conns":          "DB_MAX_CONNS",
	"database.min_conns":          "DB_MIN_CONNS",
	"database.max_conn_lifetime":  "DB_MAX_CONN_LIFETIME",
	"database.max_conn_idle_time": "DB_MAX_CONN_IDLE_TIME",
	"database.dial_timeout":       "DB_DIAL_TIMEOUT",
	"database.statement_timeout":  "DB_STATEMENT_TIMEOUT",
	"server.grpc_addr":            "GRPC_ADDR",
	"server.metrics_addr":         "METRICS_ADDR",
	"ocr.tesseract":               "TESSERACT_BIN",
	"ocr.lang":                    "TESSERACT_LANG",
	"ocr.tessdata_dir":            "TESSDATA_PREFIX",
	"ocr.heic_converter":          "HEIC_CONVERTER",
	"ocr.artifact_cache_dir":      "ARTIFACT_CACHE_DIR",
	"ocr.psm":                     "TESSERACT_PSM",
	"ocr.tsv_confidence":          "OCR_TSV_CONFIDENCE",
	"ocr.min_confidence":          "OCR_MIN_CONFIDENCE",
	"queue.workers":               "WORKERS",
	"queue.size":                  "QUEUE_SIZE",
	"queue.process_timeout":       "PROCESS_TIMEOUT",
	"queue.rate_limit":            "RATE_LIMIT",
	"queue.rate_burst":            "RATE_BURST",
	"watch.dirs":                  "WATCH_DIRS",
	"watch.document_type":         "WATCH_DOCUMENT_TYPE",
	"watch.debounce":              "WATCH_DEBOUNCE",
	"watch.initial_scan":          "WATCH_INITIAL_SCAN",
	"logging.level":               "LOG_LEVEL",
	"logging.format":              "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "idscan.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", time.Duration(0))

	v.SetDefault("server.grpc_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.lang", "eng")
	v.SetDefault("ocr.heic_converter", "magick")
	v.SetDefault("ocr.artifact_cache_dir", "./tmp")
	v.SetDefault("ocr.psm", 3)
	v.SetDefault("ocr.tsv_confidence", true)
	v.SetDefault("ocr.min_confidence", constants.ImageConfidenceThreshold)

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.size", 256)
	v.SetDefault("queue.process_timeout", 3*time.Minute)
	v.SetDefault("queue.rate_limit", 0.0)
	v.SetDefault("queue.rate_burst", 1)

	v.SetDefault("watch.dirs", []string{})
	v.SetDefault("watch.document_type", "")
	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("watch.initial_scan", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// NewViper returns a viper instance with defaults and environment bindings
// in place. Callers may bind flags on top before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// ReadConfigFile merges a YAML config file into v. An empty path is a no-op.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("read config %s", path), err)
	}
	return nil
}

// LoadConfig loads configuration from defaults, an optional config file and
// the environment, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if err := ReadConfigFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// FromViper snapshots v into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              v.GetString("database.dsn"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			MaxConnLifetime:  v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("database.max_conn_idle_time"),
			DialTimeout:      v.GetDuration("database.dial_timeout"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Server: ServerConfig{
			GRPCAddr:    v.GetString("server.grpc_addr"),
			MetricsAddr: v.GetString("server.metrics_addr"),
		},
		OCR: OCRConfig{
			Tesseract:        v.GetString("ocr.tesseract"),
			Lang:             v.GetString("ocr.lang"),
			TessdataDir:      v.GetString("ocr.tessdata_dir"),
			HeicConverter:    v.GetString("ocr.heic_converter"),
			ArtifactCacheDir: v.GetString("ocr.artifact_cache_dir"),
			PSM:              v.GetInt("ocr.psm"),
			TSVConfidence:    v.GetBool("ocr.tsv_confidence"),
			MinConfidence:    float32(v.GetFloat64("ocr.min_confidence")),
		},
		Queue: QueueConfig{
			Workers:        v.GetInt("queue.workers"),
			Size:           v.GetInt("queue.size"),
			ProcessTimeout: v.GetDuration("queue.process_timeout"),
			RateLimit:      v.GetFloat64("queue.rate_limit"),
			RateBurst:      v.GetInt("queue.rate_burst"),
		},
		Watch: WatchConfig{
			Dirs:         splitList(v.GetStringSlice("watch.dirs")),
			DocumentType: v.GetString("watch.document_type"),
			Debounce:     v.GetDuration("watch.debounce"),
			InitialScan:  v.GetBool("watch.initial_scan"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Queue.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "WORKERS must be at least 1", ErrInvalidInput)
	}
	if c.Queue.Size < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_SIZE must be at least 1", ErrInvalidInput)
	}
	if c.Queue.RateLimit < 0 {
		return NewAppError("CONFIG_ERROR", "RATE_LIMIT must not be negative", ErrInvalidInput)
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return NewAppError("CONFIG_ERROR", "OCR_MIN_CONFIDENCE must be within [0,1]", ErrInvalidInput)
	}
	switch c.OCR.HeicConverter {
	case "", "heif-convert", "magick", "sips":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported HEIC_CONVERTER %q", c.OCR.HeicConverter), ErrInvalidInput)
	}
	if len(c.Watch.Dirs) > 0 {
		if _, err := constants.ParseDocumentType(c.Watch.DocumentType); err != nil {
			return NewAppError("CONFIG_ERROR", "WATCH_DOCUMENT_TYPE is required with WATCH_DIRS", err)
		}
	}
	return nil
}
