package config

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"port" validate:"required,numeric"`
	Env            string   `mapstructure:"env" validate:"required,oneof=development staging production test"`
	LogLevel       string   `mapstructure:"log_level" validate:"required,oneof=debug info warning warn error"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	JWT     JWTConfig     `mapstructure:"jwt"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Storage StorageConfig `mapstructure:"storage"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret" validate:"required,min=16"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration" validate:"gt=0"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
}

// StorageConfig selects the backend. Only the map matching Type is used;
// it is decoded by the storage factory.
type StorageConfig struct {
	Type     string         `mapstructure:"type" validate:"required,oneof=local b2 s3"`
	RootPath string         `mapstructure:"root_path"`
	Local    map[string]any `mapstructure:"local"`
	B2       map[string]any `mapstructure:"b2"`
	S3       map[string]any `mapstructure:"s3"`
}

// Options returns the option map for the configured backend type.
func (s StorageConfig) Options() map[string]any {
	switch s.Type {
	case "b2":
		return s.B2
	case "s3":
		return s.S3
	default:
		return s.Local
	}
}

type LimitsConfig struct {
	MaxPathLength  int           `mapstructure:"max_path_length" validate:"gt=0"`
	TreeMaxDepth   int           `mapstructure:"tree_max_depth" validate:"gt=0"`
	TreeMaxNodes   int           `mapstructure:"tree_max_nodes" validate:"gt=0"`
	MaxUploadSize  string        `mapstructure:"max_upload_size" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ArchiveTimeout time.Duration `mapstructure:"archive_timeout" validate:"gt=0"`

	// MaxUploadBytes is MaxUploadSize parsed during Load.
	MaxUploadBytes int64 `mapstructure:"-"`
}

type AuditConfig struct {
	Type      string `mapstructure:"type" validate:"required,oneof=mongo badger"`
	BadgerDir string `mapstructure:"badger_dir"`
}

type JobsConfig struct {
	UploadSweepSchedule string        `mapstructure:"upload_sweep_schedule"`
	UploadStaleAfter    time.Duration `mapstructure:"upload_stale_after" validate:"gte=0"`
}

// envBindings maps config keys to the environment variables read for them,
// first match wins.
var envBindings = map[string][]string{
	"port":            {"PORT"},
	"env":             {"ENV"},
	"log_level":       {"LOG_LEVEL"},
	"allowed_origins": {"ALLOWED_ORIGINS"},

	"jwt.secret":     {"JWT_SECRET"},
	"jwt.issuer":     {"JWT_ISSUER"},
	"jwt.expiration": {"JWT_EXPIRATION"},

	"mongo.uri":      {"MONGO_URI", "MONGODB_URI"},
	"mongo.database": {"DATABASE_NAME", "MONGO_DATABASE"},

	"storage.type":           {"STORAGE_TYPE"},
	"storage.root_path":      {"STORAGE_ROOT_PATH"},
	"storage.local.base_dir": {"STORAGE_BASE_DIR"},

	"storage.b2.key_id":          {"B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"},
	"storage.b2.application_key": {"B2_APPLICATION_KEY", "B2_APP_KEY", "BACKBLAZE_APP_KEY"},
	"storage.b2.bucket":          {"B2_BUCKET_NAME", "B2_BUCKET", "BACKBLAZE_BUCKET"},
	"storage.b2.prefix":          {"B2_PREFIX"},

	"storage.s3.bucket":            {"S3_BUCKET"},
	"storage.s3.region":            {"S3_REGION", "AWS_REGION"},
	"storage.s3.prefix":            {"S3_PREFIX"},
	"storage.s3.endpoint":          {"S3_ENDPOINT"},
	"storage.s3.access_key_id":     {"S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
	"storage.s3.secret_access_key": {"S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
	"storage.s3.force_path_style":  {"S3_FORCE_PATH_STYLE"},

	"limits.max_path_length": {"MAX_PATH_LENGTH"},
	"limits.tree_max_depth":  {"TREE_MAX_DEPTH"},
	"limits.tree_max_nodes":  {"TREE_MAX_NODES"},
	"limits.max_upload_size": {"MAX_UPLOAD_SIZE", "MAX_FILE_SIZE"},
	"limits.request_timeout": {"REQUEST_TIMEOUT"},
	"limits.archive_timeout": {"ARCHIVE_TIMEOUT"},

	"audit.type":       {"AUDIT_TYPE"},
	"audit.badger_dir": {"AUDIT_BADGER_DIR"},

	"jobs.upload_sweep_schedule": {"UPLOAD_SWEEP_SCHEDULE"},
	"jobs.upload_stale_after":    {"UPLOAD_STALE_AFTER"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("jwt.issuer", "filemanager")
	v.SetDefault("jwt.expiration", "24h")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "filemanager")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.root_path", "public")
	v.SetDefault("storage.local.base_dir", "./storage-data")

	v.SetDefault("limits.max_path_length", 1024)
	v.SetDefault("limits.tree_max_depth", 32)
	v.SetDefault("limits.tree_max_nodes", 10000)
	v.SetDefault("limits.max_upload_size", "100MB")
	v.SetDefault("limits.request_timeout", "2m")
	v.SetDefault("limits.archive_timeout", "30m")

	v.SetDefault("audit.type", "mongo")
	v.SetDefault("audit.badger_dir", "./audit-data")

	v.SetDefault("jobs.upload_sweep_schedule", "@every 1h")
	v.SetDefault("jobs.upload_stale_after", "24h")
}

// LoadConfig reads defaults, then the optional config file, then the
// environment and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	size, err := humanize.ParseBytes(cfg.Limits.MaxUploadSize)
	if err != nil {
		return nil, fmt.Errorf("limits.max_upload_size: %w", err)
	}
	cfg.Limits.MaxUploadBytes = int64(size)
	cfg.Storage.RootPath = strings.Trim(cfg.Storage.RootPath, "/")

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func LogConfig(cfg *Config) {
	log.Println("Configuration loaded:")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  Environment: %s", cfg.Env)
	log.Printf("  Log Level: %s", cfg.LogLevel)
	log.Printf("  Database: %s", cfg.Mongo.Database)
	log.Printf("  MongoDB URI: %s", maskConnectionString(cfg.Mongo.URI))
	log.Printf("  JWT Secret: %s", maskSecret(cfg.JWT.Secret))
	log.Printf("  JWT Expiration: %v", cfg.JWT.Expiration)
	log.Printf("  Storage: %s (root %q)", cfg.Storage.Type, cfg.Storage.RootPath)
	if cfg.Storage.Type == "b2" {
		log.Printf("  B2 Key ID: %s", maskSecret(fmt.Sprint(cfg.Storage.B2["key_id"])))
		log.Printf("  B2 Bucket: %v", cfg.Storage.B2["bucket"])
	}
	if cfg.Storage.Type == "s3" {
		log.Printf("  S3 Bucket: %v", cfg.Storage.S3["bucket"])
		log.Printf("  S3 Endpoint: %v", cfg.Storage.S3["endpoint"])
	}
	log.Printf("  Max Upload Size: %s", humanize.Bytes(uint64(cfg.Limits.MaxUploadBytes)))
	log.Printf("  Tree Limits: depth %d, nodes %d", cfg.Limits.TreeMaxDepth, cfg.Limits.TreeMaxNodes)
	log.Printf("  Audit Sink: %s", cfg.Audit.Type)
	log.Printf("  Allowed Origins: %v", cfg.AllowedOrigins)
	log.Printf("  Upload Sweep: %q (stale after %v)", cfg.Jobs.UploadSweepSchedule, cfg.Jobs.UploadStaleAfter)
}

func maskSecret(secret string) string {
	if secret == "" || secret == "<nil>" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		if len(parts) >= 2 {
			return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
		}
	}
	return uri
}

func CreateContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
