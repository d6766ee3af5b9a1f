package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingServiceURL is returned by RequireService when no conversion
// service base URL is configured.
var ErrMissingServiceURL = errors.New("SWIFTCONVERT_SERVICE_URL is not set")

type Config struct {
	ServiceURL string
	Token      string
	DataDir    string
	LogFile    string
	Timeout    time.Duration
	Upload     UploadConfig
	Export     ExportConfig
}

type UploadConfig struct {
	MaxFiles      int
	MaxFileSize   int64 // bytes
	MaxTotalSize  int64 // bytes
	MaxConcurrent int
	InputTypes    []string
	OutputTypes   []string
}

type ExportConfig struct {
	Destination string
	Dir         string
	S3          S3Config
	GCS         GCSConfig
	SFTP        SFTPConfig
}

type S3Config struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

type SFTPConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	KeyFile    string
	KnownHosts string
	Dir        string
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dataDir := getEnv("SWIFTCONVERT_DATA_DIR", defaultDataDir())

	timeout, err := getEnvAsDuration("SWIFTCONVERT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceURL: strings.TrimRight(os.Getenv("SWIFTCONVERT_SERVICE_URL"), "/"),
		Token:      os.Getenv("SWIFTCONVERT_TOKEN"),
		DataDir:    dataDir,
		LogFile:    getEnv("SWIFTCONVERT_LOG_FILE", filepath.Join(dataDir, "swiftconvert.log")),
		Timeout:    timeout,
		Upload: UploadConfig{
			MaxFiles:      getEnvAsInt("SWIFTCONVERT_MAX_FILES", 10),
			MaxFileSize:   getEnvAsInt64("SWIFTCONVERT_MAX_FILE_SIZE", 20*1024*1024),  // 20MB
			MaxTotalSize:  getEnvAsInt64("SWIFTCONVERT_MAX_TOTAL_SIZE", 50*1024*1024), // 50MB
			MaxConcurrent: getEnvAsInt("SWIFTCONVERT_MAX_CONCURRENT", 0),
			InputTypes:    getEnvAsList("SWIFTCONVERT_INPUT_TYPES", []string{"heic", "heif", "jpeg", "png"}),
			OutputTypes:   getEnvAsList("SWIFTCONVERT_OUTPUT_TYPES", []string{"jpeg", "png"}),
		},
		Export: ExportConfig{
			Destination: getEnv("SWIFTCONVERT_EXPORT_DEST", "local"),
			Dir:         getEnv("SWIFTCONVERT_EXPORT_DIR", "."),
			S3: S3Config{
				Bucket:    os.Getenv("SWIFTCONVERT_S3_BUCKET"),
				Region:    getEnv("SWIFTCONVERT_S3_REGION", "us-east-1"),
				Prefix:    os.Getenv("SWIFTCONVERT_S3_PREFIX"),
				AccessKey: os.Getenv("SWIFTCONVERT_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("SWIFTCONVERT_S3_SECRET_KEY"),
			},
			GCS: GCSConfig{
				Bucket:          os.Getenv("SWIFTCONVERT_GCS_BUCKET"),
				Prefix:          os.Getenv("SWIFTCONVERT_GCS_PREFIX"),
				CredentialsFile: os.Getenv("SWIFTCONVERT_GCS_CREDENTIALS"),
			},
			SFTP: SFTPConfig{
				Host:       os.Getenv("SWIFTCONVERT_SFTP_HOST"),
				Port:       getEnv("SWIFTCONVERT_SFTP_PORT", "22"),
				User:       os.Getenv("SWIFTCONVERT_SFTP_USER"),
				Password:   os.Getenv("SWIFTCONVERT_SFTP_PASSWORD"),
				KeyFile:    os.Getenv("SWIFTCONVERT_SFTP_KEY_FILE"),
				KnownHosts: os.Getenv("SWIFTCONVERT_SFTP_KNOWN_HOSTS"),
				Dir:        getEnv("SWIFTCONVERT_SFTP_DIR", "."),
			},
		},
	}

	return cfg, nil
}

// RequireService fails when the conversion service is not configured.
// Network-dependent commands call it before doing anything else.
func (c *Config) RequireService() error {
	if c.ServiceURL == "" {
		return ErrMissingServiceURL
	}
	return nil
}

// SupportsOutput reports whether format is one of the configured output types.
func (c *Config) SupportsOutput(format string) bool {
	for _, t := range c.Upload.OutputTypes {
		if t == format {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "swiftconvert")
	}
	return ".swiftconvert"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
