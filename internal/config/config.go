package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Input       InputConfig       `mapstructure:"input"`
	Output      OutputConfig      `mapstructure:"output"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Web         WebConfig         `mapstructure:"web"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains encoder settings
type CompressionConfig struct {
	Quality      int    `mapstructure:"quality"` // percent, 0-100
	ResizeFilter string `mapstructure:"resize_filter"`
}

// InputConfig controls which files are selected
type InputConfig struct {
	SupportedExtensions []string `mapstructure:"supported_extensions"`
	MaxFilesPerRun      int      `mapstructure:"max_files_per_run"`
	MaxFileSizeMB       int      `mapstructure:"max_file_size_mb"`
}

// OutputConfig controls where artifacts are written
type OutputConfig struct {
	TargetDirectory   string `mapstructure:"target_directory"`
	DuplicateHandling string `mapstructure:"duplicate_handling"`
	DryRun            bool   `mapstructure:"dry_run"`
	ArchiveName       string `mapstructure:"archive_name"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads int `mapstructure:"worker_threads"` // 0 = one task per file
}

// WebConfig contains web server settings
type WebConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
	MaxBatches     int      `mapstructure:"max_batches"`
	StaticDir      string   `mapstructure:"static_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Quality:      80,
			ResizeFilter: "lanczos",
		},
		Input: InputConfig{
			SupportedExtensions: []string{
				".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tiff", ".tif",
			},
			MaxFilesPerRun: 0, // 0 means no limit
			MaxFileSizeMB:  50,
		},
		Output: OutputConfig{
			TargetDirectory:   "compressed",
			DuplicateHandling: "rename", // rename, skip, overwrite
			DryRun:            false,
			ArchiveName:       "compressed_images.zip",
		},
		Performance: PerformanceConfig{
			WorkerThreads: 4,
		},
		Web: WebConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    200,
			MaxBatches:     10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers scalar keys so AutomaticEnv overrides reach Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"compression.quality",
		"compression.resize_filter",
		"input.max_files_per_run",
		"input.max_file_size_mb",
		"output.target_directory",
		"output.duplicate_handling",
		"output.dry_run",
		"performance.worker_threads",
		"web.port",
		"web.max_upload_mb",
		"web.static_dir",
		"logging.level",
		"logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Compression.Quality < 0 || c.Compression.Quality > 100 {
		return fmt.Errorf("invalid quality: %d (valid: 0-100)", c.Compression.Quality)
	}

	validFilters := map[string]bool{
		"lanczos":    true,
		"catmullrom": true,
		"linear":     true,
		"box":        true,
		"nearest":    true,
	}
	c.Compression.ResizeFilter = strings.ToLower(c.Compression.ResizeFilter)
	if c.Compression.ResizeFilter == "" {
		c.Compression.ResizeFilter = "lanczos"
	}
	if !validFilters[c.Compression.ResizeFilter] {
		return fmt.Errorf("invalid resize_filter: %s (valid: lanczos, catmullrom, linear, box, nearest)",
			c.Compression.ResizeFilter)
	}

	// Validate duplicate handling strategy
	validStrategies := map[string]bool{
		"rename":    true,
		"skip":      true,
		"overwrite": true,
	}
	if !validStrategies[c.Output.DuplicateHandling] {
		return fmt.Errorf("invalid duplicate_handling strategy: %s (valid: rename, skip, overwrite)",
			c.Output.DuplicateHandling)
	}
	if c.Output.TargetDirectory == "" {
		c.Output.TargetDirectory = "."
	}
	if c.Output.ArchiveName == "" {
		c.Output.ArchiveName = "compressed_images.zip"
	}

	c.Input.SupportedExtensions = normalizeExtensions(c.Input.SupportedExtensions)
	if c.Input.MaxFileSizeMB < 0 {
		c.Input.MaxFileSizeMB = 0
	}

	if c.Performance.WorkerThreads < 0 {
		c.Performance.WorkerThreads = 0
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}
	if c.Web.MaxUploadMB <= 0 {
		c.Web.MaxUploadMB = 200
	}
	if c.Web.MaxBatches <= 0 {
		c.Web.MaxBatches = 10
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// MaxFileSizeBytes returns the per-file size limit, or 0 for no limit.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Input.MaxFileSizeMB) << 20
}

// IsImageExtension checks if the extension is for a supported image file
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Input.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
