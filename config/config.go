package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Host              string   `toml:"host" mapstructure:"host"`
	Port              string   `toml:"port" mapstructure:"port"`
	UploadDir         string   `toml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB       int64    `toml:"max_upload_mb" mapstructure:"max_upload_mb"`
	MaxPixels         int64    `toml:"max_pixels" mapstructure:"max_pixels"`
	AllowedExtensions []string `toml:"allowed_extensions" mapstructure:"allowed_extensions"`
	Libonnx           string   `toml:"libonnx" mapstructure:"libonnx"`
	Workers           int      `toml:"workers" mapstructure:"workers"`

	ModelDir      string `toml:"model_dir" mapstructure:"model_dir"`
	ModelFileName string `toml:"model_file_name" mapstructure:"model_file_name"`
	// ModelOutput is "probabilities" when the graph ends in a softmax, "logits" otherwise.
	ModelOutput string `toml:"model_output" mapstructure:"model_output"`

	LogLevel  string `toml:"log_level" mapstructure:"log_level"`
	LogFormat string `toml:"log_format" mapstructure:"log_format"`
	LogFile   string `toml:"log_file" mapstructure:"log_file"`

	Metrics         bool     `toml:"metrics" mapstructure:"metrics"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Duration lets TOML files use strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

const (
	OutputProbabilities = "probabilities"
	OutputLogits        = "logits"
)

func Default() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              "5000",
		UploadDir:         "./upload",
		MaxUploadMB:       16,
		MaxPixels:         40_000_000,
		AllowedExtensions: []string{"png", "jpg", "jpeg", "webp"},
		Workers:           1,
		ModelDir:          "models",
		ModelFileName:     "fer_lstm.onnx",
		ModelOutput:       OutputProbabilities,
		LogLevel:          "info",
		LogFormat:         "text",
		Metrics:           true,
		ShutdownTimeout:   Duration{10 * time.Second},
	}
}

var (
	cfg      = Default()
	cfgPath  = "config.toml"
	loadOnce sync.Once
)

// SetPath changes the file C loads. It has no effect once C has been called.
func SetPath(path string) {
	if path != "" {
		cfgPath = path
	}
}

func C() Config {
	loadOnce.Do(func() {
		if p := os.Getenv("FER_CONFIG"); p != "" && cfgPath == "config.toml" {
			cfgPath = p
		}
		loaded, err := Load(cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.normalize()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"FER_HOST":       &c.Host,
		"FER_PORT":       &c.Port,
		"FER_UPLOAD_DIR": &c.UploadDir,
		"FER_LIBONNX":    &c.Libonnx,
		"FER_LOG_LEVEL":  &c.LogLevel,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, e := range c.AllowedExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts = append(exts, e)
		}
	}
	c.AllowedExtensions = exts
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
}

func (c Config) Validate() error {
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed_extensions must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}
	if c.MaxPixels < 1 {
		return fmt.Errorf("max_pixels must be at least 1, got %d", c.MaxPixels)
	}
	switch c.ModelOutput {
	case OutputProbabilities, OutputLogits:
	default:
		return fmt.Errorf("unknown model_output %q", c.ModelOutput)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir must not be empty")
	}
	return nil
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
