package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds TruthGuard configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Oracles   OraclesConfig   `yaml:"oracles"`
	Image     ImageConfig     `yaml:"image"`
	Video     VideoConfig     `yaml:"video"`
	FactCheck FactCheckConfig `yaml:"factcheck"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"` // HTTP listen address, e.g. ":8000"
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	MaxTextChars        int           `yaml:"max_text_chars"`
	MaxInFlightRequests int           `yaml:"max_in_flight_requests"`
	RateLimitPerMinute  int           `yaml:"rate_limit_per_minute"` // per client IP; 0 disables
	CORSAllowedOrigins  []string      `yaml:"cors_allowed_origins"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace | debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
}

type OraclesConfig struct {
	Text  OracleConfig `yaml:"text"`
	Image OracleConfig `yaml:"image"`
}

// OracleConfig selects and tunes one neural oracle backend.
type OracleConfig struct {
	Backend string `yaml:"backend"` // onnx | remote | none

	// Required makes a load failure fatal at startup. Otherwise the oracle
	// is disabled and its signal is reported unusable.
	Required bool `yaml:"required"`

	// onnx
	ModelDir     string `yaml:"model_dir"`
	SeqLen       int    `yaml:"seq_len"`
	ImageSize    int    `yaml:"image_size"`
	MaxSessions  int    `yaml:"max_sessions"`
	IntraThreads int    `yaml:"intra_threads"`
	InterThreads int    `yaml:"inter_threads"`

	// remote
	URL                  string        `yaml:"url"`
	Timeout              time.Duration `yaml:"timeout"`
	APIKeyEnv            string        `yaml:"api_key_env"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`
}

type ImageConfig struct {
	ForensicMode string `yaml:"forensic_mode"` // gradient | texture
}

type VideoConfig struct {
	Sampling        string        `yaml:"sampling"` // per_second | target_count
	FramesPerSecond float64       `yaml:"frames_per_second"`
	TargetFrames    int           `yaml:"target_frames"`
	MaxFrames       int           `yaml:"max_frames"`
	Workers         int           `yaml:"workers"`
	Timeout         time.Duration `yaml:"timeout"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	FFprobePath     string        `yaml:"ffprobe_path"`
}

type FactCheckConfig struct {
	MinSimilarity float64  `yaml:"min_similarity"`
	Facts         []string `yaml:"facts"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = ":8000"
	}
	if s.MaxRequestBodyBytes <= 0 {
		s.MaxRequestBodyBytes = 100 << 20
	}
	if s.MaxTextChars <= 0 {
		s.MaxTextChars = 100000
	}
	if s.MaxInFlightRequests <= 0 {
		s.MaxInFlightRequests = 32
	}
	if s.ReadHeaderTimeout <= 0 {
		s.ReadHeaderTimeout = 5 * time.Second
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 60 * time.Second
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 120 * time.Second
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "truthguard"
	}

	applyOracleDefaults(&cfg.Oracles.Text, "models/text")
	applyOracleDefaults(&cfg.Oracles.Image, "models/image")
	if cfg.Oracles.Text.SeqLen <= 0 {
		cfg.Oracles.Text.SeqLen = 256
	}
	if cfg.Oracles.Image.ImageSize <= 0 {
		cfg.Oracles.Image.ImageSize = 224
	}

	if cfg.Image.ForensicMode == "" {
		cfg.Image.ForensicMode = "gradient"
	}

	v := &cfg.Video
	if v.Sampling == "" {
		v.Sampling = "per_second"
	}
	if v.FramesPerSecond <= 0 {
		v.FramesPerSecond = 1
	}
	if v.TargetFrames <= 0 {
		v.TargetFrames = 12
	}
	if v.MaxFrames <= 0 {
		v.MaxFrames = 64
	}
	if v.Workers <= 0 {
		v.Workers = 4
	}
	if v.Timeout <= 0 {
		v.Timeout = 60 * time.Second
	}
	if v.FFmpegPath == "" {
		v.FFmpegPath = "ffmpeg"
	}
	if v.FFprobePath == "" {
		v.FFprobePath = "ffprobe"
	}

	if cfg.FactCheck.MinSimilarity <= 0 {
		cfg.FactCheck.MinSimilarity = 0.2
	}
	if cfg.FactCheck.Facts == nil {
		cfg.FactCheck.Facts = defaultFacts()
	}
}

func applyOracleDefaults(o *OracleConfig, modelDir string) {
	if o.Backend == "" {
		o.Backend = "onnx"
	}
	if o.ModelDir == "" {
		o.ModelDir = modelDir
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TRUTHGUARD_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
}

func defaultFacts() []string {
	return []string{
		"The Indian Constitution was adopted in 1949.",
		"General elections in India are held every five years.",
		"WHO declared COVID-19 a pandemic in 2020.",
	}
}

// APIKey resolves the sidecar API key from the configured env var.
func (o OracleConfig) APIKey() string {
	if strings.TrimSpace(o.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(o.APIKeyEnv))
}
