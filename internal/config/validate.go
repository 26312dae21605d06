package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/truthguard/truthguard/internal/logging"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		return errors.New("server.max_request_body_bytes must be positive")
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		return errors.New("server.rate_limit_per_minute must not be negative")
	}

	if !logging.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}
	if err := validateOracleConfig("oracles.text", cfg.Oracles.Text); err != nil {
		return err
	}
	if err := validateOracleConfig("oracles.image", cfg.Oracles.Image); err != nil {
		return err
	}

	switch cfg.Image.ForensicMode {
	case "gradient", "texture":
	default:
		return fmt.Errorf("image.forensic_mode must be gradient or texture, got %q", cfg.Image.ForensicMode)
	}

	if err := validateVideoConfig(cfg.Video); err != nil {
		return err
	}

	if cfg.FactCheck.MinSimilarity > 1 {
		return fmt.Errorf("factcheck.min_similarity must be in (0,1], got %v", cfg.FactCheck.MinSimilarity)
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
	return nil
}

func validateOracleConfig(field string, o OracleConfig) error {
	switch strings.ToLower(strings.TrimSpace(o.Backend)) {
	case "none":
		if o.Required {
			return fmt.Errorf("%s: backend none cannot be required", field)
		}
	case "onnx":
		if strings.TrimSpace(o.ModelDir) == "" {
			return fmt.Errorf("%s.model_dir must be set for backend onnx", field)
		}
	case "remote":
		if strings.TrimSpace(o.URL) == "" {
			return fmt.Errorf("%s.url must be set for backend remote", field)
		}
		u, err := url.Parse(o.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s has invalid url", field)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s url must be http or https", field)
		}
		if err := blockPrivateHost(u.Host, o.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("%s url blocked: %w", field, err)
		}
	default:
		return fmt.Errorf("%s.backend must be onnx, remote or none, got %q", field, o.Backend)
	}
	return nil
}

func validateVideoConfig(v VideoConfig) error {
	switch v.Sampling {
	case "per_second", "target_count":
	default:
		return fmt.Errorf("video.sampling must be per_second or target_count, got %q", v.Sampling)
	}
	if v.MaxFrames < 1 {
		return errors.New("video.max_frames must be at least 1")
	}
	if v.Workers < 1 {
		return errors.New("video.workers must be at least 1")
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked; set allow_private_networks for a local sidecar")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked; set allow_private_networks for a local sidecar", ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
