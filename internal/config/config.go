package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sfxforwarder/internal/match"
)

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "line"
	defaultLogFileName    = "sfxforwarder.log"
	defaultDPEndpoint     = "/v2/datapoint"
	defaultEVEndpoint     = "/v2/event"
	defaultIngestTimeout  = 30 * time.Second
	defaultIngestFormat   = "json"
	defaultSplunkdURI     = "https://localhost:8089"
	defaultSplunkdApp     = "signalfx-forwarder-app"
	defaultSplunkdTimeout = 10 * time.Second
	defaultAppDir         = ".."
)

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the forwarder runtime settings.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Ingest     IngestConfig     `toml:"ingest"`
	Splunkd    SplunkdConfig    `toml:"splunkd"`
	Dimensions DimensionsConfig `toml:"dimensions"`
	Conf       ConfConfig       `toml:"conf"`
}

// LogConfig contains console/file logging configuration.
// Params: sink sections.
// Returns: logging setup.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig holds ingest API fallbacks used when neither the search
// options nor sfx.conf name a value.
type IngestConfig struct {
	Realm            string   `toml:"realm"`
	IngestURL        string   `toml:"ingest_url"`
	DPEndpoint       string   `toml:"dp_endpoint"`
	EVEndpoint       string   `toml:"ev_endpoint"`
	Timeout          Duration `toml:"timeout"`
	Format           string   `toml:"format"`
	CompressionLevel int      `toml:"compression_level"`
}

// SplunkdConfig locates the local splunkd management API.
// splunkd ships a self-signed certificate, so verification is opt-in.
type SplunkdConfig struct {
	URI       string   `toml:"uri"`
	App       string   `toml:"app"`
	VerifyTLS bool     `toml:"verify_tls"`
	Timeout   Duration `toml:"timeout"`
}

// DimensionsConfig adds wildcard patterns of field names never sent as dimensions.
type DimensionsConfig struct {
	Exclude []string `toml:"exclude"`
}

// ConfConfig points at the app directory holding default/ and local/ conf files.
type ConfConfig struct {
	AppDir string `toml:"app_dir"`
}

// Default returns settings used when no settings file exists.
// Params: none.
// Returns: defaulted and validated config.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads TOML config from file or directory, expands env vars, applies defaults and validates it.
// Params: path to TOML file or directory with *.toml files; blank or missing path yields defaults.
// Returns: parsed config or error.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: none.
func (c *Config) applyDefaults() {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if strings.TrimSpace(c.Log.File.Path) == "" {
		if home := strings.TrimSpace(os.Getenv("SPLUNK_HOME")); home != "" {
			c.Log.File.Path = filepath.Join(home, "var", "log", "splunk", defaultLogFileName)
		}
	}
	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		if c.Log.File.Path != "" {
			c.Log.File.Enabled = true
		} else {
			c.Log.Console.Enabled = true
		}
	}

	c.Ingest.Realm = strings.TrimSpace(c.Ingest.Realm)
	c.Ingest.IngestURL = strings.TrimSpace(c.Ingest.IngestURL)
	c.Ingest.DPEndpoint = valueOrDefault(c.Ingest.DPEndpoint, defaultDPEndpoint)
	c.Ingest.EVEndpoint = valueOrDefault(c.Ingest.EVEndpoint, defaultEVEndpoint)
	c.Ingest.Format = lowerOrDefault(c.Ingest.Format, defaultIngestFormat)
	if c.Ingest.Timeout.Duration <= 0 {
		c.Ingest.Timeout.Duration = defaultIngestTimeout
	}

	c.Splunkd.URI = valueOrDefault(c.Splunkd.URI, defaultSplunkdURI)
	c.Splunkd.App = valueOrDefault(c.Splunkd.App, defaultSplunkdApp)
	if c.Splunkd.Timeout.Duration <= 0 {
		c.Splunkd.Timeout.Duration = defaultSplunkdTimeout
	}

	c.Conf.AppDir = valueOrDefault(c.Conf.AppDir, defaultAppDir)
}

// validate checks config consistency.
// Params: receiver config pointer.
// Returns: validation error for invalid config.
func (c *Config) validate() error {
	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}

	if c.Ingest.IngestURL != "" {
		if err := validateHTTPURL(c.Ingest.IngestURL); err != nil {
			return fmt.Errorf("ingest.ingest_url: %w", err)
		}
	}
	if !strings.HasPrefix(c.Ingest.DPEndpoint, "/") {
		return fmt.Errorf("ingest.dp_endpoint must start with \"/\"")
	}
	if !strings.HasPrefix(c.Ingest.EVEndpoint, "/") {
		return fmt.Errorf("ingest.ev_endpoint must start with \"/\"")
	}
	switch c.Ingest.Format {
	case "json", "protobuf":
	default:
		return fmt.Errorf("ingest.format: unsupported value %q", c.Ingest.Format)
	}
	if c.Ingest.CompressionLevel < -2 || c.Ingest.CompressionLevel > 9 {
		return fmt.Errorf("ingest.compression_level must be in [-2, 9]")
	}

	if err := validateHTTPURL(c.Splunkd.URI); err != nil {
		return fmt.Errorf("splunkd.uri: %w", err)
	}

	for idx, pattern := range c.Dimensions.Exclude {
		if _, ok := match.Compile(pattern); !ok {
			return fmt.Errorf("dimensions.exclude[%d] must not be empty", idx)
		}
	}

	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "info", "warn", "error", "debug":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validateHTTPURL checks that raw is an absolute http(s) URL.
func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

func valueOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
