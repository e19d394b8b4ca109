// Package config loads the scan configuration document (.argus.yml,
// .argus.yaml or .argus.json) through viper, layering defaults, the document
// and ARGUS_ environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cagmero/ARGUS/internal/output"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// maxSize is the largest configuration document accepted.
const maxSize = 1 << 20

// EnvPrefix prefixes environment overrides, e.g. ARGUS_MAX_WORKERS.
const EnvPrefix = "ARGUS"

// FileNames are the documents looked up by Find, in order.
var FileNames = []string{".argus.yml", ".argus.yaml", ".argus.json"}

// Config is one scan's configuration. Each scan works on its own Clone.
type Config struct {
	TargetPaths       []string                      `mapstructure:"target_paths" yaml:"target_paths" json:"target_paths"`
	IncludePatterns   []string                      `mapstructure:"include_patterns" yaml:"include_patterns" json:"include_patterns"`
	ExcludePatterns   []string                      `mapstructure:"exclude_patterns" yaml:"exclude_patterns" json:"exclude_patterns"`
	Analyzers         []string                      `mapstructure:"analyzers" yaml:"analyzers" json:"analyzers"`
	SeverityThreshold string                        `mapstructure:"severity_threshold" yaml:"severity_threshold" json:"severity_threshold"`
	OutputFormat      string                        `mapstructure:"output_format" yaml:"output_format" json:"output_format"`
	OutputFile        string                        `mapstructure:"output_file" yaml:"output_file,omitempty" json:"output_file,omitempty"`
	MaxWorkers        int                           `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	Timeout           int                           `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	ScanTimeout       int                           `mapstructure:"scan_timeout" yaml:"scan_timeout,omitempty" json:"scan_timeout,omitempty"`
	AnalyzerSettings  map[string]map[string]any     `mapstructure:"analyzer_settings" yaml:"analyzer_settings,omitempty" json:"analyzer_settings,omitempty"`
	RuleOverrides     map[string]rules.RuleOverride `mapstructure:"rule_overrides" yaml:"rule_overrides,omitempty" json:"rule_overrides,omitempty"`
	RulesDir          string                        `mapstructure:"rules_dir" yaml:"rules_dir,omitempty" json:"rules_dir,omitempty"`
	HistoryDB         string                        `mapstructure:"history_db" yaml:"history_db,omitempty" json:"history_db,omitempty"`
}

// Default returns the configuration used when no document sets a key.
func Default() Config {
	return Config{
		TargetPaths: []string{"."},
		IncludePatterns: []string{
			"**/*.py", "**/*.teal", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx",
		},
		ExcludePatterns: []string{
			"**/node_modules/**", "**/.git/**", "**/venv/**", "**/.venv/**",
			"**/__pycache__/**", "**/build/**", "**/dist/**",
		},
		Analyzers:         []string{"builtin"},
		SeverityThreshold: "LOW",
		OutputFormat:      "json",
		MaxWorkers:        4,
		Timeout:           300,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("target_paths", d.TargetPaths)
	v.SetDefault("include_patterns", d.IncludePatterns)
	v.SetDefault("exclude_patterns", d.ExcludePatterns)
	v.SetDefault("analyzers", d.Analyzers)
	v.SetDefault("severity_threshold", d.SeverityThreshold)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("output_file", "")
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("scan_timeout", 0)
	v.SetDefault("rules_dir", "")
	v.SetDefault("history_db", "")
	return v
}

// Find returns the configuration document in dir, or "" when there is none.
// If dir is a file its parent directory is searched.
func Find(dir string) (string, error) {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

// Load builds the configuration from defaults, the document at path (if
// path is not empty) and ARGUS_ environment variables. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := readLimited(path)
		if err != nil {
			return Config{}, err
		}
		if err := readDocument(v, data, formatOf(path, data)); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return decode(v)
}

// Parse builds a configuration from defaults and a document, without
// environment overrides. kind is "yaml" or "json"; empty sniffs the content.
func Parse(data []byte, kind string) (Config, error) {
	if kind == "" {
		kind = formatOf("", data)
	}
	v := newViper()
	if err := readDocument(v, data, kind); err != nil {
		return Config{}, err
	}
	return decode(v)
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("config file too large: %s (%d bytes, max 1 MB)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func readDocument(v *viper.Viper, data []byte, kind string) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	v.SetConfigType(kind)
	return v.ReadConfig(bytes.NewReader(data))
}

// formatOf picks the document format from the extension, or from the first
// non-blank byte when the extension says nothing.
func formatOf(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yml", ".yaml":
		return "yaml"
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && (t[0] == '{') {
		return "json"
	}
	return "yaml"
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration. isAnalyzer reports whether an analyzer
// id is registered. All problems are reported together.
func (c Config) Validate(isAnalyzer func(string) bool) error {
	var errs []error
	if len(c.TargetPaths) == 0 {
		errs = append(errs, errors.New("target_paths is empty"))
	}
	if _, err := types.ParseSeverity(c.SeverityThreshold); err != nil {
		errs = append(errs, fmt.Errorf("severity_threshold: %w", err))
	}
	if !output.Known(c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output_format: unknown format %q (want one of %s)", c.OutputFormat, strings.Join(output.Formats(), ", ")))
	}
	if len(c.Analyzers) == 0 {
		errs = append(errs, errors.New("analyzers is empty"))
	}
	for _, a := range c.Analyzers {
		if isAnalyzer != nil && !isAnalyzer(a) {
			errs = append(errs, fmt.Errorf("analyzers: unknown analyzer %q", a))
		}
	}
	if c.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %d", c.Timeout))
	}
	if c.ScanTimeout < 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must not be negative, got %d", c.ScanTimeout))
	}
	for id, o := range c.RuleOverrides {
		if o.Severity == "" {
			continue
		}
		if _, err := types.ParseSeverity(o.Severity); err != nil {
			errs = append(errs, fmt.Errorf("rule_overrides.%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Threshold returns the parsed severity threshold, LOW when invalid.
func (c Config) Threshold() types.Severity {
	sev, err := types.ParseSeverity(c.SeverityThreshold)
	if err != nil {
		return types.SeverityLow
	}
	return sev
}

// UnitTimeout is the per-unit deadline.
func (c Config) UnitTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ScanDeadline is the scan-level deadline, zero when unset.
func (c Config) ScanDeadline() time.Duration {
	return time.Duration(c.ScanTimeout) * time.Second
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.TargetPaths = append([]string(nil), c.TargetPaths...)
	out.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	out.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	out.Analyzers = append([]string(nil), c.Analyzers...)
	if c.AnalyzerSettings != nil {
		out.AnalyzerSettings = make(map[string]map[string]any, len(c.AnalyzerSettings))
		for k, v := range c.AnalyzerSettings {
			out.AnalyzerSettings[k] = maps.Clone(v)
		}
	}
	out.RuleOverrides = maps.Clone(c.RuleOverrides)
	return out
}

// YAML renders the configuration as a document.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
