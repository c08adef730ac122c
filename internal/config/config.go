// Package config loads application configuration from an optional YAML file
// and PRCOMPLIANCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PRCOMPLIANCE_"

// ErrMissingToken is returned when no GitHub token is configured.
var ErrMissingToken = errors.New("github token is required: set PRCOMPLIANCE_GITHUB_TOKEN (or GITHUB_PAT)")

// Config holds the validated application configuration. It is loaded once at
// startup and never modified afterwards.
type Config struct {
	GitHubToken       string
	Repo              string // owner/repo
	APIURL            string
	MaxAttempts       int
	RequestTimeout    time.Duration
	DefaultRetryAfter time.Duration
	MaxRateLimitWaits int // 0 means unbounded
	PerPage           int
	EnrichDelay       time.Duration
	SkipEnrichment    bool
	MergedSince       *time.Time
	MergedUntil       *time.Time
	OutputDir         string
	HTMLReport        bool
	DBPath            string // empty disables the report archive
	LogLevel          slog.Level
	LogFormat         string // text or json
}

// ArchiveEnabled returns true when a report archive path is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.DBPath != ""
}

// envVarPattern matches ${VAR_NAME} patterns in the config file.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// source resolves a config key: environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(key)); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

// Load reads configuration and returns a validated Config. If path is non-empty
// the YAML file there provides values (with ${VAR} substitution); PRCOMPLIANCE_*
// environment variables override it. Required: github_token, repo.
func Load(path string) (*Config, error) {
	src := source{file: map[string]string{}}
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		APIURL:            "https://api.github.com/",
		MaxAttempts:       3,
		RequestTimeout:    30 * time.Second,
		DefaultRetryAfter: 60 * time.Second,
		MaxRateLimitWaits: 20,
		PerPage:           100,
		EnrichDelay:       100 * time.Millisecond,
		OutputDir:         "outputs",
		HTMLReport:        true,
		DBPath:            "prcompliance.db",
		LogLevel:          slog.LevelInfo,
		LogFormat:         "text",
	}

	cfg.GitHubToken = resolveToken(src)

	var err error
	if v, ok := src.lookup("repo"); ok {
		cfg.Repo = strings.TrimSpace(v)
	}
	if v, ok := src.lookup("api_url"); ok && v != "" {
		cfg.APIURL = v
	}
	if cfg.MaxAttempts, err = intValue(src, "max_attempts", cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationValue(src, "request_timeout", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.DefaultRetryAfter, err = durationValue(src, "default_retry_after", cfg.DefaultRetryAfter); err != nil {
		return nil, err
	}
	if cfg.MaxRateLimitWaits, err = intValue(src, "max_rate_limit_waits", cfg.MaxRateLimitWaits); err != nil {
		return nil, err
	}
	if cfg.PerPage, err = intValue(src, "per_page", cfg.PerPage); err != nil {
		return nil, err
	}
	if cfg.EnrichDelay, err = durationValue(src, "enrich_delay", cfg.EnrichDelay); err != nil {
		return nil, err
	}
	if cfg.SkipEnrichment, err = boolValue(src, "skip_enrichment", cfg.SkipEnrichment); err != nil {
		return nil, err
	}
	if cfg.MergedSince, err = dateValue(src, "merged_since"); err != nil {
		return nil, err
	}
	if cfg.MergedUntil, err = dateValue(src, "merged_until"); err != nil {
		return nil, err
	}
	if v, ok := src.lookup("output_dir"); ok && v != "" {
		cfg.OutputDir = v
	}
	if cfg.HTMLReport, err = boolValue(src, "html_report", cfg.HTMLReport); err != nil {
		return nil, err
	}
	if v, ok := src.lookup("db_path"); ok {
		cfg.DBPath = v
	}
	if v, ok := src.lookup("log_level"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("%sLOG_LEVEL has invalid level %q: %w", EnvPrefix, v, err)
		}
	}
	if v, ok := src.lookup("log_format"); ok && v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readFile parses the YAML config file into a flat key/value map.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return values, nil
}

// resolveToken prefers PRCOMPLIANCE_GITHUB_TOKEN / github_token, then the
// conventional GITHUB_PAT and GITHUB_TOKEN variables.
func resolveToken(src source) string {
	if v, ok := src.lookup("github_token"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	for _, key := range []string{"GITHUB_PAT", "GITHUB_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) validate() error {
	if c.GitHubToken == "" {
		return ErrMissingToken
	}
	owner, repo, ok := strings.Cut(c.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return fmt.Errorf("%sREPO must be owner/repo, got %q", EnvPrefix, c.Repo)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%sMAX_ATTEMPTS must be at least 1, got %d", EnvPrefix, c.MaxAttempts)
	}
	if c.MaxRateLimitWaits < 0 {
		return fmt.Errorf("%sMAX_RATE_LIMIT_WAITS must not be negative, got %d", EnvPrefix, c.MaxRateLimitWaits)
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		return fmt.Errorf("%sPER_PAGE must be between 1 and 100, got %d", EnvPrefix, c.PerPage)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%sREQUEST_TIMEOUT must be positive, got %s", EnvPrefix, c.RequestTimeout)
	}
	if c.DefaultRetryAfter < 0 || c.EnrichDelay < 0 {
		return fmt.Errorf("%sDEFAULT_RETRY_AFTER and %sENRICH_DELAY must not be negative", EnvPrefix, EnvPrefix)
	}
	if c.MergedSince != nil && c.MergedUntil != nil && !c.MergedSince.Before(*c.MergedUntil) {
		return fmt.Errorf("%sMERGED_SINCE (%s) must be before %sMERGED_UNTIL (%s)",
			EnvPrefix, c.MergedSince.Format(time.RFC3339), EnvPrefix, c.MergedUntil.Format(time.RFC3339))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%sLOG_FORMAT must be text or json, got %q", EnvPrefix, c.LogFormat)
	}
	return nil
}

func intValue(src source, key string, def int) (int, error) {
	v, ok := src.lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid integer %q: %w", EnvPrefix, strings.ToUpper(key), v, err)
	}
	return n, nil
}

func durationValue(src source, key string, def time.Duration) (time.Duration, error) {
	v, ok := src.lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", EnvPrefix, strings.ToUpper(key), v, err)
	}
	return d, nil
}

func boolValue(src source, key string, def bool) (bool, error) {
	v, ok := src.lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s%s has invalid boolean %q: %w", EnvPrefix, strings.ToUpper(key), v, err)
	}
	return b, nil
}

// dateValue accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
func dateValue(src source, key string) (*time.Time, error) {
	v, ok := src.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	v = strings.TrimSpace(v)

	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%s%s has invalid date %q: expected RFC 3339 or YYYY-MM-DD", EnvPrefix, strings.ToUpper(key), v)
	}
	return &t, nil
}
