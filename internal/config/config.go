// Package config holds the command line and environment configuration shared
// by the server and the CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"url-analyzer/internal/analyzer"
)

// Logging configures the logrus logger.
type Logging struct {
	LogLevel  string `name:"log-level" default:"info" env:"LOG_LEVEL" enum:"trace,debug,info,warn,error" help:"Log level (${enum})."`
	LogFormat string `name:"log-format" default:"text" env:"LOG_FORMAT" enum:"text,json" help:"Log output format (${enum})."`
}

// Analyzer configures fetching, parsing and link probing.
type Analyzer struct {
	FetchTimeout   time.Duration `name:"fetch-timeout" default:"10s" env:"FETCH_TIMEOUT" help:"Timeout for fetching the analyzed page."`
	ProbeTimeout   time.Duration `name:"probe-timeout" default:"5s" env:"PROBE_TIMEOUT" help:"Timeout for each link HEAD probe."`
	Workers        int           `name:"workers" default:"20" env:"WORKERS" help:"Concurrent link probes per analysis."`
	ProbeRPS       float64       `name:"probe-rps" default:"0" env:"PROBE_RPS" help:"Max probe starts per second, 0 for unlimited."`
	MaxBodyBytes   int64         `name:"max-body-bytes" default:"5242880" env:"MAX_BODY_BYTES" help:"Largest page body read."`
	UserAgent      string        `name:"user-agent" default:"url-analyzer/1.0" env:"USER_AGENT" help:"User-Agent header on outgoing requests."`
	Resolver       string        `name:"resolver" default:"strip" env:"LINK_RESOLVER" enum:"strip,rfc3986" help:"Relative link resolution (${enum})."`
	RelativeScheme string        `name:"relative-scheme" default:"https" env:"RELATIVE_SCHEME" enum:"http,https" help:"Scheme given to relative links by the strip resolver."`
}

// Server is the configuration of the HTTP server binary.
type Server struct {
	Config kong.ConfigFlag `name:"config" short:"c" help:"YAML configuration file."`

	Port            string        `name:"port" default:"8080" env:"PORT" help:"Listen port."`
	AnalysisTimeout time.Duration `name:"analysis-timeout" default:"60s" env:"ANALYSIS_TIMEOUT" help:"Deadline for one analysis request."`
	RateLimit       float64       `name:"rate-limit" default:"5" env:"RATE_LIMIT" help:"Analysis requests per second per client IP."`

	Cache     string        `name:"cache" default:"redis" env:"CACHE" enum:"redis,memory,none" help:"Report cache backend (${enum})."`
	RedisAddr string        `name:"redis-addr" default:"localhost:6379" env:"REDIS_ADDR" help:"Redis address for the redis cache."`
	CacheTTL  time.Duration `name:"cache-ttl" default:"24h" env:"CACHE_TTL" help:"How long reports stay cached."`

	Logging  Logging  `embed:""`
	Analyzer Analyzer `embed:""`
}

// CLI is the configuration of the one-shot analyzer binary.
type CLI struct {
	Config kong.ConfigFlag `name:"config" short:"c" help:"YAML configuration file."`

	JSON    bool          `name:"json" help:"Print reports as JSON."`
	Timeout time.Duration `name:"timeout" default:"60s" help:"Deadline for each analysis."`
	URLs    []string      `arg:"" name:"url" help:"Pages to analyze."`

	Logging  Logging  `embed:""`
	Analyzer Analyzer `embed:""`
}

// ParseServer parses server flags. It returns the kong parser too so the
// caller can report usage errors.
func ParseServer(args []string, opts ...kong.Option) (*Server, *kong.Kong, error) {
	var cfg Server
	p, err := newParser(&cfg, "url-analyzer", "Serve webpage analyses over HTTP.", opts...)
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.Parse(args); err != nil {
		return nil, p, err
	}
	return &cfg, p, nil
}

// ParseCLI parses flags of the analyzer command.
func ParseCLI(args []string, opts ...kong.Option) (*CLI, *kong.Kong, error) {
	var cfg CLI
	p, err := newParser(&cfg, "analyzer", "Analyze webpages and print their structure.", opts...)
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.Parse(args); err != nil {
		return nil, p, err
	}
	return &cfg, p, nil
}

func newParser(grammar any, name, description string, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name(name),
		kong.Description(description),
		kong.Configuration(YAML),
		kong.UsageOnError(),
	}
	return kong.New(grammar, append(base, opts...)...)
}

// YAML loads a configuration file whose keys are flag names, either
// hyphenated ("probe-timeout") or underscored ("probe_timeout").
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var resolver kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			v, ok := values[key]
			if !ok || v == nil {
				continue
			}
			if list, ok := v.([]any); ok {
				parts := make([]string, len(list))
				for i, item := range list {
					parts[i] = fmt.Sprint(item)
				}
				return strings.Join(parts, ","), nil
			}
			return fmt.Sprint(v), nil
		}
		return nil, nil
	}
	return resolver, nil
}

// NewLogger builds the process logger.
func NewLogger(cfg Logging) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Fetcher returns the HTTP settings for analyzer.NewFetcher.
func (a Analyzer) Fetcher() analyzer.FetcherConfig {
	return analyzer.FetcherConfig{
		FetchTimeout: a.FetchTimeout,
		ProbeTimeout: a.ProbeTimeout,
		MaxBodyBytes: a.MaxBodyBytes,
		UserAgent:    a.UserAgent,
	}
}

// Options builds analyzer options reporting to obs.
func (a Analyzer) Options(obs analyzer.Observer) analyzer.Options {
	return analyzer.Options{
		Fetcher:        analyzer.NewFetcher(a.Fetcher()),
		Resolver:       analyzer.ResolverKind(a.Resolver),
		RelativeScheme: a.RelativeScheme,
		Classifier: analyzer.ClassifierConfig{
			Workers:      a.Workers,
			ProbeTimeout: a.ProbeTimeout,
			ProbeRPS:     a.ProbeRPS,
		},
		Observer: obs,
	}
}
