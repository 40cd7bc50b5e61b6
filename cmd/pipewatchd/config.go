package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Duration parses "2m"-style values from both env vars and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

// Config holds runtime configuration for the pipewatch daemon. Values come
// from the environment; an optional YAML file overrides whatever keys it sets.
type Config struct {
	Addr          string   `env:"ADDR,default=:8080" yaml:"addr"`
	DBDSN         string   `env:"DB_DSN" yaml:"db_dsn"`
	JWTSecret     string   `env:"JWT_SECRET" yaml:"jwt_secret"`
	TokenTTL      Duration `env:"TOKEN_TTL,default=24h" yaml:"token_ttl"`
	NATSURL       string   `env:"NATS_URL" yaml:"nats_url"`
	ModelBucket   string   `env:"MODEL_BUCKET" yaml:"model_bucket"`
	ModelsDir     string   `env:"MODELS_DIR,default=models" yaml:"models_dir"`
	Interpreter   string   `env:"MODEL_INTERPRETER,default=python3" yaml:"interpreter"`
	PredictScript string   `env:"MODEL_SCRIPT,default=models/run_model.py" yaml:"predict_script"`
	ProxyScript   string   `env:"MODEL_PROXY_SCRIPT,default=models/jmr_proxy_model.py" yaml:"proxy_script"`
	ProxyModel    string   `env:"MODEL_PROXY_ARTIFACT,default=models/jmr_proxy_model.sav" yaml:"proxy_model"`
	RunTimeout    Duration `env:"MODEL_RUN_TIMEOUT,default=2m" yaml:"run_timeout"`
	OTLPEndpoint  string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
}

func loadConfig(ctx context.Context, path string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is required")
	}

	return cfg, nil
}
