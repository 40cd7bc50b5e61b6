// Package api exposes the HTTP surface: auth, pipe CRUD, playback analysis,
// model registry, and the prediction workflow.
package api

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pipewatch/pkg/bus"
	gos3 "pipewatch/pkg/s3"
	"pipewatch/services/auth"
	"pipewatch/services/playback"
	"pipewatch/services/prediction"
)

const (
	defaultTokenTTL  = 24 * time.Hour
	presignURLExpiry = 15 * time.Minute
)

// Store holds external dependencies required by the API layer.
type Store struct {
	DB  *pgxpool.Pool
	S3  *gos3.Client
	Bus *bus.Bus
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	JWTSecret     string
	TokenTTL      time.Duration
	ModelsDir     string
	ModelBucket   string
	Interpreter   string
	PredictScript string
	ProxyScript   string
	ProxyModel    string
	RunTimeout    time.Duration
}

// API wires stores, services, and configuration for the HTTP handlers.
type API struct {
	store    *Store
	config   Config
	logger   zerolog.Logger
	tokens   *auth.Tokens
	users    *auth.Users
	readings *playback.Store
	registry *prediction.Registry
	invoker  *prediction.Invoker
	predict  *prediction.Service
}

// New initialises the API layer with sane defaults applied to the provided
// configuration.
func New(store *Store, cfg Config, logger zerolog.Logger) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.DB == nil {
		return nil, errors.New("store DB is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "models"
	}
	if cfg.PredictScript == "" {
		cfg.PredictScript = "models/run_model.py"
	}
	if cfg.ProxyScript == "" {
		cfg.ProxyScript = "models/jmr_proxy_model.py"
	}
	if cfg.ProxyModel == "" {
		cfg.ProxyModel = "models/jmr_proxy_model.sav"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = prediction.DefaultRunTimeout
	}

	registry := &prediction.Registry{
		Pool:   store.DB,
		Dir:    cfg.ModelsDir,
		S3:     store.S3,
		Bucket: cfg.ModelBucket,
		Logger: logger,
	}
	invoker := &prediction.Invoker{
		Interpreter: cfg.Interpreter,
		Script:      cfg.PredictScript,
		ProxyScript: cfg.ProxyScript,
		ProxyModel:  cfg.ProxyModel,
		Dir:         cfg.ModelsDir,
		Timeout:     cfg.RunTimeout,
	}

	return &API{
		store:    store,
		config:   cfg,
		logger:   logger,
		tokens:   &auth.Tokens{Secret: []byte(cfg.JWTSecret), TTL: cfg.TokenTTL},
		users:    &auth.Users{Pool: store.DB},
		readings: playback.NewStore(store.DB),
		registry: registry,
		invoker:  invoker,
		predict: &prediction.Service{
			Models:   registry,
			Sessions: &prediction.Sessions{Pool: store.DB},
			Runner:   invoker,
			Bus:      store.Bus,
			Logger:   logger,
		},
	}, nil
}
