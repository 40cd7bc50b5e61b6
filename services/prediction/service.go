// Package prediction implements the two-phase prediction workflow: validate
// issues a session token, execute runs the registered model artifact against
// it and records the outcome.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"pipewatch/pkg/bus"
)

const (
	// SubjectValidated is published when a session token is issued.
	SubjectValidated = "pipewatch.predictions.validated"
	// SubjectExecuted is published after a successful execution.
	SubjectExecuted = "pipewatch.predictions.executed"
	// SubjectModelRegistered is published when a model upload completes.
	SubjectModelRegistered = "pipewatch.models.registered"

	leakStatus = "kebocoran"
)

var (
	executionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prediction_executions_total",
		Help: "Successful model executions.",
	})
	executionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prediction_execution_failures_total",
		Help: "Model executions that failed to start, exited nonzero, timed out, or produced malformed output.",
	})
)

// ModelSource resolves registered models.
type ModelSource interface {
	Lookup(ctx context.Context, modelID, tlineID string) (Model, error)
	Get(ctx context.Context, modelID string) (Model, error)
}

// SessionStore persists prediction sessions.
type SessionStore interface {
	Create(ctx context.Context, tlineID, modelID, token string, userID uuid.UUID) (Session, error)
	GetByToken(ctx context.Context, token string) (Session, error)
	Consume(ctx context.Context, token string, at time.Time) error
}

// Runner executes a model artifact and returns its raw stdout.
type Runner interface {
	Run(ctx context.Context, in RunInput) ([]byte, error)
}

// Result is the parsed outcome of a model execution.
type Result struct {
	LeakDetected bool
	LeakPosition *float64
	RawStatus    string
	RawLocation  string
	Raw          map[string]any
	RawOutput    []byte
}

// Service binds the registry, session store, and invoker into the prediction
// workflow.
type Service struct {
	Models   ModelSource
	Sessions SessionStore
	Runner   Runner
	Bus      *bus.Bus
	Logger   zerolog.Logger
}

// Validate checks the requested model and delta vector, then issues a pending
// session token. The model is not invoked.
func (s *Service) Validate(ctx context.Context, tlineID, modelID string, delta []float64, userID uuid.UUID) (string, error) {
	model, err := s.Models.Lookup(ctx, modelID, tlineID)
	if err != nil {
		return "", err
	}

	if len(delta) != model.Parameters {
		return "", fmt.Errorf("%w: delta length (%d) does not match model parameters (%d)",
			ErrInvalidArgument, len(delta), model.Parameters)
	}

	token := NewToken()
	if _, err := s.Sessions.Create(ctx, tlineID, modelID, token, userID); err != nil {
		return "", err
	}

	s.publish(ctx, SubjectValidated, map[string]any{
		"token":    token,
		"tline_id": tlineID,
		"model_id": modelID,
		"user_id":  userID,
	})

	return token, nil
}

// Execute runs the model bound to token against the delta vector, parses the
// leak verdict, and consumes the session. Failed runs leave the session
// pending so the token stays usable.
func (s *Service) Execute(ctx context.Context, token string, delta []float64, tlineLength float64) (Result, error) {
	sess, err := s.Sessions.GetByToken(ctx, token)
	if err != nil {
		return Result{}, err
	}
	if sess.ConsumedAt != nil {
		return Result{}, ErrTokenConsumed
	}

	model, err := s.Models.Get(ctx, sess.ModelID)
	if err != nil {
		// Sessions only reference registered models, so this is a data
		// integrity violation rather than a user mistake.
		return Result{}, fmt.Errorf("session %s references model %s: %w", sess.ID, sess.ModelID, err)
	}

	if len(delta) != model.Parameters {
		return Result{}, fmt.Errorf("%w: delta length (%d) does not match model parameters (%d)",
			ErrInvalidArgument, len(delta), model.Parameters)
	}

	inputs := make(map[string]float64, len(delta))
	for i, v := range delta {
		inputs[strings.Replace(model.Infix, "{x}", strconv.Itoa(i+1), 1)] = v
	}

	var trainingFeature string
	if model.TrainingFeature != nil {
		trainingFeature = *model.TrainingFeature
	}

	raw, err := s.Runner.Run(ctx, RunInput{
		Parameters:       model.Parameters,
		ArtifactFilename: model.Filename,
		Inputs:           inputs,
		TrunklineLength:  tlineLength,
		Infix:            model.Infix,
		Output:           model.Output,
		TrainingFeature:  trainingFeature,
	})
	if err != nil {
		executionFailures.Inc()
		return Result{}, err
	}

	result, err := parseResult(raw)
	if err != nil {
		executionFailures.Inc()
		return Result{}, err
	}

	consumedAt := time.Now().UTC()
	if err := s.Sessions.Consume(ctx, token, consumedAt); err != nil {
		return Result{}, err
	}
	executionsTotal.Inc()

	s.publish(ctx, SubjectExecuted, map[string]any{
		"token":       token,
		"tline_id":    sess.TlineID,
		"model_id":    sess.ModelID,
		"status":      result.RawStatus,
		"lokasi":      result.RawLocation,
		"leak":        result.LeakDetected,
		"consumed_at": consumedAt,
		"raw_output":  string(raw),
	})

	return result, nil
}

func parseResult(raw []byte) (Result, error) {
	var payload struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &payload); err != nil {
		return Result{}, &OutputError{Err: err, Raw: raw}
	}
	if payload.Result == nil {
		return Result{}, &OutputError{Err: fmt.Errorf("missing result object"), Raw: raw}
	}

	status, _ := payload.Result["status"].(string)
	location, _ := payload.Result["lokasi"].(string)

	result := Result{
		LeakDetected: status == leakStatus,
		RawStatus:    status,
		RawLocation:  location,
		Raw:          payload.Result,
		RawOutput:    raw,
	}

	// lokasi has the form "<label> <number>"; empty means no location.
	if location != "" {
		fields := strings.Fields(location)
		if len(fields) < 2 {
			return Result{}, &OutputError{Err: fmt.Errorf("unparsable lokasi %q", location), Raw: raw}
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Result{}, &OutputError{Err: fmt.Errorf("unparsable lokasi %q: %w", location, err), Raw: raw}
		}
		result.LeakPosition = &pos
	}

	return result, nil
}

func (s *Service) publish(ctx context.Context, subject string, payload map[string]any) {
	if s.Bus == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.Bus.Publish(pubCtx, subject, payload); err != nil {
		s.Logger.Warn().Err(err).Str("subject", subject).Msg("publish prediction event")
	}
}
