package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModels struct {
	models map[string]Model
}

func (f *fakeModels) Lookup(_ context.Context, modelID, tlineID string) (Model, error) {
	m, ok := f.models[modelID]
	if !ok || m.TlineID != tlineID {
		return Model{}, ErrModelNotFound
	}
	return m, nil
}

func (f *fakeModels) Get(_ context.Context, modelID string) (Model, error) {
	m, ok := f.models[modelID]
	if !ok {
		return Model{}, ErrModelNotFound
	}
	return m, nil
}

type fakeSessions struct {
	sessions map[string]*Session
	created  int
}

func (f *fakeSessions) Create(_ context.Context, tlineID, modelID, token string, userID uuid.UUID) (Session, error) {
	sess := Session{ID: uuid.New(), TlineID: tlineID, ModelID: modelID, Token: token, UserID: userID, CreatedAt: time.Now()}
	f.sessions[token] = &sess
	f.created++
	return sess, nil
}

func (f *fakeSessions) GetByToken(_ context.Context, token string) (Session, error) {
	sess, ok := f.sessions[token]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return *sess, nil
}

func (f *fakeSessions) Consume(_ context.Context, token string, at time.Time) error {
	sess, ok := f.sessions[token]
	if !ok {
		return ErrInvalidToken
	}
	if sess.ConsumedAt != nil {
		return ErrTokenConsumed
	}
	sess.ConsumedAt = &at
	return nil
}

type fakeRunner struct {
	out  []byte
	err  error
	in   RunInput
	runs int
}

func (f *fakeRunner) Run(_ context.Context, in RunInput) ([]byte, error) {
	f.in = in
	f.runs++
	return f.out, f.err
}

func newTestService(runner *fakeRunner) (*Service, *fakeSessions) {
	training := "pressure_drop"
	models := &fakeModels{models: map[string]Model{
		"abc12345": {
			ID:              "abc12345",
			TlineID:         "TL1",
			Name:            "leak model",
			Parameters:      3,
			Filename:        "leak_model_17.sav",
			Output:          "leak",
			Infix:           "delta_p{x}",
			TrainingFeature: &training,
		},
	}}
	sessions := &fakeSessions{sessions: make(map[string]*Session)}
	return &Service{Models: models, Sessions: sessions, Runner: runner}, sessions
}

func TestValidateIssuesToken(t *testing.T) {
	svc, sessions := newTestService(&fakeRunner{})

	token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2, 3}, uuid.New())
	require.NoError(t, err)
	require.Len(t, token, 36)
	assert.Equal(t, 1, sessions.created)

	sess, err := sessions.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, sess.ConsumedAt)
}

func TestValidateRejectsDeltaLengthMismatch(t *testing.T) {
	svc, sessions := newTestService(&fakeRunner{})

	_, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2}, uuid.New())
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, sessions.created, "no session row on rejected validate")
}

func TestValidateUnknownModel(t *testing.T) {
	svc, _ := newTestService(&fakeRunner{})

	_, err := svc.Validate(context.Background(), "TL1", "nope", []float64{1, 2, 3}, uuid.New())
	require.ErrorIs(t, err, ErrModelNotFound)

	// Trunkline scoping applies too.
	_, err = svc.Validate(context.Background(), "TL2", "abc12345", []float64{1, 2, 3}, uuid.New())
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestExecuteHappyPath(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"result":{"lokasi":"KM 12.5","status":"kebocoran"}}`)}
	svc, sessions := newTestService(runner)

	token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1.5, 2.5, 3.5}, uuid.New())
	require.NoError(t, err)

	result, err := svc.Execute(context.Background(), token, []float64{1.5, 2.5, 3.5}, 20)
	require.NoError(t, err)
	assert.True(t, result.LeakDetected)
	require.NotNil(t, result.LeakPosition)
	assert.Equal(t, 12.5, *result.LeakPosition)
	assert.Equal(t, "kebocoran", result.RawStatus)
	assert.Equal(t, "KM 12.5", result.RawLocation)

	// Input mapping keys come from the model's infix template, 1-based.
	assert.Equal(t, map[string]float64{"delta_p1": 1.5, "delta_p2": 2.5, "delta_p3": 3.5}, runner.in.Inputs)
	assert.Equal(t, "leak_model_17.sav", runner.in.ArtifactFilename)
	assert.Equal(t, "pressure_drop", runner.in.TrainingFeature)

	sess, err := sessions.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.NotNil(t, sess.ConsumedAt)
}

func TestExecuteNoLeak(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"result":{"lokasi":"","status":"normal"}}`)}
	svc, _ := newTestService(runner)

	token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2, 3}, uuid.New())
	require.NoError(t, err)

	result, err := svc.Execute(context.Background(), token, []float64{1, 2, 3}, 20)
	require.NoError(t, err)
	assert.False(t, result.LeakDetected)
	assert.Nil(t, result.LeakPosition)
}

func TestExecuteUnknownToken(t *testing.T) {
	runner := &fakeRunner{}
	svc, sessions := newTestService(runner)

	_, err := svc.Execute(context.Background(), "deadbeef-0000-4000-8000-000000000000", []float64{1, 2, 3}, 20)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, runner.runs)
	assert.Empty(t, sessions.sessions)
}

func TestExecuteRunFailureLeavesSessionPending(t *testing.T) {
	runner := &fakeRunner{err: &ExecutionError{ExitCode: 1, Stderr: "bad input"}}
	svc, sessions := newTestService(runner)

	token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2, 3}, uuid.New())
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), token, []float64{1, 2, 3}, 20)
	var exitErr *ExecutionError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Stderr, "bad input")

	sess, err := sessions.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, sess.ConsumedAt, "failed run must not consume the session")
}

func TestExecuteMalformedOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{name: "not json", out: "Traceback (most recent call last)"},
		{name: "missing result", out: `{"ok":true}`},
		{name: "unparsable lokasi", out: `{"result":{"lokasi":"somewhere","status":"kebocoran"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{out: []byte(tt.out)}
			svc, sessions := newTestService(runner)

			token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2, 3}, uuid.New())
			require.NoError(t, err)

			_, err = svc.Execute(context.Background(), token, []float64{1, 2, 3}, 20)
			var outErr *OutputError
			require.ErrorAs(t, err, &outErr)

			sess, err := sessions.GetByToken(context.Background(), token)
			require.NoError(t, err)
			assert.Nil(t, sess.ConsumedAt)
		})
	}
}

func TestExecuteConsumedTokenRejected(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"result":{"lokasi":"KM 3","status":"kebocoran"}}`)}
	svc, _ := newTestService(runner)

	token, err := svc.Validate(context.Background(), "TL1", "abc12345", []float64{1, 2, 3}, uuid.New())
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), token, []float64{1, 2, 3}, 20)
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), token, []float64{1, 2, 3}, 20)
	require.ErrorIs(t, err, ErrTokenConsumed)
	assert.Equal(t, 1, runner.runs, "consumed token must not reach the runner")
}
