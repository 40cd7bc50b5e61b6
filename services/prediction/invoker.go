package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultRunTimeout bounds a model run; an external artifact must never be
// able to hold a request open indefinitely.
const DefaultRunTimeout = 2 * time.Minute

// RunInput is everything a delta-vector model run needs: scalar parameters
// travel as argv, the input mapping as one JSON document on stdin.
type RunInput struct {
	Parameters       int
	ArtifactFilename string
	Inputs           map[string]float64
	TrunklineLength  float64
	Infix            string
	Output           string
	TrainingFeature  string
}

// ProxyInput is the payload of the proxy model variant: three parallel
// arrays that must be equal in length.
type ProxyInput struct {
	SensorLocations []float64 `json:"sensor_locations"`
	NormalPressure  []float64 `json:"normal_pressure"`
	DropPressure    []float64 `json:"drop_pressure"`
}

// Validate rejects empty or mismatched sensor arrays. It runs before any
// subprocess is spawned.
func (in ProxyInput) Validate() error {
	if len(in.SensorLocations) == 0 || len(in.NormalPressure) == 0 || len(in.DropPressure) == 0 {
		return fmt.Errorf("%w: sensor_locations, normal_pressure, and drop_pressure are required", ErrInvalidArgument)
	}
	if len(in.SensorLocations) != len(in.NormalPressure) || len(in.SensorLocations) != len(in.DropPressure) {
		return fmt.Errorf("%w: all sensor data arrays must have the same length", ErrInvalidArgument)
	}
	return nil
}

// Invoker runs model artifacts in an isolated subprocess. Stdout is collected
// as the opaque result payload, stderr as diagnostics; success is decided by
// exit code alone.
type Invoker struct {
	Interpreter string // defaults to "python3"
	Script      string // delta-vector runner script
	ProxyScript string // proxy-variant runner script
	ProxyModel  string // artifact path for the proxy variant
	Dir         string // directory holding uploaded artifacts
	Timeout     time.Duration
}

// Run executes the delta-vector runner for one model. The caller parses the
// returned bytes; the invoker never inspects them.
func (inv *Invoker) Run(ctx context.Context, in RunInput) ([]byte, error) {
	payload, err := json.Marshal(in.Inputs)
	if err != nil {
		return nil, fmt.Errorf("encode model input: %w", err)
	}

	args := []string{
		inv.Script,
		strconv.Itoa(in.Parameters),
		filepath.Join(inv.Dir, in.ArtifactFilename),
		strconv.FormatFloat(in.TrunklineLength, 'f', -1, 64),
		in.Infix,
		in.Output,
		in.TrainingFeature,
	}

	return inv.spawn(ctx, args, payload)
}

// RunProxy executes the proxy-variant runner. Input arrays are validated
// before the process starts.
func (inv *Invoker) RunProxy(ctx context.Context, in ProxyInput) ([]byte, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode proxy input: %w", err)
	}

	return inv.spawn(ctx, []string{inv.ProxyScript, inv.ProxyModel}, payload)
}

func (inv *Invoker) spawn(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interpreter := inv.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, interpreter, args...)
	// One JSON document then EOF: exec closes the pipe once the reader
	// drains, which is the end-of-input signal for the runner.
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// The caller going away is not a model failure; report it as the
		// context error so it is never mistaken for a bad artifact.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExecutionError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, &SpawnError{Err: err}
	}

	return stdout.Bytes(), nil
}
