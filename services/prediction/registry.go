package prediction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pipewatch/pkg/db"
	gos3 "pipewatch/pkg/s3"
)

// Model is a registered leak-detection model: a stored artifact plus the
// metadata needed to feed it inputs and read its output.
type Model struct {
	ID              string    `db:"id" json:"id_model"`
	TlineID         string    `db:"tline_id" json:"id_tline"`
	Name            string    `db:"name" json:"model_name"`
	Parameters      int       `db:"parameters" json:"parameters"`
	Filename        string    `db:"filename" json:"model_filename"`
	Output          string    `db:"output" json:"output"`
	Infix           string    `db:"infix" json:"infix"`
	TrainingFeature *string   `db:"training_feature" json:"training_feature"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RegisterInput carries a decoded model upload.
type RegisterInput struct {
	Name            string
	TlineID         string
	Parameters      int
	Artifact        []byte
	Extension       string
	Output          string
	Infix           string
	TrainingFeature string
}

// Registry persists model artifacts to the models directory and their
// metadata rows to the database. When S3 is configured, artifacts are also
// backed up off-box; the local file stays authoritative for the invoker.
type Registry struct {
	Pool   *pgxpool.Pool
	Dir    string
	S3     *gos3.Client
	Bucket string
	Logger zerolog.Logger
}

var whitespace = regexp.MustCompile(`\s+`)

// Register stores the artifact and inserts the registry row. The two writes
// are not transactional: a failed insert after a successful file write leaves
// the artifact on disk, and the returned error names the orphaned file.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (Model, error) {
	if in.Name == "" || in.TlineID == "" || in.Output == "" || in.Infix == "" {
		return Model{}, fmt.Errorf("%w: name, trunkline, output, and infix are required", ErrInvalidArgument)
	}
	if in.Parameters <= 0 {
		return Model{}, fmt.Errorf("%w: parameters must be greater than 0", ErrInvalidArgument)
	}
	if len(in.Artifact) == 0 {
		return Model{}, fmt.Errorf("%w: model artifact is empty", ErrInvalidArgument)
	}
	if !strings.Contains(in.Infix, "{x}") {
		return Model{}, fmt.Errorf("%w: infix template must contain the {x} placeholder", ErrInvalidArgument)
	}

	ext := in.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	filename := whitespace.ReplaceAllString(in.Name, "_") + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + ext
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return Model{}, fmt.Errorf("create models dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, filename), in.Artifact, 0o644); err != nil {
		return Model{}, fmt.Errorf("write model artifact: %w", err)
	}

	var trainingFeature *string
	if in.TrainingFeature != "" {
		trainingFeature = &in.TrainingFeature
	}

	model := Model{
		ID:              newShortID(8),
		TlineID:         in.TlineID,
		Name:            in.Name,
		Parameters:      in.Parameters,
		Filename:        filename,
		Output:          in.Output,
		Infix:           in.Infix,
		TrainingFeature: trainingFeature,
		CreatedAt:       time.Now().UTC(),
	}

	query := `
        INSERT INTO models (id, tline_id, name, parameters, filename, output, infix, training_feature, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	if _, err := db.Exec(ctx, r.Pool, query,
		model.ID, model.TlineID, model.Name, model.Parameters,
		model.Filename, model.Output, model.Infix, model.TrainingFeature, model.CreatedAt,
	); err != nil {
		return Model{}, fmt.Errorf("insert model row (artifact %s left on disk): %w", filename, err)
	}

	if r.S3 != nil && r.Bucket != "" {
		key := "models/" + filename
		if err := r.S3.PutObject(ctx, r.Bucket, key, bytes.NewReader(in.Artifact), int64(len(in.Artifact))); err != nil {
			// Backup is best effort; the local artifact is authoritative.
			r.Logger.Warn().Err(err).Str("key", key).Msg("model artifact backup failed")
		}
	}

	return model, nil
}

// Lookup fetches a model by id scoped to a trunkline.
func (r *Registry) Lookup(ctx context.Context, modelID, tlineID string) (Model, error) {
	var m Model
	query := `SELECT * FROM models WHERE id = $1 AND tline_id = $2`
	if err := db.Get(ctx, r.Pool, &m, query, modelID, tlineID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Model{}, ErrModelNotFound
		}
		return Model{}, fmt.Errorf("lookup model: %w", err)
	}
	return m, nil
}

// Get fetches a model by id alone.
func (r *Registry) Get(ctx context.Context, modelID string) (Model, error) {
	var m Model
	query := `SELECT * FROM models WHERE id = $1`
	if err := db.Get(ctx, r.Pool, &m, query, modelID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Model{}, ErrModelNotFound
		}
		return Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListByTrunkline returns every model registered for a trunkline.
func (r *Registry) ListByTrunkline(ctx context.Context, tlineID string) ([]Model, error) {
	var models []Model
	query := `SELECT * FROM models WHERE tline_id = $1 ORDER BY created_at DESC`
	if err := db.Select(ctx, r.Pool, &models, query, tlineID); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

// PresignArtifact returns a short-lived download URL for the backed-up
// artifact, or "" when no backup target is configured.
func (r *Registry) PresignArtifact(ctx context.Context, m Model, ttl time.Duration) (string, error) {
	if r.S3 == nil || r.Bucket == "" {
		return "", nil
	}
	return r.S3.PresignGet(ctx, r.Bucket, "models/"+m.Filename, ttl)
}
