package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pipewatch/services/prediction"
)

func (a *API) handleModelUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelName       string `json:"model_name"`
		Tline           string `json:"tline"`
		Parameters      int    `json:"parameters"`
		Infix           string `json:"infix"`
		TrainingFeature string `json:"training_feature"`
		Model           struct {
			Data   string `json:"model_data"`
			Ext    string `json:"model_ext"`
			Output string `json:"model_output"`
		} `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	artifact, err := base64.StdEncoding.DecodeString(req.Model.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode model_data: %w", err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	model, err := a.registry.Register(ctx, prediction.RegisterInput{
		Name:            req.ModelName,
		TlineID:         req.Tline,
		Parameters:      req.Parameters,
		Artifact:        artifact,
		Extension:       req.Model.Ext,
		Output:          req.Model.Output,
		Infix:           req.Infix,
		TrainingFeature: req.TrainingFeature,
	})
	if err != nil {
		if errors.Is(err, prediction.ErrInvalidArgument) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if a.store.Bus != nil {
		if err := a.store.Bus.Publish(ctx, prediction.SubjectModelRegistered, map[string]any{
			"model_id": model.ID,
			"tline_id": model.TlineID,
			"filename": model.Filename,
		}); err != nil {
			a.logger.Warn().Err(err).Str("model_id", model.ID).Msg("publish model registration")
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Model uploaded successfully",
		"id_model": model.ID,
	})
}

func (a *API) handleModelList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TlineID string `json:"tline_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.TlineID == "" {
		respondError(w, http.StatusBadRequest, errors.New("tline_id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	models, err := a.registry.ListByTrunkline(ctx, req.TlineID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	type modelWithDownload struct {
		prediction.Model
		DownloadURL string `json:"download_url,omitempty"`
	}
	out := make([]modelWithDownload, 0, len(models))
	for _, m := range models {
		url, err := a.registry.PresignArtifact(ctx, m, presignURLExpiry)
		if err != nil {
			a.logger.Warn().Err(err).Str("model_id", m.ID).Msg("presign model artifact")
		}
		out = append(out, modelWithDownload{Model: m, DownloadURL: url})
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "models": out})
}

func (a *API) handleModelProxy(w http.ResponseWriter, r *http.Request) {
	var in prediction.ProxyInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	raw, err := a.invoker.RunProxy(r.Context(), in)
	if err != nil {
		a.respondRunError(w, err)
		return
	}

	// The proxy script reports its own success flag inside the payload.
	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success":    false,
			"message":    fmt.Sprintf("failed to parse model output: %v", err),
			"raw_output": string(raw),
		})
		return
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "model execution failed"
		}
		respondError(w, http.StatusInternalServerError, errors.New(message))
		return
	}

	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "result": payload})
}

// respondRunError maps invoker failures onto status codes without leaking
// internals beyond the diagnostic text the model itself produced.
func (a *API) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prediction.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, prediction.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}
