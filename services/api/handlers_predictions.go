package api

import (
	"errors"
	"net/http"

	"pipewatch/services/auth"
	"pipewatch/services/prediction"
)

func (a *API) handlePredictionValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TlineID string    `json:"id_tline"`
		Model   string    `json:"model"`
		Delta   []float64 `json:"delta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.TlineID == "" || req.Model == "" {
		respondError(w, http.StatusBadRequest, errors.New("id_tline and model are required"))
		return
	}

	identity, _ := auth.FromContext(r.Context())

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	token, err := a.predict.Validate(ctx, req.TlineID, req.Model, req.Delta, identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, prediction.ErrModelNotFound):
			respondError(w, http.StatusNotFound, err)
		case errors.Is(err, prediction.ErrInvalidArgument):
			respondError(w, http.StatusBadRequest, err)
		default:
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Prediction request submitted",
		"token":   token,
	})
}

func (a *API) handlePredictionExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string    `json:"token"`
		Delta       []float64 `json:"delta"`
		TlineLength float64   `json:"tline_length"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, errors.New("token is required"))
		return
	}

	// No withTimeout here: the model run carries its own deadline, which may
	// exceed the default query timeout.
	result, err := a.predict.Execute(r.Context(), req.Token, req.Delta, req.TlineLength)
	if err != nil {
		var outErr *prediction.OutputError
		switch {
		case errors.Is(err, prediction.ErrInvalidToken):
			respondError(w, http.StatusBadRequest, errors.New("Invalid token"))
		case errors.Is(err, prediction.ErrTokenConsumed):
			respondError(w, http.StatusConflict, err)
		case errors.Is(err, prediction.ErrInvalidArgument):
			respondError(w, http.StatusBadRequest, err)
		case errors.As(err, &outErr):
			respondError(w, http.StatusInternalServerError, err)
		default:
			a.respondRunError(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Prediction executed",
		"result":  result.Raw,
		"leak": map[string]any{
			"detected": result.LeakDetected,
			"position": result.LeakPosition,
		},
	})
}
