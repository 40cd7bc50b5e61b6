package api

import (
	"errors"
	"net/http"

	"pipewatch/services/auth"
)

func (a *API) handleSpotMonitoring(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpotID     string `json:"spot_id"`
		DateFilter string `json:"date_filter"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.SpotID == "" || req.DateFilter == "" {
		respondError(w, http.StatusBadRequest, errors.New("spot_id and date_filter are required"))
		return
	}

	identity, _ := auth.FromContext(r.Context())
	readings, err := a.readings.ForField(identity.FieldID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	rows, err := readings.SpotDay(ctx, req.SpotID, req.DateFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	timestamps := make([]string, 0, len(rows))
	pressures := make([]float64, 0, len(rows))
	for _, row := range rows {
		timestamps = append(timestamps, row.Timestamp)
		pressures = append(pressures, row.PSI)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chartData": map[string]any{
			"timestamps": timestamps,
			"pressures":  pressures,
		},
	})
}
