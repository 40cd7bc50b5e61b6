package api

import (
	"errors"
	"net/http"

	"pipewatch/services/auth"
	"pipewatch/services/playback"
)

// playbackSlice is the wire form of one aggregated bucket.
type playbackSlice struct {
	TimeRange  string              `json:"timeRange"`
	DateFilter string              `json:"dateFilter"`
	Data       []playbackSpotValue `json:"data"`
}

type playbackSpotValue struct {
	IDSpot       string  `json:"idSpot"`
	AvgPSIValues float64 `json:"avgPsiValues"`
}

func (a *API) handlePlaybackData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dates     []string `json:"dates"`
		TimeRange int      `json:"timeRange"`
		Spots     []string `json:"spots"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	identity, _ := auth.FromContext(r.Context())
	readings, err := a.readings.ForField(identity.FieldID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	slices, err := playback.NewAggregator(readings).Aggregate(r.Context(), req.Dates, req.Spots, req.TimeRange)
	if err != nil {
		if errors.Is(err, playback.ErrInvalidArgument) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	chart, err := playback.Reshape(slices, req.Spots)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	results := make([]playbackSlice, 0, len(slices))
	for _, slice := range slices {
		values := make([]playbackSpotValue, 0, len(req.Spots))
		for _, spot := range req.Spots {
			values = append(values, playbackSpotValue{IDSpot: spot, AvgPSIValues: slice.Averages[spot]})
		}
		results = append(results, playbackSlice{TimeRange: slice.Label, DateFilter: slice.Date, Data: values})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"data":      results,
		"chartData": chart,
	})
}
