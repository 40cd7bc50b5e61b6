package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipewatch/pkg/db"
	"pipewatch/services/auth"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/user/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(a.tokens))

			r.Get("/user", a.handleCurrentUser)

			r.Get("/pipe/trunkline", a.handleTrunklines)
			r.Post("/pipe/trunkline/update", a.handleTrunklineUpdate)
			r.Post("/pipe/trunkline/line/list", a.handleLines)
			r.Post("/pipe/trunkline/line/create", a.handleLineCreate)
			r.Post("/pipe/trunkline/line/uploadnode", a.handleLineUploadNodes)
			r.Post("/pipe/spots", a.handleSpotsByTrunkline)
			r.Get("/pipe/spots/all", a.handleAllSpots)
			r.Post("/pipe/spot/update", a.handleSpotUpdate)

			r.Post("/pipe/monitoring/spot/get", a.handleSpotMonitoring)
			r.Post("/pipe/analysis/playback/data", a.handlePlaybackData)

			r.Post("/pipe/analysis/model/upload", a.handleModelUpload)
			r.Post("/pipe/analysis/model/list", a.handleModelList)
			r.Post("/pipe/analysis/model/proxy", a.handleModelProxy)

			r.Post("/pipe/analysis/prediction/validate", a.handlePredictionValidate)
			r.Post("/pipe/analysis/prediction/execute", a.handlePredictionExecute)
		})
	})

	return r, nil
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := db.Ping(ctx, a.store.DB); err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ready"})
}
