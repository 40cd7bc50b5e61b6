package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"

	"pipewatch/pkg/db"
	"pipewatch/services/auth"
	"pipewatch/services/prediction"
)

// Updatable columns per entity. Anything outside these maps is rejected, so
// request keys never reach a SQL statement.
var (
	trunklineColumns = map[string]bool{"name": true, "length_km": true}
	spotColumns      = map[string]bool{"name": true, "sort": true, "latitude": true, "longitude": true, "active": true}
)

func (a *API) handleTrunklines(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var rows []Trunkline
	query := `SELECT * FROM trunklines WHERE field_id = $1 ORDER BY name ASC`
	if err := db.Select(ctx, a.store.DB, &rows, query, identity.FieldID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "trunkline": rows})
}

func (a *API) handleTrunklineUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TlineID string         `json:"tline_id"`
		Fields  map[string]any `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.TlineID == "" {
		respondError(w, http.StatusBadRequest, errors.New("tline_id is required"))
		return
	}

	if err := a.partialUpdate(r, w, "trunklines", req.TlineID, req.Fields, trunklineColumns); err != nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Trunkline updated"})
}

func (a *API) handleSpotsByTrunkline(w http.ResponseWriter, r *http.Request) {
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

	var rows []Spot
	query := `SELECT * FROM spots WHERE tline_id = $1 ORDER BY sort ASC`
	if err := db.Select(ctx, a.store.DB, &rows, query, req.TlineID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "spots": rows})
}

func (a *API) handleAllSpots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var rows []Spot
	query := `SELECT * FROM spots ORDER BY sort ASC`
	if err := db.Select(ctx, a.store.DB, &rows, query); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "spots": rows})
}

func (a *API) handleSpotUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpotID string         `json:"spot_id"`
		Fields map[string]any `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.SpotID == "" {
		respondError(w, http.StatusBadRequest, errors.New("spot_id is required"))
		return
	}

	if err := a.partialUpdate(r, w, "spots", req.SpotID, req.Fields, spotColumns); err != nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Spot updated"})
}

// partialUpdate writes the allow-listed subset of fields to one row. It
// responds on error and returns a non-nil error so callers know not to write
// a success body.
func (a *API) partialUpdate(r *http.Request, w http.ResponseWriter, table, id string, fields map[string]any, allowed map[string]bool) error {
	if len(fields) == 0 {
		err := errors.New("no fields to update")
		respondError(w, http.StatusBadRequest, err)
		return err
	}

	set := ""
	args := []any{id}
	for column, value := range fields {
		if !allowed[column] {
			err := fmt.Errorf("field %q is not updatable", column)
			respondError(w, http.StatusBadRequest, err)
			return err
		}
		args = append(args, value)
		if set != "" {
			set += ", "
		}
		set += column + " = $" + strconv.Itoa(len(args))
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	tag, err := db.Exec(ctx, a.store.DB, "UPDATE "+table+" SET "+set+", updated_at = now() WHERE id = $1", args...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err := fmt.Errorf("%s %s not found", table, id)
		respondError(w, http.StatusNotFound, err)
		return err
	}
	return nil
}

func (a *API) handleLines(w http.ResponseWriter, r *http.Request) {
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

	var rows []Line
	query := `SELECT * FROM lines WHERE tline_id = $1 ORDER BY id ASC`
	if err := db.Select(ctx, a.store.DB, &rows, query, req.TlineID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if len(rows) > 0 {
		lineIDs := make([]string, 0, len(rows))
		for _, line := range rows {
			lineIDs = append(lineIDs, line.LineID)
		}

		var nodes []LineNode
		nodeQuery := `SELECT line_id, latitude, longitude FROM line_nodes WHERE line_id = ANY($1) ORDER BY id ASC`
		if err := db.Select(ctx, a.store.DB, &nodes, nodeQuery, lineIDs); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		rows = attachLineNodes(rows, nodes)
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "lines": rows})
}

// attachLineNodes distributes the ordered node rows onto their lines. Every
// line ends up with a non-nil node slice so clients always see an array.
func attachLineNodes(lines []Line, nodes []LineNode) []Line {
	byLine := make(map[string][]LineNode, len(lines))
	for _, node := range nodes {
		byLine[node.LineID] = append(byLine[node.LineID], node)
	}
	for i := range lines {
		attached := byLine[lines[i].LineID]
		if attached == nil {
			attached = []LineNode{}
		}
		lines[i].Nodes = attached
	}
	return lines
}

func (a *API) handleLineCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TlineID string `json:"tline_id"`
		Name    string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.TlineID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, errors.New("tline_id and name are required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	query := `INSERT INTO lines (line_id, tline_id, name, active) VALUES ($1, $2, $3, true)`
	if _, err := db.Exec(ctx, a.store.DB, query, prediction.NewShortID(8), req.TlineID, req.Name); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Line created successfully"})
}

func (a *API) handleLineUploadNodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LineID string       `json:"line_id"`
		Nodes  [][2]float64 `json:"nodes"` // [lng, lat] pairs
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.LineID == "" {
		respondError(w, http.StatusBadRequest, errors.New("line_id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	// Node replacement is all-or-nothing so a failed upload never leaves a
	// half-drawn line.
	err := db.InTx(ctx, a.store.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM line_nodes WHERE line_id = $1`, req.LineID); err != nil {
			return err
		}
		for _, node := range req.Nodes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO line_nodes (line_id, latitude, longitude) VALUES ($1, $2, $3)`,
				req.LineID, node[1], node[0],
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Nodes uploaded!"})
}
