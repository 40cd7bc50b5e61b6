package api

import "time"

// Trunkline is a named pipeline segment within a field.
type Trunkline struct {
	ID        string    `json:"id" db:"id"`
	FieldID   string    `json:"field_id" db:"field_id"`
	Name      string    `json:"name" db:"name"`
	LengthKM  float64   `json:"length_km" db:"length_km"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Spot is a monitored point along a trunkline.
type Spot struct {
	ID        string    `json:"id" db:"id"`
	TlineID   string    `json:"tline_id" db:"tline_id"`
	Name      string    `json:"name" db:"name"`
	Sort      int       `json:"sort" db:"sort"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Line is a drawable polyline of a trunkline on the map. Nodes carry the
// polyline vertices in insertion order.
type Line struct {
	ID      int64      `json:"id" db:"id"`
	LineID  string     `json:"line_id" db:"line_id"`
	TlineID string     `json:"tline_id" db:"tline_id"`
	Name    string     `json:"name" db:"name"`
	Active  bool       `json:"active" db:"active"`
	Nodes   []LineNode `json:"nodes" db:"-"`
}

// LineNode is one polyline vertex.
type LineNode struct {
	LineID    string  `json:"-" db:"line_id"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}
