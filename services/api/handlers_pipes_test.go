package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachLineNodes(t *testing.T) {
	lines := []Line{
		{ID: 1, LineID: "abcd1234", TlineID: "TL1", Name: "north run"},
		{ID: 2, LineID: "efgh5678", TlineID: "TL1", Name: "south run"},
	}
	// Rows arrive in insertion (id) order, interleaved across lines.
	nodes := []LineNode{
		{LineID: "abcd1234", Latitude: -6.1, Longitude: 106.8},
		{LineID: "efgh5678", Latitude: -6.3, Longitude: 106.9},
		{LineID: "abcd1234", Latitude: -6.2, Longitude: 106.85},
	}

	got := attachLineNodes(lines, nodes)

	require.Len(t, got, 2)
	assert.Equal(t, []LineNode{
		{LineID: "abcd1234", Latitude: -6.1, Longitude: 106.8},
		{LineID: "abcd1234", Latitude: -6.2, Longitude: 106.85},
	}, got[0].Nodes, "nodes keep their upload order per line")
	assert.Equal(t, []LineNode{
		{LineID: "efgh5678", Latitude: -6.3, Longitude: 106.9},
	}, got[1].Nodes)
}

func TestAttachLineNodesEmptyLineGetsEmptyArray(t *testing.T) {
	lines := []Line{{ID: 1, LineID: "abcd1234", TlineID: "TL1", Name: "bare"}}

	got := attachLineNodes(lines, nil)

	require.Len(t, got, 1)
	require.NotNil(t, got[0].Nodes)
	assert.Empty(t, got[0].Nodes)

	// A line without nodes must serialize as an empty array, not null, so
	// map clients can iterate unconditionally.
	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nodes":[]`)
}

func TestLineNodeWireShape(t *testing.T) {
	data, err := json.Marshal(LineNode{LineID: "abcd1234", Latitude: -6.1, Longitude: 106.8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"latitude":-6.1,"longitude":106.8}`, string(data))
}
