package gtfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
stops:
  "635": "Union Sq - 14 St"
  "L08": "Lorimer St"
directions:
  "L|N|Lorimer St": "Manhattan-bound"
  "L|N": "8 Av-bound"
  "N": "Northbound"
`

func writeTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	table, err := Load(writeTable(t))
	require.NoError(t, err)
	assert.Equal(t, "Union Sq - 14 St", table.StopName("635"))
	assert.Equal(t, "", table.StopName("unknown"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stops: [not a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDirectionLabel_Precedence(t *testing.T) {
	table, err := Load(writeTable(t))
	require.NoError(t, err)

	assert.Equal(t, "Manhattan-bound", table.DirectionLabel("L", "N", "Lorimer St"))
	assert.Equal(t, "8 Av-bound", table.DirectionLabel("L", "N", "other stop"))
	assert.Equal(t, "Northbound", table.DirectionLabel("7", "N", ""))
	assert.Equal(t, "", table.DirectionLabel("7", "S", ""))
	assert.Equal(t, "", table.DirectionLabel("L", "", "Lorimer St"), "no direction, no label")
}

func TestNilTable(t *testing.T) {
	var table *Table
	assert.Equal(t, "", table.StopName("635"))
	assert.Equal(t, "", table.DirectionLabel("L", "N", "x"))
}
