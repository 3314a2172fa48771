package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/dataflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"file:///var/lib/dataflow":         "file",
		"./data":                           "file",
		"postgres://u:p@localhost:5432/db": "postgres",
		"redis://localhost:6379/0":         "redis",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(context.Background(), discardLogger(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("none", "", "dataflow", discardLogger())
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = NewEventBus("gochannel", "", "dataflow", discardLogger())
	require.NoError(t, err)
	require.NotNil(t, bus)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", "dataflow", discardLogger())
	assert.Error(t, err)

	_, err = NewEventBus("carrier-pigeon", "", "dataflow", discardLogger())
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	dir := t.TempDir()
	module := `{"id": "halve", "name": "Halve", "category": "custom",
		"inputs": [{"id": "value", "type": "number", "required": true}],
		"outputs": [{"id": "value", "type": "number"}],
		"code": "{'value': inputs.value / 2.0}"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "halve.json"), []byte(module), 0600))

	reg, err := NewRegistry(discardLogger(), dir)
	require.NoError(t, err)
	assert.True(t, reg.Contains("halve"))
	assert.True(t, reg.Contains("data_input"))

	runner := NewRunner(discardLogger(), reg, 0, 4)
	assert.NotNil(t, runner)
}
