package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Level: int(slog.LevelInfo)})

	l.Debug("hidden")
	l.Info("drip run finished", slog.Int("sent", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "drip run finished", line["msg"])
	assert.Equal(t, float64(3), line["sent"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Level: int(slog.LevelDebug), Text: true})
	l.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
