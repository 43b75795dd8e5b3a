package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>hello</body></html>"), 0644))
	return path
}

func TestConvertProducesOutput(t *testing.T) {
	cv := newTestConverter(t, writeScript(t, goodConverterScript))

	out, err := cv.Convert(context.Background(), sourceDoc(t))
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), cv.MinBytes)
	assert.Equal(t, ".pdf", filepath.Ext(out))
}

func TestConvertFailsOnNonZeroExit(t *testing.T) {
	cv := newTestConverter(t, writeScript(t, "echo boom >&2\nexit 1"))

	_, err := cv.Convert(context.Background(), sourceDoc(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversionProcess)
	assert.Contains(t, err.Error(), "boom")
}

func TestConvertFailsWhenBinaryMissing(t *testing.T) {
	cv := newTestConverter(t, "/nonexistent/soffice")

	_, err := cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionProcess)
}

func TestConvertCleansScratchDirs(t *testing.T) {
	cv := newTestConverter(t, writeScript(t, goodConverterScript))

	out, err := cv.Convert(context.Background(), sourceDoc(t))
	require.NoError(t, err)

	// Only the produced file survives under the work root
	entries, err := os.ReadDir(cv.WorkRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(out), entries[0].Name())

	// Failed attempts leave nothing behind either
	cv = newTestConverter(t, writeScript(t, "exit 1"))
	_, err = cv.Convert(context.Background(), sourceDoc(t))
	require.Error(t, err)

	entries, err = os.ReadDir(cv.WorkRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertRunsOnceWithZeroRetryBudget(t *testing.T) {
	cv := newTestConverter(t, writeScript(t, goodConverterScript))
	cv.Retries = 0

	out, err := cv.Convert(context.Background(), sourceDoc(t))
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	cv = newTestConverter(t, "/nonexistent/soffice")
	cv.Retries = -1
	_, err = cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionProcess)
}

func TestConvertTimeoutKillsSpawnedHelpers(t *testing.T) {
	// The script forks a helper that inherits the output pipes. If only the
	// direct child dies on timeout, the orphan keeps the pipes open and the
	// attempt blocks until the helper exits on its own.
	cv := newTestConverter(t, writeScript(t, "sleep 5 &\nwait"))
	cv.Timeout = 100 * time.Millisecond
	cv.Retries = 1

	start := time.Now()
	_, err := cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestConvertTimesOutAndKillsProcess(t *testing.T) {
	cv := newTestConverter(t, writeScript(t, "sleep 5"))
	cv.Timeout = 100 * time.Millisecond
	cv.Retries = 1

	start := time.Now()
	_, err := cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestConvertRejectsUndersizedOutput(t *testing.T) {
	// Output exists but is far below the sanity threshold.
	cv := newTestConverter(t, writeScript(t, `mkdir -p "$6"
base=$(basename "$7")
printf tiny > "$6/${base%.*}.pdf"`))

	_, err := cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionProcess)
	assert.Contains(t, err.Error(), "sanity threshold")
}

func TestConvertRejectsMissingOutput(t *testing.T) {
	// Exits zero without producing anything.
	cv := newTestConverter(t, "true")

	_, err := cv.Convert(context.Background(), sourceDoc(t))
	assert.ErrorIs(t, err, ErrConversionProcess)
	assert.Contains(t, err.Error(), "no output")
}
