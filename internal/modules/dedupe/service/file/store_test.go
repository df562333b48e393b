package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signal_relay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewStore(filepath.Join(t.TempDir(), "processed.json"), 48*time.Hour)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestMarkAndCheck(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.IsProcessed(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "sig-1"))

	ok, err = s.IsProcessed(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmptySignalIDNeverDeduped(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, ""))

	ok, err := s.IsProcessed(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	// Marking an empty id must not have written anything.
	_, statErr := os.Stat(s.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetentionExpiry(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "sig-old"))

	// Inside the window it still counts.
	*now = now.Add(47 * time.Hour)
	ok, err := s.IsProcessed(ctx, "sig-old")
	require.NoError(t, err)
	assert.True(t, ok)

	// Past the window it must be reprocessable.
	*now = now.Add(2 * time.Hour)
	ok, err = s.IsProcessed(ctx, "sig-old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneRewritesFile(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "sig-old"))
	*now = now.Add(72 * time.Hour)
	require.NoError(t, s.MarkProcessed(ctx, "sig-new"))

	_, err := s.IsProcessed(ctx, "sig-new")
	require.NoError(t, err)

	// A fresh store over the same file must not see the expired entry.
	s2 := NewStore(s.path, 48*time.Hour)
	s2.now = s.now
	ok, err := s2.IsProcessed(ctx, "sig-old")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s2.IsProcessed(ctx, "sig-new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSurvivesRestart(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "sig-1"))

	s2 := NewStore(s.path, 48*time.Hour)
	s2.now = s.now
	ok, err := s2.IsProcessed(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(path, 48*time.Hour)
	ctx := context.Background()

	ok, err := s.IsProcessed(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// And it recovers: marking works over the corrupt file.
	require.NoError(t, s.MarkProcessed(ctx, "sig-1"))
	ok, err = s.IsProcessed(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
