package detector

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func advance(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	later := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
}

func TestUnchangedFiles(t *testing.T) {
	paths := makeFiles(t, "a.py", "b.py", "c.py")
	d := New()

	baseline := d.Capture(paths)
	require.Len(t, baseline, 3)

	changed, ok := d.HasChanged(paths, baseline)
	assert.False(t, ok)
	assert.Empty(t, changed)
}

func TestModifiedFile(t *testing.T) {
	paths := makeFiles(t, "a.py", "b.py", "c.py")
	d := New()
	baseline := d.Capture(paths)

	advance(t, paths[1])

	changed, ok := d.HasChanged(paths, baseline)
	assert.True(t, ok)
	assert.Equal(t, paths[1], changed)
}

func TestOlderModTimeIsNotAChange(t *testing.T) {
	paths := makeFiles(t, "a.py")
	d := New()
	baseline := d.Capture(paths)

	earlier := baseline[paths[0]].ModTime.Add(-time.Hour)
	require.NoError(t, os.Chtimes(paths[0], earlier, earlier))

	_, ok := d.HasChanged(paths, baseline)
	assert.False(t, ok)
}

func TestRemovedFileIsAChange(t *testing.T) {
	paths := makeFiles(t, "a.py", "b.py")
	d := New()
	baseline := d.Capture(paths)

	require.NoError(t, os.Remove(paths[0]))

	changed, ok := d.HasChanged(paths, baseline)
	assert.True(t, ok)
	assert.Equal(t, paths[0], changed)
}

func TestMissingFileAppears(t *testing.T) {
	dir := t.TempDir()
	later := filepath.Join(dir, "later.py")
	d := New()

	baseline := d.Capture([]string{later})
	require.Contains(t, baseline, later)
	assert.False(t, baseline[later].Exists)

	_, ok := d.HasChanged([]string{later}, baseline)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(later, nil, 0o644))
	changed, ok := d.HasChanged([]string{later}, baseline)
	assert.True(t, ok)
	assert.Equal(t, later, changed)
}

func TestPathWithoutBaselineIsAChange(t *testing.T) {
	paths := makeFiles(t, "a.py")
	d := New()

	_, ok := d.HasChanged(paths, Baseline{})
	assert.True(t, ok)
}

func TestEmptyWatchSet(t *testing.T) {
	d := New()
	_, ok := d.HasChanged(nil, d.Capture(nil))
	assert.False(t, ok)
}

func TestTransientStatErrorIsRetried(t *testing.T) {
	paths := makeFiles(t, "a.py", "b.py")
	failing := true
	stat := func(path string) (fs.FileInfo, error) {
		if path == paths[0] && failing {
			return nil, errors.New("resource temporarily unavailable")
		}
		return os.Stat(path)
	}

	d := NewWithStat(os.Stat)
	baseline := d.Capture(paths)

	advance(t, paths[0])

	flaky := NewWithStat(stat)
	_, ok := flaky.HasChanged(paths, baseline)
	assert.False(t, ok, "a failed stat must not count as a change")

	failing = false
	changed, ok := flaky.HasChanged(paths, baseline)
	assert.True(t, ok)
	assert.Equal(t, paths[0], changed)
}

func TestStatErrorDuringCapture(t *testing.T) {
	paths := makeFiles(t, "a.py", "b.py")
	failing := true
	d := NewWithStat(func(path string) (fs.FileInfo, error) {
		if path == paths[0] && failing {
			return nil, errors.New("input/output error")
		}
		return os.Stat(path)
	})

	baseline := d.Capture(paths)
	assert.True(t, baseline[paths[0]].Unknown)

	failing = false
	_, ok := d.HasChanged(paths, baseline)
	assert.False(t, ok, "an unmodified file must not count as a change once readable")
	assert.False(t, baseline[paths[0]].Unknown)
	assert.True(t, baseline[paths[0]].Exists)

	advance(t, paths[0])
	changed, ok := d.HasChanged(paths, baseline)
	assert.True(t, ok)
	assert.Equal(t, paths[0], changed)
}
