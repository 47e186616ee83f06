package pruning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/settings"
)

func testSettings(t *testing.T) *settings.SettingsObj {
	t.Helper()

	return &settings.SettingsObj{
		LocalCachePath: t.TempDir(),
		Concurrency:    2,
		Pruning: &settings.Pruning{
			LocalDiskMaxAge: 1,
		},
	}
}

func writeArchive(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(filePath, []byte(`{}`), 0644))

	modTime := time.Now().Add(-age)
	assert.NoError(t, os.Chtimes(filePath, modTime, modTime))

	return filePath
}

func Test_prune(t *testing.T) {
	settingsObj := testSettings(t)
	archiveDir := caching.SnapshotsDir(settingsObj.LocalCachePath)
	assert.NoError(t, os.MkdirAll(filepath.Join(archiveDir, "nested"), os.ModePerm))

	old := writeArchive(t, archiveDir, "1700000000000.json", 48*time.Hour)
	older := writeArchive(t, archiveDir, "1600000000000.json", 30*24*time.Hour)
	fresh := writeArchive(t, archiveDir, "1773489600000.json", time.Hour)
	other := writeArchive(t, archiveDir, "notes.txt", 48*time.Hour)
	nested := writeArchive(t, filepath.Join(archiveDir, "nested"), "1500000000000.json", 48*time.Hour)

	result, err := Prune(settingsObj, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, &Result{Removed: 2, Kept: 1}, result)

	for _, removed := range []string{old, older} {
		_, err = os.Stat(removed)
		assert.True(t, os.IsNotExist(err), removed)
	}

	for _, kept := range []string{fresh, other, nested} {
		_, err = os.Stat(kept)
		assert.NoError(t, err, kept)
	}

	// nothing left to remove on a second run
	result, err = Prune(settingsObj, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, &Result{Kept: 1}, result)
}

func Test_pruneMissingArchive(t *testing.T) {
	settingsObj := testSettings(t)
	settingsObj.LocalCachePath = filepath.Join(settingsObj.LocalCachePath, "invalid")

	_, err := Prune(settingsObj, time.Now())
	assert.Error(t, err)
}
