package pruning

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/settings"
)

const ServiceName = "pruning"

// Result counts what a single pruning run did.
type Result struct {
	Removed int
	Failed  int
	Kept    int
}

// Prune removes archived snapshots older than the configured local disk max age.
// Only .json files directly inside the archive directory are considered.
func Prune(settingsObj *settings.SettingsObj, now time.Time) (*Result, error) {
	log.Debug("pruning started")

	archiveDir := caching.SnapshotsDir(settingsObj.LocalCachePath)

	dirEntries, err := os.ReadDir(archiveDir)
	if err != nil {
		log.WithError(err).WithField("dir", archiveDir).Error("failed to read snapshot archive dir")

		return nil, err
	}

	result := new(Result)
	filesToRemove := make([]string, 0)
	cutoff := now.AddDate(0, 0, -settingsObj.Pruning.LocalDiskMaxAge)

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.EqualFold(path.Ext(dirEntry.Name()), ".json") {
			continue
		}

		info, err := dirEntry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			filesToRemove = append(filesToRemove, filepath.Join(archiveDir, dirEntry.Name()))
		} else {
			result.Kept++
		}
	}

	if len(filesToRemove) == 0 {
		log.Debug("no archived snapshots to remove")

		return result, nil
	}

	mu := new(sync.Mutex)
	swg := sizedwaitgroup.New(settingsObj.Concurrency)

	for _, file := range filesToRemove {
		swg.Add()
		log.Debug("removing archived snapshot: ", file)

		go func(fileToRemove string) {
			defer swg.Done()

			err := os.Remove(fileToRemove)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				log.WithField("file", fileToRemove).WithError(err).Error("failed to remove archived snapshot")

				result.Failed++

				return
			}

			result.Removed++
		}(file)
	}

	swg.Wait()

	log.WithField("removed", result.Removed).WithField("failed", result.Failed).
		WithField("kept", result.Kept).Info("local disk cleanup completed")

	return result, nil
}
