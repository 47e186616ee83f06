package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/metrics"
	"storage-dashboard/goutils/taskmgr"
)

var (
	ErrFileNotFound  = errors.New("file not found in snapshot")
	ErrNoVersions    = errors.New("file has no stored versions")
	ErrNoSnapshotYet = errors.New("no snapshot fetched yet")
)

// FileAuditResult is the outcome of auditing every block of a file's latest version.
type FileAuditResult struct {
	FileID  string                `json:"fileId"`
	Status  datamodel.AuditStatus `json:"status"`
	Passed  []string              `json:"passed"`
	Failed  []string              `json:"failed"`
	Errored []string              `json:"errored"`
}

// AuditBlock verifies one block. The block is pending until the request finishes, whatever
// polls land in between. A failed request leaves the displayed indicator unchanged.
func (r *Reconciler) AuditBlock(ctx context.Context, fileID, blockID string) (bool, error) {
	providerID := r.blockProvider(fileID, blockID)

	passed, err := r.auditBlock(ctx, fileID, blockID, providerID)
	if err != nil {
		// whole-file audits report errored blocks inside their corrupt file issue
		if r.deps.Reporter != nil && ctx.Err() == nil {
			r.deps.Reporter.Report(datamodel.AuditRequestFailedIssue, fileID, map[string]interface{}{
				"blockId":    blockID,
				"providerId": providerID,
				"error":      err.Error(),
			})
		}

		return false, err
	}

	r.dropFileStatus(fileID)

	return passed, nil
}

// AuditFile audits every block of the latest version of the file. The file passes only if
// all blocks pass, a failed request counts against it.
func (r *Reconciler) AuditFile(ctx context.Context, fileID string) (*FileAuditResult, error) {
	r.mu.Lock()

	if r.snapshot == nil {
		r.mu.Unlock()

		return nil, ErrNoSnapshotYet
	}

	file := r.snapshot.FindFile(fileID)
	if file == nil {
		r.mu.Unlock()

		return nil, ErrFileNotFound
	}

	latest := file.LatestVersion()
	if latest == nil {
		r.mu.Unlock()

		return nil, ErrNoVersions
	}

	// snapshots are replaced, never mutated, so the slice stays valid after unlocking
	blocks := latest.Blocks
	versionNum := latest.Num
	fileName := file.Name

	r.mu.Unlock()

	l := log.WithField("fileId", fileID).WithField("blocks", len(blocks))
	l.Info("auditing file")

	result := &FileAuditResult{
		FileID:  fileID,
		Passed:  make([]string, 0, len(blocks)),
		Failed:  make([]string, 0),
		Errored: make([]string, 0),
	}

	var (
		resultMu sync.Mutex
		errs     *multierror.Error
	)

	swg := sizedwaitgroup.New(r.settingsObj.Reconciler.AuditConcurrency)

	for _, block := range blocks {
		swg.Add()

		go func(block datamodel.Block) {
			defer swg.Done()

			passed, err := r.auditBlock(ctx, fileID, block.ID, block.Location.ProviderID)

			resultMu.Lock()
			defer resultMu.Unlock()

			switch {
			case err != nil:
				result.Errored = append(result.Errored, block.ID)
				errs = multierror.Append(errs, fmt.Errorf("block %s: %w", block.ID, err))
			case passed:
				result.Passed = append(result.Passed, block.ID)
			default:
				result.Failed = append(result.Failed, block.ID)
			}
		}(block)
	}

	swg.Wait()

	result.Status = datamodel.AuditStatusPassed
	if len(result.Failed) > 0 || len(result.Errored) > 0 {
		result.Status = datamodel.AuditStatusCorrupt
	}

	r.mu.Lock()
	_ = r.deps.Overlay.Set(fileStatusKey(fileID, versionNum), result.Status)
	r.refreshDetailLocked()
	r.mu.Unlock()

	l.WithField("status", result.Status).WithField("failed", len(result.Failed)).
		WithField("errored", len(result.Errored)).Info("file audit finished")

	if r.deps.DbCache != nil {
		err := r.deps.DbCache.StoreFileAuditStatus(ctx, fileID, result.Status)
		if err != nil {
			l.WithError(err).Warn("failed to store file audit status")
		}
	}

	if result.Status == datamodel.AuditStatusCorrupt && r.deps.Reporter != nil {
		r.deps.Reporter.Report(datamodel.CorruptFileIssue, fileID, map[string]interface{}{
			"fileName":      fileName,
			"failedBlocks":  result.Failed,
			"erroredBlocks": result.Errored,
		})
	}

	return result, errs.ErrorOrNil()
}

func (r *Reconciler) auditBlock(ctx context.Context, fileID, blockID, providerID string) (bool, error) {
	l := log.WithField("fileId", fileID).WithField("blockId", blockID)

	r.setPending(blockID, true)

	err := r.limiter.Wait(ctx)
	if err != nil {
		r.setPending(blockID, false)
		metrics.ObserveAudit(metrics.AuditErrored)

		return false, fmt.Errorf("%w: %s", ErrAuditRequestFailed, err.Error())
	}

	passed, err := r.deps.Auditor.AuditBlock(ctx, fileID, blockID)
	if err != nil {
		l.WithError(err).Warn("block audit request failed")

		r.setPending(blockID, false)
		metrics.ObserveAudit(metrics.AuditErrored)

		return false, err
	}

	// the overlay is written before pending is cleared so readers never see the block idle with a stale result
	_ = r.deps.Overlay.Set(blockID, passed)
	r.setPending(blockID, false)

	if passed {
		metrics.ObserveAudit(metrics.AuditPassed)
	} else {
		l.Warn("block failed audit")
		metrics.ObserveAudit(metrics.AuditCorrupt)
	}

	r.publishAuditCompleted(ctx, &datamodel.AuditCompletedEvent{
		EventID:     uuid.NewString(),
		InstanceID:  r.settingsObj.InstanceId,
		FileID:      fileID,
		BlockID:     blockID,
		ProviderID:  providerID,
		Success:     passed,
		CompletedAt: r.now(),
	})

	return passed, nil
}

// setPending is a plain set operation, a second completion for the same block is a no-op.
func (r *Reconciler) setPending(blockID string, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pending {
		r.pending[blockID] = struct{}{}
	} else {
		delete(r.pending, blockID)
	}

	metrics.SetPendingAudits(len(r.pending))
	r.refreshDetailLocked()
}

// dropFileStatus forgets the whole-file result of the latest version once one of its blocks
// has been audited on its own, the block list is then the newer answer.
func (r *Reconciler) dropFileStatus(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		return
	}

	file := r.snapshot.FindFile(fileID)
	if file == nil {
		return
	}

	latest := file.LatestVersion()
	if latest == nil {
		return
	}

	r.deps.Overlay.Delete(fileStatusKey(fileID, latest.Num))
	r.refreshDetailLocked()
}

// IsPending reports whether an audit of the block is in flight.
func (r *Reconciler) IsPending(blockID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.pending[blockID]

	return ok
}

func (r *Reconciler) blockProvider(fileID, blockID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		return ""
	}

	file := r.snapshot.FindFile(fileID)
	if file == nil {
		return ""
	}

	latest := file.LatestVersion()
	if latest == nil {
		return ""
	}

	for _, block := range latest.Blocks {
		if block.ID == blockID {
			return block.Location.ProviderID
		}
	}

	return ""
}

func (r *Reconciler) publishAuditCompleted(ctx context.Context, event *datamodel.AuditCompletedEvent) {
	if r.deps.Publisher == nil || !r.settingsObj.Reconciler.PublishAuditEvent {
		return
	}

	l := log.WithField("eventId", event.EventID).WithField("blockId", event.BlockID)

	body, err := json.Marshal(event)
	if err != nil {
		l.WithError(err).Error("failed to marshal audit completed event")

		return
	}

	operation := func() error {
		err := r.deps.Publisher.Publish(ctx, taskmgr.TopicAuditCompleted, body)
		if errors.Is(err, taskmgr.ErrUnknownTopic) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond

	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(r.settingsObj.RetryCount)))
	if err != nil {
		l.WithError(err).Error("failed to publish audit completed event")
	}
}
