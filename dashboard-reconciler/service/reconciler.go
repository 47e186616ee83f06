package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"
	"golang.org/x/time/rate"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/metrics"
	"storage-dashboard/goutils/reporting"
	"storage-dashboard/goutils/settings"
	"storage-dashboard/goutils/taskmgr"
)

var ErrNodeNotFound = errors.New("node not found in graph")

// Deps are the collaborators of a Reconciler. Fetcher, Auditor and Overlay are required,
// the rest may be nil and the matching feature is skipped.
type Deps struct {
	Fetcher   SnapshotFetcher
	Auditor   Auditor
	Overlay   caching.MemCache
	DbCache   caching.DbCache
	DiskCache caching.DiskCache
	Reporter  reporting.Service
	Publisher taskmgr.TaskMgr
}

// Reconciler owns the reconciled dashboard state. All fields below mu are guarded by it
// and no network or disk I/O happens while it is held.
type Reconciler struct {
	settingsObj *settings.SettingsObj
	deps        Deps
	limiter     *rate.Limiter
	validate    *validator.Validate
	cron        *cron.Cron
	now         func() time.Time

	mu                  sync.Mutex
	snapshot            *datamodel.Snapshot
	lastRefreshed       time.Time
	fetchSeq            uint64
	appliedSeq          uint64
	consecutiveFailures int
	graph               *Graph
	selected            string
	detail              *NodeDetail
	expanded            map[string]struct{}
	pending             map[string]struct{}
}

// Summary is the header of the dashboard.
type Summary struct {
	Renters       int       `json:"renters"`
	Providers     int       `json:"providers"`
	Contracts     int       `json:"contracts"`
	Files         int       `json:"files"`
	Edges         int       `json:"edges"`
	PendingAudits int       `json:"pendingAudits"`
	SelectedNode  string    `json:"selectedNode,omitempty"`
	LastRefreshed time.Time `json:"lastRefreshed"`
}

func NewReconciler(settingsObj *settings.SettingsObj, deps Deps) *Reconciler {
	limit := rate.Inf
	burst := 1

	if rl := settingsObj.Reconciler.AuditRateLimiter; rl != nil && rl.RequestsPerSec > 0 {
		limit = rate.Limit(rl.RequestsPerSec)

		if rl.Burst > 0 {
			burst = rl.Burst
		}
	}

	return &Reconciler{
		settingsObj: settingsObj,
		deps:        deps,
		limiter:     rate.NewLimiter(limit, burst),
		validate:    validator.New(),
		now:         time.Now,
		graph:       NewGraph(),
		expanded:    make(map[string]struct{}),
		pending:     make(map[string]struct{}),
	}
}

// InitReconciler builds the reconciler from the injected settings and caches.
func InitReconciler(fetcher SnapshotFetcher, auditor Auditor, reporter reporting.Service, publisher taskmgr.TaskMgr) *Reconciler {
	settingsObj, err := gi.Invoke[*settings.SettingsObj]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke settings object")
	}

	redisCache, err := gi.Invoke[*caching.RedisCache]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke redis cache")
	}

	diskCache, err := gi.Invoke[*caching.LocalDiskCache]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke disk cache")
	}

	deps := Deps{
		Fetcher:   fetcher,
		Auditor:   auditor,
		Overlay:   caching.NewInMemoryCache(time.Duration(settingsObj.Reconciler.AuditOverlayTTL) * time.Second),
		DbCache:   redisCache,
		DiskCache: diskCache,
		Reporter:  reporter,
		Publisher: publisher,
	}

	reconciler := NewReconciler(settingsObj, deps)

	if err := gi.Inject(reconciler); err != nil {
		log.WithError(err).Fatal("failed to inject reconciler")
	}

	return reconciler
}

// Start warms the state from the caches, runs a first poll and schedules the rest.
// Overlapping polls are skipped rather than queued.
func (r *Reconciler) Start(ctx context.Context) error {
	r.Warm(ctx)

	if err := r.Fetch(ctx); err != nil {
		log.WithError(err).Warn("initial snapshot poll failed, showing cached state")
	}

	r.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	cronID, err := r.cron.AddFunc(r.settingsObj.Reconciler.PollInterval, func() {
		_ = r.Fetch(ctx)
	})
	if err != nil {
		log.WithError(err).Error("failed to schedule snapshot poll")

		return err
	}

	log.WithField("cronId", cronID).WithField("interval", r.settingsObj.Reconciler.PollInterval).Info("scheduled snapshot poll")

	r.cron.Start()

	return nil
}

// Stop cancels the schedule and waits for a running poll to finish.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}

	<-r.cron.Stop().Done()
}

// Fetch polls the snapshot once. On failure the cached snapshot and last refreshed time
// are left as they were.
func (r *Reconciler) Fetch(ctx context.Context) error {
	r.mu.Lock()
	r.fetchSeq++
	seq := r.fetchSeq
	r.mu.Unlock()

	snapshot, err := r.deps.Fetcher.FetchSnapshot(ctx)
	if err != nil {
		r.fetchFailed(err)

		return err
	}

	refreshedAt := r.now()

	if !r.apply(snapshot, refreshedAt, seq) {
		log.WithField("seq", seq).Debug("dropping snapshot superseded by a newer poll")

		return nil
	}

	metrics.ObservePoll(metrics.PollSuccess)

	r.persist(ctx, snapshot, refreshedAt)

	return nil
}

func (r *Reconciler) fetchFailed(err error) {
	outcome := metrics.PollFailed
	if errors.Is(err, ErrMalformedSnapshot) {
		outcome = metrics.PollMalformed
	}

	metrics.ObservePoll(outcome)

	r.mu.Lock()
	r.consecutiveFailures++
	failures := r.consecutiveFailures
	lastRefreshed := r.lastRefreshed
	r.mu.Unlock()

	log.WithError(err).WithField("consecutiveFailures", failures).Warn("snapshot poll failed, keeping previous snapshot")

	// report once per outage
	if r.deps.Reporter != nil && failures == r.settingsObj.RetryCount {
		r.deps.Reporter.Report(datamodel.SnapshotUnavailable, "", map[string]interface{}{
			"error":               err.Error(),
			"consecutiveFailures": failures,
			"lastRefreshed":       lastRefreshed,
		})
	}
}

// apply swaps in the snapshot and reconciles graph and detail pane. It returns false if a
// poll started later has already been applied.
func (r *Reconciler) apply(snapshot *datamodel.Snapshot, refreshedAt time.Time, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.appliedSeq {
		return false
	}

	r.appliedSeq = seq
	r.consecutiveFailures = 0
	r.snapshot = snapshot
	r.lastRefreshed = refreshedAt

	diff := r.graph.Reconcile(snapshot)

	if r.selected != "" && !r.graph.HasNode(r.selected) {
		log.WithField("nodeId", r.selected).Info("selected node left the network, clearing selection")

		r.selected = ""
	}

	r.graph.Select(r.selected)
	r.refreshDetailLocked()

	renters, providers, edges := r.graph.Counts()
	metrics.SetGraphSize(renters, providers, edges)

	if !diff.Empty() {
		log.WithField("addedNodes", len(diff.AddedNodes)).
			WithField("removedNodes", len(diff.RemovedNodes)).
			WithField("addedEdges", len(diff.AddedEdges)).
			WithField("removedEdges", len(diff.RemovedEdges)).
			Debug("reconciled network graph")
	}

	return true
}

// refreshDetailLocked rebuilds the detail pane, callers hold mu.
func (r *Reconciler) refreshDetailLocked() {
	r.detail = buildDetail(r.snapshot, r.selected, uiState{
		expanded:   r.expanded,
		pending:    r.pending,
		fileStatus: r.fileStatusResult,
		overlay:    r.overlayResult,
	})
}

func (r *Reconciler) overlayResult(blockID string) (bool, bool) {
	val, ok := r.deps.Overlay.Get(blockID)
	if !ok {
		return false, false
	}

	passed, ok := val.(bool)

	return passed, ok
}

func fileStatusKey(fileID string, versionNum int) string {
	return fmt.Sprintf("file:%s:%d", fileID, versionNum)
}

func (r *Reconciler) fileStatusResult(fileID string, versionNum int) (datamodel.AuditStatus, bool) {
	val, ok := r.deps.Overlay.Get(fileStatusKey(fileID, versionNum))
	if !ok {
		return "", false
	}

	status, ok := val.(datamodel.AuditStatus)

	return status, ok
}

// Snapshot returns the cached snapshot, nil before the first successful poll. It must be treated as read-only.
func (r *Reconciler) Snapshot() (*datamodel.Snapshot, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot, r.lastRefreshed
}

func (r *Reconciler) Graph() ([]Node, []Edge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.graph.Nodes(), r.graph.Edges()
}

// Detail returns nil when no node is selected.
func (r *Reconciler) Detail() *NodeDetail {
	r.mu.Lock()
	defer r.mu.Unlock()

	// rebuilt on read so expired audit results fall back to the snapshot's values
	r.refreshDetailLocked()

	return r.detail
}

func (r *Reconciler) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := Summary{
		PendingAudits: len(r.pending),
		SelectedNode:  r.selected,
		LastRefreshed: r.lastRefreshed,
	}

	summary.Renters, summary.Providers, summary.Edges = r.graph.Counts()

	if r.snapshot != nil {
		summary.Contracts = len(r.snapshot.Contracts)
		summary.Files = len(r.snapshot.Files)
	}

	return summary
}

func (r *Reconciler) SelectNode(ctx context.Context, nodeID string) (*NodeDetail, error) {
	r.mu.Lock()

	if !r.graph.HasNode(nodeID) {
		r.mu.Unlock()

		return nil, ErrNodeNotFound
	}

	r.selected = nodeID
	r.graph.Select(nodeID)
	r.refreshDetailLocked()
	detail := r.detail

	r.mu.Unlock()

	r.persistSelection(ctx, nodeID)

	return detail, nil
}

func (r *Reconciler) ClearSelection(ctx context.Context) {
	r.mu.Lock()
	r.selected = ""
	r.graph.Select("")
	r.detail = nil
	r.mu.Unlock()

	r.persistSelection(ctx, "")
}

// ToggleFile flips the expanded state of every file with the given name and returns the new state.
func (r *Reconciler) ToggleFile(ctx context.Context, fileName string) bool {
	r.mu.Lock()

	_, expanded := r.expanded[fileName]
	if expanded {
		delete(r.expanded, fileName)
	} else {
		r.expanded[fileName] = struct{}{}
	}

	r.refreshDetailLocked()

	r.mu.Unlock()

	if r.persistUIState() {
		err := r.deps.DbCache.SetFileExpanded(ctx, fileName, !expanded)
		if err != nil {
			log.WithError(err).WithField("fileName", fileName).Warn("failed to persist expanded file")
		}
	}

	return !expanded
}

func (r *Reconciler) persistUIState() bool {
	return r.deps.DbCache != nil && r.settingsObj.Reconciler.PersistUIState
}

func (r *Reconciler) persistSelection(ctx context.Context, nodeID string) {
	if !r.persistUIState() {
		return
	}

	err := r.deps.DbCache.SetSelectedNode(ctx, nodeID)
	if err != nil {
		log.WithError(err).WithField("nodeId", nodeID).Warn("failed to persist selected node")
	}
}

// Warm restores the last good snapshot and, if enabled, the UI state from the caches.
// A poll that already landed is never overwritten.
func (r *Reconciler) Warm(ctx context.Context) {
	snapshot, refreshedAt := r.loadCachedSnapshot(ctx)

	var (
		expandedFiles []string
		selected      string
	)

	if r.persistUIState() {
		expandedFiles, selected = r.loadUIState(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fileName := range expandedFiles {
		r.expanded[fileName] = struct{}{}
	}

	if selected != "" && r.selected == "" {
		r.selected = selected
	}

	if r.appliedSeq == 0 && snapshot != nil {
		r.snapshot = snapshot
		r.lastRefreshed = refreshedAt
		r.graph.Reconcile(snapshot)

		log.WithField("lastRefreshed", refreshedAt).WithField("renters", len(snapshot.Renters)).
			WithField("providers", len(snapshot.Providers)).Info("warmed dashboard from cached snapshot")
	}

	// a restored selection is kept until there is a graph to check it against
	if r.snapshot != nil && r.selected != "" && !r.graph.HasNode(r.selected) {
		r.selected = ""
	}

	r.graph.Select(r.selected)
	r.refreshDetailLocked()

	renters, providers, edges := r.graph.Counts()
	metrics.SetGraphSize(renters, providers, edges)
}

func (r *Reconciler) loadCachedSnapshot(ctx context.Context) (*datamodel.Snapshot, time.Time) {
	if r.deps.DbCache != nil {
		var (
			snapshot    *datamodel.Snapshot
			refreshedAt time.Time
		)

		operation := func() error {
			var err error

			snapshot, refreshedAt, err = r.deps.DbCache.GetLastSnapshot(ctx)
			if errors.Is(err, caching.ErrGettingSnapshot) {
				return err
			}

			if err != nil {
				return backoff.Permanent(err)
			}

			// stored snapshots get the same checks as a fresh poll
			err = r.validate.Struct(snapshot)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("%w: %s", caching.ErrCorruptSnapshot, err.Error()))
			}

			return nil
		}

		err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), uint64(r.settingsObj.RetryCount)))
		if err == nil {
			return snapshot, refreshedAt
		}

		log.WithError(err).Info("no snapshot in redis, trying local archive")
	}

	return r.readArchivedSnapshot()
}
