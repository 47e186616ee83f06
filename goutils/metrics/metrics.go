package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storage_dashboard"

type PollOutcome string

const (
	PollSuccess   PollOutcome = "success"
	PollFailed    PollOutcome = "failed"
	PollMalformed PollOutcome = "malformed"
)

type AuditOutcome string

const (
	AuditPassed  AuditOutcome = "passed"
	AuditCorrupt AuditOutcome = "corrupt"
	AuditErrored AuditOutcome = "errored"
)

var (
	Registry = prometheus.NewRegistry()

	snapshotPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_polls_total",
		Help:      "Snapshot polls partitioned by outcome.",
	}, []string{"outcome"})

	blockAudits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_audits_total",
		Help:      "Block audit requests partitioned by outcome.",
	}, []string{"outcome"})

	pendingAudits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_audits",
		Help:      "Blocks with an audit request in flight.",
	})

	graphNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_nodes",
		Help:      "Nodes in the live network graph by group.",
	}, []string{"group"})

	graphEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_edges",
		Help:      "Distinct renter to provider edges in the live network graph.",
	})
)

func init() {
	Registry.MustRegister(snapshotPolls, blockAudits, pendingAudits, graphNodes, graphEdges)
}

func ObservePoll(outcome PollOutcome) {
	snapshotPolls.WithLabelValues(string(outcome)).Inc()
}

func ObserveAudit(outcome AuditOutcome) {
	blockAudits.WithLabelValues(string(outcome)).Inc()
}

func SetPendingAudits(n int) {
	pendingAudits.Set(float64(n))
}

func SetGraphSize(renters, providers, edges int) {
	graphNodes.WithLabelValues("renter").Set(float64(renters))
	graphNodes.WithLabelValues("provider").Set(float64(providers))
	graphEdges.Set(float64(edges))
}
