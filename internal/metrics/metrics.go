package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Publishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailywrite_publishes_total",
			Help: "no. of publish attempts by result",
		},
		[]string{"result"},
	)
	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dailywrite_publish_duration_seconds",
		Help:    "publish attempt duration in seconds, prompts included",
		Buckets: prometheus.DefBuckets,
	})
	RemoteWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dailywrite_remote_writes_total",
		Help: "no. of conditional writes sent to the remote repository",
	})
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dailywrite_version_conflicts_total",
		Help: "no. of remote writes rejected because of a stale content hash",
	})
	AssetPlacements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailywrite_asset_placements_total",
			Help: "no. of pasted images stored, by backend",
		},
		[]string{"backend"},
	)
	DraftSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailywrite_draft_saves_total",
			Help: "no. of draft saves by result",
		},
		[]string{"result"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dailywrite_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultBusy   = "busy"
	ResultEmpty  = "empty"
)
