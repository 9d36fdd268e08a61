package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide metrics, exposed on /metrics
var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxmail_cache_lookups_total",
		Help: "Cache lookups by key kind and result (hit, miss, expired)",
	}, []string{"kind", "result"})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxmail_cache_entries",
		Help: "Number of entries currently held by the expiring cache",
	})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxmail_token_refreshes_total",
		Help: "Refresh-token exchanges by result (ok, rotated, auth_error, network_error)",
	}, []string{"result"})

	IMAPSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxmail_imap_sessions_total",
		Help: "IMAP sessions opened by result (ok, auth_error, network_error, op_error)",
	}, []string{"result"})

	IMAPSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fluxmail_imap_session_duration_seconds",
		Help:    "Wall time from dial to logout of one IMAP session",
		Buckets: prometheus.DefBuckets,
	})
)
