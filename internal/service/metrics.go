package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth flow metrics. Result labels are a small fixed set so cardinality
// stays bounded.
var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_auth_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_auth_refreshes_total",
			Help: "Refresh token exchanges by result",
		},
		[]string{"result"},
	)

	sessionIssueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wb_auth_session_issue_retries_total",
			Help: "Refresh token hash collisions that caused a retry",
		},
	)

	passwordResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_auth_password_resets_total",
			Help: "Password reset requests and completions by stage and result",
		},
		[]string{"stage", "result"},
	)

	permissionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wb_permission_cache_lookups_total",
			Help: "Permission cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
