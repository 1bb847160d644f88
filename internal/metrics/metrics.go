// Package metrics holds Prometheus instruments that are used across the
// gate.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by callers.
const (
	MethodPassword = "password"
	MethodSignUp   = "signup"
	MethodSocial   = "social"

	ResultSuccess = "success"
	ResultFailure = "failure"

	DecisionRender   = "render"
	DecisionLoading  = "loading"
	DecisionRedirect = "redirect"
)

var (
	SignInTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sign_in_total",
			Help: "Sign-in attempts by method and result.",
		}, []string{"method", "result"})

	PasswordResetTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_reset_total",
			Help: "Password reset requests by result.",
		}, []string{"result"})

	GuardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Route guard outcomes for protected pages.",
		}, []string{"decision"})

	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_token_refresh_total",
			Help: "ID token refreshes against the identity provider by result.",
		}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		SignInTotal,
		PasswordResetTotal,
		GuardDecisionsTotal,
		TokenRefreshTotal,
	)
}
