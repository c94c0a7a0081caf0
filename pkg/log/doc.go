/*
Package log provides structured logging for the session scheduler using
zerolog.

It wraps zerolog to provide JSON or console-formatted logging with
component- and entity-scoped child loggers, a configurable level, and a
small set of package-level helpers for call sites that don't need a
structured field.

# Usage

Initializing the logger, once, at process start:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("coordinator started")
	log.Errorf("session stuck in PULLING", err)

Entity-scoped child loggers, used throughout pkg/scheduler, pkg/handlers,
and pkg/health so every line carries the session/kernel/agent it concerns:

	sessLog := log.WithSessionID(session.ID)
	sessLog.Info().Str("handler", h.Name()).Msg("transition applied")

	agentLog := log.WithAgentID(agent.ID).With().
		Str("scaling_group", agent.ScalingGroup).Logger()
	agentLog.Warn().Msg("agent missed heartbeat threshold")

# Integration points

  - pkg/scheduler: logs coordinator rounds, lock acquisition, handler results
  - pkg/handlers: logs placement misses and hook or cleanup failures
  - pkg/health: logs per-status check failures and per-round totals
  - cmd/sessiond: logs process startup and shutdown

# Log levels

Debug is for step-by-step tracing during development; Info is the default
production level and covers lifecycle transitions; Warn covers recoverable
anomalies (missed heartbeats, skipped rounds due to lock contention); Error
covers handler/keeper failures that did not crash the process; Fatal exits
the process immediately and should only be used for unrecoverable startup
failures (e.g. failing to open the Bolt store).
*/
package log
