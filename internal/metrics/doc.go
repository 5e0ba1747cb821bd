/*
Package metrics provides Prometheus-based metrics collection for the tutoring
response pipeline.

# Overview

The Collector registers every metric once on a caller-supplied Registerer and
exposes typed record methods for the pipeline stages. A nil Collector is a
valid no-op, so wiring metrics stays optional throughout the pipeline.

# Metric groups

  - Pipeline: request totals and end-to-end duration by outcome
    (ok, filtered, sanitized, rate_limited, error).
  - LLM: completion request totals and duration by provider/model/status,
    token usage by prompt/completion, and USD spend by model.
  - Safety: content filter violations by kind and severity.
  - Resilience: circuit breaker state transitions.
  - Context: messages dropped per history pruning pass.
*/
package metrics
