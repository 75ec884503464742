// Package ocr runs captcha recognition in dedicated worker processes and
// multiplexes concurrent callers over them. It is structured into small files
// by concern:
//
//   - registry.go: Registry, one Instance per InferenceConfig.
//   - instance.go: Instance lifecycle, Run, and subscriber reference counting.
//   - monitor.go: per-session goroutine that resolves replies, evicts idle
//     workers and detects crashes.
//   - correlator.go: pending request table keyed by request id.
//   - process.go: child process handle (pipes, stderr forwarding, stop).
//   - launcher.go: how a worker process is spawned for a config.
//   - config.go: Options and package defaults.
//   - errors.go: error types and helpers (IsTimeout, IsWorkerStopped, ...).
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors for the pool.
//   - status.go: Snapshot reporting.
//
// The worker side of the process boundary lives in the worker subpackage and
// the wire format in protocol.
package ocr
