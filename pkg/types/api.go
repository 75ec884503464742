package types

// OCRResponse is returned by POST /ocr.
type OCRResponse struct {
	// Recognized text.
	// example: 12345
	Text string `json:"text" example:"12345"`
	// Model that served the request; empty for the bundled default.
	// example: captcha-v3
	Model string `json:"model,omitempty" example:"captcha-v3"`
	// Charset restriction applied, if any.
	// example: number
	Charset string `json:"charset,omitempty" example:"number"`
	// Wall time spent in the pool, in milliseconds.
	// example: 85
	DurationMS int64 `json:"duration_ms" example:"85"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Named models found in the assets directory.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: ocr: no result within 1m0s
	Error string `json:"error" example:"ocr: no result within 1m0s"`
	// HTTP status code.
	// example: 504
	Code int `json:"code" example:"504"`
}

// InstanceStatus summarizes one pool instance for /status.
type InstanceStatus struct {
	// Model served; empty for the bundled default.
	// example: captcha-v3
	Model string `json:"model" example:"captcha-v3"`
	// Charset restriction of the instance.
	// example: number
	Charset string `json:"charset,omitempty" example:"number"`
	// Lifecycle state (idle, starting, running, stopping, crashed).
	// example: running
	State string `json:"state" example:"running"`
	// Worker process id while one is running.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Requests awaiting a reply.
	// example: 0
	Pending int `json:"pending" example:"0"`
	// Active subscriptions holding the worker alive.
	// example: 1
	Subscribers int `json:"subscribers" example:"1"`
	// Last time the instance was used (unix seconds).
	// example: 1700000000
	LastActive int64 `json:"last_active_unix" example:"1700000000"`
	// Last start failure or crash reason, if any.
	LastError string `json:"last_error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Known pool instances.
	Instances []InstanceStatus `json:"instances"`
	// Number of instances with a live worker.
	// example: 1
	RunningWorkers int `json:"running_workers" example:"1"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
