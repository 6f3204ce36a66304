package client

import "time"

// Resources is a resource sample of the server process.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status represents the status of the supervised server.
type Status struct {
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Running    bool       `json:"running"`
	PID        int        `json:"pid,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	StoppedAt  time.Time  `json:"stopped_at,omitempty"`
	ExitCode   int        `json:"exit_code"`
	ExitErr    string     `json:"exit_error,omitempty"`
	LastStop   string     `json:"last_stop,omitempty"`
	Restarts   int        `json:"restarts"`
	LastLineAt time.Time  `json:"last_line_at,omitempty"`
	Resources  *Resources `json:"resources,omitempty"`
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}

// StopResponse tells how the server was stopped: "graceful", "killed" or
// "not_running".
type StopResponse struct {
	Result string `json:"result"`
}

// LogsResponse is the body of GET /logs?follow=false.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
