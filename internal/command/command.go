// Package command defines the wire-level request/response protocol shared
// by the daemon, the CLI and any other control surface.
package command

import (
	"encoding/json"
	"fmt"
)

// Action names accepted over the control socket.
const (
	StartSession     = "START_SESSION"
	StopSession      = "STOP_SESSION"
	PauseSession     = "PAUSE_SESSION"
	ResumeSession    = "RESUME_SESSION"
	ToggleMode       = "TOGGLE_MODE"
	SetIntercept     = "SET_INTERCEPT"
	AddWorkDomain    = "ADD_WORK_DOMAIN"
	RemoveWorkDomain = "REMOVE_WORK_DOMAIN"
	ListWorkDomains  = "LIST_WORK_DOMAINS"
	SetDurations     = "SET_DURATIONS"
	GetState         = "GET_STATE"

	// Handled off the event loop: these may block on I/O.
	Chat       = "CHAT"
	TaskAdd    = "TASK_ADD"
	TaskList   = "TASK_LIST"
	TaskDone   = "TASK_DONE"
	TaskRemove = "TASK_REMOVE"
)

// ErrUnknownAction is the canonical error text for unrecognized actions.
const ErrUnknownAction = "Unknown action"

// Request is one command sent to the daemon. Fields beyond Action are
// populated per action; unused ones are omitted from the wire.
type Request struct {
	Action string `json:"action"`

	// Duration in seconds, for START_SESSION (0 means configured default).
	Duration int `json:"duration,omitempty"`

	// Domain for ADD_WORK_DOMAIN / REMOVE_WORK_DOMAIN.
	Domain string `json:"domain,omitempty"`

	// Enabled for SET_INTERCEPT.
	Enabled *bool `json:"enabled,omitempty"`

	// WorkDuration / RestDuration in seconds, for SET_DURATIONS.
	WorkDuration int `json:"workDuration,omitempty"`
	RestDuration int `json:"restDuration,omitempty"`

	// Message for CHAT, Text for TASK_ADD, ID for TASK_DONE / TASK_REMOVE.
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// Response is the daemon's answer. Every request gets exactly one.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK builds a success response carrying the given payload.
func OK(payload any) Response {
	if payload == nil {
		return Response{Success: true}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Fail(fmt.Sprintf("encode response: %v", err))
	}
	return Response{Success: true, Data: data}
}

// Fail builds an error response.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}

// Unknown is the response for an unrecognized action. Commands the daemon
// does not understand must never crash it.
func Unknown() Response {
	return Fail(ErrUnknownAction)
}

var knownActions = map[string]struct{}{
	StartSession:     {},
	StopSession:      {},
	PauseSession:     {},
	ResumeSession:    {},
	ToggleMode:       {},
	SetIntercept:     {},
	AddWorkDomain:    {},
	RemoveWorkDomain: {},
	ListWorkDomains:  {},
	SetDurations:     {},
	GetState:         {},
	Chat:             {},
	TaskAdd:          {},
	TaskList:         {},
	TaskDone:         {},
	TaskRemove:       {},
}

// Known reports whether the action name is part of the protocol.
func Known(action string) bool {
	_, ok := knownActions[action]
	return ok
}

// Blocking reports whether the action may block on external I/O and must
// therefore be handled off the daemon event loop.
func Blocking(action string) bool {
	switch action {
	case Chat, TaskAdd, TaskList, TaskDone, TaskRemove:
		return true
	}
	return false
}

// Parse decodes one request line.
func Parse(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("decode request: missing action")
	}
	return req, nil
}
