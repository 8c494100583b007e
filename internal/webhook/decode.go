package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"server/internal/domain"
)

// Class tags the discriminated shape of a provider delivery.
type Class int

const (
	// ClassUnrecognized means the payload shape alone does not identify the
	// job kind; callers fall back to a registry lookup on the external id.
	ClassUnrecognized Class = iota
	ClassPrediction
	ClassTraining
)

// Event is the decoded, closed shape handed to the merge path. RawOutput
// keeps the provider's output payload untyped until the class is known.
type Event struct {
	Class     Class
	ID        string
	Status    string
	RawOutput json.RawMessage
	Error     string
}

type envelope struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// trainingOutput is the shape a finished training reports: a new model
// version plus optional weight artifacts.
type trainingOutput struct {
	Version string `json:"version"`
	Weights string `json:"weights"`
}

// Decode parses a raw delivery body into a tagged Event. Classification is
// by output shape: predictions report artifact references (array or string),
// trainings report an object with a model version. Bodies with no output
// yet (queued/processing heartbeats) are unrecognized and classified by the
// caller against the registry.
func Decode(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("webhook payload carries no id")
	}

	ev := &Event{
		Class:     classify(env.Output),
		ID:        env.ID,
		Status:    env.Status,
		RawOutput: env.Output,
		Error:     decodeError(env.Error),
	}
	return ev, nil
}

func classify(output json.RawMessage) Class {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ClassUnrecognized
	}
	switch trimmed[0] {
	case '{':
		return ClassTraining
	case '[', '"':
		return ClassPrediction
	}
	return ClassUnrecognized
}

// JobStatus maps the provider's status vocabulary onto the registry's state
// machine. Pre-terminal provider states all collapse into Processing.
func (e *Event) JobStatus() (domain.JobStatus, bool) {
	switch e.Status {
	case "queued", "starting", "processing":
		return domain.JobStatusProcessing, true
	case "succeeded", "completed":
		return domain.JobStatusSucceeded, true
	case "failed":
		return domain.JobStatusFailed, true
	case "canceled", "cancelled":
		return domain.JobStatusCanceled, true
	}
	return "", false
}

// Outputs extracts result references according to the event class. For
// predictions the output is a reference or list of references; for trainings
// the produced model version and weights are the references.
func (e *Event) Outputs() []string {
	trimmed := bytes.TrimSpace(e.RawOutput)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch e.Class {
	case ClassPrediction:
		var many []string
		if err := json.Unmarshal(trimmed, &many); err == nil {
			return many
		}
		var one string
		if err := json.Unmarshal(trimmed, &one); err == nil && one != "" {
			return []string{one}
		}
	case ClassTraining:
		var out trainingOutput
		if err := json.Unmarshal(trimmed, &out); err == nil {
			refs := make([]string, 0, 2)
			if out.Version != "" {
				refs = append(refs, out.Version)
			}
			if out.Weights != "" {
				refs = append(refs, out.Weights)
			}
			return refs
		}
	}
	return nil
}

// JobEvent converts the decoded delivery into the merge engine's input.
// ok is false when the provider status has no mapping.
func (e *Event) JobEvent() (domain.JobEvent, bool) {
	status, ok := e.JobStatus()
	if !ok {
		return domain.JobEvent{}, false
	}
	return domain.JobEvent{
		ExternalID:   e.ID,
		Status:       status,
		Outputs:      e.Outputs(),
		ErrorMessage: e.Error,
	}, true
}

func decodeError(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
