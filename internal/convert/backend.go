package convert

import (
	"context"
	"time"

	"meshforge/internal/mesh"
)

// Outcome tags the result of one conversion attempt.
type Outcome int

const (
	// OutcomeSuccess means the backend wrote the requested file.
	OutcomeSuccess Outcome = iota
	// OutcomeSoftFailure means the backend declined or produced nothing usable
	// without an execution error (unsupported input, empty output).
	OutcomeSoftFailure
	// OutcomeHardFailure means the backend failed while running.
	OutcomeHardFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "soft_failure"
	case OutcomeHardFailure:
		return "hard_failure"
	default:
		return "unknown"
	}
}

// Attempt is the result of trying one backend.
type Attempt struct {
	Backend  string
	Outcome  Outcome
	Path     string
	Message  string
	Duration time.Duration
}

// Backend is one strategy for turning an OBJ file into a target format.
type Backend interface {
	Name() string
	Supports(format mesh.Format) bool
	// Probe reports whether the backend's runtime dependency is usable.
	Probe(ctx context.Context) error
	// Convert reads src (OBJ) and writes dst in format. It must only write dst
	// and files inside dst's directory.
	Convert(ctx context.Context, src, dst string, format mesh.Format) Attempt
}

func succeeded(name, path string) Attempt {
	return Attempt{Backend: name, Outcome: OutcomeSuccess, Path: path}
}

func softFailure(name, message string) Attempt {
	return Attempt{Backend: name, Outcome: OutcomeSoftFailure, Message: message}
}

func hardFailure(name string, err error) Attempt {
	return Attempt{Backend: name, Outcome: OutcomeHardFailure, Message: err.Error()}
}
