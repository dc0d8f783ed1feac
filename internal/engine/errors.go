package engine

import "fmt"

// InvalidTransitionError reports a move the transition graph does not permit.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// AdmissionDeniedError reports a target stage at its WIP limit. Count is the
// stage population before the attempted move.
type AdmissionDeniedError struct {
	Stage string
	Count int
	Limit int
}

func (e AdmissionDeniedError) Error() string {
	return fmt.Sprintf("stage %s at WIP limit: %d of %d", e.Stage, e.Count, e.Limit)
}

// ConcurrentModificationError reports a compare-and-swap miss on a stage write.
// Callers re-fetch authoritative state and retry.
type ConcurrentModificationError struct {
	ProjectID string
}

func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("project %s was modified concurrently", e.ProjectID)
}

// ValidationError reports malformed trigger or config input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string {
	return e.Msg
}
