package tracker

// Failure pairs a task ID with the error that kept it from progressing.
type Failure struct {
	TaskID string
	Err    error
}

// Report is the outcome of one Evaluate pass.
type Report struct {
	Evaluated int
	Notified  []string // entered the notified set
	Rearmed   []string // left the set because the deadline moved out
	Pruned    []string // left the set because the task vanished upstream
	Failed    []Failure
	Malformed []Failure
}

// OK reports whether every notification in the pass was delivered.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// FailedIDs returns the IDs whose notification failed, in pass order.
func (r Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.TaskID)
	}
	return ids
}
