package executor

import "context"

// Recorder collects statements instead of executing them.
type Recorder struct {
	Statements []string
}

func (r *Recorder) Exec(_ context.Context, stmt string) error {
	r.Statements = append(r.Statements, stmt)
	return nil
}
