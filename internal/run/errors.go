package run

// Stage identifies the pipeline stage a run failed in.
type Stage string

const (
	StageRetrieve  Stage = "retrieve"
	StageSummarize Stage = "summarize"
	StageDeliver   Stage = "deliver"
)

// StageError wraps a stage failure exactly once. No stage swallows or
// downgrades an error; the single top-level caller reports it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
