package ui

// StepMsg reports that the current file finished a save step.
type StepMsg struct {
	Step  int
	Total int
}

// FileQueuedMsg adds a file to the queue (watch mode discovers files late).
type FileQueuedMsg struct {
	FileName string
}

// FileStartMsg indicates a new file has started processing
type FileStartMsg struct {
	FileIndex int
	FileName  string
}

// FileCompleteMsg indicates a file has finished processing
type FileCompleteMsg struct {
	FileIndex    int
	RelativePath string
	InputLUFS    float64
	OutputLUFS   float64
	Skipped      bool
	// Fallback is the mastering failure when unprocessed audio was saved.
	Fallback error
	Error    error
}

// AllCompleteMsg indicates all files have been processed
type AllCompleteMsg struct{}
