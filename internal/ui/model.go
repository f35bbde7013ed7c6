// Package ui provides the Bubbletea terminal user interface for xaudiosave
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FileStatus represents the processing state of a single file
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusProcessing
	StatusComplete
	StatusFallback
	StatusError
)

// stepNames label the ten save steps shown under the active file.
var stepNames = map[int]string{
	0:  "Loading audio",
	1:  "Resampled",
	2:  "Output name resolved",
	3:  "Prepared for analysis",
	4:  "Measured input loudness",
	5:  "Compressed",
	6:  "Rough loudness pass",
	7:  "Linear loudness pass",
	8:  "Verified",
	9:  "Mastered",
	10: "Saved",
}

// FileProgress tracks progress for a single audio file
type FileProgress struct {
	InputPath    string
	RelativePath string
	Status       FileStatus

	Step      int
	Total     int
	StartTime time.Time
	Elapsed   time.Duration

	InputLUFS  float64
	OutputLUFS float64
	Skipped    bool

	Fallback error
	Error    error
}

// Model is the Bubbletea model for the processing UI
type Model struct {
	Files          []FileProgress
	CurrentIndex   int
	CompletedFiles int
	FallbackFiles  int
	FailedFiles    int

	// Watching keeps the program alive after the queue drains.
	Watching  bool
	StartTime time.Time
	Done      bool

	spinner spinner.Model

	Width  int
	Height int
}

// NewModel creates a new UI model with the given input files
func NewModel(inputFiles []string, watching bool) Model {
	files := make([]FileProgress, len(inputFiles))
	for i, path := range inputFiles {
		files[i] = FileProgress{InputPath: path, Status: StatusQueued}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		Files:        files,
		CurrentIndex: -1,
		Watching:     watching,
		StartTime:    time.Now(),
		spinner:      s,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case FileQueuedMsg:
		m.Files = append(m.Files, FileProgress{InputPath: msg.FileName, Status: StatusQueued})

	case FileStartMsg:
		if msg.FileIndex < 0 || msg.FileIndex >= len(m.Files) {
			return m, nil
		}
		m.CurrentIndex = msg.FileIndex
		f := &m.Files[m.CurrentIndex]
		f.Status = StatusProcessing
		f.StartTime = time.Now()
		f.Step, f.Total = 0, 0

	case StepMsg:
		if m.CurrentIndex >= 0 && m.CurrentIndex < len(m.Files) {
			f := &m.Files[m.CurrentIndex]
			f.Step = msg.Step
			f.Total = msg.Total
			f.Elapsed = time.Since(f.StartTime)
		}

	case FileCompleteMsg:
		if msg.FileIndex < 0 || msg.FileIndex >= len(m.Files) {
			return m, nil
		}
		f := &m.Files[msg.FileIndex]
		f.RelativePath = msg.RelativePath
		f.InputLUFS = msg.InputLUFS
		f.OutputLUFS = msg.OutputLUFS
		f.Skipped = msg.Skipped
		f.Fallback = msg.Fallback
		f.Error = msg.Error
		f.Elapsed = time.Since(f.StartTime)
		switch {
		case msg.Error != nil:
			f.Status = StatusError
			m.FailedFiles++
		case msg.Fallback != nil:
			f.Status = StatusFallback
			m.FallbackFiles++
		default:
			f.Status = StatusComplete
			m.CompletedFiles++
		}

	case AllCompleteMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}
