package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor = lipgloss.Color("#7D56F4")
	mutedColor  = lipgloss.Color("#888888")
	okColor     = lipgloss.Color("#00AA00")
	warnColor   = lipgloss.Color("#FFA500")
	errorColor  = lipgloss.Color("#A40000")
)

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")
	b.WriteString(renderFileQueue(m))
	b.WriteString("\n")
	b.WriteString(renderOverallProgress(m))

	return b.String()
}

func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accentColor).
		Render("XAudioSave ♾ - Loudness Mastering")

	status := fmt.Sprintf("Processing %d file(s)", len(m.Files))
	if m.Watching {
		status = fmt.Sprintf("Watching for audio, %d file(s) seen. Press q to stop.", len(m.Files))
	}
	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(status)

	return title + "\n" + subtitle
}

func renderFileQueue(m Model) string {
	var b strings.Builder
	for _, file := range m.Files {
		b.WriteString(renderFileEntry(m, file))
		b.WriteString("\n")
	}
	return b.String()
}

func renderFileEntry(m Model, file FileProgress) string {
	fileName := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(okColor).Render("✓")
		return fmt.Sprintf(" %s %s → %s\n   %s", icon, fileName, file.RelativePath, loudnessSummary(file))

	case StatusFallback:
		icon := lipgloss.NewStyle().Foreground(warnColor).Render("!")
		return fmt.Sprintf(" %s %s → %s\n   Saved unprocessed: %v", icon, fileName, file.RelativePath, file.Fallback)

	case StatusProcessing:
		return fmt.Sprintf(" %s %s\n%s", m.spinner.View(), fileName, renderFileDetails(file))

	case StatusError:
		icon := lipgloss.NewStyle().Foreground(errorColor).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error: %v", icon, fileName, file.Error)

	default:
		icon := lipgloss.NewStyle().Foreground(mutedColor).Render("○")
		return fmt.Sprintf(" %s %s\n   Queued...", icon, fileName)
	}
}

func loudnessSummary(file FileProgress) string {
	if file.Skipped {
		return "Saved without gain changes"
	}
	return fmt.Sprintf("Input: %.1f LUFS | Output: %.1f LUFS | Δ %+.1f dB",
		file.InputLUFS, file.OutputLUFS, file.OutputLUFS-file.InputLUFS)
}

// renderFileDetails renders the step list for the active file
func renderFileDetails(file FileProgress) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(60)

	total := file.Total
	if total == 0 {
		total = 10
	}
	var content strings.Builder
	fmt.Fprintf(&content, "Step %d/%d: %s\n", file.Step, total, stepNames[file.Step])
	content.WriteString(renderProgressBar(float64(file.Step)/float64(total), 40))
	content.WriteString("\n")
	fmt.Fprintf(&content, "⏱  Elapsed: %.1fs", file.Elapsed.Seconds())

	return box.Render(content.String())
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	progress = max(0, min(1, progress))
	filled := int(progress * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %d%%", bar, int(progress*100))
}

func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(60)

	done := m.CompletedFiles + m.FallbackFiles + m.FailedFiles
	var content string
	if m.CurrentIndex >= 0 && m.CurrentIndex < len(m.Files) {
		content = fmt.Sprintf("Processing file %d of %d (%d done)", m.CurrentIndex+1, len(m.Files), done)
	} else {
		content = fmt.Sprintf("Overall Progress: %d/%d done", done, len(m.Files))
	}
	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(okColor).
		Render("✨ Processing Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, file := range m.Files {
		if file.Status == StatusQueued || file.Status == StatusProcessing {
			continue
		}
		b.WriteString(renderFileEntry(m, file))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d mastered, %d saved unprocessed, %d failed\n",
		m.CompletedFiles, m.FallbackFiles, m.FailedFiles)

	return b.String()
}
