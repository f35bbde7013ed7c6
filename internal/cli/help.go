package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Italic(true)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(warnColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(okColor).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// EnvVar documents an environment variable in the help output.
type EnvVar struct {
	Name string
	Help string
}

// helpEntry is one left/right row of a help section.
type helpEntry struct {
	left  string
	right string
}

// helpSection groups entries under a heading, e.g. a kong flag group.
type helpSection struct {
	title   string
	entries []helpEntry
}

// HelpPrinter renders kong help with lipgloss: usage lines, positional
// arguments, flags split by their kong group, then the environment.
func HelpPrinter(description string, env ...EnvVar) kong.HelpPrinter {
	return func(_ kong.HelpOptions, ctx *kong.Context) error {
		name := ctx.Model.Name

		var sb strings.Builder
		sb.WriteString(helpTitleStyle.Render("XAudioSave ♾"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render(description))
		sb.WriteString("\n")

		sections := []helpSection{{title: "Usage", entries: []helpEntry{
			{left: name + " [flags] <files> ..."},
			{left: name + " [flags] --watch <dir>"},
		}}}

		var args []helpEntry
		for _, arg := range ctx.Model.Node.Positional {
			args = append(args, helpEntry{left: arg.Summary(), right: arg.Help})
		}
		if len(args) > 0 {
			sections = append(sections, helpSection{title: "Arguments", entries: args})
		}

		sections = append(sections, flagSections(ctx.Model.Node.Flags)...)

		if len(env) > 0 {
			var entries []helpEntry
			for _, e := range env {
				entries = append(entries, helpEntry{left: e.Name, right: e.Help})
			}
			sections = append(sections, helpSection{title: "Environment", entries: entries})
		}

		for _, s := range sections {
			writeSection(&sb, s)
		}
		sb.WriteString("\n")
		_, err := io.WriteString(ctx.Stdout, sb.String())
		return err
	}
}

// flagSections returns ungrouped flags first as "Flags", then one section
// per kong group in declaration order.
func flagSections(flags []*kong.Flag) []helpSection {
	general := helpSection{
		title:   "Flags",
		entries: []helpEntry{{left: "-h, --help", right: "Show context-sensitive help."}},
	}
	var grouped []helpSection
	index := map[string]int{}

	for _, f := range flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		entry := helpEntry{left: flagUsage(f), right: f.Help}
		if !f.IsBool() && f.HasDefault && f.Default != "" {
			entry.right += " " + helpDefaultStyle.Render("(default: "+f.Default+")")
		}

		if f.Group == nil {
			general.entries = append(general.entries, entry)
			continue
		}
		i, ok := index[f.Group.Key]
		if !ok {
			i = len(grouped)
			index[f.Group.Key] = i
			grouped = append(grouped, helpSection{title: f.Group.Title})
		}
		grouped[i].entries = append(grouped[i].entries, entry)
	}
	return append([]helpSection{general}, grouped...)
}

func flagUsage(f *kong.Flag) string {
	usage := "--" + f.Name
	if f.Short != 0 {
		usage = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	}
	if !f.IsBool() {
		placeholder := f.PlaceHolder
		if placeholder == "" {
			placeholder = f.Name
		}
		usage += "=" + strings.ToUpper(placeholder)
	}
	return usage
}

func writeSection(sb *strings.Builder, s helpSection) {
	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(s.title + ":"))
	sb.WriteString("\n")

	width := 0
	for _, e := range s.entries {
		width = max(width, len(e.left))
	}
	for _, e := range s.entries {
		sb.WriteString("  ")
		if e.right == "" {
			sb.WriteString(e.left)
		} else {
			pad := strings.Repeat(" ", width-len(e.left))
			sb.WriteString(helpFlagStyle.Render(e.left))
			sb.WriteString(pad + "  " + e.right)
		}
		sb.WriteString("\n")
	}
}
