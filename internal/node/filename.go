// Package node implements the save-audio operation: output naming, mastering
// and writing one WAV file per invocation.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/thlib/go-timezone-local/tzlocal"
)

// DefaultPrefix is used when the sanitised filename prefix comes out empty.
const DefaultPrefix = "ComfyUI"

// MaxAttempts bounds the numbered candidates UniqueFilename tries.
const MaxAttempts = 100000

// ErrNoUniqueName is returned when every numbered candidate already exists.
var ErrNoUniqueName = errors.New("unable to generate unique filename")

var unsafeChars = strings.NewReplacer(
	`\`, "_",
	"/", "_",
	"..", "_",
	".", "_",
	"|", "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"\n", "_",
	"\r", "_",
	"\t", "_",
	"\x00", "_",
	"\x0b", "_",
	"\x0c", "_",
)

var traversalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./+`),
	regexp.MustCompile(`\.\.\\+`),
	regexp.MustCompile(`~`),
	regexp.MustCompile(`^\.`),
	regexp.MustCompile(`\.$`),
	regexp.MustCompile(`^/`),
	regexp.MustCompile(`^\\`),
}

var underscores = regexp.MustCompile(`_+`)

// Sanitize reduces a user-supplied name to a single safe path component.
// Separators, dots and shell metacharacters become underscores; runs of
// underscores collapse and leading/trailing ones are trimmed.
func Sanitize(name string) string {
	if name == "" {
		return ""
	}
	safe := unsafeChars.Replace(name)
	for _, re := range traversalPatterns {
		safe = re.ReplaceAllString(safe, "_")
	}
	safe = underscores.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// Clock supplies the time used for date placeholders.
type Clock func() time.Time

// LocalClock reads the wall clock in the host's IANA time zone, falling back
// to time.Local when the zone cannot be resolved.
func LocalClock() time.Time {
	now := time.Now()
	name, err := tzlocal.RuntimeTZ()
	if err != nil || name == "" {
		return now
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return now
	}
	return now.In(loc)
}

// ReplaceDatetimePlaceholders substitutes %Y% %m% %d% %H% %M% %S% with the
// zero-padded fields of now.
func ReplaceDatetimePlaceholders(text string, now time.Time) string {
	if text == "" {
		return ""
	}
	return strings.NewReplacer(
		"%Y%", now.Format("2006"),
		"%m%", now.Format("01"),
		"%d%", now.Format("02"),
		"%H%", now.Format("15"),
		"%M%", now.Format("04"),
		"%S%", now.Format("05"),
	).Replace(text)
}

// ResolvePrefix sanitises the prefix, expands its placeholders and falls back
// to DefaultPrefix when nothing usable remains.
func ResolvePrefix(prefix string, now time.Time) string {
	base := ReplaceDatetimePlaceholders(Sanitize(prefix), now)
	if base == "" {
		return DefaultPrefix
	}
	return base
}

// ResolveSubfolder sanitises the subfolder and expands its placeholders.
// An empty result means the output directory itself.
func ResolveSubfolder(subfolder string, now time.Time) string {
	return ReplaceDatetimePlaceholders(Sanitize(subfolder), now)
}

// UniqueFilename returns base+ext if it does not exist in dir, otherwise the
// first free base_00001+ext, base_00002+ext, ...
func UniqueFilename(dir, base, ext string) (string, error) {
	for counter := range MaxAttempts {
		candidate := base + ext
		if counter > 0 {
			candidate = fmt.Sprintf("%s_%05d%s", base, counter, ext)
		}
		_, err := os.Stat(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s%s in %s", ErrNoUniqueName, base, ext, dir)
}
