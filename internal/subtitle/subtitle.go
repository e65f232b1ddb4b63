// Package subtitle parses and rebuilds SRT-style subtitle documents. Only the
// human-readable text spans are ever rewritten; sequence numbers and timing
// lines pass through untouched.
package subtitle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoCues is returned when a document contains no parseable cues.
var ErrNoCues = errors.New("no subtitle cues found")

// Cue is one subtitle entry: its sequence number, the raw timing line and the
// text block.
type Cue struct {
	Seq    int
	Timing string
	Text   string
}

// cuePattern matches SRT cues, tolerating both comma and dot millisecond
// separators so VTT-flavored exports parse too.
var cuePattern = regexp.MustCompile(
	`(\d+)\s+(\d{2}:\d{2}:\d{2}[.,]\d{3}\s+-->\s+\d{2}:\d{2}:\d{2}[.,]\d{3})\s+([\s\S]*?)(?:\n\s*\n|\z)`)

// markerPattern matches the per-line markers used to keep translated output
// aligned with the source cues.
var markerPattern = regexp.MustCompile(`^\[LINE_(\d+)\](.*)$`)

// Parse extracts the cues from an SRT document.
func Parse(doc string) ([]Cue, error) {
	matches := cuePattern.FindAllStringSubmatch(doc, -1)
	if len(matches) == 0 {
		return nil, ErrNoCues
	}

	cues := make([]Cue, 0, len(matches))
	for _, m := range matches {
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cues = append(cues, Cue{
			Seq:    seq,
			Timing: strings.TrimSpace(m[2]),
			Text:   strings.TrimSpace(m[3]),
		})
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

// MarkedText renders the cues' text spans one per line, each prefixed with a
// [LINE_n] marker carrying the cue's sequence number. This is the document
// handed to the translation service.
func MarkedText(cues []Cue) string {
	var b strings.Builder
	for _, cue := range cues {
		fmt.Fprintf(&b, "[LINE_%d]%s\n", cue.Seq, cue.Text)
	}
	return b.String()
}

// ParseMarkedText maps the translated document back to sequence numbers.
// Lines without a marker are dropped; stray wrapping punctuation the model
// tends to add around a line is trimmed.
func ParseMarkedText(doc string) map[int]string {
	translations := make(map[int]string)
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := markerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		translations[seq] = trimWrappingPunct(strings.TrimSpace(m[2]))
	}
	return translations
}

// Rebuild assembles a full SRT document from the original cues and the
// translated text spans. Cues without a translation are omitted; timing lines
// are reproduced exactly.
func Rebuild(cues []Cue, translations map[int]string) string {
	var b strings.Builder
	for _, cue := range cues {
		text, ok := translations[cue.Seq]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s\n%s\n\n", cue.Seq, cue.Timing, text)
	}
	return b.String()
}

// trimWrappingPunct strips quote and bracket punctuation the translator may
// wrap a line in, keeping sentence-final '!' and '?'.
func trimWrappingPunct(s string) string {
	const cutset = "\"'`.,;:()[]{}<>|~@#$%^&*_-+=\\/"
	return strings.Trim(s, cutset)
}
