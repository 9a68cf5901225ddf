package ui

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/illarion/credvault/internal/core"
)

const mask = "********"

// FormatCredential renders a credential as its name followed by one
// "key: value" line per entry. Values are masked unless reveal is set.
func FormatCredential(c *core.Credential, reveal bool) string {
	var b strings.Builder
	b.WriteString(Highlight.Sprint(c.Name))
	b.WriteByte('\n')
	for _, line := range entryLines(c.Entries, nil, reveal) {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// CredentialDiff renders a line diff of a credential before and after an
// update. Unchanged lines are prefixed with two spaces, removed lines with
// "- " and added lines with "+ ". With values masked, a changed value shows
// up as a masked line marked "(changed)". Returns "" when nothing changed.
func CredentialDiff(before, after *core.Credential, reveal bool) string {
	oldText := diffText(before, nil, reveal)
	newText := diffText(after, before.Entries, reveal)
	if oldText == newText {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out strings.Builder
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out.WriteString("  " + line)
			case diffmatchpatch.DiffDelete:
				out.WriteString(Removed.Sprint("- " + line))
			case diffmatchpatch.DiffInsert:
				out.WriteString(Added.Sprint("+ " + line))
			}
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func diffText(c *core.Credential, previous core.Entries, reveal bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\n", c.Name)
	for _, line := range entryLines(c.Entries, previous, reveal) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// entryLines renders entries one per line. When masking, values that differ
// from the same key in previous are flagged.
func entryLines(entries, previous core.Entries, reveal bool) []string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		value := e.Value
		if !reveal {
			value = mask
			if old, ok := previous.Get(e.Key); ok && old != e.Value {
				value += " (changed)"
			}
		}
		lines[i] = e.Key + ": " + value
	}
	return lines
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
