// Package diff produces short human-readable summaries of how one revision
// of a document differs from another.
package diff

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// NoChanges is the summary of two identical texts.
	NoChanges = "No changes detected."

	// MaxLines bounds line-level alignment; larger inputs are counted by
	// line hashes only.
	MaxLines = 20000

	// maxAlignItems bounds each side of the differing middle handed to the
	// matcher once the common prefix and suffix are stripped. Larger middles
	// are counted as multisets.
	maxAlignItems = 2000

	contextLines = 3
	excerptRunes = 120
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

type Summary struct {
	Identical bool `json:"identical"`

	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	LinesChanged int `json:"lines_changed"`

	ParagraphsAdded   int `json:"paragraphs_added"`
	ParagraphsRemoved int `json:"paragraphs_removed"`
	ParagraphsChanged int `json:"paragraphs_changed"`

	WordsBefore int `json:"words_before"`
	WordsAfter  int `json:"words_after"`

	Excerpt string `json:"excerpt,omitempty"`
}

func (s Summary) WordDelta() int {
	return s.WordsAfter - s.WordsBefore
}

func (s Summary) String() string {
	if s.Identical {
		return NoChanges
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lines added: %d, Lines removed: %d, Lines changed: %d\n",
		s.LinesAdded, s.LinesRemoved, s.LinesChanged)
	fmt.Fprintf(&b, "Paragraphs added: %d, removed: %d, changed: %d\n",
		s.ParagraphsAdded, s.ParagraphsRemoved, s.ParagraphsChanged)
	fmt.Fprintf(&b, "Word count change: %+d words (%d → %d)", s.WordDelta(), s.WordsBefore, s.WordsAfter)
	if s.Excerpt != "" {
		fmt.Fprintf(&b, "\n%s", s.Excerpt)
	}
	return b.String()
}

// Summarize describes the change from oldText to newText. It is pure and
// never returns an empty string.
func Summarize(oldText, newText string) string {
	return Compare(oldText, newText).String()
}

func Compare(oldText, newText string) Summary {
	s := Summary{
		WordsBefore: len(strings.Fields(oldText)),
		WordsAfter:  len(strings.Fields(newText)),
	}
	if oldText == newText {
		s.Identical = true
		return s
	}

	oldParas := splitParagraphs(oldText)
	newParas := splitParagraphs(newText)
	var added, removed []string
	if ops, exact := align(oldParas, newParas); exact {
		s.ParagraphsAdded, s.ParagraphsRemoved, s.ParagraphsChanged = tallyOps(ops)
		added, removed = opBlocks(ops, oldParas, newParas)
	} else {
		s.ParagraphsAdded, s.ParagraphsRemoved, s.ParagraphsChanged = tallyMultiset(oldParas, newParas)
		added, removed = unmatched(oldParas, newParas)
	}
	s.Excerpt = excerpt(added, removed)

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")
	if len(oldLines) > MaxLines || len(newLines) > MaxLines {
		s.LinesAdded, s.LinesRemoved, s.LinesChanged = tallyMultiset(oldLines, newLines)
		return s
	}
	if ops, exact := align(oldLines, newLines); exact {
		s.LinesAdded, s.LinesRemoved, s.LinesChanged = tallyOps(ops)
	} else {
		s.LinesAdded, s.LinesRemoved, s.LinesChanged = tallyMultiset(oldLines, newLines)
	}
	return s
}

// Unified renders a unified diff with three lines of context, or "" when the
// texts are identical. Oversized changes are rendered as one replaced block.
func Unified(oldText, newText string) string {
	if oldText == newText {
		return ""
	}
	a := difflib.SplitLines(oldText)
	b := difflib.SplitLines(newText)
	ops, _ := align(a, b)

	var out strings.Builder
	out.WriteString("--- previous\n+++ edited\n")
	for _, g := range group(ops, contextLines) {
		first, last := g[0], g[len(g)-1]
		fmt.Fprintf(&out, "@@ -%s +%s @@\n", formatRange(first.I1, last.I2), formatRange(first.J1, last.J2))
		for _, op := range g {
			if op.Tag == 'e' {
				writeLines(&out, " ", a[op.I1:op.I2])
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				writeLines(&out, "-", a[op.I1:op.I2])
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				writeLines(&out, "+", b[op.J1:op.J2])
			}
		}
	}
	return out.String()
}

// align strips the common prefix and suffix and runs the matcher over the
// rest. When the rest is too large to match it is reported as a single
// replaced block and exact is false.
func align(a, b []string) (ops []difflib.OpCode, exact bool) {
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	q := 0
	for q < len(a)-p && q < len(b)-p && a[len(a)-1-q] == b[len(b)-1-q] {
		q++
	}
	aEnd, bEnd := len(a)-q, len(b)-q

	if p > 0 {
		ops = append(ops, difflib.OpCode{Tag: 'e', I1: 0, I2: p, J1: 0, J2: p})
	}

	exact = true
	am, bm := a[p:aEnd], b[p:bEnd]
	switch {
	case len(am) == 0 && len(bm) == 0:
	case len(am) == 0:
		ops = append(ops, difflib.OpCode{Tag: 'i', I1: p, I2: p, J1: p, J2: bEnd})
	case len(bm) == 0:
		ops = append(ops, difflib.OpCode{Tag: 'd', I1: p, I2: aEnd, J1: p, J2: p})
	case len(am) > maxAlignItems || len(bm) > maxAlignItems:
		exact = false
		ops = append(ops, difflib.OpCode{Tag: 'r', I1: p, I2: aEnd, J1: p, J2: bEnd})
	default:
		for _, op := range difflib.NewMatcher(am, bm).GetOpCodes() {
			op.I1, op.I2, op.J1, op.J2 = op.I1+p, op.I2+p, op.J1+p, op.J2+p
			ops = append(ops, op)
		}
	}

	if q > 0 {
		ops = append(ops, difflib.OpCode{Tag: 'e', I1: aEnd, I2: len(a), J1: bEnd, J2: len(b)})
	}
	return ops, exact
}

func tallyOps(ops []difflib.OpCode) (added, removed, changed int) {
	for _, op := range ops {
		oldN := op.I2 - op.I1
		newN := op.J2 - op.J1
		switch op.Tag {
		case 'i':
			added += newN
		case 'd':
			removed += oldN
		case 'r':
			c := min(oldN, newN)
			changed += c
			added += newN - c
			removed += oldN - c
		}
	}
	return added, removed, changed
}

// tallyMultiset counts items present on only one side, ignoring order.
// Unmatched pairs count as changed.
func tallyMultiset(a, b []string) (added, removed, changed int) {
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	common := 0
	for _, s := range b {
		if counts[s] > 0 {
			counts[s]--
			common++
		}
	}
	removed = len(a) - common
	added = len(b) - common
	changed = min(added, removed)
	return added - changed, removed - changed, changed
}

func opBlocks(ops []difflib.OpCode, oldParas, newParas []string) (added, removed []string) {
	for _, op := range ops {
		switch op.Tag {
		case 'r', 'i':
			added = append(added, strings.Join(newParas[op.J1:op.J2], " "))
		case 'd':
			removed = append(removed, strings.Join(oldParas[op.I1:op.I2], " "))
		}
	}
	return added, removed
}

func unmatched(a, b []string) (added, removed []string) {
	inA := make(map[string]int, len(a))
	for _, s := range a {
		inA[s]++
	}
	inB := make(map[string]int, len(b))
	for _, s := range b {
		inB[s]++
	}
	for _, s := range b {
		if inA[s] > 0 {
			inA[s]--
			continue
		}
		added = append(added, s)
	}
	for _, s := range a {
		if inB[s] > 0 {
			inB[s]--
			continue
		}
		removed = append(removed, s)
	}
	return added, removed
}

func splitParagraphs(s string) []string {
	raw := paragraphBreak.Split(strings.ReplaceAll(s, "\r\n", "\n"), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// excerpt quotes the added block with the most words, falling back to the
// largest removal.
func excerpt(added, removed []string) string {
	if text, words := widest(added); words > 0 {
		return fmt.Sprintf("Changed: %q", clip(text))
	}
	if text, words := widest(removed); words > 0 {
		return fmt.Sprintf("Removed: %q", clip(text))
	}
	return ""
}

func widest(blocks []string) (string, int) {
	best, bestWords := "", 0
	for _, b := range blocks {
		if w := len(strings.Fields(b)); w > bestWords {
			best, bestWords = b, w
		}
	}
	return best, bestWords
}

func clip(s string) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= excerptRunes {
		return string(r)
	}
	return strings.TrimSpace(string(r[:excerptRunes])) + "…"
}

// group splits ops into hunks with n lines of context around each change.
func group(ops []difflib.OpCode, n int) [][]difflib.OpCode {
	codes := append([]difflib.OpCode(nil), ops...)
	if len(codes) == 0 {
		return nil
	}
	if c := codes[0]; c.Tag == 'e' {
		codes[0] = difflib.OpCode{Tag: 'e', I1: max(c.I1, c.I2-n), I2: c.I2, J1: max(c.J1, c.J2-n), J2: c.J2}
	}
	if c := codes[len(codes)-1]; c.Tag == 'e' {
		codes[len(codes)-1] = difflib.OpCode{Tag: 'e', I1: c.I1, I2: min(c.I2, c.I1+n), J1: c.J1, J2: min(c.J2, c.J1+n)}
	}

	var groups [][]difflib.OpCode
	var cur []difflib.OpCode
	for _, c := range codes {
		i1, i2, j1, j2 := c.I1, c.I2, c.J1, c.J2
		if c.Tag == 'e' && i2-i1 > 2*n {
			cur = append(cur, difflib.OpCode{Tag: 'e', I1: i1, I2: min(i2, i1+n), J1: j1, J2: min(j2, j1+n)})
			groups = append(groups, cur)
			cur = nil
			i1, j1 = max(i1, i2-n), max(j1, j2-n)
		}
		cur = append(cur, difflib.OpCode{Tag: c.Tag, I1: i1, I2: i2, J1: j1, J2: j2})
	}
	if len(cur) > 0 && !(len(cur) == 1 && cur[0].Tag == 'e') {
		groups = append(groups, cur)
	}
	return groups
}

func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	switch length {
	case 0:
		return fmt.Sprintf("%d,0", beginning-1)
	case 1:
		return fmt.Sprintf("%d", beginning)
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

func writeLines(out *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		out.WriteString(prefix)
		out.WriteString(l)
	}
}
