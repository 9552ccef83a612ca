package diff

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSummarize_Identical(t *testing.T) {
	texts := []string{"", "hello", "# Title\n\nBody paragraph.\n"}
	for _, text := range texts {
		if got := Summarize(text, text); got != NoChanges {
			t.Errorf("Summarize(%q, same) = %q, want %q", text, got, NoChanges)
		}
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	oldText := "# Intro\n\nGo is fun.\n\nIt compiles fast."
	newText := "# Intro\n\nGo is a lot of fun.\n\nIt compiles fast.\n\nAnd it ships static binaries."

	first := Summarize(oldText, newText)
	for i := 0; i < 5; i++ {
		if got := Summarize(oldText, newText); got != first {
			t.Fatalf("Summarize() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name          string
		oldText       string
		newText       string
		linesAdded    int
		linesRemoved  int
		linesChanged  int
		parasAdded    int
		parasRemoved  int
		parasChanged  int
		wordDelta     int
		excerptPrefix string
	}{
		{
			name:          "paragraph appended",
			oldText:       "First paragraph.",
			newText:       "First paragraph.\n\nSecond paragraph here.",
			linesAdded:    2,
			parasAdded:    1,
			wordDelta:     3,
			excerptPrefix: "Changed: \"Second paragraph here.\"",
		},
		{
			name:          "paragraph removed",
			oldText:       "Keep me.\n\nDrop this one please.",
			newText:       "Keep me.",
			linesRemoved:  2,
			parasRemoved:  1,
			wordDelta:     -4,
			excerptPrefix: "Removed: \"Drop this one please.\"",
		},
		{
			name:          "line rewritten",
			oldText:       "Title\nThe cat sat.",
			newText:       "Title\nThe dog sat on the mat.",
			linesChanged:  1,
			parasChanged:  1,
			wordDelta:     3,
			excerptPrefix: "Changed: \"Title The dog sat on the mat.\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compare(tt.oldText, tt.newText)

			if s.Identical {
				t.Fatal("Compare() reported identical texts")
			}
			if s.LinesAdded != tt.linesAdded || s.LinesRemoved != tt.linesRemoved || s.LinesChanged != tt.linesChanged {
				t.Errorf("lines = +%d -%d ~%d, want +%d -%d ~%d",
					s.LinesAdded, s.LinesRemoved, s.LinesChanged, tt.linesAdded, tt.linesRemoved, tt.linesChanged)
			}
			if s.ParagraphsAdded != tt.parasAdded || s.ParagraphsRemoved != tt.parasRemoved || s.ParagraphsChanged != tt.parasChanged {
				t.Errorf("paragraphs = +%d -%d ~%d, want +%d -%d ~%d",
					s.ParagraphsAdded, s.ParagraphsRemoved, s.ParagraphsChanged, tt.parasAdded, tt.parasRemoved, tt.parasChanged)
			}
			if s.WordDelta() != tt.wordDelta {
				t.Errorf("WordDelta() = %d, want %d", s.WordDelta(), tt.wordDelta)
			}
			if !strings.HasPrefix(s.Excerpt, tt.excerptPrefix) {
				t.Errorf("Excerpt = %q, want prefix %q", s.Excerpt, tt.excerptPrefix)
			}
		})
	}
}

func TestSummary_String(t *testing.T) {
	got := Summarize("one two", "one two three")

	if got == "" || got == NoChanges {
		t.Fatalf("Summarize() = %q, want a change description", got)
	}
	if !strings.Contains(got, "Word count change: +1 words (2 → 3)") {
		t.Errorf("Summarize() missing word delta: %q", got)
	}
	if !strings.Contains(got, "Lines changed: 1") {
		t.Errorf("Summarize() missing line counts: %q", got)
	}
}

func TestSummarize_WhitespaceOnlyChange(t *testing.T) {
	got := Summarize("text", "text\n")
	if got == NoChanges || got == "" {
		t.Errorf("Summarize() = %q, want a non-empty change description", got)
	}
}

func TestCompare_ExcerptIsClipped(t *testing.T) {
	long := strings.Repeat("word ", 100)
	s := Compare("short", long)

	if n := len([]rune(s.Excerpt)); n > excerptRunes+len("Changed: \"\"")+1 {
		t.Errorf("excerpt too long: %d runes", n)
	}
	if !strings.Contains(s.Excerpt, "…") {
		t.Errorf("excerpt not clipped: %q", s.Excerpt)
	}
}

func TestCompare_LargeInputFallsBackToParagraphs(t *testing.T) {
	var oldB, newB strings.Builder
	for i := 0; i < MaxLines+10; i++ {
		oldB.WriteString("line\n")
		newB.WriteString("line\n")
	}
	newB.WriteString("\nA brand new closing paragraph.")

	s := Compare(oldB.String(), newB.String())
	if s.ParagraphsAdded != 1 {
		t.Errorf("ParagraphsAdded = %d, want 1", s.ParagraphsAdded)
	}
	if s.LinesAdded != 1 {
		t.Errorf("LinesAdded = %d, want 1", s.LinesAdded)
	}
}

func TestUnified(t *testing.T) {
	if got := Unified("same", "same"); got != "" {
		t.Errorf("Unified() identical = %q, want empty", got)
	}

	got := Unified("a\nb\nc\n", "a\nB\nc\n")
	for _, want := range []string{"--- previous", "+++ edited", "-b", "+B"} {
		if !strings.Contains(got, want) {
			t.Errorf("Unified() missing %q in:\n%s", want, got)
		}
	}
}

func TestCompare_RepetitiveInputIsBounded(t *testing.T) {
	tests := []struct {
		name        string
		old, edited func() string
		wantChanged int
	}{
		{
			name: "identical lines with scattered edits",
			old:  func() string { return strings.Repeat("same line\n", MaxLines-1) },
			edited: func() string {
				lines := strings.Split(strings.Repeat("same line\n", MaxLines-1), "\n")
				for i := 0; i < 9; i++ {
					lines[100+i*2000] = fmt.Sprintf("edited line %d", i)
				}
				return strings.Join(lines, "\n")
			},
			wantChanged: 9,
		},
		{
			name: "many repeated paragraphs",
			old:  func() string { return strings.Repeat("Same paragraph.\n\n", 30000) },
			edited: func() string {
				return "Opening paragraph.\n\n" + strings.Repeat("Same paragraph.\n\n", 29999) + "Closing paragraph."
			},
			wantChanged: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldText, newText := tt.old(), tt.edited()

			start := time.Now()
			s := Compare(oldText, newText)
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("Compare() took %s", elapsed)
			}
			if s.LinesChanged != tt.wantChanged {
				t.Errorf("LinesChanged = %d, want %d", s.LinesChanged, tt.wantChanged)
			}

			start = time.Now()
			if u := Unified(oldText, newText); u == "" {
				t.Error("Unified() returned empty diff")
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("Unified() took %s", elapsed)
			}
		})
	}
}

func TestTallyMultiset(t *testing.T) {
	added, removed, changed := tallyMultiset(
		[]string{"a", "b", "b", "c"},
		[]string{"b", "a", "d", "e", "f"},
	)
	if added != 1 || removed != 0 || changed != 2 {
		t.Errorf("tallyMultiset() = +%d -%d ~%d, want +1 -0 ~2", added, removed, changed)
	}
}

func TestUnified_Hunks(t *testing.T) {
	var oldB, newB strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&oldB, "line %d\n", i)
		if i == 10 {
			newB.WriteString("line ten\n")
			continue
		}
		fmt.Fprintf(&newB, "line %d\n", i)
	}

	want := "--- previous\n+++ edited\n@@ -7,7 +7,7 @@\n line 7\n line 8\n line 9\n-line 10\n+line ten\n line 11\n line 12\n line 13\n"
	if got := Unified(oldB.String(), newB.String()); got != want {
		t.Errorf("Unified() =\n%s\nwant\n%s", got, want)
	}
}
