package chunk_test

import (
	"strings"
	"testing"

	"github.com/nimbuschat/backend/internal/service/chunk"
)

func TestSplitGreedyPacking(t *testing.T) {
	got := chunk.Split("hello world this is a test", 20)
	want := []string{"hello world this is", "a test"}

	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSplitBlankInput(t *testing.T) {
	for _, input := range []string{"", "   "} {
		got := chunk.Split(input, 20)
		if len(got) != 1 || got[0] != chunk.Placeholder {
			t.Fatalf("Split(%q) = %v, want [%q]", input, got, chunk.Placeholder)
		}
	}
}

func TestSplitOversizedWordEmittedWhole(t *testing.T) {
	long := strings.Repeat("x", 35)
	got := chunk.Split("hi "+long+" bye", 20)

	found := false
	for _, c := range got {
		if c == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized word must be emitted as its own chunk, got %v", got)
	}
}

func TestSplitReassemblesToNormalizedText(t *testing.T) {
	inputs := []string{
		"one",
		"a little longer sentence with several words in it",
		"tabs\tand\nnewlines   collapse to spaces",
		strings.Repeat("word ", 40),
	}

	for _, input := range inputs {
		chunks := chunk.Split(input, 20)
		rejoined := strings.Join(chunks, " ")
		normalized := strings.Join(strings.Fields(input), " ")
		if rejoined != normalized {
			t.Fatalf("rejoined %q != normalized %q", rejoined, normalized)
		}

		for _, c := range chunks {
			if len(c) > 20 && strings.Contains(c, " ") {
				t.Fatalf("multi-word chunk %q exceeds the limit", c)
			}
		}
	}
}
