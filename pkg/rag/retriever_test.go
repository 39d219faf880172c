package rag

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("without context returns question unchanged", func(t *testing.T) {
		got := BuildPrompt("", "what is go?")
		if got != "what is go?" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("with context wraps excerpts and question", func(t *testing.T) {
		got := BuildPrompt("[1] doc.txt\nGo is a language.", "what is go?")
		if !strings.Contains(got, "Go is a language.") {
			t.Error("context block missing from prompt")
		}
		if !strings.HasSuffix(got, "Question: what is go?") {
			t.Errorf("question not at the end: %q", got)
		}
	})
}
