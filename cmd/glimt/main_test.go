package main

import (
	"testing"

	"github.com/glimt/glimt/pkg/store"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short", "hello world", 20, "hello world"},
		{"collapses whitespace", "a\n\n  b\tc", 20, "a b c"},
		{"truncates", "abcdefghij", 5, "abcd…"},
		{"multibyte", "ääääää", 4, "äää…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.text, tt.max); got != tt.want {
				t.Errorf("summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		idea store.Idea
		want string
	}{
		{store.Idea{Text: "body"}, "body\n"},
		{store.Idea{Title: "Plan", Text: "step one\n"}, "# Plan\n\nstep one\n"},
	}
	for _, tt := range tests {
		if got := renderMarkdown(&tt.idea); got != tt.want {
			t.Errorf("renderMarkdown(%+v) = %q, want %q", tt.idea, got, tt.want)
		}
	}
}
