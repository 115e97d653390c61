package chat

import (
	"strings"
	"testing"

	"github.com/evallife/polychat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello", "Hello"},
		{"  Explain recursion  ", "Explain recursion"},
		{"Short one. Then more.", "Short one. Then more."},
		{"What is a monad? I keep reading about it everywhere.", "What is a monad?"},
		{"First line\nsecond line", "First line"},
		{"This sentence has no terminator and goes on for quite a while", "This sentence has no termin..."},
		{"Version 1.2 of the library broke my build, any ideas", "Version 1.2 of the library..."},
		{"日本語のテキストはとても長いのでタイトルが切り詰められることになりますよね本当に", "日本語のテキストはとても長いのでタイトルが切り詰められ..."},
		{"   ", defaultTitle},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := deriveTitle(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), titleLimit)
		})
	}
}

func TestExportMarkdown(t *testing.T) {
	c := &types.Conversation{
		Title:   "Recursion",
		ModelID: "gemini-2.0-flash",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "Explain recursion"},
			{
				Role: types.RoleAssistant, Content: "B",
				Versions:            []types.Version{{Content: "A"}, {Content: "B"}},
				CurrentVersionIndex: 1,
			},
			{Role: types.RoleUser, Content: "More"},
			{Role: types.RoleAssistant, Content: "Parti", Incomplete: true, Versions: []types.Version{{Content: "Parti"}}},
		},
	}
	out := ExportMarkdown(c)

	assert.True(t, strings.HasPrefix(out, "# Recursion\n\n> Model: gemini-2.0-flash\n\n"))
	assert.Contains(t, out, "## USER\n\nExplain recursion\n\n---\n\n")
	assert.Contains(t, out, "## ASSISTANT (version 2/2)\n\nB\n\n---\n\n")
	assert.Contains(t, out, "## ASSISTANT\n\nParti\n\n_(incomplete)_\n\n---\n\n")
}
