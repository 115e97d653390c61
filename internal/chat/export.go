package chat

import (
	"fmt"
	"strings"

	"github.com/evallife/polychat/internal/types"
)

// ExportMarkdown renders a conversation as a Markdown transcript.
func ExportMarkdown(c *types.Conversation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", c.Title))
	if c.ModelID != "" {
		sb.WriteString(fmt.Sprintf("> Model: %s\n\n", c.ModelID))
	}
	for _, m := range c.Messages {
		content := m.Content
		if m.IsLoading {
			content += "\n\n_(still generating)_"
		} else if m.Incomplete {
			content += "\n\n_(incomplete)_"
		}
		header := strings.ToUpper(string(m.Role))
		if len(m.Versions) > 1 {
			header = fmt.Sprintf("%s (version %d/%d)", header, m.CurrentVersionIndex+1, len(m.Versions))
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n---\n\n", header, content))
	}
	return sb.String()
}
