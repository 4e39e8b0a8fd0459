package render

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/diogo/voxchat/internal/models"
)

// Markdown renders markdown content for terminal display.
func Markdown(content string, opts Options) (string, error) {
	r, err := globalPool.get(opts)
	if err != nil {
		return "", err
	}
	defer globalPool.put(opts, r)
	return r.Render(content)
}

// MarkdownWithWidth renders with default options at the given width.
func MarkdownWithWidth(content string, width int) (string, error) {
	return Markdown(content, DefaultOptions().WithWidth(width))
}

// EntryBody returns the displayable body of a conversation entry.
// Assistant replies are markdown; everything else is shown verbatim.
// A rendering failure falls back to the raw text.
func EntryBody(e models.MessageEntry, opts Options) string {
	if e.Role != models.RoleAssistant || e.Status != models.StatusNormal {
		return e.Text
	}
	out, err := Markdown(e.Text, opts)
	if err != nil {
		log.Debug().Err(err).Str("style", opts.Style).Msg("markdown render failed")
		return e.Text
	}
	return strings.Trim(out, "\n")
}
