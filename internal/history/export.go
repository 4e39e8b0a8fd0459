// Package history exports the live conversation log as a transcript.
// Transcripts are write-only; voxchat never reads them back.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diogo/voxchat/internal/models"
)

// ExportFormat represents the format for exporting transcripts
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// ParseFormat maps a flag value or file extension to a format
func ParseFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "md", "markdown":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Extension returns the file extension for the format
func (f ExportFormat) Extension() string {
	if f == ExportFormatJSON {
		return ".json"
	}
	return ".md"
}

// Meta describes the session a transcript came from
type Meta struct {
	Backend     string
	Personality string
	Language    string
	ExportedAt  time.Time
}

// ExportOptions configures how transcripts are exported
type ExportOptions struct {
	Format ExportFormat
	// IncludeErrors keeps assistant error entries in the transcript
	IncludeErrors bool
}

// DefaultExportOptions returns sensible defaults for export
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:        ExportFormatMarkdown,
		IncludeErrors: true,
	}
}

// transcriptEntries drops the recording placeholder and, optionally, errors
func transcriptEntries(entries []models.MessageEntry, opts ExportOptions) []models.MessageEntry {
	out := make([]models.MessageEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsPlaceholder() {
			continue
		}
		if e.Status == models.StatusError && !opts.IncludeErrors {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ExportToMarkdown renders entries as a markdown transcript
func ExportToMarkdown(entries []models.MessageEntry, meta Meta, opts ExportOptions) string {
	entries = transcriptEntries(entries, opts)
	var sb strings.Builder

	sb.WriteString("# voxchat transcript\n\n")
	if meta.Backend != "" {
		fmt.Fprintf(&sb, "**Backend:** %s\n", meta.Backend)
	}
	if meta.Personality != "" {
		fmt.Fprintf(&sb, "**Personality:** %s\n", meta.Personality)
	}
	if meta.Language != "" {
		fmt.Fprintf(&sb, "**Language:** %s\n", meta.Language)
	}
	if !meta.ExportedAt.IsZero() {
		fmt.Fprintf(&sb, "**Exported:** %s\n", meta.ExportedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&sb, "**Messages:** %d\n\n---\n\n", len(entries))

	for i, e := range entries {
		role := "User"
		if e.Role == models.RoleAssistant {
			role = "Assistant"
		}
		sb.WriteString("## ")
		sb.WriteString(role)
		if !e.CreatedAt.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(e.CreatedAt.Format("15:04:05"))
			sb.WriteString(")")
		}
		if e.ResponseLanguage != "" {
			fmt.Fprintf(&sb, " [%s]", e.ResponseLanguage)
		}
		sb.WriteString("\n\n")

		if e.Status == models.StatusError {
			sb.WriteString("> **Error:** ")
			sb.WriteString(e.Text)
			sb.WriteString("\n")
		} else {
			sb.WriteString(e.Text)
			sb.WriteString("\n")
		}

		if e.ImageRef != "" {
			fmt.Fprintf(&sb, "\n_Image:_ `%s`\n", e.ImageRef)
		}
		if e.AudioRef != "" {
			fmt.Fprintf(&sb, "\n_Audio:_ <%s>\n", e.AudioRef)
		}

		if i < len(entries)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

type exportEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Text      string    `json:"text"`
	ImageRef  string    `json:"image_ref,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Language  string    `json:"response_language,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type exportTranscript struct {
	Backend     string        `json:"backend,omitempty"`
	Personality string        `json:"personality,omitempty"`
	Language    string        `json:"language,omitempty"`
	ExportedAt  time.Time     `json:"exported_at"`
	Messages    []exportEntry `json:"messages"`
}

// ExportToJSON renders entries as an indented JSON transcript
func ExportToJSON(entries []models.MessageEntry, meta Meta, opts ExportOptions) ([]byte, error) {
	entries = transcriptEntries(entries, opts)
	export := exportTranscript{
		Backend:     meta.Backend,
		Personality: meta.Personality,
		Language:    meta.Language,
		ExportedAt:  meta.ExportedAt,
		Messages:    make([]exportEntry, len(entries)),
	}
	for i, e := range entries {
		export.Messages[i] = exportEntry{
			ID:        e.ID,
			Role:      string(e.Role),
			Status:    string(e.Status),
			Text:      e.Text,
			ImageRef:  e.ImageRef,
			AudioRef:  e.AudioRef,
			Language:  e.ResponseLanguage,
			ErrorKind: e.ErrorKind,
			CreatedAt: e.CreatedAt,
		}
	}
	return json.MarshalIndent(export, "", "  ")
}

// Export renders entries in the format named by opts
func Export(entries []models.MessageEntry, meta Meta, opts ExportOptions) ([]byte, error) {
	if opts.Format == ExportFormatJSON {
		return ExportToJSON(entries, meta, opts)
	}
	return []byte(ExportToMarkdown(entries, meta, opts)), nil
}

// DefaultFileName builds a timestamped transcript file name
func DefaultFileName(format ExportFormat, at time.Time) string {
	return "voxchat-" + at.Format("20060102-150405") + format.Extension()
}

// WriteFile exports entries to path. An empty path or a directory gets a
// timestamped file name; the format follows the extension when opts.Format
// is empty. Returns the written path.
func WriteFile(path string, entries []models.MessageEntry, meta Meta, opts ExportOptions) (string, error) {
	if meta.ExportedAt.IsZero() {
		meta.ExportedAt = time.Now()
	}

	if opts.Format == "" {
		format, err := ParseFormat(filepath.Ext(path))
		if err != nil {
			return "", err
		}
		opts.Format = format
	}

	if path == "" {
		path = "."
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName(opts.Format, meta.ExportedAt))
	}

	data, err := Export(entries, meta, opts)
	if err != nil {
		return "", fmt.Errorf("failed to export transcript: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}
