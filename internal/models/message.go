package models

import "time"

// Role identifies who authored a conversation entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is a render hint for a conversation entry. Exactly one applies.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusError     Status = "error"
	StatusRecording Status = "recording"
)

// MessageEntry is a single entry of the conversation log.
// Entries are immutable once appended to a store.
type MessageEntry struct {
	ID     string
	Role   Role
	Text   string
	Status Status

	// ImageRef is an opaque reference to an image (local preview path or remote URL)
	ImageRef string
	// AudioRef is a playable audio URL
	AudioRef string
	// ResponseLanguage is only set on assistant entries whose reply language
	// differs from DefaultLanguage
	ResponseLanguage string

	// ErrorKind names the error kind for StatusError entries
	ErrorKind string

	CreatedAt time.Time
}

// IsUser reports whether the entry was authored by the user
func (e MessageEntry) IsUser() bool {
	return e.Role == RoleUser
}

// IsPlaceholder reports whether the entry is the transient recording stand-in
func (e MessageEntry) IsPlaceholder() bool {
	return e.Status == StatusRecording
}

// HasAudio reports whether the entry carries a playable audio reference
func (e MessageEntry) HasAudio() bool {
	return e.AudioRef != ""
}

// UserText builds a normal user entry
func UserText(text, imageRef string) MessageEntry {
	return MessageEntry{
		Role:     RoleUser,
		Text:     text,
		ImageRef: imageRef,
		Status:   StatusNormal,
	}
}

// RecordingPlaceholder builds the user-side stand-in shown while the microphone is live
func RecordingPlaceholder() MessageEntry {
	return MessageEntry{
		Role:   RoleUser,
		Text:   RecordingLabel,
		Status: StatusRecording,
	}
}

// AssistantError builds an assistant-styled error entry
func AssistantError(kind, text string) MessageEntry {
	return MessageEntry{
		Role:      RoleAssistant,
		Text:      text,
		Status:    StatusError,
		ErrorKind: kind,
	}
}
