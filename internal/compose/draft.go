package compose

import "strings"

// PendingImage is an image attached to the draft but not yet sent
type PendingImage struct {
	// PreviewRef is an opaque reference the UI can show before sending
	PreviewRef string
	Data       []byte
	MIMEType   string
	FileName   string
}

// Draft is the not-yet-sent composition
type Draft struct {
	Text         string
	Image        *PendingImage
	PendingAudio []byte
}

// HasText reports whether the draft text contains anything but whitespace
func (d Draft) HasText() bool {
	return strings.TrimSpace(d.Text) != ""
}

// Empty reports whether there is nothing to send
func (d Draft) Empty() bool {
	return !d.HasText() && d.Image == nil && len(d.PendingAudio) == 0
}

// Lifecycle is the request lifecycle of the controller
type Lifecycle int

const (
	Idle Lifecycle = iota
	Processing
)

func (l Lifecycle) String() string {
	if l == Processing {
		return "processing"
	}
	return "idle"
}

// Connectivity is the last known reachability of the backend
type Connectivity int

const (
	Reachable Connectivity = iota
	Unreachable
)

func (c Connectivity) String() string {
	if c == Unreachable {
		return "unreachable"
	}
	return "reachable"
}
