package models

// ChatReply is the decoded body of a successful chat exchange
type ChatReply struct {
	Text string
	// AudioURL is the path returned by the backend, relative to its origin
	AudioURL string
	// Language echoes the language the reply was produced in
	Language string
}

// HasAudio reports whether the backend synthesized audio for the reply
func (r *ChatReply) HasAudio() bool {
	return r != nil && r.AudioURL != ""
}

// AnnotatedLanguage returns the language to annotate the reply with,
// or "" when the reply is in the default language
func (r *ChatReply) AnnotatedLanguage() string {
	if r == nil || r.Language == "" || r.Language == string(DefaultLanguage) {
		return ""
	}
	return r.Language
}
