// Package models contains data types and constants shared by the voxchat client.
package models

import (
	"fmt"
	"strings"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

// Backend endpoints, relative to the configured backend origin
const (
	EndpointHealth = "/health"
	EndpointChat   = "/chat/"
)

// Multipart field names understood by the chat endpoint
const (
	FieldText        = "text"
	FieldPersonality = "personality"
	FieldLanguage    = "language"
	FieldImage       = "image"
	FieldAudio       = "audio"
)

// Recorded audio is sent as a WebM container
const (
	AudioFileName = "recording.webm"
	AudioMIMEType = "audio/webm"
)

// User-visible defaults substituted into outgoing messages
const (
	DefaultImagePrompt = "Please analyze this image"
	VoiceMessageLabel  = "[Voice message]"
	RecordingLabel     = "Recording..."
)

// Error entry texts
const (
	MsgBackendUnreachable = "Unable to connect to the backend server. Please make sure it is running and try again."
	MsgDeviceDenied       = "Microphone access denied or recording failed."
	MsgInvalidMediaType   = "Please select an image file."
)

// Personality selects the assistant's advisory style. The value is passed
// through to the backend untouched.
type Personality string

const (
	PersonalityModern    Personality = "Modern"
	PersonalityAyurvedic Personality = "Ayurvedic"

	DefaultPersonality = PersonalityModern
)

// Personalities returns the supported personalities in display order
func Personalities() []Personality {
	return []Personality{PersonalityModern, PersonalityAyurvedic}
}

// Language is a reply language supported by the backend
type Language string

const (
	LanguageEnglish   Language = "English"
	LanguageHindi     Language = "Hindi"
	LanguageTelugu    Language = "Telugu"
	LanguageKannada   Language = "Kannada"
	LanguageTamil     Language = "Tamil"
	LanguageMarathi   Language = "Marathi"
	LanguageMalayalam Language = "Malayalam"

	DefaultLanguage = LanguageEnglish
)

var languageCodes = map[Language]string{
	LanguageEnglish:   "en",
	LanguageHindi:     "hi",
	LanguageTelugu:    "te",
	LanguageKannada:   "kn",
	LanguageTamil:     "ta",
	LanguageMarathi:   "mr",
	LanguageMalayalam: "ml",
}

// Languages returns the supported languages in display order
func Languages() []Language {
	return []Language{
		LanguageEnglish,
		LanguageHindi,
		LanguageTelugu,
		LanguageKannada,
		LanguageTamil,
		LanguageMarathi,
		LanguageMalayalam,
	}
}

// Code returns the ISO 639-1 code for the language
func (l Language) Code() string {
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return "en"
}

// ParseLanguage matches a language by name (case-insensitive) or ISO code
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	for _, l := range Languages() {
		if strings.EqualFold(string(l), s) || strings.EqualFold(l.Code(), s) {
			return l, nil
		}
	}
	return "", apierrors.NewConfigError("language", fmt.Sprintf("unsupported language %q", s))
}

// ParsePersonality matches a personality by name (case-insensitive)
func ParsePersonality(s string) (Personality, error) {
	s = strings.TrimSpace(s)
	for _, p := range Personalities() {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", apierrors.NewConfigError("personality", fmt.Sprintf("unsupported personality %q", s))
}

// Next returns the language following l in display order, wrapping around
func (l Language) Next() Language {
	langs := Languages()
	for i, cur := range langs {
		if cur == l {
			return langs[(i+1)%len(langs)]
		}
	}
	return DefaultLanguage
}

// Next returns the personality following p in display order, wrapping around
func (p Personality) Next() Personality {
	all := Personalities()
	for i, cur := range all {
		if cur == p {
			return all[(i+1)%len(all)]
		}
	}
	return DefaultPersonality
}
