package api

// GJSON paths for values in backend responses
const (
	PathReplyText     = "text"
	PathReplyAudioURL = "audio_url"
	PathReplyLanguage = "language"

	// FastAPI error bodies carry either a string or a list of validation errors
	PathErrorDetail    = "detail"
	PathErrorDetailMsg = "detail.0.msg"

	PathHealthStatus = "status"
)
