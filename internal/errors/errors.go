// Package errors provides the error kinds surfaced by the voxchat client.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrInvalidMediaType   = errors.New("invalid media type")
	ErrDeviceAccessDenied = errors.New("device access denied")

	// ErrEmptySubmission is returned by a send with no text, image or audio.
	// Callers ignore it silently.
	ErrEmptySubmission = errors.New("nothing to send")
	// ErrRequestInFlight is returned by a send issued while another is processing
	ErrRequestInFlight = errors.New("a request is already in flight")

	ErrCaptureActive      = errors.New("a recording is already in progress")
	ErrNoCapture          = errors.New("no recording in progress")
	ErrCaptureInterrupted = errors.New("recording interrupted")
	ErrBufferFull         = errors.New("audio buffer full")
	ErrInvalidResponse    = errors.New("invalid response format")
)

// ErrorKind classifies errors for display in the conversation log
type ErrorKind string

const (
	KindUnknown            ErrorKind = "Unknown"
	KindBackendUnreachable ErrorKind = "BackendUnreachable"
	KindInvalidMediaType   ErrorKind = "InvalidMediaType"
	KindDeviceAccessDenied ErrorKind = "DeviceAccessDenied"
	KindEmptySubmission    ErrorKind = "EmptySubmission"
)

// String returns the kind name
func (k ErrorKind) String() string {
	return string(k)
}

// APIError represents a non-success response from the backend
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error [%d] at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("API error at %s: %s", e.Endpoint, e.Message)
}

// Is reports a non-success response as an unreachable backend
func (e *APIError) Is(target error) bool {
	if target == ErrBackendUnreachable {
		return true
	}
	_, ok := target.(*APIError)
	return ok
}

// NewAPIError creates a new APIError
func NewAPIError(statusCode int, endpoint, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}

// NetworkError represents a transport failure talking to the backend
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error at %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is matches ErrBackendUnreachable and other NetworkErrors
func (e *NetworkError) Is(target error) bool {
	if target == ErrBackendUnreachable {
		return true
	}
	_, ok := target.(*NetworkError)
	return ok
}

// NewNetworkError creates a new NetworkError
func NewNetworkError(endpoint string, err error) *NetworkError {
	return &NetworkError{Endpoint: endpoint, Err: err}
}

// InvalidMediaTypeError is returned when a non-image file is attached as an image
type InvalidMediaTypeError struct {
	MIMEType string
}

func (e *InvalidMediaTypeError) Error() string {
	if e.MIMEType == "" {
		return "invalid media type: not an image"
	}
	return fmt.Sprintf("invalid media type: %s is not an image", e.MIMEType)
}

func (e *InvalidMediaTypeError) Is(target error) bool {
	if target == ErrInvalidMediaType {
		return true
	}
	_, ok := target.(*InvalidMediaTypeError)
	return ok
}

// NewInvalidMediaTypeError creates a new InvalidMediaTypeError
func NewInvalidMediaTypeError(mimeType string) *InvalidMediaTypeError {
	return &InvalidMediaTypeError{MIMEType: mimeType}
}

// DeviceAccessError is returned when the audio input device cannot be acquired
type DeviceAccessError struct {
	Device string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device access denied: %s", e.Device)
	}
	return fmt.Sprintf("device access denied: %s: %v", e.Device, e.Err)
}

func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

func (e *DeviceAccessError) Is(target error) bool {
	if target == ErrDeviceAccessDenied {
		return true
	}
	_, ok := target.(*DeviceAccessError)
	return ok
}

// NewDeviceAccessError creates a new DeviceAccessError
func NewDeviceAccessError(device string, err error) *DeviceAccessError {
	return &DeviceAccessError{Device: device, Err: err}
}

// DownloadError represents a failure fetching a remote resource
type DownloadError struct {
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("download failed [%d] %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("download failed %s: %s", e.URL, e.Message)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError
func NewDownloadError(message, url string) *DownloadError {
	return &DownloadError{URL: url, Message: message}
}

// NewDownloadErrorWithStatus creates a DownloadError for a non-200 response
func NewDownloadErrorWithStatus(url string, statusCode int) *DownloadError {
	return &DownloadError{URL: url, StatusCode: statusCode}
}

// NewDownloadNetworkError creates a DownloadError wrapping a transport failure
func NewDownloadNetworkError(url string, err error) *DownloadError {
	return &DownloadError{URL: url, Message: err.Error(), Err: err}
}

// ConfigError represents an invalid configuration value
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Key, e.Message)
}

// NewConfigError creates a new ConfigError
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// Kind classifies err into one of the displayable error kinds
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrBackendUnreachable):
		return KindBackendUnreachable
	case errors.Is(err, ErrInvalidMediaType):
		return KindInvalidMediaType
	case errors.Is(err, ErrDeviceAccessDenied):
		return KindDeviceAccessDenied
	case errors.Is(err, ErrEmptySubmission):
		return KindEmptySubmission
	default:
		return KindUnknown
	}
}

// IsBackendUnreachable reports whether err means the backend could not serve the request
func IsBackendUnreachable(err error) bool {
	return errors.Is(err, ErrBackendUnreachable)
}

// IsNetworkError reports whether err is a transport failure
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsInvalidMediaType reports whether err is an InvalidMediaTypeError
func IsInvalidMediaType(err error) bool {
	return errors.Is(err, ErrInvalidMediaType)
}

// IsDeviceAccessDenied reports whether err is a DeviceAccessError
func IsDeviceAccessDenied(err error) bool {
	return errors.Is(err, ErrDeviceAccessDenied)
}

// IsSilent reports whether err should not be surfaced to the user at all
func IsSilent(err error) bool {
	return errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrRequestInFlight)
}

// GetHTTPStatus extracts the HTTP status code from err, or 0
func GetHTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		return dlErr.StatusCode
	}
	return 0
}

// GetEndpoint extracts the endpoint from err, or ""
func GetEndpoint(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Endpoint
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Endpoint
	}
	return ""
}
