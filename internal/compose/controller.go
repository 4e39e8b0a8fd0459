// Package compose assembles user input into outgoing chat requests.
//
// A Controller owns the draft, the request lifecycle, the connectivity flag
// and the recording placeholder for one chat session. All state lives on the
// instance; renderers observe it through getters and the conversation store.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/diogo/voxchat/internal/api"
	"github.com/diogo/voxchat/internal/conversation"
	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

// Recorder is the capture surface used by the controller
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
	Abort()
	Active() bool
}

// Controller coordinates the draft, the capture session and the backend
type Controller struct {
	store    *conversation.Store
	backend  api.Backend
	recorder Recorder
	logger   zerolog.Logger

	mu            sync.Mutex
	draft         Draft
	lifecycle     Lifecycle
	connectivity  Connectivity
	lastErr       error
	personality   models.Personality
	language      models.Language
	placeholderID string
}

// Option configures a Controller
type Option func(*Controller)

// WithPersonality sets the initial assistant persona
func WithPersonality(p models.Personality) Option {
	return func(c *Controller) {
		if p != "" {
			c.personality = p
		}
	}
}

// WithLanguage sets the initial reply language
func WithLanguage(l models.Language) Option {
	return func(c *Controller) {
		if l != "" {
			c.language = l
		}
	}
}

// WithLogger sets the logger used by the controller
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller writing to store. recorder may be nil
// when no capture device is available.
func NewController(store *conversation.Store, backend api.Backend, recorder Recorder, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		backend:      backend,
		recorder:     recorder,
		logger:       log.Logger,
		lifecycle:    Idle,
		connectivity: Reachable,
		personality:  models.DefaultPersonality,
		language:     models.DefaultLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the conversation store the controller appends to
func (c *Controller) Store() *conversation.Store {
	return c.store
}

// Start probes the backend once. An unreachable backend flips the
// connectivity flag and appends one error entry.
func (c *Controller) Start(ctx context.Context) error {
	err := c.backend.Health(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("backend health probe failed")
		c.mu.Lock()
		c.connectivity = Unreachable
		c.lastErr = err
		c.mu.Unlock()
		c.store.Append(models.AssistantError(string(apierrors.KindBackendUnreachable), models.MsgBackendUnreachable))
		return err
	}

	c.mu.Lock()
	c.connectivity = Reachable
	c.mu.Unlock()
	return nil
}

// Draft returns a copy of the current draft
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	if c.draft.Image != nil {
		img := *c.draft.Image
		d.Image = &img
	}
	if c.draft.PendingAudio != nil {
		d.PendingAudio = append([]byte(nil), c.draft.PendingAudio...)
	}
	return d
}

// Lifecycle returns the request lifecycle state
func (c *Controller) Lifecycle() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle
}

// Connectivity returns the last known backend reachability
func (c *Controller) Connectivity() Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectivity
}

// LastError returns the error of the most recent failed operation, if any
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Personality returns the selected persona
func (c *Controller) Personality() models.Personality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personality
}

// Language returns the selected reply language
func (c *Controller) Language() models.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// SetPersonality selects a persona by name
func (c *Controller) SetPersonality(name string) error {
	p, err := models.ParsePersonality(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.personality = p
	c.mu.Unlock()
	return nil
}

// SetLanguage selects a reply language by name or code
func (c *Controller) SetLanguage(name string) error {
	l, err := models.ParseLanguage(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.language = l
	c.mu.Unlock()
	return nil
}

// CyclePersonality advances to the next persona and returns it
func (c *Controller) CyclePersonality() models.Personality {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personality = c.personality.Next()
	return c.personality
}

// CycleLanguage advances to the next reply language and returns it
func (c *Controller) CycleLanguage() models.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = c.language.Next()
	return c.language
}

// SetDraftText replaces the draft text
func (c *Controller) SetDraftText(text string) {
	c.mu.Lock()
	c.draft.Text = text
	c.mu.Unlock()
}

// ClearImage drops the pending image
func (c *Controller) ClearImage() {
	c.mu.Lock()
	c.draft.Image = nil
	c.mu.Unlock()
}

// AttachImage sets the pending image, replacing any previous one.
// A non-image type leaves the draft untouched and appends one error entry.
func (c *Controller) AttachImage(data []byte, mimeType, fileName string) error {
	ref := fmt.Sprintf("upload://%s/%s", uuid.NewString(), fileName)
	return c.attachImage(data, mimeType, fileName, ref)
}

// AttachImageFile reads an image from disk and attaches it. The preview
// reference is the absolute path of the file.
func (c *Controller) AttachImageFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", abs)
	}
	if info.Size() > MaxImageSize {
		return fmt.Errorf("file size exceeds maximum %d bytes", MaxImageSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return c.attachImage(data, DetectMIMEType(abs, data), filepath.Base(abs), abs)
}

func (c *Controller) attachImage(data []byte, mimeType, fileName, ref string) error {
	if !IsImageType(mimeType) {
		err := apierrors.NewInvalidMediaTypeError(mimeType)
		c.logger.Debug().Str("mime", mimeType).Str("file", fileName).Msg("rejected attachment")
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.store.Append(models.AssistantError(string(apierrors.KindInvalidMediaType), models.MsgInvalidMediaType))
		return err
	}

	c.mu.Lock()
	c.draft.Image = &PendingImage{
		PreviewRef: ref,
		Data:       data,
		MIMEType:   mimeType,
		FileName:   fileName,
	}
	c.mu.Unlock()
	c.logger.Debug().Str("mime", mimeType).Str("file", fileName).Int("bytes", len(data)).Msg("image attached")
	return nil
}

// Recording reports whether a capture session is live
func (c *Controller) Recording() bool {
	c.mu.Lock()
	placeholder := c.placeholderID != ""
	c.mu.Unlock()
	return placeholder || (c.recorder != nil && c.recorder.Active())
}

// StartRecording acquires the microphone and shows the recording
// placeholder. A failed acquisition appends one error entry and leaves the
// draft untouched.
func (c *Controller) StartRecording(ctx context.Context) error {
	if c.recorder == nil {
		err := apierrors.NewDeviceAccessError("microphone", errors.New("no capture device configured"))
		c.recordDeviceFailure(err)
		return err
	}

	c.mu.Lock()
	busy := c.placeholderID != ""
	c.mu.Unlock()
	if busy {
		return apierrors.ErrCaptureActive
	}

	if err := c.recorder.Start(ctx); err != nil {
		if errors.Is(err, apierrors.ErrCaptureActive) {
			return err
		}
		c.recordDeviceFailure(err)
		return err
	}

	entry := c.store.Append(models.RecordingPlaceholder())
	c.mu.Lock()
	c.placeholderID = entry.ID
	c.mu.Unlock()
	c.logger.Debug().Msg("recording started")
	return nil
}

// StopRecording finalizes the capture, removes the placeholder and sends the
// recorded audio. If a request is already in flight the audio stays in the
// draft for the next send.
func (c *Controller) StopRecording(ctx context.Context) (*models.ChatReply, error) {
	if c.recorder == nil {
		return nil, apierrors.ErrNoCapture
	}

	payload, err := c.recorder.Stop(ctx)
	if errors.Is(err, apierrors.ErrNoCapture) {
		return nil, err
	}
	c.dismissPlaceholder()

	if err != nil {
		if len(payload) == 0 {
			c.recordDeviceFailure(err)
			return nil, err
		}
		c.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("recording interrupted, sending partial audio")
	}
	if len(payload) == 0 {
		return nil, apierrors.ErrEmptySubmission
	}

	c.mu.Lock()
	c.draft.PendingAudio = payload
	c.mu.Unlock()

	return c.Send(ctx, payload)
}

// ToggleRecording starts a recording, or stops and sends the current one
func (c *Controller) ToggleRecording(ctx context.Context) (*models.ChatReply, error) {
	if c.Recording() {
		return c.StopRecording(ctx)
	}
	return nil, c.StartRecording(ctx)
}

// AbortRecording discards a live recording and releases the device
func (c *Controller) AbortRecording() {
	if c.recorder != nil {
		c.recorder.Abort()
	}
	c.dismissPlaceholder()
}

func (c *Controller) dismissPlaceholder() {
	c.mu.Lock()
	id := c.placeholderID
	c.placeholderID = ""
	c.mu.Unlock()
	if id != "" {
		c.store.DismissPlaceholder(id)
	}
}

func (c *Controller) recordDeviceFailure(err error) {
	c.logger.Warn().Err(err).Msg("microphone unavailable")
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.store.Append(models.AssistantError(string(apierrors.KindDeviceAccessDenied), models.MsgDeviceDenied))
}

// Send submits the draft. explicitAudio, when non-empty, takes precedence
// over audio buffered in the draft.
//
// Send is a no-op returning ErrRequestInFlight while another send is
// processing, and ErrEmptySubmission when there is nothing to send.
// Otherwise the user entry is appended and the draft cleared before the
// request is dispatched. A failed request marks the backend unreachable and
// appends nothing further.
func (c *Controller) Send(ctx context.Context, explicitAudio []byte) (*models.ChatReply, error) {
	c.mu.Lock()
	if c.lifecycle == Processing {
		c.mu.Unlock()
		return nil, apierrors.ErrRequestInFlight
	}

	draft := c.draft
	audio := explicitAudio
	if len(audio) == 0 {
		audio = draft.PendingAudio
	}
	if !draft.HasText() && draft.Image == nil && len(audio) == 0 {
		c.mu.Unlock()
		return nil, apierrors.ErrEmptySubmission
	}

	req := &api.ChatRequest{
		Text:        draft.Text,
		Personality: c.personality,
		Language:    c.language,
		Audio:       audio,
	}
	echo := draft.Text
	var previewRef string
	if draft.Image != nil {
		previewRef = draft.Image.PreviewRef
		req.Image = &api.ImagePart{
			Data:     draft.Image.Data,
			FileName: draft.Image.FileName,
			MIMEType: draft.Image.MIMEType,
		}
	}
	if !draft.HasText() {
		if draft.Image != nil {
			req.Text = models.DefaultImagePrompt
			echo = models.DefaultImagePrompt
		} else {
			req.Text = ""
			echo = models.VoiceMessageLabel
		}
	}

	c.draft = Draft{}
	c.lifecycle = Processing
	c.lastErr = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.lifecycle = Idle
		c.mu.Unlock()
	}()

	c.store.Append(models.UserText(echo, previewRef))

	c.logger.Debug().
		Bool("image", req.Image != nil).
		Int("audio_bytes", len(req.Audio)).
		Str("personality", string(req.Personality)).
		Str("language", string(req.Language)).
		Msg("dispatching chat request")

	reply, err := c.backend.Chat(ctx, req)
	if err == nil && reply == nil {
		err = apierrors.ErrInvalidResponse
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("chat request failed")
		c.mu.Lock()
		c.connectivity = Unreachable
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}

	c.store.Append(models.MessageEntry{
		Role:             models.RoleAssistant,
		Text:             reply.Text,
		Status:           models.StatusNormal,
		AudioRef:         c.backend.ResolveURL(reply.AudioURL),
		ResponseLanguage: reply.AnnotatedLanguage(),
	})

	c.mu.Lock()
	c.connectivity = Reachable
	c.mu.Unlock()
	return reply, nil
}
