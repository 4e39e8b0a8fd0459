package compose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/voxchat/internal/api"
	"github.com/diogo/voxchat/internal/capture"
	"github.com/diogo/voxchat/internal/conversation"
	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

const testOrigin = "http://localhost:8000"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fixture struct {
	store    *conversation.Store
	backend  *api.MockBackend
	device   *chanDevice
	recorder *capture.Recorder
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   conversation.NewStore(),
		backend: &api.MockBackend{Origin: testOrigin, ChatReply: &models.ChatReply{Text: "ok"}},
		device:  newChanDevice(),
	}
	f.recorder = capture.NewRecorder(f.device)
	f.ctrl = NewController(f.store, f.backend, f.recorder)
	t.Cleanup(f.recorder.Abort)
	return f
}

// Property 1: at most one send is processing, a concurrent send is a no-op
func TestSend_ExclusiveWhileProcessing(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.ChatFunc = func(ctx context.Context, req *api.ChatRequest) (*models.ChatReply, error) {
		close(entered)
		<-release
		return &models.ChatReply{Text: "done"}, nil
	}

	f.ctrl.SetDraftText("first")
	errCh := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Send(context.Background(), nil)
		errCh <- err
	}()

	<-entered
	assert.Equal(t, Processing, f.ctrl.Lifecycle())
	before := f.store.Len()

	f.ctrl.SetDraftText("second")
	_, err := f.ctrl.Send(context.Background(), nil)
	assert.ErrorIs(t, err, apierrors.ErrRequestInFlight)
	assert.Equal(t, before, f.store.Len(), "store must not grow")
	assert.Equal(t, "second", f.ctrl.Draft().Text, "rejected send keeps the draft")

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, Idle, f.ctrl.Lifecycle())
	assert.Len(t, f.backend.Requests(), 1)
}

// Property 2: nothing to send is a no-op
func TestSend_EmptyIsNoop(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		f.ctrl.SetDraftText(text)
		_, err := f.ctrl.Send(context.Background(), nil)
		assert.ErrorIs(t, err, apierrors.ErrEmptySubmission)
		assert.True(t, apierrors.IsSilent(err))
	}
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.backend.Requests())
	assert.Equal(t, Idle, f.ctrl.Lifecycle())
}

// Property 3: image plus text keeps the text verbatim and the preview ref
func TestSend_ImageAndText(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.AttachImage(pngHeader, "image/png", "cat.png"))
	preview := f.ctrl.Draft().Image.PreviewRef
	require.NotEmpty(t, preview)

	f.ctrl.SetDraftText("  what breed is this? ")
	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)

	entries := f.store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.RoleUser, entries[0].Role)
	assert.Equal(t, "  what breed is this? ", entries[0].Text)
	assert.Equal(t, preview, entries[0].ImageRef)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "  what breed is this? ", reqs[0].Text)
	require.NotNil(t, reqs[0].Image)
	assert.Equal(t, pngHeader, reqs[0].Image.Data)
	assert.Equal(t, "cat.png", reqs[0].Image.FileName)
	assert.Equal(t, "image/png", reqs[0].Image.MIMEType)
}

// Property 4: image only substitutes the default prompt on both sides
func TestSend_ImageOnlyUsesDefaultPrompt(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.AttachImage(pngHeader, "image/png", "photo.png"))
	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)

	entries := f.store.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Please analyze this image", entries[0].Text)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Please analyze this image", reqs[0].Text)
}

// Property 5: stopping a recording sends the fragments in arrival order
func TestStopRecording_SendsConcatenatedAudio(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.StartRecording(context.Background()))
	assert.True(t, f.ctrl.Recording())

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusRecording, entries[0].Status)
	assert.Equal(t, models.RecordingLabel, entries[0].Text)

	for _, chunk := range []string{"RIFF", "-chunk1", "-chunk2", "-end"} {
		f.device.chunks <- []byte(chunk)
	}

	_, err := f.ctrl.StopRecording(context.Background())
	require.NoError(t, err)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "RIFF-chunk1-chunk2-end", string(reqs[0].Audio))
	assert.Equal(t, "", reqs[0].Text)

	assert.Empty(t, f.ctrl.Draft().PendingAudio)
	assert.False(t, f.ctrl.Recording())
	assert.Equal(t, 1, f.device.closeCount(), "device released")

	entries = f.store.Entries()
	require.Len(t, entries, 2, "placeholder dismissed, echo and reply appended")
	assert.Equal(t, models.VoiceMessageLabel, entries[0].Text)
	assert.Equal(t, models.StatusNormal, entries[0].Status)
	assert.Equal(t, models.RoleAssistant, entries[1].Role)
}

// Property 6: a failed send returns to idle and flips connectivity
func TestSend_FailureMarksUnreachable(t *testing.T) {
	f := newFixture(t)
	netErr := apierrors.NewNetworkError(models.EndpointChat, errors.New("connection refused"))
	f.backend.ChatReply = nil
	f.backend.ChatErr = netErr

	require.NoError(t, f.ctrl.AttachImage(pngHeader, "image/png", "x.png"))
	f.ctrl.SetDraftText("hello")
	before := f.store.Len()

	_, err := f.ctrl.Send(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apierrors.IsBackendUnreachable(err))

	assert.Equal(t, Idle, f.ctrl.Lifecycle())
	assert.Equal(t, Unreachable, f.ctrl.Connectivity())
	assert.Equal(t, before+1, f.store.Len())
	assert.Equal(t, models.RoleUser, f.store.Entries()[before].Role)
	assert.ErrorIs(t, f.ctrl.LastError(), apierrors.ErrBackendUnreachable)

	// the draft is discarded even though the send failed
	assert.True(t, f.ctrl.Draft().Empty())
	assert.Nil(t, f.ctrl.Draft().Image)
}

func TestSend_SuccessRestoresReachable(t *testing.T) {
	f := newFixture(t)
	f.backend.ChatErr = errors.New("down")
	f.ctrl.SetDraftText("a")
	_, _ = f.ctrl.Send(context.Background(), nil)
	require.Equal(t, Unreachable, f.ctrl.Connectivity())

	f.backend.ChatErr = nil
	f.ctrl.SetDraftText("b")
	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Reachable, f.ctrl.Connectivity())
	assert.NoError(t, f.ctrl.LastError())
}

// Property 7: a non-image attachment is rejected with one error entry
func TestAttachImage_NonImage(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.AttachImage([]byte("%PDF-1.4"), "application/pdf", "doc.pdf")
	require.Error(t, err)
	assert.True(t, apierrors.IsInvalidMediaType(err))

	assert.Nil(t, f.ctrl.Draft().Image)
	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.RoleAssistant, entries[0].Role)
	assert.Equal(t, models.StatusError, entries[0].Status)
	assert.Equal(t, string(apierrors.KindInvalidMediaType), entries[0].ErrorKind)
}

func TestAttachImage_NonImageKeepsPreviousImage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.AttachImage(pngHeader, "image/png", "a.png"))
	first := f.ctrl.Draft().Image.PreviewRef

	require.Error(t, f.ctrl.AttachImage([]byte("x"), "text/plain", "notes.txt"))
	require.NotNil(t, f.ctrl.Draft().Image)
	assert.Equal(t, first, f.ctrl.Draft().Image.PreviewRef)
}

func TestAttachImage_ReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.AttachImage(pngHeader, "image/png", "a.png"))
	require.NoError(t, f.ctrl.AttachImage([]byte{0xff, 0xd8, 0xff}, "image/jpeg", "b.jpg"))

	img := f.ctrl.Draft().Image
	require.NotNil(t, img)
	assert.Equal(t, "b.jpg", img.FileName)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	f.ctrl.ClearImage()
	assert.Nil(t, f.ctrl.Draft().Image)
}

// Property 8: the documented hello scenario
func TestSend_HelloScenario(t *testing.T) {
	f := newFixture(t)
	f.backend.ChatReply = &models.ChatReply{Text: "Hi there", AudioURL: "/audio/1.mp3", Language: "English"}

	f.ctrl.SetDraftText("hello")
	reply, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply.Text)

	entries := f.store.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, models.RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Text)

	assert.Equal(t, models.RoleAssistant, entries[1].Role)
	assert.Equal(t, "Hi there", entries[1].Text)
	assert.Equal(t, testOrigin+"/audio/1.mp3", entries[1].AudioRef)
	assert.Empty(t, entries[1].ResponseLanguage)
}

func TestSend_NonDefaultLanguageIsAnnotated(t *testing.T) {
	f := newFixture(t)
	f.backend.ChatReply = &models.ChatReply{Text: "नमस्ते", Language: "Hindi"}
	require.NoError(t, f.ctrl.SetLanguage("hi"))

	f.ctrl.SetDraftText("hello")
	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.LanguageHindi, reqs[0].Language)

	last, ok := f.store.Last(models.RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "Hindi", last.ResponseLanguage)
	assert.Empty(t, last.AudioRef)
}

func TestSend_ExplicitAudioWins(t *testing.T) {
	f := newFixture(t)
	f.ctrl.mu.Lock()
	f.ctrl.draft.PendingAudio = []byte("stale")
	f.ctrl.mu.Unlock()

	_, err := f.ctrl.Send(context.Background(), []byte("fresh"))
	require.NoError(t, err)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "fresh", string(reqs[0].Audio))
	assert.Empty(t, f.ctrl.Draft().PendingAudio)
}

func TestSend_PassesPersonality(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetPersonality("ayurvedic"))
	f.ctrl.SetDraftText("dosha?")

	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.PersonalityAyurvedic, f.backend.Requests()[0].Personality)

	assert.Error(t, f.ctrl.SetPersonality("pirate"))
	assert.Error(t, f.ctrl.SetLanguage("Klingon"))
	assert.Equal(t, models.PersonalityAyurvedic, f.ctrl.Personality())
}

func TestSend_PanicReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.backend.ChatFunc = func(ctx context.Context, req *api.ChatRequest) (*models.ChatReply, error) {
		panic("boom")
	}
	f.ctrl.SetDraftText("x")

	assert.Panics(t, func() { _, _ = f.ctrl.Send(context.Background(), nil) })
	assert.Equal(t, Idle, f.ctrl.Lifecycle())
}

func TestSend_NilReplyIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.backend.ChatReply = nil
	f.ctrl.SetDraftText("x")

	_, err := f.ctrl.Send(context.Background(), nil)
	assert.ErrorIs(t, err, apierrors.ErrInvalidResponse)
	assert.Equal(t, 1, f.store.Len())
}

func TestStart_Unreachable(t *testing.T) {
	f := newFixture(t)
	f.backend.HealthErr = apierrors.NewNetworkError(models.EndpointHealth, errors.New("refused"))

	err := f.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unreachable, f.ctrl.Connectivity())

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusError, entries[0].Status)
	assert.Equal(t, string(apierrors.KindBackendUnreachable), entries[0].ErrorKind)
	assert.Equal(t, models.MsgBackendUnreachable, entries[0].Text)
}

func TestStart_Reachable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start(context.Background()))
	assert.Equal(t, Reachable, f.ctrl.Connectivity())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 1, f.backend.HealthCalls)
}

func TestStartRecording_DeviceDenied(t *testing.T) {
	f := newFixture(t)
	f.device.openErr = errors.New("permission denied")
	f.ctrl.SetDraftText("keep me")

	err := f.ctrl.StartRecording(context.Background())
	require.Error(t, err)
	assert.True(t, apierrors.IsDeviceAccessDenied(err))
	assert.False(t, f.ctrl.Recording())

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.MsgDeviceDenied, entries[0].Text)
	assert.Equal(t, string(apierrors.KindDeviceAccessDenied), entries[0].ErrorKind)
	assert.Equal(t, "keep me", f.ctrl.Draft().Text)
}

func TestStartRecording_NoRecorder(t *testing.T) {
	store := conversation.NewStore()
	ctrl := NewController(store, &api.MockBackend{}, nil)

	err := ctrl.StartRecording(context.Background())
	assert.True(t, apierrors.IsDeviceAccessDenied(err))
	assert.Equal(t, 1, store.Len())

	_, err = ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCapture)
}

func TestStartRecording_Twice(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.StartRecording(context.Background()))

	err := f.ctrl.StartRecording(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrCaptureActive)
	assert.Equal(t, 1, f.store.Len(), "only one placeholder")
}

func TestStopRecording_WithoutStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCapture)
	assert.Equal(t, 0, f.store.Len())
}

func TestStopRecording_EmptyCapture(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.StartRecording(context.Background()))

	_, err := f.ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrEmptySubmission)
	assert.Equal(t, 0, f.store.Len(), "placeholder dismissed, nothing sent")
	assert.Empty(t, f.backend.Requests())
}

func TestStopRecording_WhileProcessingKeepsAudio(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.ChatFunc = func(ctx context.Context, req *api.ChatRequest) (*models.ChatReply, error) {
		if req.Text == "slow" {
			close(entered)
			<-release
		}
		return &models.ChatReply{Text: "ok"}, nil
	}

	require.NoError(t, f.ctrl.StartRecording(context.Background()))
	f.device.chunks <- []byte("voice")

	f.ctrl.SetDraftText("slow")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.ctrl.Send(context.Background(), nil)
	}()
	<-entered

	_, err := f.ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrRequestInFlight)
	assert.Equal(t, "voice", string(f.ctrl.Draft().PendingAudio))

	close(release)
	<-done

	_, err = f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)
	reqs := f.backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "voice", string(reqs[1].Audio))
}

func TestToggleRecording(t *testing.T) {
	f := newFixture(t)

	reply, err := f.ctrl.ToggleRecording(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.True(t, f.ctrl.Recording())

	f.device.chunks <- []byte("abc")

	reply, err = f.ctrl.ToggleRecording(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.False(t, f.ctrl.Recording())
}

func TestAbortRecording(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.StartRecording(context.Background()))
	f.device.chunks <- []byte("discard")

	f.ctrl.AbortRecording()
	assert.False(t, f.ctrl.Recording())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 1, f.device.closeCount())
	assert.Empty(t, f.backend.Requests())
}

func TestAttachImageFile(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	withExt := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(withExt, pngHeader, 0o644))
	require.NoError(t, f.ctrl.AttachImageFile(withExt))

	img := f.ctrl.Draft().Image
	require.NotNil(t, img)
	assert.Equal(t, withExt, img.PreviewRef)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, "cat.png", img.FileName)

	sniffed := filepath.Join(dir, "noext")
	require.NoError(t, os.WriteFile(sniffed, pngHeader, 0o644))
	require.NoError(t, f.ctrl.AttachImageFile(sniffed))
	assert.Equal(t, "image/png", f.ctrl.Draft().Image.MIMEType)

	doc := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.4"), 0o644))
	err := f.ctrl.AttachImageFile(doc)
	assert.True(t, apierrors.IsInvalidMediaType(err))
	assert.Equal(t, 1, f.store.Len())

	err = f.ctrl.AttachImageFile(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "stat"))

	assert.Error(t, f.ctrl.AttachImageFile(dir))
}

func TestObserverSeesEchoBeforeReply(t *testing.T) {
	f := newFixture(t)
	var roles []models.Role
	cancel := f.store.Subscribe(func(e models.MessageEntry) {
		roles = append(roles, e.Role)
	})
	defer cancel()

	f.ctrl.SetDraftText("ping")
	_, err := f.ctrl.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles)
}

func TestCycleSelections(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, models.PersonalityAyurvedic, f.ctrl.CyclePersonality())
	assert.Equal(t, models.PersonalityModern, f.ctrl.CyclePersonality())
	assert.Equal(t, models.LanguageHindi, f.ctrl.CycleLanguage())
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "processing", Processing.String())
	assert.Equal(t, "reachable", Reachable.String())
	assert.Equal(t, "unreachable", Unreachable.String())
}

func TestDetectMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", DetectMIMEType("a.PNG", nil))
	assert.Equal(t, "image/jpeg", DetectMIMEType("x", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'}))
	assert.Equal(t, "application/octet-stream", DetectMIMEType("x", []byte("plain")))
	assert.True(t, IsImageType("image/webp"))
	assert.True(t, IsImageType("IMAGE/PNG; charset=binary"))
	assert.False(t, IsImageType("application/pdf"))
	assert.False(t, IsImageType(""))
}

func TestControllerOptions(t *testing.T) {
	ctrl := NewController(conversation.NewStore(), &api.MockBackend{}, nil,
		WithPersonality(models.PersonalityAyurvedic),
		WithLanguage(models.LanguageTamil),
	)
	assert.Equal(t, models.PersonalityAyurvedic, ctrl.Personality())
	assert.Equal(t, models.LanguageTamil, ctrl.Language())
	assert.Equal(t, Reachable, ctrl.Connectivity())
	assert.Equal(t, Idle, ctrl.Lifecycle())
}
