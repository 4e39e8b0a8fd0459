package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	fhttp "github.com/bogdanfinn/fhttp"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

func parseMultipart(t *testing.T, req *fhttp.Request, body []byte) *multipart.Form {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("invalid content type: %v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("media type = %q, want multipart/form-data", mediaType)
	}
	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(10 << 20)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	return form
}

func readPart(t *testing.T, fh *multipart.FileHeader) []byte {
	t.Helper()
	f, err := fh.Open()
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	return data
}

func okReply(body string) *MockDoer {
	return &MockDoer{Response: NewMockResponse(200, "application/json", []byte(body))}
}

func TestChat_TextOnly(t *testing.T) {
	doer := okReply(`{"text":"Hello there","audio_url":"/audio/a.mp3","language":"English"}`)
	client := newTestClient(t, doer)

	reply, err := client.Chat(context.Background(), &ChatRequest{
		Text:        "Hi",
		Personality: models.PersonalityAyurvedic,
		Language:    models.LanguageEnglish,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Text != "Hello there" || reply.AudioURL != "/audio/a.mp3" || reply.Language != "English" {
		t.Errorf("unexpected reply: %+v", reply)
	}

	req, body := doer.LastRequest()
	if req.Method != fhttp.MethodPost {
		t.Errorf("Method = %s", req.Method)
	}
	if req.URL.String() != "http://localhost:8000/chat/" {
		t.Errorf("URL = %s", req.URL)
	}

	form := parseMultipart(t, req, body)
	if got := form.Value[models.FieldText]; len(got) != 1 || got[0] != "Hi" {
		t.Errorf("text = %v", got)
	}
	if got := form.Value[models.FieldPersonality]; len(got) != 1 || got[0] != "Ayurvedic" {
		t.Errorf("personality = %v", got)
	}
	if got := form.Value[models.FieldLanguage]; len(got) != 1 || got[0] != "English" {
		t.Errorf("language = %v", got)
	}
	if len(form.File) != 0 {
		t.Errorf("expected no file parts, got %v", form.File)
	}
}

func TestChat_ImageAndAudioParts(t *testing.T) {
	doer := okReply(`{"text":"A cat","language":"Hindi"}`)
	client := newTestClient(t, doer)

	image := []byte{0x89, 'P', 'N', 'G'}
	audio := []byte("webm-audio")
	_, err := client.Chat(context.Background(), &ChatRequest{
		Text:  "",
		Image: &ImagePart{Data: image, FileName: "cat.png", MIMEType: "image/png"},
		Audio: audio,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	req, body := doer.LastRequest()
	form := parseMultipart(t, req, body)

	imgParts := form.File[models.FieldImage]
	if len(imgParts) != 1 {
		t.Fatalf("image parts = %d", len(imgParts))
	}
	if imgParts[0].Filename != "cat.png" {
		t.Errorf("image filename = %q", imgParts[0].Filename)
	}
	if ct := imgParts[0].Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("image content type = %q", ct)
	}
	if !bytes.Equal(readPart(t, imgParts[0]), image) {
		t.Error("image bytes mismatch")
	}

	audioParts := form.File[models.FieldAudio]
	if len(audioParts) != 1 {
		t.Fatalf("audio parts = %d", len(audioParts))
	}
	if audioParts[0].Filename != models.AudioFileName {
		t.Errorf("audio filename = %q", audioParts[0].Filename)
	}
	if ct := audioParts[0].Header.Get("Content-Type"); ct != models.AudioMIMEType {
		t.Errorf("audio content type = %q", ct)
	}
	if !bytes.Equal(readPart(t, audioParts[0]), audio) {
		t.Error("audio bytes mismatch")
	}

	// defaults are filled in for unset personality and language
	if got := form.Value[models.FieldPersonality]; len(got) != 1 || got[0] != string(models.DefaultPersonality) {
		t.Errorf("personality = %v", got)
	}
	if got := form.Value[models.FieldLanguage]; len(got) != 1 || got[0] != string(models.DefaultLanguage) {
		t.Errorf("language = %v", got)
	}
	if got := form.Value[models.FieldText]; len(got) != 1 || got[0] != "" {
		t.Errorf("text = %v, want empty", got)
	}
}

func TestChat_EmptyRequest(t *testing.T) {
	doer := &MockDoer{}
	client := newTestClient(t, doer)

	for _, req := range []*ChatRequest{nil, {}, {Text: "   "}} {
		_, err := client.Chat(context.Background(), req)
		if !errors.Is(err, apierrors.ErrEmptySubmission) {
			t.Errorf("Chat(%+v) error = %v, want ErrEmptySubmission", req, err)
		}
	}
	if len(doer.Requests) != 0 {
		t.Errorf("expected no requests, got %d", len(doer.Requests))
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		doer       *MockDoer
		wantStatus int
		wantMsg    string
		invalid    bool
	}{
		{
			name:       "string detail",
			doer:       &MockDoer{Response: NewMockResponse(400, "application/json", []byte(`{"detail":"No input provided"}`))},
			wantStatus: 400,
			wantMsg:    "No input provided",
		},
		{
			name:       "validation detail",
			doer:       &MockDoer{Response: NewMockResponse(422, "application/json", []byte(`{"detail":[{"loc":["body","language"],"msg":"field required"}]}`))},
			wantStatus: 422,
			wantMsg:    "field required",
		},
		{
			name:       "plain text body",
			doer:       &MockDoer{Response: NewMockResponse(502, "text/plain", []byte("Bad Gateway from proxy"))},
			wantStatus: 502,
			wantMsg:    "Bad Gateway from proxy",
		},
		{
			name:       "empty body",
			doer:       &MockDoer{Response: NewMockResponse(500, "", nil)},
			wantStatus: 500,
			wantMsg:    "Internal Server Error",
		},
		{
			name: "network failure",
			doer: &MockDoer{Err: errors.New("connection reset by peer")},
		},
		{
			name:    "malformed success body",
			doer:    okReply(`not json`),
			invalid: true,
		},
		{
			name:    "missing text",
			doer:    okReply(`{"audio_url":"/audio/a.mp3"}`),
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.doer)
			reply, err := client.Chat(context.Background(), &ChatRequest{Text: "hello"})
			if err == nil {
				t.Fatalf("Chat() expected error, got reply %+v", reply)
			}
			if tt.invalid {
				if !errors.Is(err, apierrors.ErrInvalidResponse) {
					t.Errorf("error = %v, want ErrInvalidResponse", err)
				}
				return
			}
			if !apierrors.IsBackendUnreachable(err) {
				t.Errorf("error %v should classify as backend unreachable", err)
			}
			if got := apierrors.GetHTTPStatus(err); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
			var apiErr *apierrors.APIError
			if tt.wantMsg != "" {
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %T", err)
				}
				if apiErr.Message != tt.wantMsg {
					t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMsg)
				}
			} else if !apierrors.IsNetworkError(err) {
				t.Errorf("expected network error, got %T", err)
			}
		})
	}
}

func TestParseChatReply(t *testing.T) {
	reply, err := ParseChatReply([]byte(`{"text":"नमस्ते","audio_url":null,"language":"Hindi"}`))
	if err != nil {
		t.Fatalf("ParseChatReply() error = %v", err)
	}
	if reply.Text != "नमस्ते" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.HasAudio() {
		t.Error("null audio_url must not count as audio")
	}
	if reply.AnnotatedLanguage() != "Hindi" {
		t.Errorf("AnnotatedLanguage() = %q", reply.AnnotatedLanguage())
	}

	if _, err := ParseChatReply([]byte(`["text"]`)); !errors.Is(err, apierrors.ErrInvalidResponse) {
		t.Errorf("array body error = %v", err)
	}
	if _, err := ParseChatReply([]byte(`{"text":42}`)); !errors.Is(err, apierrors.ErrInvalidResponse) {
		t.Errorf("numeric text error = %v", err)
	}
}

func TestChatRequest_Empty(t *testing.T) {
	tests := []struct {
		name string
		req  *ChatRequest
		want bool
	}{
		{"nil", nil, true},
		{"blank", &ChatRequest{Text: " \n\t"}, true},
		{"text", &ChatRequest{Text: "x"}, false},
		{"image", &ChatRequest{Image: &ImagePart{Data: []byte{1}}}, false},
		{"audio", &ChatRequest{Audio: []byte{1}}, false},
	}
	for _, tt := range tests {
		if got := tt.req.Empty(); got != tt.want {
			t.Errorf("%s: Empty() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
