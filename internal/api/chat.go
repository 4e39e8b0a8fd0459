package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 * 1024

// ImagePart is an image attached to a chat request
type ImagePart struct {
	Data     []byte
	FileName string
	MIMEType string
}

// ChatRequest is one outgoing multi-modal submission
type ChatRequest struct {
	Text        string
	Personality models.Personality
	Language    models.Language
	Image       *ImagePart
	Audio       []byte
}

// Empty reports whether the request carries no input at all
func (r *ChatRequest) Empty() bool {
	return r == nil || (strings.TrimSpace(r.Text) == "" && r.Image == nil && len(r.Audio) == 0)
}

// Chat posts a submission to the backend and returns the assistant reply
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*models.ChatReply, error) {
	if req.Empty() {
		return nil, apierrors.ErrEmptySubmission
	}

	body, contentType, err := buildChatBody(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoint(models.EndpointChat)
	httpReq, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	log.Debug().
		Str("endpoint", endpoint).
		Bool("image", req.Image != nil).
		Int("audio_bytes", len(req.Audio)).
		Str("personality", string(req.Personality)).
		Str("language", string(req.Language)).
		Msg("sending chat request")

	resp, cancel, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, apierrors.NewNetworkError(models.EndpointChat, err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp, models.EndpointChat)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.NewNetworkError(models.EndpointChat, fmt.Errorf("failed to read response: %w", err))
	}

	reply, err := ParseChatReply(respBody)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("chars", len(reply.Text)).Bool("audio", reply.HasAudio()).Msg("chat reply received")
	return reply, nil
}

// ParseChatReply extracts the assistant reply from a /chat/ response body
func ParseChatReply(body []byte) (*models.ChatReply, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", apierrors.ErrInvalidResponse)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", apierrors.ErrInvalidResponse)
	}

	text := parsed.Get(PathReplyText)
	if !text.Exists() || text.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing text", apierrors.ErrInvalidResponse)
	}

	return &models.ChatReply{
		Text:     text.String(),
		AudioURL: parsed.Get(PathReplyAudioURL).String(),
		Language: parsed.Get(PathReplyLanguage).String(),
	}, nil
}

// buildChatBody encodes the request as multipart/form-data
func buildChatBody(req *ChatRequest) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if req.Image != nil {
		fileName := req.Image.FileName
		if fileName == "" {
			fileName = "image"
		}
		if err := writeFilePart(writer, models.FieldImage, fileName, req.Image.MIMEType, req.Image.Data); err != nil {
			return nil, "", err
		}
	}

	if len(req.Audio) > 0 {
		if err := writeFilePart(writer, models.FieldAudio, models.AudioFileName, models.AudioMIMEType, req.Audio); err != nil {
			return nil, "", err
		}
	}

	personality := req.Personality
	if personality == "" {
		personality = models.DefaultPersonality
	}
	language := req.Language
	if language == "" {
		language = models.DefaultLanguage
	}

	fields := []struct{ name, value string }{
		{models.FieldText, req.Text},
		{models.FieldPersonality, string(personality)},
		{models.FieldLanguage, string(language)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, fileName, mimeType string, data []byte) error {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(fileName)))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write file data: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// parseErrorResponse turns a non-2xx response into an APIError carrying the
// backend's detail message when one is present
func parseErrorResponse(resp *fhttp.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorDetail(body)
	if msg == "" {
		msg = fhttp.StatusText(resp.StatusCode)
	}
	log.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Str("detail", msg).Msg("backend returned an error")
	return apierrors.NewAPIError(resp.StatusCode, endpoint, msg)
}

func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	detail := gjson.GetBytes(body, PathErrorDetail)
	switch {
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		return gjson.GetBytes(body, PathErrorDetailMsg).String()
	default:
		return ""
	}
}
