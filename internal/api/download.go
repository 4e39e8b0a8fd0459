package api

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

// MaxAudioSize bounds a downloaded reply
const MaxAudioSize = 50 * 1024 * 1024 // 50MB

// AudioDownloadOptions configures audio download behavior
type AudioDownloadOptions struct {
	// Directory is the destination directory (default: ~/.voxchat/audio)
	Directory string
	// Filename is the output filename (derived from the URL if empty)
	Filename string
}

// DefaultAudioDownloadOptions returns the default download options
func DefaultAudioDownloadOptions() AudioDownloadOptions {
	homeDir, _ := os.UserHomeDir()
	return AudioDownloadOptions{
		Directory: filepath.Join(homeDir, ".voxchat", "audio"),
	}
}

// DownloadAudio fetches synthesized reply audio and writes it to disk.
// ref may be backend-relative. The backend deletes the file once served, so
// callers keep the returned path instead of downloading twice.
func (c *Client) DownloadAudio(ctx context.Context, ref string, opts AudioDownloadOptions) (string, error) {
	target := c.ResolveURL(ref)
	if target == "" {
		return "", apierrors.NewDownloadError("empty audio reference", ref)
	}

	if opts.Directory == "" {
		opts.Directory = DefaultAudioDownloadOptions().Directory
	}
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return "", apierrors.NewDownloadError("failed to create directory: "+err.Error(), target)
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, target, nil)
	if err != nil {
		return "", apierrors.NewDownloadError("failed to create request: "+err.Error(), target)
	}
	req.Header.Set("Accept", "audio/*")

	resp, cancel, err := c.do(ctx, req)
	if err != nil {
		return "", apierrors.NewDownloadNetworkError(target, err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fhttp.StatusOK {
		return "", apierrors.NewDownloadErrorWithStatus(target, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") && contentType != "application/octet-stream" {
		return "", apierrors.NewDownloadError("response is not audio: "+contentType, target)
	}

	filename := opts.Filename
	if filename == "" {
		filename = audioFilename(target, contentType)
	}
	destPath := filepath.Join(opts.Directory, filename)

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioSize+1))
	if err != nil {
		return "", apierrors.NewDownloadError("failed to read response: "+err.Error(), target)
	}
	if len(body) > MaxAudioSize {
		return "", apierrors.NewDownloadError("audio exceeds maximum size", target)
	}

	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return "", apierrors.NewDownloadError("failed to save file: "+err.Error(), target)
	}

	log.Debug().Str("url", target).Str("path", destPath).Int("bytes", len(body)).Msg("reply audio downloaded")

	absPath, err := filepath.Abs(destPath)
	if err != nil {
		return destPath, nil
	}
	return absPath, nil
}

var audioNamePattern = regexp.MustCompile(`^[\w\-]+\.\w+$`)

// audioFilename derives a file name from the URL, falling back to a random one
func audioFilename(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if audioNamePattern.MatchString(base) {
			return sanitizeFilename(base)
		}
	}

	ext := ".mp3"
	switch {
	case strings.Contains(contentType, "ogg"):
		ext = ".ogg"
	case strings.Contains(contentType, "wav"):
		ext = ".wav"
	case strings.Contains(contentType, "webm"):
		ext = ".webm"
	}
	return "reply_" + uuid.NewString() + ext
}

// sanitizeFilename removes invalid characters from a filename
func sanitizeFilename(name string) string {
	invalid := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = invalid.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "reply"
	}
	return name
}
