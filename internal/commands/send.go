package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/diogo/voxchat/internal/capture"
	"github.com/diogo/voxchat/internal/compose"
	"github.com/diogo/voxchat/internal/config"
	"github.com/diogo/voxchat/internal/conversation"
	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
	"github.com/diogo/voxchat/internal/playback"
	"github.com/diogo/voxchat/internal/render"
)

// Gradient colors for animation
var gradientColors = []lipgloss.Color{
	lipgloss.Color("#ff6b6b"), // Red
	lipgloss.Color("#feca57"), // Yellow
	lipgloss.Color("#48dbfb"), // Cyan
	lipgloss.Color("#ff9ff3"), // Pink
	lipgloss.Color("#54a0ff"), // Blue
	lipgloss.Color("#5f27cd"), // Purple
	lipgloss.Color("#00d2d3"), // Teal
	lipgloss.Color("#1dd1a1"), // Green
}

var (
	colorText     = lipgloss.Color("#c0caf5")
	colorTextDim  = lipgloss.Color("#565f89")
	colorTextMute = lipgloss.Color("#3b4261")
	colorSuccess  = lipgloss.Color("#9ece6a")
	colorPrimary  = lipgloss.Color("#9ece6a")
	colorAccent   = lipgloss.Color("#bb9af7")
	colorError    = lipgloss.Color("#f7768e")
)

// Styles matching the chat TUI
var (
	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				MarginBottom(0)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginTop(1).
				MarginBottom(1)

	languageTagStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#24283b")).
				Background(colorAccent).
				Padding(0, 1)

	audioStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Italic(true)
)

// spinner handles the animated loading indicator
type spinner struct {
	w       io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	frame   int
	stopped bool // Flag to prevent double-close
}

// newSpinner creates a new animated spinner writing to w
func newSpinner(w io.Writer, message string) *spinner {
	return &spinner{
		w:       w,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start begins the animation
func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		// Hide cursor
		fmt.Fprint(s.w, "\033[?25l")

		for {
			select {
			case <-s.stop:
				// Clear line and show cursor
				fmt.Fprint(s.w, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.mu.Lock()
				s.render()
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// render draws the current animation frame
func (s *spinner) render() {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	spinIdx := s.frame % len(chars)
	spinColor := gradientColors[s.frame%len(gradientColors)]
	spinnerChar := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[spinIdx])

	barWidth := 16
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + s.frame) % len(gradientColors)
		charIdx := (i + s.frame/2) % len(barChars)
		style := lipgloss.NewStyle().Foreground(gradientColors[colorIdx])
		bar.WriteString(style.Render(barChars[charIdx]))
	}

	var dots strings.Builder
	numDots := (s.frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < numDots {
			dotColor := gradientColors[(s.frame+i)%len(gradientColors)]
			dots.WriteString(lipgloss.NewStyle().Foreground(dotColor).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(colorTextMute).Render("○"))
		}
	}

	msg := lipgloss.NewStyle().Foreground(colorText).Render(s.message)

	fmt.Fprintf(s.w, "\r\033[K%s %s %s %s", spinnerChar, bar.String(), msg, dots.String())
}

// stopOnce safely closes the stop channel only once
func (s *spinner) stopOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

// stopWithSuccess stops the spinner and shows success message
func (s *spinner) stopWithSuccess(message string) {
	s.stopOnce()
	<-s.done

	checkmark := lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Render("✓")
	msg := lipgloss.NewStyle().Foreground(colorSuccess).Render(message)
	fmt.Fprintf(s.w, "%s %s\n", checkmark, msg)
}

// stopWithError stops the spinner and shows error
func (s *spinner) stopWithError() {
	s.stopOnce()
	<-s.done
}

// progress runs spinners only when output is decorated
type progress struct {
	w       io.Writer
	enabled bool
	spin    *spinner
}

func (p *progress) start(message string) {
	if !p.enabled {
		return
	}
	p.spin = newSpinner(p.w, message)
	p.spin.start()
}

func (p *progress) success(message string) {
	if p.spin != nil {
		p.spin.stopWithSuccess(message)
		p.spin = nil
	}
}

func (p *progress) fail(err error, context string) {
	if p.spin != nil {
		p.spin.stopWithError()
		p.spin = nil
	}
	if p.enabled {
		fmt.Fprintln(p.w, formatErrorMessage(err, context))
	}
}

// sendOptions is a one-shot submission assembled from the root flags
type sendOptions struct {
	Text   string
	Image  string
	Audio  string
	Record time.Duration
	Output string
	Play   bool
	Raw    bool
}

func (o sendOptions) empty() bool {
	return strings.TrimSpace(o.Text) == "" && o.Image == "" && o.Audio == "" && o.Record <= 0
}

// newController builds a controller for cfg. rec may be nil.
func newController(cfg config.Config, backend Backend, rec compose.Recorder) (*compose.Controller, error) {
	personality, err := models.ParsePersonality(cfg.Personality)
	if err != nil {
		return nil, err
	}
	language, err := models.ParseLanguage(cfg.Language)
	if err != nil {
		return nil, err
	}
	return compose.NewController(
		conversation.NewStore(),
		backend,
		rec,
		compose.WithPersonality(personality),
		compose.WithLanguage(language),
	), nil
}

// newRecorder wraps the configured microphone device
func newRecorder(d *Dependencies, cfg config.Config) *capture.Recorder {
	return capture.NewRecorder(d.NewDevice(cfg), capture.WithMaxBytes(cfg.Capture.MaxBytes))
}

// runSend sends one message and prints the reply
func runSend(ctx context.Context, d *Dependencies, opts sendOptions) error {
	d = d.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Audio != "" && opts.Record > 0 {
		return errors.New("use either --audio or --record, not both")
	}

	cfg, err := loadConfig(d)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	decorated := !opts.Raw && d.IsTTY()
	prog := &progress{w: d.Stderr, enabled: decorated}

	backend, err := d.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	var rec compose.Recorder
	if opts.Record > 0 {
		rec = newRecorder(d, cfg)
	}
	ctl, err := newController(cfg, backend, rec)
	if err != nil {
		return err
	}

	ctl.SetDraftText(strings.TrimSpace(opts.Text))

	if opts.Image != "" {
		if err := ctl.AttachImageFile(opts.Image); err != nil {
			prog.fail(err, "Failed to attach image")
			return fmt.Errorf("failed to attach image: %w", err)
		}
	}

	var audio []byte
	if opts.Audio != "" {
		audio, err = os.ReadFile(opts.Audio)
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
		}
	}

	startTime := time.Now()
	var reply *models.ChatReply
	if opts.Record > 0 {
		reply, err = recordAndSend(ctx, ctl, opts.Record, prog)
	} else {
		prog.start("Waiting for reply")
		reply, err = ctl.Send(ctx, audio)
	}
	if err != nil {
		prog.fail(err, "Send failed")
		return fmt.Errorf("send failed: %w", err)
	}
	prog.success("Done")

	log.Debug().
		Dur("took", time.Since(startTime)).
		Bool("audio", reply.HasAudio()).
		Str("language", reply.Language).
		Msg("reply received")

	entry, _ := ctl.Store().Last(models.RoleAssistant)
	if err := printReply(d, cfg, entry, opts, decorated); err != nil {
		return err
	}

	if opts.Play && entry.HasAudio() {
		return playReply(ctx, backend, cfg, entry.AudioRef, prog)
	}
	return nil
}

// recordAndSend captures from the microphone for duration, then sends
func recordAndSend(ctx context.Context, ctl *compose.Controller, duration time.Duration, prog *progress) (*models.ChatReply, error) {
	if err := ctl.StartRecording(ctx); err != nil {
		return nil, err
	}

	prog.start(fmt.Sprintf("Recording for %s", duration))
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		ctl.AbortRecording()
		return nil, ctx.Err()
	case <-timer.C:
	}
	prog.success("Recorded")

	prog.start("Waiting for reply")
	return ctl.StopRecording(ctx)
}

// printReply writes the assistant entry to stdout, a file or the clipboard
func printReply(d *Dependencies, cfg config.Config, entry models.MessageEntry, opts sendOptions, decorated bool) error {
	text := entry.Text

	if !decorated {
		if opts.Output != "" {
			if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			return nil
		}
		fmt.Fprint(d.Stdout, text)
		if !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(d.Stdout)
		}
		return nil
	}

	fmt.Fprintln(d.Stderr)

	if cfg.CopyToClipboard {
		if err := clipboard.WriteAll(text); err != nil {
			warnMsg := lipgloss.NewStyle().Foreground(colorError).Render(
				fmt.Sprintf("⚠ Failed to copy to clipboard: %v", err),
			)
			fmt.Fprintln(d.Stderr, warnMsg)
		} else {
			fmt.Fprintln(d.Stderr, lipgloss.NewStyle().Foreground(colorSuccess).Render("✓ Copied to clipboard"))
		}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintln(d.Stderr, lipgloss.NewStyle().Foreground(colorSuccess).Render(
			fmt.Sprintf("✓ Reply saved to %s", opts.Output),
		))
		return nil
	}

	bubbleWidth := getTerminalWidth() - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	label := assistantLabelStyle.Render("◉ Assistant")
	if entry.ResponseLanguage != "" {
		label += " " + languageTagStyle.Render("Response in "+entry.ResponseLanguage)
	}
	fmt.Fprintln(d.Stdout, label)

	renderOpts := render.FromConfig(cfg.Markdown).WithWidth(contentWidth)
	fmt.Fprintln(d.Stdout, assistantBubbleStyle.Width(bubbleWidth).Render(render.EntryBody(entry, renderOpts)))

	if entry.HasAudio() && !opts.Play {
		fmt.Fprintln(d.Stdout, audioStyle.Render("♪ "+entry.AudioRef))
	}
	return nil
}

// playReply downloads the reply audio into the cache and plays it
func playReply(ctx context.Context, backend Backend, cfg config.Config, ref string, prog *progress) error {
	cacheDir, err := config.GetCacheDir(cfg)
	if err != nil {
		return err
	}
	player := playback.NewPlayer(backend, cacheDir, cfg.Playback.Command, cfg.Playback.Args)

	prog.start("Playing reply")
	if err := player.Play(ctx, ref); err != nil {
		prog.fail(err, "Playback failed")
		return fmt.Errorf("playback failed: %w", err)
	}
	prog.success("Played")
	return nil
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // default width
	}
	return width
}

// isStdoutTTY returns true if stdout is connected to a terminal
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// formatErrorMessage formats an error with additional context from structured errors
func formatErrorMessage(err error, context string) string {
	if err == nil {
		return ""
	}

	errorStyle := lipgloss.NewStyle().Foreground(colorError)
	dimStyle := lipgloss.NewStyle().Foreground(colorTextDim)

	var sb strings.Builder
	sb.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %v", context, err)))

	if status := apierrors.GetHTTPStatus(err); status > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  HTTP Status: %d", status)))
	}

	if endpoint := apierrors.GetEndpoint(err); endpoint != "" {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  Endpoint: %s", endpoint)))
	}

	switch {
	case apierrors.IsNetworkError(err):
		sb.WriteString(dimStyle.Render("\n  Hint: Check that the backend is running and backend_url is correct"))
	case apierrors.IsBackendUnreachable(err):
		sb.WriteString(dimStyle.Render("\n  Hint: The backend rejected the request. Check its logs"))
	case apierrors.IsDeviceAccessDenied(err):
		sb.WriteString(dimStyle.Render("\n  Hint: Check microphone permissions and the capture.command setting"))
	case apierrors.IsInvalidMediaType(err):
		sb.WriteString(dimStyle.Render("\n  Hint: Only image files can be attached"))
	case errors.Is(err, playback.ErrNoPlayer):
		sb.WriteString(dimStyle.Render("\n  Hint: Install ffplay or mpv, or set playback.command"))
	}

	return sb.String()
}
