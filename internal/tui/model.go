package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/diogo/voxchat/internal/compose"
	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/history"
	"github.com/diogo/voxchat/internal/models"
	"github.com/diogo/voxchat/internal/render"
)

// clipboardWrite is replaced in tests
var clipboardWrite = clipboard.WriteAll

// Message types for the TUI
type (
	// storeChangedMsg is sent whenever an entry is appended to the log
	storeChangedMsg struct{}
	startedMsg      struct {
		err error
	}
	replyMsg struct {
		reply *models.ChatReply
		err   error
	}
	recordingStartedMsg struct {
		err error
	}
	attachedMsg struct {
		path string
		err  error
	}
	playedMsg struct {
		err error
	}
	exportedMsg struct {
		path string
		err  error
	}
)

// AudioPlayer plays reply audio by reference
type AudioPlayer interface {
	Play(ctx context.Context, ref string) error
	Stop() error
}

// Options configures the chat TUI
type Options struct {
	// Player plays reply audio; nil disables playback
	Player AudioPlayer
	// Render configures markdown rendering of assistant replies
	Render render.Options

	AutoPlay        bool
	CopyToClipboard bool

	// ExportDir is where ctrl+e writes transcripts
	ExportDir string
	// BackendURL is shown in the header and transcripts
	BackendURL string
}

// Model represents the TUI state
type Model struct {
	ctl  *compose.Controller
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	// events receives a signal per appended entry
	events      chan struct{}
	unsubscribe func()

	// UI components
	viewport  viewport.Model
	textarea  textarea.Model
	pathInput textinput.Model
	spinner   spinner.Model

	// State
	loading   bool
	recording bool
	attaching bool
	ready     bool
	err       error
	notice    string

	width  int
	height int
}

// NewChatModel creates a chat model driving ctl
func NewChatModel(ctl *compose.Controller, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, ctrl+r to talk..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	ti := textinput.New()
	ti.Placeholder = "path/to/image.png"
	ti.Prompt = "Image: "
	ti.CharLimit = 1024

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	if opts.Render.Style == "" {
		opts.Render = render.DefaultOptions()
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	ctx, cancel := context.WithCancel(context.Background())

	events := make(chan struct{}, 1)
	unsubscribe := ctl.Store().Subscribe(func(models.MessageEntry) {
		select {
		case events <- struct{}{}:
		default:
		}
	})

	return Model{
		ctl:         ctl,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		events:      events,
		unsubscribe: unsubscribe,
		textarea:    ta,
		pathInput:   ti,
		spinner:     s,
	}
}

// Init probes the backend and starts listening for log changes
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.startCmd(),
		m.waitForStore(),
	)
}

// Close releases the microphone, stops playback and cancels in-flight work
func (m Model) Close() {
	m.ctl.AbortRecording()
	if m.opts.Player != nil {
		_ = m.opts.Player.Stop()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.cancel()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if m.attaching {
		return m.updateAttach(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.Close()
			return m, tea.Quit

		case "enter":
			if m.loading || m.recording {
				return m, nil
			}
			m.ctl.SetDraftText(m.textarea.Value())
			if !m.hasSomethingToSend() {
				return m, nil
			}
			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.notice = ""
			return m, tea.Batch(m.sendCmd(), m.spinner.Tick)

		case "ctrl+r":
			if m.recording {
				m.recording = false
				m.loading = true
				m.ctl.SetDraftText(m.textarea.Value())
				return m, tea.Batch(m.stopRecordingCmd(), m.spinner.Tick)
			}
			if m.loading {
				return m, nil
			}
			m.ctl.SetDraftText(m.textarea.Value())
			return m, m.startRecordingCmd()

		case "ctrl+o":
			if m.recording {
				return m, nil
			}
			m.attaching = true
			m.pathInput.Reset()
			m.textarea.Blur()
			return m, m.pathInput.Focus()

		case "ctrl+x":
			m.ctl.ClearImage()
			m.notice = "image removed"
			return m, nil

		case "ctrl+p":
			return m, m.playLastCmd()

		case "ctrl+y":
			m.copyLastReply()
			return m, nil

		case "ctrl+e":
			return m, m.exportCmd()

		case "tab":
			if m.loading {
				return m, nil
			}
			m.notice = "personality: " + string(m.ctl.CyclePersonality())
			return m, nil

		case "ctrl+l":
			if m.loading {
				return m, nil
			}
			m.notice = "language: " + string(m.ctl.CycleLanguage())
			return m, nil
		}

	case storeChangedMsg:
		m.refreshViewport()
		cmds = append(cmds, m.waitForStore())

	case startedMsg:
		if msg.err != nil {
			log.Debug().Err(msg.err).Msg("backend probe failed")
		}
		m.refreshViewport()

	case recordingStartedMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, apierrors.ErrCaptureActive) {
				m.err = msg.err
			}
		} else {
			m.recording = true
			m.err = nil
			m.textarea.Blur()
		}
		m.refreshViewport()

	case replyMsg:
		m.loading = false
		m.recording = false
		m.textarea.Focus()
		m.textarea.SetValue(m.ctl.Draft().Text)
		if msg.err != nil && !apierrors.IsSilent(msg.err) {
			m.err = msg.err
		}
		m.refreshViewport()
		if msg.err == nil && msg.reply != nil {
			if m.opts.CopyToClipboard {
				m.copyLastReply()
			}
			if m.opts.AutoPlay && msg.reply.HasAudio() {
				cmds = append(cmds, m.playLastCmd())
			}
		}

	case attachedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.notice = "attached " + msg.path
		}
		m.refreshViewport()

	case playedMsg:
		if msg.err != nil {
			m.err = msg.err
		}

	case exportedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = "transcript saved to " + msg.path
		}

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	// Only pass KeyMsg to textarea to prevent escape sequence leaks
	if !m.loading && !m.recording {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// updateAttach handles input while the image path prompt is open
func (m Model) updateAttach(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			m.Close()
			return m, tea.Quit
		case "esc":
			m.attaching = false
			m.pathInput.Blur()
			m.textarea.Focus()
			return m, nil
		case "enter":
			path := strings.TrimSpace(m.pathInput.Value())
			m.attaching = false
			m.pathInput.Blur()
			m.textarea.Focus()
			if path == "" {
				return m, nil
			}
			return m, m.attachCmd(path)
		}
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 3 // Header panel with border
	inputHeight := 5  // Input panel with border
	statusHeight := 2 // Status bar and notice line
	bannerHeight := 1

	vpHeight := m.height - headerHeight - inputHeight - statusHeight - bannerHeight - 2
	if vpHeight < 5 {
		vpHeight = 5
	}
	contentWidth := m.width - 4

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 4)
	m.pathInput.Width = contentWidth - 12
	m.refreshViewport()
}

func (m Model) hasSomethingToSend() bool {
	d := m.ctl.Draft()
	return !d.Empty()
}

// waitForStore blocks until the log changes
func (m Model) waitForStore() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		<-events
		return storeChangedMsg{}
	}
}

func (m Model) startCmd() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		return startedMsg{err: ctl.Start(ctx)}
	}
}

func (m Model) sendCmd() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		reply, err := ctl.Send(ctx, nil)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) startRecordingCmd() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		return recordingStartedMsg{err: ctl.StartRecording(ctx)}
	}
}

func (m Model) stopRecordingCmd() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		reply, err := ctl.StopRecording(ctx)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) attachCmd(path string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return attachedMsg{path: path, err: ctl.AttachImageFile(path)}
	}
}

func (m Model) playLastCmd() tea.Cmd {
	if m.opts.Player == nil {
		return nil
	}
	entry, ok := m.ctl.Store().LastWithAudio()
	if !ok {
		return nil
	}
	player, ctx, ref := m.opts.Player, m.ctx, entry.AudioRef
	return func() tea.Msg {
		return playedMsg{err: player.Play(ctx, ref)}
	}
}

func (m Model) exportCmd() tea.Cmd {
	entries := m.ctl.Store().Entries()
	meta := history.Meta{
		Backend:     m.opts.BackendURL,
		Personality: string(m.ctl.Personality()),
		Language:    string(m.ctl.Language()),
	}
	dir := m.opts.ExportDir
	return func() tea.Msg {
		path, err := history.WriteFile(dir, entries, meta, history.DefaultExportOptions())
		return exportedMsg{path: path, err: err}
	}
}

// copyLastReply copies the last assistant reply to the system clipboard
func (m *Model) copyLastReply() {
	entry, ok := m.ctl.Store().Last(models.RoleAssistant)
	if !ok || entry.Status != models.StatusNormal {
		return
	}
	if err := clipboardWrite(entry.Text); err != nil {
		log.Debug().Err(err).Msg("clipboard write failed")
		m.notice = "clipboard unavailable"
		return
	}
	m.notice = "reply copied to clipboard"
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4

	// Header
	headerContent := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("◉ voxchat"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(string(m.ctl.Personality())),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(string(m.ctl.Language())),
	)
	sections = append(sections, headerStyle.Width(contentWidth).Render(headerContent))

	// Connectivity banner
	if m.ctl.Connectivity() == compose.Unreachable {
		text := "⚠ Backend unreachable"
		if m.opts.BackendURL != "" {
			text += " at " + m.opts.BackendURL
		}
		sections = append(sections, bannerStyle.Width(contentWidth).Render(text))
	} else {
		sections = append(sections, "")
	}

	// Messages
	var messagesContent string
	if m.ctl.Store().Len() == 0 {
		messagesContent = m.renderWelcome()
	} else {
		messagesContent = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	// Input
	var inputContent string
	switch {
	case m.attaching:
		inputContent = m.pathInput.View()
	case m.recording:
		inputContent = recordingStyle.Render("● Recording... press ctrl+r to send")
	case m.loading:
		inputContent = m.spinner.View() + loadingStyle.Render(" Waiting for the assistant...")
	default:
		label := inputLabelStyle.Render("You")
		if img := m.ctl.Draft().Image; img != nil {
			label += attachmentStyle.Render("🖼 " + img.FileName)
		}
		inputContent = lipgloss.JoinVertical(lipgloss.Left, label, m.textarea.View())
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(inputContent))

	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.err != nil {
		sections = append(sections, FormatError(m.err))
	} else if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderWelcome renders the welcome screen when no messages exist
func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		"",
		welcomeIconStyle.Width(width).Render("◉"),
		"",
		welcomeTitleStyle.Width(width).Render("Welcome to voxchat"),
		"",
		welcomeStyle.Width(width).Render("Type a message, attach an image or hold a conversation by voice"),
		"",
	)

	topPadding := (m.viewport.Height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}
	return strings.Repeat("\n", topPadding) + content
}

// renderStatusBar renders the bottom status bar with shortcuts
func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"^R", "Talk"},
		{"^O", "Image"},
		{"^P", "Play"},
		{"^Y", "Copy"},
		{"Tab", "Persona"},
		{"^L", "Lang"},
		{"^E", "Export"},
		{"Esc", "Quit"},
	}

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(strings.Join(items, "  "))
}

// refreshViewport re-renders the conversation log into the viewport
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	bubbleWidth := m.viewport.Width - 6
	if bubbleWidth < 10 {
		bubbleWidth = 10
	}
	opts := render.MarkdownStyleFor(m.opts.Render, render.GetTUITheme()).WithWidth(bubbleWidth - 4)

	var content strings.Builder
	for i, e := range m.ctl.Store().Entries() {
		if i > 0 {
			content.WriteString("\n")
		}
		content.WriteString(renderEntry(e, bubbleWidth, opts))
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// renderEntry renders one log entry as a labelled bubble
func renderEntry(e models.MessageEntry, width int, opts render.Options) string {
	switch {
	case e.IsPlaceholder():
		return recordingStyle.Width(width).Render("● " + e.Text)

	case e.IsUser():
		body := e.Text
		if e.ImageRef != "" {
			body += "\n" + attachmentStyle.Render("🖼 "+e.ImageRef)
		}
		return userLabelStyle.Render("● You") + "\n" + userBubbleStyle.Width(width).Render(body)

	case e.Status == models.StatusError:
		return assistantLabelStyle.Render("◉ Assistant") + "\n" + errorBubbleStyle.Width(width).Render("⚠ "+e.Text)

	default:
		label := assistantLabelStyle.Render("◉ Assistant")
		if e.ResponseLanguage != "" {
			label += " " + languageTagStyle.Render("Response in "+e.ResponseLanguage)
		}
		body := render.EntryBody(e, opts)
		if e.HasAudio() {
			body += "\n" + attachmentStyle.Render(fmt.Sprintf("♪ %s  (ctrl+p to play)", e.AudioRef))
		}
		return label + "\n" + assistantBubbleStyle.Width(width).Render(body)
	}
}

// RunChat starts the chat TUI
func RunChat(ctl *compose.Controller, opts Options) error {
	m := NewChatModel(ctl, opts)
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
