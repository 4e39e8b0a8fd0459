// Package playback downloads synthesized reply audio and plays it with an
// external player.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/diogo/voxchat/internal/api"
)

// ErrNoPlayer is returned when no audio player can be found
var ErrNoPlayer = errors.New("no audio player found")

// Downloader fetches reply audio to a local file
type Downloader interface {
	DownloadAudio(ctx context.Context, ref string, opts api.AudioDownloadOptions) (string, error)
}

// knownPlayers are tried in order when no player is configured
var knownPlayers = [][]string{
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error"},
	{"mpv", "--no-video", "--really-quiet"},
	{"mpg123", "-q"},
	{"afplay"},
}

// ResolveCommand returns the configured player, or the first known player
// found on PATH
func ResolveCommand(command string, args []string) (string, []string, error) {
	if command != "" {
		path, err := exec.LookPath(command)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s", ErrNoPlayer, command)
		}
		return path, args, nil
	}
	for _, candidate := range knownPlayers {
		if path, err := exec.LookPath(candidate[0]); err == nil {
			return path, candidate[1:], nil
		}
	}
	return "", nil, ErrNoPlayer
}

// Player plays reply audio, caching downloads by reference.
// The backend serves each file once, so a cached copy is the only way to
// replay a reply.
type Player struct {
	downloader Downloader
	cacheDir   string
	command    string
	args       []string

	mu      sync.Mutex
	cache   map[string]string
	current *exec.Cmd
}

// NewPlayer creates a player that stores downloads in cacheDir
func NewPlayer(downloader Downloader, cacheDir, command string, args []string) *Player {
	return &Player{
		downloader: downloader,
		cacheDir:   cacheDir,
		command:    command,
		args:       append([]string(nil), args...),
		cache:      make(map[string]string),
	}
}

// Fetch returns a local path for ref, downloading it on first use
func (p *Player) Fetch(ctx context.Context, ref string) (string, error) {
	p.mu.Lock()
	path, ok := p.cache[ref]
	p.mu.Unlock()
	if ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	path, err := p.downloader.DownloadAudio(ctx, ref, api.AudioDownloadOptions{Directory: p.cacheDir})
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cache[ref] = path
	p.mu.Unlock()
	return path, nil
}

// Play fetches ref and blocks until the player exits, ctx is cancelled or
// Stop is called. Starting a new playback stops the previous one.
func (p *Player) Play(ctx context.Context, ref string) error {
	path, err := p.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	return p.PlayFile(ctx, path)
}

// PlayFile plays a local audio file
func (p *Player) PlayFile(ctx context.Context, path string) error {
	command, args, err := ResolveCommand(p.command, p.args)
	if err != nil {
		return err
	}

	_ = p.Stop()

	cmd := exec.CommandContext(ctx, command, append(append([]string(nil), args...), path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	p.mu.Lock()
	p.current = cmd
	p.mu.Unlock()

	log.Debug().Str("player", command).Str("file", path).Msg("playing reply audio")
	err = cmd.Wait()

	p.mu.Lock()
	stopped := p.current != cmd
	if !stopped {
		p.current = nil
	}
	p.mu.Unlock()

	if stopped || ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}

// Stop ends the current playback, if any
func (p *Player) Stop() error {
	p.mu.Lock()
	cmd := p.current
	p.current = nil
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Playing reports whether a playback is in progress
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
