// Package commands provides CLI commands for voxchat.
package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/diogo/voxchat/internal/config"
	"github.com/diogo/voxchat/internal/logging"
	"github.com/diogo/voxchat/internal/models"
)

var (
	// Global flags
	backendFlag     string
	personalityFlag string
	languageFlag    string
	verboseFlag     bool

	// One-shot send flags
	outputFlag string
	fileFlag   string
	imageFlag  string
	audioFlag  string
	recordFlag time.Duration
	playFlag   bool
	rawFlag    bool

	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// deps is the dependency set used by the package-level commands
var deps = NewDependencies()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "voxchat [message]",
	Short: "Multi-modal chat client for the voxchat backend",
	Long: `voxchat talks to a voxchat backend with text, images and voice.

Replies come back as text and, when the backend synthesizes it, as audio.

Examples:
  voxchat chat                              Start interactive chat
  voxchat "Hello"                           Send a single message
  voxchat -i photo.jpg                      Ask about an image
  voxchat "What is this?" -i photo.jpg      Image with a question
  voxchat --record 5s --play                Talk for five seconds, play the reply
  voxchat -a question.webm                  Send a recorded voice message
  voxchat -l Hindi -p Ayurvedic "Hi"     Pick language and personality
  cat notes.md | voxchat                    Read the message from stdin
  voxchat "Hello" -o reply.md               Save the reply to a file`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "voxchat %s (built %s)\n", Version, BuildTime)
			return nil
		}

		text, err := readMessage(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		opts := sendOptions{
			Text:   text,
			Image:  imageFlag,
			Audio:  audioFlag,
			Record: recordFlag,
			Output: outputFlag,
			Play:   playFlag,
			Raw:    rawFlag,
		}
		if opts.empty() {
			return cmd.Help()
		}
		return runSend(cmd.Context(), deps, opts)
	},
}

// readMessage resolves the message text from --file, stdin or the argument
func readMessage(args []string, stdin io.Reader) (string, error) {
	if fileFlag != "" {
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	}

	if len(args) > 0 {
		return args[0], nil
	}

	if f, ok := stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "Backend URL (overrides backend_url)")
	rootCmd.PersistentFlags().StringVarP(&personalityFlag, "personality", "p", "", "Assistant personality")
	rootCmd.PersistentFlags().StringVarP(&languageFlag, "language", "l", "", "Reply language")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")

	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Save reply text to file")
	rootCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read message from file")
	rootCmd.Flags().StringVarP(&imageFlag, "image", "i", "", "Path to image file to include")
	rootCmd.Flags().StringVarP(&audioFlag, "audio", "a", "", "Path to a recorded voice message to send")
	rootCmd.Flags().DurationVar(&recordFlag, "record", 0, "Record from the microphone for this long and send it")
	rootCmd.Flags().BoolVar(&playFlag, "play", false, "Play the reply audio")
	rootCmd.Flags().BoolVar(&rawFlag, "raw", false, "Print only the reply text")
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")

	rootCmd.AddCommand(NewChatCmd(deps))
	rootCmd.AddCommand(NewHealthCmd(deps))
	rootCmd.AddCommand(NewConfigCmd(deps))
}

// loadConfig resolves the configuration and applies the global flags
func loadConfig(d *Dependencies) (config.Config, error) {
	cfg, err := d.LoadConfig()
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}

	if backendFlag != "" {
		cfg.BackendURL = backendFlag
	}
	if personalityFlag != "" {
		p, err := models.ParsePersonality(personalityFlag)
		if err != nil {
			return cfg, err
		}
		cfg.Personality = string(p)
	}
	if languageFlag != "" {
		l, err := models.ParseLanguage(languageFlag)
		if err != nil {
			return cfg, err
		}
		cfg.Language = string(l)
	}
	if verboseFlag {
		cfg.LogLevel = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setupLogging routes the global logger. Interactive sessions log to a file
// so the TUI keeps the terminal; one-shot commands log to stderr.
func setupLogging(cfg config.Config, interactive bool) func() {
	if !interactive {
		if err := logging.SetupConsole(cfg.LogLevel); err != nil {
			log.Warn().Err(err).Msg("falling back to warn level")
		}
		return func() {}
	}

	dir, err := config.GetConfigDir()
	if err != nil {
		logging.Discard()
		return func() {}
	}
	closer, err := logging.SetupFile(dir, cfg.LogLevel)
	if err != nil && closer == nil {
		logging.Discard()
		return func() {}
	}
	return func() { _ = closer.Close() }
}
