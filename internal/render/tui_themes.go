package render

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// TUITheme is the color scheme of the chat screen
type TUITheme struct {
	Name        string
	Description string

	Surface lipgloss.Color
	Border  lipgloss.Color

	// User is the color of user entries and the prompt
	User lipgloss.Color
	// Assistant is the color of assistant entries
	Assistant lipgloss.Color
	// Accent marks audio and language tags
	Accent lipgloss.Color
	// Recording marks the live microphone placeholder
	Recording lipgloss.Color
	Error     lipgloss.Color

	Text    lipgloss.Color
	TextDim lipgloss.Color
}

func palette(name, desc string, hex [9]string) TUITheme {
	return TUITheme{
		Name:        name,
		Description: desc,
		Surface:     lipgloss.Color(hex[0]),
		Border:      lipgloss.Color(hex[1]),
		User:        lipgloss.Color(hex[2]),
		Assistant:   lipgloss.Color(hex[3]),
		Accent:      lipgloss.Color(hex[4]),
		Recording:   lipgloss.Color(hex[5]),
		Error:       lipgloss.Color(hex[6]),
		Text:        lipgloss.Color(hex[7]),
		TextDim:     lipgloss.Color(hex[8]),
	}
}

// Built-in TUI themes
var (
	TokyoNightTheme = palette("tokyonight", "Tokyo Night, blue accents (default)",
		[9]string{"#24283b", "#414868", "#7aa2f7", "#9ece6a", "#bb9af7", "#e0af68", "#f7768e", "#c0caf5", "#565f89"})
	CatppuccinTheme = palette("catppuccin", "Catppuccin Mocha, warm pastels",
		[9]string{"#313244", "#45475a", "#89b4fa", "#a6e3a1", "#cba6f7", "#f9e2af", "#f38ba8", "#cdd6f4", "#6c7086"})
	NordTheme = palette("nord", "Nord, cool arctic tones",
		[9]string{"#3b4252", "#4c566a", "#88c0d0", "#a3be8c", "#b48ead", "#ebcb8b", "#bf616a", "#eceff4", "#7b88a1"})
	DraculaTheme = palette("dracula", "Dracula, vivid dark",
		[9]string{"#44475a", "#6272a4", "#8be9fd", "#50fa7b", "#ff79c6", "#f1fa8c", "#ff5555", "#f8f8f2", "#6272a4"})
)

var (
	themeMu      sync.RWMutex
	currentTheme = TokyoNightTheme
)

// AvailableTUIThemes returns every built-in TUI theme
func AvailableTUIThemes() []TUITheme {
	return []TUITheme{TokyoNightTheme, CatppuccinTheme, NordTheme, DraculaTheme}
}

// TUIThemeNames returns the theme names for selection
func TUIThemeNames() []string {
	themes := AvailableTUIThemes()
	names := make([]string, len(themes))
	for i, t := range themes {
		names[i] = t.Name
	}
	return names
}

// GetTUIThemeByName looks a theme up by name
func GetTUIThemeByName(name string) (TUITheme, bool) {
	for _, t := range AvailableTUIThemes() {
		if t.Name == name {
			return t, true
		}
	}
	return TUITheme{}, false
}

// GetTUITheme returns the active theme
func GetTUITheme() TUITheme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// SetTUITheme activates a theme by name. Unknown names leave the active
// theme unchanged and return false.
func SetTUITheme(name string) bool {
	theme, ok := GetTUIThemeByName(name)
	if !ok {
		return false
	}
	themeMu.Lock()
	currentTheme = theme
	themeMu.Unlock()
	return true
}
