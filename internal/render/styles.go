package render

// Glamour built-in markdown styles
const (
	StyleDark       = "dark"
	StyleLight      = "light"
	StyleDracula    = "dracula"
	StyleTokyoNight = "tokyo-night"
	StyleNoTTY      = "notty"
	StyleASCII      = "ascii"
)

// MarkdownStyles lists the built-in markdown styles
func MarkdownStyles() []string {
	return []string{StyleDark, StyleLight, StyleDracula, StyleTokyoNight, StyleNoTTY, StyleASCII}
}

// IsMarkdownStyle reports whether style names a built-in markdown style
func IsMarkdownStyle(style string) bool {
	for _, s := range MarkdownStyles() {
		if s == style {
			return true
		}
	}
	return false
}

// MarkdownStyleFor picks the markdown style that matches a TUI theme when the
// user kept the default style
func MarkdownStyleFor(opts Options, theme TUITheme) Options {
	if opts.Style != StyleDark {
		return opts
	}
	switch theme.Name {
	case "tokyonight":
		opts.Style = StyleTokyoNight
	case "dracula":
		opts.Style = StyleDracula
	}
	return opts
}
