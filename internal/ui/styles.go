package ui

import (
	"fmt"
	"strconv"
)

// ANSI256 color codes.
const (
	colorName  = 74  // blue
	colorOK    = 71  // green
	colorWarn  = 179 // amber
	colorFail  = 167 // red
	colorMuted = 245 // gray
)

// Styler applies colors when enabled and is a pass-through otherwise.
type Styler struct {
	enabled bool
}

// NewStyler returns a Styler that colors output only when enabled is true.
func NewStyler(enabled bool) Styler { return Styler{enabled: enabled} }

func (s Styler) paint(code int, text string) string {
	if !s.enabled || text == "" {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Name styles an event name.
func (s Styler) Name(text string) string { return s.paint(colorName, text) }

// OK styles a healthy value.
func (s Styler) OK(text string) string { return s.paint(colorOK, text) }

// Warn styles a value that needs attention.
func (s Styler) Warn(text string) string { return s.paint(colorWarn, text) }

// Fail styles a failing value.
func (s Styler) Fail(text string) string { return s.paint(colorFail, text) }

// Muted styles secondary information such as timestamps.
func (s Styler) Muted(text string) string { return s.paint(colorMuted, text) }

// HTTPStatus renders an endpoint's last status code: 200 is OK, other
// responses are failures, and 0 (no response) renders as a muted dash.
func (s Styler) HTTPStatus(code int) string {
	switch {
	case code == 0:
		return s.Muted("-")
	case code == 200:
		return s.OK(strconv.Itoa(code))
	default:
		return s.Fail(strconv.Itoa(code))
	}
}

// Health renders a health status string.
func (s Styler) Health(status string) string {
	switch status {
	case "healthy", "SERVING":
		return s.OK(status)
	case "starting":
		return s.Warn(status)
	default:
		return s.Fail(status)
	}
}
