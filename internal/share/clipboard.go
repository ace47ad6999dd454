package share

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable reports that no clipboard is attached.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// ClipboardError is returned when text cannot be copied.
type ClipboardError struct {
	Reason string
	Err    error
}

func (e *ClipboardError) Error() string {
	if e.Err != nil {
		return "clipboard: " + e.Reason + ": " + e.Err.Error()
	}
	return "clipboard: " + e.Reason
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// Clipboard stores a single text value.
type Clipboard interface {
	Write(text string) error
	Read() (string, error)
}

// CopyToClipboard writes text to cb. Blank text is refused.
func CopyToClipboard(cb Clipboard, text string) error {
	if cb == nil {
		return &ClipboardError{Reason: "no clipboard", Err: ErrClipboardUnavailable}
	}
	if strings.TrimSpace(text) == "" {
		return &ClipboardError{Reason: "nothing to copy"}
	}
	if err := cb.Write(text); err != nil {
		return &ClipboardError{Reason: "write failed", Err: err}
	}
	return nil
}

// SystemClipboard is the desktop clipboard (pbcopy, xclip/xsel, wl-copy or
// the Windows API). Hosts without one report ErrClipboardUnavailable.
type SystemClipboard struct{}

func (SystemClipboard) Write(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(text)
}

func (SystemClipboard) Read() (string, error) {
	if clipboard.Unsupported {
		return "", &ClipboardError{Reason: "no clipboard", Err: ErrClipboardUnavailable}
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", &ClipboardError{Reason: "read failed", Err: err}
	}
	return text, nil
}
