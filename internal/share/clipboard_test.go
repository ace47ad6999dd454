package share

import (
	"errors"
	"testing"

	"github.com/atotto/clipboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryClipboard struct {
	text string
	set  bool
}

func (c *memoryClipboard) Write(text string) error {
	c.text, c.set = text, true
	return nil
}

func (c *memoryClipboard) Read() (string, error) {
	if !c.set {
		return "", &ClipboardError{Reason: "empty"}
	}
	return c.text, nil
}

type failingClipboard struct{}

func (failingClipboard) Write(string) error    { return errors.New("display not found") }
func (failingClipboard) Read() (string, error) { return "", nil }

func TestCopyToClipboard(t *testing.T) {
	cb := &memoryClipboard{}

	_, err := cb.Read()
	var clipErr *ClipboardError
	assert.ErrorAs(t, err, &clipErr)

	require.NoError(t, CopyToClipboard(cb, "BTCUSDT BUY"))
	got, err := cb.Read()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT BUY", got)
}

func TestCopyToClipboard_Errors(t *testing.T) {
	var clipErr *ClipboardError

	err := CopyToClipboard(nil, "text")
	require.ErrorAs(t, err, &clipErr)
	assert.ErrorIs(t, err, ErrClipboardUnavailable)

	err = CopyToClipboard(&memoryClipboard{}, "   ")
	require.ErrorAs(t, err, &clipErr)
	assert.Equal(t, "clipboard: nothing to copy", err.Error())

	err = CopyToClipboard(failingClipboard{}, "text")
	require.ErrorAs(t, err, &clipErr)
	assert.Contains(t, err.Error(), "display not found")
}

func TestSystemClipboard_Unsupported(t *testing.T) {
	if !clipboard.Unsupported {
		t.Skip("host has a system clipboard")
	}
	err := CopyToClipboard(SystemClipboard{}, "BTCUSDT BUY")
	assert.ErrorIs(t, err, ErrClipboardUnavailable)

	_, err = SystemClipboard{}.Read()
	assert.ErrorIs(t, err, ErrClipboardUnavailable)
}
