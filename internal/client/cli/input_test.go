package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTerminal(t *testing.T, tty bool, secret string, err error) {
	t.Helper()
	origIs, origRead, origPrint := isTerminal, readPassword, printlnFn
	t.Cleanup(func() { isTerminal, readPassword, printlnFn = origIs, origRead, origPrint })

	isTerminal = func(int) bool { return tty }
	readPassword = func(int) ([]byte, error) { return []byte(secret), err }
	printlnFn = func(...any) (int, error) { return 0, nil }
}

func TestPromptToken(t *testing.T) {
	t.Run("terminal", func(t *testing.T) {
		stubTerminal(t, true, "  eyJhbGciOi.token \n", nil)
		tok, err := promptToken()
		require.NoError(t, err)
		assert.Equal(t, "eyJhbGciOi.token", tok)
	})

	t.Run("not a terminal", func(t *testing.T) {
		stubTerminal(t, false, "ignored", nil)
		tok, err := promptToken()
		require.NoError(t, err)
		assert.Empty(t, tok)
	})

	t.Run("read error", func(t *testing.T) {
		stubTerminal(t, true, "", errors.New("tty closed"))
		_, err := promptToken()
		assert.EqualError(t, err, "tty closed")
	})
}
