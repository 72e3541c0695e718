package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "tradedesk dev")
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"predict", "trade", "watch", "ledger", "reconcile", "attempts", "companies", "export", "register", "login", "account", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestParseTimeFlag(t *testing.T) {
	ts, err := parseTimeFlag("2024-03-01")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	ts, err = parseTimeFlag("2024-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	_, err = parseTimeFlag("yesterday")
	assert.Error(t, err)
}
