package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "client:\n  room_id: r1\n"))
	require.NoError(t, err)

	assert.Equal(t, "r1", c.Client.RoomID)
	assert.Equal(t, "ws://127.0.0.1:9527/room", c.Client.ServerURL)
	assert.Equal(t, 10*time.Second, c.Client.HandshakeTimeout)
	assert.Equal(t, CancelPolicyDefault, c.Room.DefaultCancelPolicy)
	assert.Equal(t, 64, c.Room.InboxSize)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, "127.0.0.1:8090", c.Control.Addr())
}

func TestLoadCancelPolicies(t *testing.T) {
	path := writeConfig(t, `
room:
  default_cancel_policy: retry
  cancel_policies:
    AskForUseCard: reply
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CancelPolicyReply, c.Room.CancelPolicyFor("AskForUseCard"))
	assert.Equal(t, CancelPolicyRetry, c.Room.CancelPolicyFor("AskForResponseCard"))
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, "room:\n  default_cancel_policy: sometimes\n"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: oracle\n"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ROOM_CLIENT_CLIENT_PLAYER_ID", "3")
	c, err := Load(writeConfig(t, "client:\n  player_id: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Client.PlayerID)
}

func TestCancelPolicyForEmptyDefault(t *testing.T) {
	var r RoomConfig
	assert.Equal(t, CancelPolicyDefault, r.CancelPolicyFor("AskForUseCard"))
}

func TestLoadCardNames(t *testing.T) {
	path := writeConfig(t, `
rules:
  cards:
    "7": slash
    "8": " jink "
`)
	c, err := Load(path)
	require.NoError(t, err)

	names, err := c.Rules.CardNames()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{7: "slash", 8: "jink"}, names)
}

func TestLoadRejectsBadCardNames(t *testing.T) {
	tests := []struct {
		name  string
		cards map[string]string
	}{
		{"not a number", map[string]string{"seven": "slash"}},
		{"negative", map[string]string{"-1": "slash"}},
		{"empty name", map[string]string{"7": " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RulesConfig{Cards: tt.cards}.CardNames()
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
		})
	}

	_, err := Load(writeConfig(t, "rules:\n  cards:\n    x: slash\n"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}
