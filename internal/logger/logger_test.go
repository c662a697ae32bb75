package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wfunc/room-client/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestInitWritesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	err := Init(&config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:     dir,
			Filename: "room.log",
			MaxSize:  1,
		},
		Modules: map[string]string{ModuleRoom: "info"},
	})
	require.NoError(t, err)

	LogReply("s1", "e1", "AskForChoice", `"draw"`)
	LogProtocolMessage("receive", "request", "AskForChoice", "{}")
	GetModuleLogger(ModuleRules).Info("rules loaded")
	require.NoError(t, Sync())

	data, err := os.ReadFile(filepath.Join(dir, "room.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "reply_sent")
	assert.Contains(t, string(data), "rules loaded")
	// room 模块级别为 info，debug 级的协议日志走 websocket 模块仍会写入
	assert.Contains(t, string(data), "protocol_message")

	SetLevel("error")
	Info("should be dropped")
	require.NoError(t, Sync())
	data, err = os.ReadFile(filepath.Join(dir, "room.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	SetLevel("debug")
}
