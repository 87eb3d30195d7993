package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	t.Cleanup(Close)

	LogError("房间 %s 保存失败", "r1")

	assert.Equal(t, filepath.Join(dir, "server.log"), GetLogPath())
	data, err := os.ReadFile(GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ERROR] 房间 r1 保存失败")
}

func TestInit_EmptyDir(t *testing.T) {
	assert.NoError(t, Init(""))
}
