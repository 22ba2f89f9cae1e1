package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrow.log")

	l, err := New("escrow-service", "prod", WithFile(path))
	require.NoError(t, err)
	l.Info("bet transition")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), `"service":"escrow-service"`), string(b))
	require.True(t, strings.Contains(string(b), "bet transition"))
}

func TestNewLocal(t *testing.T) {
	l, err := New("wallet-service", "local")
	require.NoError(t, err)
	require.NotNil(t, l)
}
