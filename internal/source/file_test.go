package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/source"
)

func writeMailFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emails.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceParsesLines(t *testing.T) {
	path := writeMailFile(t, "alice@example.com|Password reset|I forgot my password and need access\n"+
		"\n"+
		"# staged for tomorrow's demo\n"+
		"bob@example.com|VPN down\n"+
		"|Printer jammed|third floor copier\n")

	src := source.NewFileSource(path, zap.NewNop())
	messages, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, "alice@example.com", messages[0].Sender)
	assert.Equal(t, "Password reset", messages[0].Subject)
	assert.Equal(t, "I forgot my password and need access", messages[0].Body)
	assert.False(t, messages[0].ReceivedAt.IsZero())

	assert.Equal(t, "bob@example.com", messages[1].Sender)
	assert.Equal(t, "VPN down", messages[1].Subject)
	assert.Empty(t, messages[1].Body)

	assert.Equal(t, "unknown@example.com", messages[2].Sender)
	assert.Equal(t, "Printer jammed", messages[2].Subject)
}

func TestFileSourceFingerprintsStableAcrossPolls(t *testing.T) {
	path := writeMailFile(t, "alice@example.com|Password reset|locked out\n")
	src := source.NewFileSource(path, zap.NewNop())

	first, err := src.Fetch(context.Background())
	require.NoError(t, err)
	second, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Fingerprint(), second[0].Fingerprint())
}

func TestFileSourceMissingFile(t *testing.T) {
	src := source.NewFileSource(filepath.Join(t.TempDir(), "absent.txt"), zap.NewNop())
	messages, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, messages)
}
