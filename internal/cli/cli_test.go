package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/artframe/internal/auth"
)

func TestFormatDurationShort(t *testing.T) {
	assert.Equal(t, "0:05", FormatDurationShort(5*time.Second))
	assert.Equal(t, "2:03", FormatDurationShort(2*time.Minute+3*time.Second))
	assert.Equal(t, "1:00:07", FormatDurationShort(time.Hour+7*time.Second))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(1536*1024))
}

func TestRunSummary(t *testing.T) {
	assert.Equal(t, "3 downloaded, 2 framed in 0:10 (archive 2.0 KiB)", RunSummary(3, 2, 2048, 10*time.Second))
	assert.Equal(t, "0 downloaded, 0 framed in 0:01", RunSummary(0, 0, 0, time.Second))
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(f, []byte("{}"), 0o644))

	got, err := ResolveFile(f)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	_, err = ResolveFile(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "file not found")

	_, err = ResolveFile(dir)
	assert.ErrorContains(t, err, "not a regular file")
}

func TestCredentialHint(t *testing.T) {
	assert.Contains(t, CredentialHint(auth.ValidateCredentials("", "1")), "DISCORD_TOKEN")
	assert.Contains(t, CredentialHint(auth.ValidateCredentials("tok", "")), "DISCORD_CHANNEL_ID")
	assert.Contains(t, CredentialHint(auth.ValidateCredentials("tok", "abc")), "numeric")
}
