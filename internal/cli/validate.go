// Package cli holds small helpers shared by the artframe commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/artframe/internal/auth"
)

// ResolveFile checks that path exists and is a regular file, then returns
// its absolute path.
func ResolveFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to access %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// CredentialHint turns a credential validation error into a user-facing
// message saying how to fix it.
func CredentialHint(err error) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "Discord credential check failed"
	}
	switch validationErr.Type {
	case auth.ErrTypeNoToken:
		return "No Discord token configured. Set DISCORD_TOKEN in the environment or .env, or store it in ~/.artframe/credentials.gpg"
	case auth.ErrTypeNoChannel:
		return "No Discord channel configured. Set DISCORD_CHANNEL_ID in the environment or .env"
	case auth.ErrTypeInvalidChannel:
		return "DISCORD_CHANNEL_ID must be the numeric channel ID"
	default:
		return "Discord credential check failed"
	}
}
