package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".artframe"
	credentialFile = "credentials.gpg"
)

// ErrNoToken is returned when no Discord token source is configured.
var ErrNoToken = errors.New("discord token not found")

// GetToken retrieves the Discord token used by the chat exporter.
// Priority order:
//  1. DISCORD_TOKEN environment variable (also populated from .env)
//  2. GPG-encrypted file at ~/.artframe/credentials.gpg
func GetToken() (string, error) {
	if key := os.Getenv("DISCORD_TOKEN"); key != "" {
		log.Debug().Msg("Using Discord token from environment variable")
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using Discord token from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No Discord token available")
	return "", fmt.Errorf("%w: set DISCORD_TOKEN or store it in ~/%s/%s", ErrNoToken, credentialDir, credentialFile)
}

// getFromGPG decrypts the token from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}

	passphrasePath, err := getPassphrasePath()
	if err == nil {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			// Passphrase file must be owner-only.
			mode := fi.Mode().Perm()
			if mode&0077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// getPassphrasePath returns the path to the GPG passphrase file in the
// working directory.
func getPassphrasePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, ".gpg-passphrase"), nil
}
