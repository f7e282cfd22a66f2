// Package export produces the chat export data file and parses the image
// attachments listed in it.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrMissingCredentials means the exporter has no token or channel.
	ErrMissingCredentials = errors.New("missing Discord credentials")
	// ErrNoExportData means the export finished without a usable data file.
	ErrNoExportData = errors.New("export data file not found")
)

// Attachment is one candidate image from the export.
type Attachment struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// Exporter produces a data file or fails.
type Exporter interface {
	Export(ctx context.Context) (dataPath string, err error)
}

// DiscordExporter runs DiscordChatExporter.CLI as a blocking subprocess.
type DiscordExporter struct {
	Path      string // exporter binary
	Token     string
	ChannelID string
	WorkDir   string // where the exporter writes its output
	Glob      string // pattern matching the exporter's output file
	DataFile  string // name the output is renamed to, relative to WorkDir
}

// Export runs the exporter, finds its JSON output and renames it to DataFile.
func (e *DiscordExporter) Export(ctx context.Context) (string, error) {
	if e.Token == "" || e.ChannelID == "" {
		return "", ErrMissingCredentials
	}

	cmd := exec.CommandContext(ctx, e.Path, "export", "-t", e.Token, "-c", e.ChannelID, "-f", "Json")
	cmd.Dir = e.WorkDir

	log.Info().Str("exporter", e.Path).Str("channel", e.ChannelID).Msg("Running chat export")
	output, err := cmd.CombinedOutput()
	if err != nil {
		// The exporter echoes its arguments on some failures; keep the token out of errors.
		msg := strings.ReplaceAll(strings.TrimSpace(string(output)), e.Token, "***")
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return "", fmt.Errorf("chat export failed: %w: %s", err, msg)
	}

	matches, err := filepath.Glob(filepath.Join(e.WorkDir, e.Glob))
	if err != nil {
		return "", fmt.Errorf("bad export glob %q: %w", e.Glob, err)
	}
	if len(matches) == 0 {
		return "", ErrNoExportData
	}
	sort.Strings(matches)

	dataPath := filepath.Join(e.WorkDir, e.DataFile)
	if err := os.Rename(matches[0], dataPath); err != nil {
		return "", fmt.Errorf("rename %s: %w", matches[0], err)
	}
	log.Info().Str("found", matches[0]).Str("data", dataPath).Msg("Chat export complete")
	return dataPath, nil
}

// FileExporter uses an existing data file and runs nothing.
type FileExporter struct {
	Path string
}

// Export checks the file exists.
func (e FileExporter) Export(ctx context.Context) (string, error) {
	if _, err := os.Stat(e.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoExportData, e.Path)
		}
		return "", err
	}
	return e.Path, nil
}

type exportDoc struct {
	Messages []struct {
		Attachments []Attachment `json:"attachments"`
	} `json:"messages"`
}

// LoadAttachments parses a data file and returns every attachment in message
// order, plus the number of messages. Attachments with empty fields are kept;
// filtering is the fetcher's job.
func LoadAttachments(path string) ([]Attachment, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read export data: %w", err)
	}
	return ParseAttachments(data)
}

// ParseAttachments is LoadAttachments on bytes.
func ParseAttachments(data []byte) ([]Attachment, int, error) {
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parse export data: %w", err)
	}
	var out []Attachment
	for _, m := range doc.Messages {
		out = append(out, m.Attachments...)
	}
	return out, len(doc.Messages), nil
}
