// ABOUTME: Raw PCM file utterance source
// ABOUTME: One file per utterance; "-" reads standard input
package utterance

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/speechkit/ttsplay/pkg/audio"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// FileSource loads one utterance per path. Files hold headerless PCM that
// is already in the playback format.
type FileSource struct {
	paths  []string
	format audio.Format
	stdin  io.Reader
	logger *slog.Logger
	pos    int
}

// NewFileSource creates a source over paths. stdin backs the "-" path and
// defaults to os.Stdin.
func NewFileSource(paths []string, format audio.Format, stdin io.Reader, logger *slog.Logger) *FileSource {
	if stdin == nil {
		stdin = os.Stdin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		paths:  paths,
		format: format,
		stdin:  stdin,
		logger: logger,
	}
}

func (s *FileSource) Next() (*Utterance, error) {
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	p := s.paths[s.pos]
	s.pos++

	r, name, err := s.open(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("utterance %s: %w", name, err)
	}

	u := &Utterance{Name: name, Format: s.format, PCM: data}
	if err := u.Playable(s.format); err != nil {
		return nil, err
	}

	s.logger.Debug("utterance loaded",
		"name", name,
		"bytes", len(data),
		"frames", u.Frames(),
		"duration", s.format.Duration(u.Frames()),
	)
	return u, nil
}

func (s *FileSource) open(p string) (io.ReadCloser, string, error) {
	if p == Stdin {
		return io.NopCloser(s.stdin), "stdin", nil
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open utterance: %w", err)
	}
	base := filepath.Base(p)
	return f, strings.TrimSuffix(base, filepath.Ext(base)), nil
}

func (s *FileSource) Close() error {
	return nil
}
