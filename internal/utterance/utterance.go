// ABOUTME: Utterance sources feeding the speaker
// ABOUTME: Each utterance is one flat PCM buffer in the playback format
package utterance

import (
	"errors"
	"fmt"
	"io"

	"github.com/speechkit/ttsplay/pkg/audio"
)

// ErrPartialFrame means an utterance's data does not end on a frame
// boundary.
var ErrPartialFrame = errors.New("utterance: data is not a whole number of frames")

// Utterance is one synthesized phrase ready for playback.
type Utterance struct {
	Name   string
	Format audio.Format
	PCM    []byte
}

// Frames returns the number of frames in the utterance.
func (u *Utterance) Frames() int {
	return u.Format.Frames(len(u.PCM))
}

// Playable reports whether u can be written to a stream negotiated as
// format. The rate is not compared: a device that granted a different rate
// plays the samples as they are.
func (u *Utterance) Playable(format audio.Format) error {
	if u.Format.Encoding != format.Encoding || u.Format.Channels != format.Channels {
		return fmt.Errorf("utterance %s: %s does not match stream %s", u.Name, u.Format, format)
	}
	if bpf := format.BytesPerFrame(); bpf > 0 && len(u.PCM)%bpf != 0 {
		return fmt.Errorf("utterance %s: %w", u.Name, ErrPartialFrame)
	}
	return nil
}

// Source yields utterances in playback order. Next returns io.EOF when
// there are no more.
type Source interface {
	Next() (*Utterance, error)
	Close() error
}

// Slice is a Source over utterances already in memory.
type Slice struct {
	items []*Utterance
	pos   int
}

// NewSlice creates a Source that yields items in order.
func NewSlice(items ...*Utterance) *Slice {
	return &Slice{items: items}
}

func (s *Slice) Next() (*Utterance, error) {
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	u := s.items[s.pos]
	s.pos++
	return u, nil
}

func (s *Slice) Close() error {
	return nil
}
