package ui

import (
	"encoding/binary"
	"time"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/emu"
)

// applyPlayerBufferSize sets the audio player's internal buffer to a small
// size for low latency.
// - ~20ms in low-latency (or during fast-forward)
// - ~40ms otherwise
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	bufMs := 40
	if a.cfg.AudioLowLatency || a.fast {
		bufMs = 20
	}
	a.audioPlayer.SetBufferSize(time.Duration(bufMs) * time.Millisecond)
}

// apuStream implements io.Reader by pulling PCM samples from the emulator
// APU and converting them to 16-bit little-endian stereo frames.
type apuStream struct {
	m     *emu.Machine
	mono  bool
	muted *bool

	left, right []int16

	// stats
	underruns  int
	lastWant   int
	lastPulled int
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) == 0 || s == nil || s.m == nil {
		return 0, nil
	}
	// If buffer is smaller than a full stereo frame (4 bytes), fill with
	// silence to avoid returning 0 bytes.
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if s.muted != nil && *s.muted {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	want := len(p) / 4
	if cap(s.left) < want {
		s.left = make([]int16, want)
		s.right = make([]int16, want)
	}
	pulled := s.m.PullAudio(s.left[:want], s.right[:want])

	i := 0
	for j := 0; j < pulled; j++ {
		l, r := s.left[j], s.right[j]
		if s.mono {
			mixed := int16((int32(l) + int32(r)) / 2)
			l, r = mixed, mixed
		}
		binary.LittleEndian.PutUint16(p[i:], uint16(l))
		binary.LittleEndian.PutUint16(p[i+2:], uint16(r))
		i += 4
	}
	// Pad any shortfall with silence; a short pull counts as an underrun so
	// the stats overlay and adaptive buffering can react.
	for ; i+3 < len(p); i += 4 {
		binary.LittleEndian.PutUint16(p[i:], 0)
		binary.LittleEndian.PutUint16(p[i+2:], 0)
	}
	if pulled < want {
		s.underruns++
	}
	s.lastWant = want
	s.lastPulled = pulled
	return len(p), nil
}
