package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/aura/internal/logger"
)

// Player plays synthesized WAV audio through oto.
type Player struct {
	otoCtx *oto.Context
	log    *logger.Logger

	mu     sync.Mutex
	active *oto.Player
}

var _ Sink = (*Player)(nil)

// NewPlayer opens the system audio output. It fails when no output
// device is available.
func NewPlayer(log *logger.Logger) (*Player, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	log.Debug("speech: audio output ready (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{otoCtx: otoCtx, log: log}, nil
}

// Play blocks until wav has played or Stop is called.
func (p *Player) Play(wav []byte) error {
	pcm, err := extractPCM(wav)
	if err != nil {
		return err
	}

	pl := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	p.mu.Lock()
	p.active = pl
	p.mu.Unlock()

	pl.Play()
	for pl.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()
	return pl.Close()
}

// Stop cuts the current line short. Safe when idle.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
		p.log.Debug("speech: playback interrupted")
	}
}

// extractPCM returns the payload of the RIFF "data" chunk.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		if id == "data" {
			start := pos + 8
			end := min(start+size, len(wav))
			return wav[start:end], nil
		}
		pos += 8 + size
		// Chunks are word-aligned.
		if size%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("data chunk not found in WAV")
}
