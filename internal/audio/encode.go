package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// EncodeWAV encodes a float clip as 16-bit mono PCM WAV at its own rate.
// Segment dumps use it; final call output goes through EncodePCM16WAV.
func EncodeWAV(clip Clip) ([]byte, error) {
	if clip.SampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", clip.SampleRate)
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, clip.SampleRate, 16, 1, 1)
	err := enc.Write(&goaudio.Float32Buffer{
		Data:           clip.Samples,
		Format:         &goaudio.Format{SampleRate: clip.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("encode wav frames: %w", err)
	}
	// Close rewrites the RIFF and data sizes at the front of the file.
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav header: %w", err)
	}
	return out.data, nil
}

// memFile is an in-memory io.WriteSeeker. Writes past the end grow it.
type memFile struct {
	data []byte
	off  int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.off + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.off:end], p)
	m.off = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	base := int64(0)
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.off
	case io.SeekEnd:
		base = int64(len(m.data))
	default:
		return 0, fmt.Errorf("seek: bad whence %d", whence)
	}
	if base+offset < 0 {
		return 0, errors.New("seek: negative offset")
	}
	m.off = base + offset
	return m.off, nil
}
