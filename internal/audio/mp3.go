package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes MP3 bytes into a mono clip. The decoder always yields
// interleaved stereo 16-bit little-endian PCM.
func DecodeMP3(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty MP3 input")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("invalid MP3 file: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("reading MP3 frames: %w", err)
	}

	const bytesPerFrame = 4
	frames := len(pcm) / bytesPerFrame
	interleaved := make([]float32, frames*2)
	for i := range interleaved {
		interleaved[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return Clip{Samples: mixdown(interleaved, 2), SampleRate: dec.SampleRate()}, nil
}
