package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// DecodeFLAC decodes a FLAC stream of any bit depth and channel count into a
// mono clip.
func DecodeFLAC(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty FLAC input")
	}

	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("invalid FLAC file: %w", err)
	}
	defer stream.Close()

	rate := int(stream.Info.SampleRate)
	channels := int(stream.Info.NChannels)
	bits := int(stream.Info.BitsPerSample)
	if rate <= 0 || channels <= 0 || bits <= 0 || bits > 32 {
		return Clip{}, fmt.Errorf("%w: FLAC rate %d, channels %d, bits %d", ErrFormatMismatch, rate, channels, bits)
	}
	scale := float32(int64(1) << (bits - 1))

	interleaved := make([]float32, 0, int(stream.Info.NSamples)*channels)
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Clip{}, fmt.Errorf("reading FLAC frame: %w", err)
		}
		if len(f.Subframes) != channels {
			return Clip{}, fmt.Errorf("%w: frame has %d channels, stream %d", ErrFormatMismatch, len(f.Subframes), channels)
		}
		for i := range int(f.BlockSize) {
			for _, sub := range f.Subframes {
				interleaved = append(interleaved, float32(sub.Samples[i])/scale)
			}
		}
	}
	return Clip{Samples: mixdown(interleaved, channels), SampleRate: rate}, nil
}
