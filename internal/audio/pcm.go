package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FullScale is the factor applied to unit-range samples before 16-bit
// quantization.
const FullScale = 32768

// QuantizePCM16 scales samples by FullScale and clamps them to the int16
// range, so a sample of exactly 1.0 saturates instead of wrapping.
func QuantizePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * FullScale
		switch {
		case v >= 32767:
			out[i] = 32767
		case v <= -32768:
			out[i] = -32768
		case math.IsNaN(v):
			out[i] = 0
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// EncodePCM16WAV wraps 16-bit mono samples in a WAV container.
func EncodePCM16WAV(pcm []int16, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(buf, binary.LittleEndian, pcm)

	return buf.Bytes(), nil
}
