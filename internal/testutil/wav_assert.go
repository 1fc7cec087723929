package testutil

import (
	"encoding/binary"
	"fmt"
	"testing"
)

// pcmHeader is the subset of a WAV fmt chunk the assertions look at.
type pcmHeader struct {
	format   uint16
	channels uint16
	rate     uint32
	bits     uint16
	dataLen  uint32
}

// readPCMHeader walks the RIFF chunk list and returns the fmt fields and the
// size of the data chunk.
func readPCMHeader(data []byte) (pcmHeader, error) {
	var h pcmHeader
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, fmt.Errorf("not a RIFF/WAVE file (%d bytes)", len(data))
	}

	var sawFmt, sawData bool
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		switch id {
		case "fmt ":
			if size < 16 || len(body) < 16 {
				return h, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			h.format = binary.LittleEndian.Uint16(body[0:2])
			h.channels = binary.LittleEndian.Uint16(body[2:4])
			h.rate = binary.LittleEndian.Uint32(body[4:8])
			h.bits = binary.LittleEndian.Uint16(body[14:16])
			sawFmt = true
		case "data":
			h.dataLen = uint32(size)
			sawData = true
		}
		pos += 8 + size + size%2
	}

	switch {
	case !sawFmt:
		return h, fmt.Errorf("no fmt chunk")
	case !sawData:
		return h, fmt.Errorf("no data chunk")
	}
	return h, nil
}

// AssertValidWAV fails tb unless data is non-empty 16-bit mono PCM at
// sampleRate.
func AssertValidWAV(tb testing.TB, data []byte, sampleRate int) {
	tb.Helper()

	h, err := readPCMHeader(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}
	if h.format != 1 || h.channels != 1 || h.bits != 16 {
		tb.Fatalf("WAV: want PCM mono 16-bit, got format=%d channels=%d bits=%d", h.format, h.channels, h.bits)
	}
	if int(h.rate) != sampleRate {
		tb.Fatalf("WAV: sample rate %d, want %d", h.rate, sampleRate)
	}
	if h.dataLen < 2 {
		tb.Fatal("WAV: no samples")
	}
}

// AssertWAVDurationApprox fails tb unless the 16-bit mono audio in data lasts
// between minSec and maxSec at sampleRate.
func AssertWAVDurationApprox(tb testing.TB, data []byte, sampleRate int, minSec, maxSec float64) {
	tb.Helper()

	h, err := readPCMHeader(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}
	sec := float64(h.dataLen/2) / float64(sampleRate)
	if sec < minSec || sec > maxSec {
		tb.Fatalf("WAV lasts %.3fs, want [%.3f, %.3f]", sec, minSec, maxSec)
	}
}
