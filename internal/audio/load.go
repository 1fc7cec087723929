package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var decoders = map[string]func([]byte) (Clip, error){
	".wav":  DecodeWAV,
	".mp3":  DecodeMP3,
	".flac": DecodeFLAC,
}

// Supported reports whether LoadFile can decode path, judged by extension.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadFile reads a WAV, MP3 or FLAC file, chosen by extension.
func LoadFile(path string) (Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Clip{}, fmt.Errorf("%s: unsupported audio extension %q", path, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("read %s: %w", path, err)
	}
	clip, err := decode(data)
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return clip, nil
}
