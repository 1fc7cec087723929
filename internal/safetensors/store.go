package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// Store is a decoded safetensors header over the raw file bytes. Tensors are
// decoded lazily by name.
type Store struct {
	raw      []byte
	entries  map[string]storeEntry
	names    []string
	metadata map[string]string
}

type storeEntry struct {
	DType string
	Shape []int64
	Start int
	End   int
}

type storeHeaderEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

func OpenStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenStoreFromBytes(data)
}

func OpenStoreFromBytes(data []byte) (*Store, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	s := &Store{
		raw:     data,
		entries: make(map[string]storeEntry, len(header)),
		names:   make([]string, 0, len(header)),
	}

	for name, raw := range header {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &s.metadata); err != nil {
				return nil, fmt.Errorf("safetensors: decode metadata: %w", err)
			}
			continue
		}

		var entry storeHeaderEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
		}
		entry.DType = strings.ToUpper(entry.DType)

		if err := validateHeaderEntry(name, entry); err != nil {
			return nil, err
		}

		if entry.Offsets[1] > len(data)-headerEnd {
			return nil, fmt.Errorf("safetensors: tensor %q data %v exceeds file size %d", name, entry.Offsets, len(data))
		}
		start := headerEnd + entry.Offsets[0]
		end := headerEnd + entry.Offsets[1]

		elemCount, err := shapeElementCount(entry.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		size := dtypeBytes(entry.DType)
		if elemCount > int64(math.MaxInt/size) {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v overflows byte size", name, entry.Shape)
		}
		if need := int(elemCount) * size; end-start < need {
			return nil, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, need, end-start)
		}

		s.entries[name] = storeEntry{
			DType: entry.DType,
			Shape: append([]int64(nil), entry.Shape...),
			Start: start,
			End:   end,
		}
		s.names = append(s.names, name)
	}

	if len(s.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	sort.Strings(s.names)

	return s, nil
}

// Names returns all tensor names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Metadata returns the string map stored under "__metadata__", if any.
func (s *Store) Metadata() map[string]string {
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *Store) Tensor(name string) (*Tensor, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	t := &Tensor{
		Name:  name,
		DType: entry.DType,
		Shape: append([]int64(nil), entry.Shape...),
	}

	raw := s.raw[entry.Start:entry.End]
	n, _ := shapeElementCount(entry.Shape)
	if entry.DType == DTypeI64 {
		t.Ints = make([]int64, n)
		for i := range t.Ints {
			t.Ints[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return t, nil
	}

	t.Data = decodeFloats(raw, entry.DType, int(n))
	return t, nil
}

// Floats returns the float data of a float-typed tensor.
func (s *Store) Floats(name string) ([]float32, []int64, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, nil, err
	}
	if t.DType == DTypeI64 {
		return nil, nil, fmt.Errorf("safetensors: tensor %q is %s, want a float dtype", name, t.DType)
	}
	return t.Data, t.Shape, nil
}

// Ints returns the data of an I64 tensor.
func (s *Store) Ints(name string) ([]int64, []int64, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, nil, err
	}
	if t.DType != DTypeI64 {
		return nil, nil, fmt.Errorf("safetensors: tensor %q is %s, want %s", name, t.DType, DTypeI64)
	}
	return t.Ints, t.Shape, nil
}

func (s *Store) Close() {
	s.raw = nil
	s.entries = nil
	s.names = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}
	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func validateHeaderEntry(name string, entry storeHeaderEntry) error {
	if dtypeBytes(entry.DType) == 0 {
		return fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", name, entry.DType)
	}

	if entry.Offsets[0] < 0 || entry.Offsets[1] < entry.Offsets[0] {
		return fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, entry.Offsets)
	}

	for _, d := range entry.Shape {
		if d < 0 {
			return fmt.Errorf("safetensors: tensor %q has negative shape dimension in %v", name, entry.Shape)
		}
	}

	return nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

// dtypeBytes returns the element size, or 0 for unsupported dtypes.
func dtypeBytes(dtype string) int {
	switch dtype {
	case DTypeI64:
		return 8
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

func decodeFloats(raw []byte, dtype string, n int) []float32 {
	out := make([]float32, n)

	switch dtype {
	case DTypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case DTypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case DTypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	}

	return out
}

// float16ToFloat32 widens an IEEE 754 half. Bundles written by half-precision
// pipelines store embeddings as F16.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
			break
		}
		e := int32(-14)
		for (frac & 0x0400) == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x03ff
		bits = (sign << 31) | (uint32(e+127) << 23) | (frac << 13)
	case 0x1f:
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		bits = (sign << 31) | ((exp + 127 - 15) << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
