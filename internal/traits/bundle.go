// Package traits stores precomputed reference conditioning per character in
// safetensors bundles and selects which corpus clips feed them.
package traits

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/safetensors"
	"github.com/example/go-trait-tts/internal/tensor"
)

// Slot field names, appended to the slot prefix.
const (
	FieldPhonemes  = "phones1"
	FieldPrompt    = "prompt"
	FieldEmbedding = "ge"
	FieldFeatures  = "bert1"
)

const (
	metaFormat   = "format"
	metaLanguage = "language"
	formatV1     = "traits/v1"
)

// SlotPrefix returns the key prefix of one slot, e.g. "happy.0.".
func SlotPrefix(trait string, index int) string {
	return trait + "." + strconv.Itoa(index) + "."
}

// splitKey splits "trait.index.field" into its parts. Traits may contain dots.
func splitKey(key string) (trait string, index int, field string, ok bool) {
	dot := strings.LastIndexByte(key, '.')
	if dot <= 0 {
		return "", 0, "", false
	}
	field = key[dot+1:]
	rest := key[:dot]

	dot = strings.LastIndexByte(rest, '.')
	if dot <= 0 {
		return "", 0, "", false
	}
	index, err := strconv.Atoi(rest[dot+1:])
	if err != nil || index < 0 {
		return "", 0, "", false
	}
	return rest[:dot], index, field, true
}

// Slot is one precomputed reference: the transcript's phonemes, the
// optional features and prompt tokens, and the speaker embedding.
type Slot struct {
	Phonemes  []int64
	Features  *lang.Features
	Prompt    []int64
	Embedding *tensor.Tensor
}

// Unit returns the slot's phonetic unit. A slot stored without features
// gets a zero placeholder of the given dim.
func (s Slot) Unit(dim int) (lang.PhoneticUnit, error) {
	u := lang.PhoneticUnit{PhonemeIDs: s.Phonemes}
	if s.Features != nil {
		u.Features = *s.Features
	} else {
		u.Features = lang.ZeroFeatures(dim, len(s.Phonemes))
	}
	return u, u.Validate()
}

func (s Slot) validate() error {
	if len(s.Phonemes) == 0 {
		return fault.Input("trait slot", "phonemes are empty")
	}
	if s.Embedding == nil || s.Embedding.ElemCount() == 0 {
		return fault.Input("trait slot", "speaker embedding is missing")
	}
	if s.Features != nil && s.Features.Width != len(s.Phonemes) {
		return fault.Consistency("trait slot", "feature width %d != phoneme count %d", s.Features.Width, len(s.Phonemes))
	}
	return nil
}

// Bundle is a read-only view over one character's trait file.
type Bundle struct {
	store    *safetensors.Store
	language lang.Tag
	counts   map[string]int
}

// Open reads and validates a bundle file.
func Open(path string) (*Bundle, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open trait bundle: %w", err)
	}
	return newBundle(store)
}

// OpenBytes validates a bundle held in memory.
func OpenBytes(data []byte) (*Bundle, error) {
	store, err := safetensors.OpenStoreFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("open trait bundle: %w", err)
	}
	return newBundle(store)
}

func newBundle(store *safetensors.Store) (*Bundle, error) {
	b := &Bundle{
		store:    store,
		language: lang.Unknown,
		counts:   make(map[string]int),
	}
	if tag, ok := store.Metadata()[metaLanguage]; ok {
		b.language = lang.ParseTag(tag)
	}

	for _, name := range store.Names() {
		trait, index, field, ok := splitKey(name)
		if !ok || field != FieldPhonemes {
			continue
		}
		if !store.Has(SlotPrefix(trait, index) + FieldEmbedding) {
			return nil, fault.Consistency("open trait bundle", "slot %s has phonemes but no embedding", SlotPrefix(trait, index))
		}
		b.counts[trait]++
	}
	if len(b.counts) == 0 {
		return nil, fault.Input("open trait bundle", "bundle holds no slots")
	}
	return b, nil
}

// Language returns the reference language the bundle was computed with, or
// lang.Unknown when the file does not record one.
func (b *Bundle) Language() lang.Tag { return b.language }

// Traits returns the trait names in sorted order.
func (b *Bundle) Traits() []string {
	out := make([]string, 0, len(b.counts))
	for t := range b.counts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of slots stored for trait.
func (b *Bundle) Count(trait string) int { return b.counts[trait] }

// Lookup returns the slot at index for trait.
func (b *Bundle) Lookup(trait string, index int) (Slot, error) {
	prefix := SlotPrefix(trait, index)
	if !b.store.Has(prefix + FieldPhonemes) {
		return Slot{}, fault.Input("trait lookup", "trait %q has no slot %d (%d available)", trait, index, b.counts[trait])
	}

	var slot Slot
	phonemes, _, err := b.store.Ints(prefix + FieldPhonemes)
	if err != nil {
		return Slot{}, fmt.Errorf("trait lookup: %w", err)
	}
	slot.Phonemes = phonemes

	data, shape, err := b.store.Floats(prefix + FieldEmbedding)
	if err != nil {
		return Slot{}, fmt.Errorf("trait lookup: %w", err)
	}
	if slot.Embedding, err = tensor.New(data, shape); err != nil {
		return Slot{}, fmt.Errorf("trait lookup: %w", err)
	}

	if b.store.Has(prefix + FieldPrompt) {
		if slot.Prompt, _, err = b.store.Ints(prefix + FieldPrompt); err != nil {
			return Slot{}, fmt.Errorf("trait lookup: %w", err)
		}
	}

	if b.store.Has(prefix + FieldFeatures) {
		data, shape, err := b.store.Floats(prefix + FieldFeatures)
		if err != nil {
			return Slot{}, fmt.Errorf("trait lookup: %w", err)
		}
		if len(shape) != 2 {
			return Slot{}, fault.Consistency("trait lookup", "features of %s have shape %v, want [dim width]", prefix, shape)
		}
		slot.Features = &lang.Features{Dim: int(shape[0]), Width: int(shape[1]), Data: data}
	}

	if err := slot.validate(); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

func (b *Bundle) Close() {
	if b.store != nil {
		b.store.Close()
	}
}

// Builder accumulates slots for one character and writes them as a bundle.
type Builder struct {
	language lang.Tag
	slots    map[string][]Slot
}

// NewBuilder returns a builder for slots computed with the given reference
// language. Features are only stored when that language requires them.
func NewBuilder(language lang.Tag) *Builder {
	return &Builder{language: language, slots: make(map[string][]Slot)}
}

// Add appends slot under trait and returns its index.
func (b *Builder) Add(trait string, slot Slot) (int, error) {
	if strings.TrimSpace(trait) == "" {
		return 0, fault.Input("trait builder", "trait name is empty")
	}
	if err := slot.validate(); err != nil {
		return 0, err
	}
	b.slots[trait] = append(b.slots[trait], slot)
	return len(b.slots[trait]) - 1, nil
}

// Len returns the total number of slots added.
func (b *Builder) Len() int {
	n := 0
	for _, s := range b.slots {
		n += len(s)
	}
	return n
}

func (b *Builder) tensors() []safetensors.Tensor {
	keepFeatures := b.language.RequiresFeatures()

	var out []safetensors.Tensor
	for trait, slots := range b.slots {
		for i, s := range slots {
			prefix := SlotPrefix(trait, i)
			out = append(out,
				safetensors.IntTensor(prefix+FieldPhonemes, []int64{int64(len(s.Phonemes))}, s.Phonemes),
				safetensors.FloatTensor(prefix+FieldEmbedding, s.Embedding.Shape(), s.Embedding.RawData()),
			)
			if len(s.Prompt) > 0 {
				out = append(out, safetensors.IntTensor(prefix+FieldPrompt, []int64{1, int64(len(s.Prompt))}, s.Prompt))
			}
			if keepFeatures && s.Features != nil {
				out = append(out, safetensors.FloatTensor(prefix+FieldFeatures, s.Features.Shape(), s.Features.Data))
			}
		}
	}
	return out
}

func (b *Builder) metadata() map[string]string {
	return map[string]string{metaFormat: formatV1, metaLanguage: string(b.language)}
}

// Encode serializes the bundle.
func (b *Builder) Encode() ([]byte, error) {
	if b.Len() == 0 {
		return nil, fault.Input("trait builder", "no slots to write")
	}
	return safetensors.EncodeTensors(b.tensors(), b.metadata())
}

// WriteFile writes the bundle to path, replacing any existing file.
func (b *Builder) WriteFile(path string) error {
	if b.Len() == 0 {
		return fault.Input("trait builder", "no slots to write")
	}
	return safetensors.WriteFile(path, b.tensors(), b.metadata())
}
