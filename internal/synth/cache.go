package synth

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/example/go-trait-tts/internal/lang"
)

// CacheMode selects how segment tokens are keyed.
type CacheMode int

const (
	// CachePositional keys by the segment's enumeration index. The cache
	// is cleared whenever a call segments to a different sequence.
	CachePositional CacheMode = iota
	// CacheFingerprint keys by a hash of the segment text and language,
	// so tokens survive edits to other segments.
	CacheFingerprint
)

func (m CacheMode) String() string {
	if m == CacheFingerprint {
		return "fingerprint"
	}
	return "positional"
}

// ParseCacheMode maps "positional" and "fingerprint" to their modes.
func ParseCacheMode(name string) (CacheMode, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "positional", "index":
		return CachePositional, true
	case "fingerprint", "content":
		return CacheFingerprint, true
	default:
		return CachePositional, false
	}
}

// SegmentCache holds the semantic tokens of previously generated segments
// for the lifetime of the process. It is safe for concurrent use.
//
// Every clear starts a new epoch. Reads and writes carry the epoch their call
// began in, so a call whose segmentation was superseded while it was still
// generating can neither read nor store tokens under the new segmentation.
type SegmentCache struct {
	mode CacheMode

	mu        sync.Mutex
	signature uint64
	epoch     Epoch
	entries   map[uint64][]int64
}

// Epoch identifies one generation of cache contents.
type Epoch uint64

func NewSegmentCache(mode CacheMode) *SegmentCache {
	return &SegmentCache{mode: mode, entries: make(map[uint64][]int64)}
}

func (c *SegmentCache) Mode() CacheMode { return c.mode }

// Begin registers the segmentation of a new call and returns the epoch the
// call must pass to Get and Put. In positional mode a different segment
// sequence invalidates every entry.
func (c *SegmentCache) Begin(segments []string, tag lang.Tag) Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != CachePositional {
		return c.epoch
	}
	if sig := signature(segments, tag); sig != c.signature {
		c.clearLocked()
		c.signature = sig
	}
	return c.epoch
}

// Key returns the cache key of the segment at index.
func (c *SegmentCache) Key(index int, segment string, tag lang.Tag) uint64 {
	if c.mode == CachePositional {
		return uint64(index)
	}
	return fingerprint(segment, tag)
}

// Get returns a copy of the tokens stored under key. Calls from a stale epoch
// always miss.
func (c *SegmentCache) Get(epoch Epoch, key uint64) ([]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return nil, false
	}
	tokens, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]int64(nil), tokens...), true
}

// Put stores a copy of tokens under key. Writes from a stale epoch are
// dropped; Put reports whether it stored.
func (c *SegmentCache) Put(epoch Epoch, key uint64, tokens []int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	c.entries[key] = append([]int64(nil), tokens...)
	return true
}

func (c *SegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry and starts a new epoch.
func (c *SegmentCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.signature = 0
}

func (c *SegmentCache) clearLocked() {
	clear(c.entries)
	c.epoch++
}

func signature(segments []string, tag lang.Tag) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(string(tag))
	for _, s := range segments {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(s)
	}
	return d.Sum64()
}

func fingerprint(segment string, tag lang.Tag) uint64 {
	return xxhash.Sum64String(string(tag) + "\x00" + strings.TrimSpace(segment))
}
