package engine

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// maxMemoryEntries bounds the LRU by count; the byte budget is enforced on top.
const maxMemoryEntries = 1 << 16

// module holds the bytes of a cached module. compiled is set for modules that
// were checked and compiled by Save, and nil for modules cached by a disk load.
type module struct {
	compiled wazero.CompiledModule
	code     []byte
}

func (m *module) size() int {
	return len(m.code)
}

// memoryCache is a byte-bounded LRU of modules. Evicted compiled modules are
// closed.
type memoryCache struct {
	lru    *simplelru.LRU[Checksum, *module]
	logger *zap.Logger
	mu     sync.Mutex
	used   int
	budget int
}

func newMemoryCache(budget int, logger *zap.Logger) (*memoryCache, error) {
	mc := &memoryCache{budget: budget, logger: logger}
	lru, err := simplelru.NewLRU[Checksum, *module](maxMemoryEntries, mc.evicted)
	if err != nil {
		return nil, err
	}
	mc.lru = lru
	return mc, nil
}

// evicted is called by the LRU with mu held.
func (mc *memoryCache) evicted(c Checksum, m *module) {
	mc.used -= m.size()
	if m.compiled != nil {
		if err := m.compiled.Close(context.Background()); err != nil {
			mc.logger.Warn("close evicted module", zap.Stringer("checksum", c), zap.Error(err))
		}
	}
}

// add caches m under c and reports whether it was retained. A module larger
// than the whole budget is closed. A duplicate of a cached checksum is dropped
// without closing: wazero shares compiled code between modules with the same
// content, so closing it would invalidate the cached entry too. The only
// exception is a compiled module replacing an uncompiled entry.
func (mc *memoryCache) add(c Checksum, m *module) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if old, ok := mc.lru.Get(c); ok {
		if old.compiled != nil || m.compiled == nil {
			return false
		}
		mc.lru.Remove(c)
	}
	if m.size() > mc.budget {
		if m.compiled != nil {
			m.compiled.Close(context.Background())
		}
		return false
	}

	mc.lru.Add(c, m)
	mc.used += m.size()
	for mc.used > mc.budget {
		if _, _, ok := mc.lru.RemoveOldest(); !ok {
			break
		}
	}
	return mc.lru.Contains(c)
}

func (mc *memoryCache) get(c Checksum) (*module, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Get(c)
}

func (mc *memoryCache) contains(c Checksum) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Contains(c)
}

// hasCompiled reports whether c is cached together with its compiled module.
// It does not change the recency of the entry.
func (mc *memoryCache) hasCompiled(c Checksum) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	m, ok := mc.lru.Peek(c)
	return ok && m.compiled != nil
}

// usage returns the number of entries and the bytes they account for.
func (mc *memoryCache) usage() (entries, bytes int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len(), mc.used
}

// purge evicts and closes every entry.
func (mc *memoryCache) purge() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.lru.Purge()
}
