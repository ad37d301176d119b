package engine

import (
	"sort"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	wasmPageSize = 64 * datasize.KB

	// maxMemoryPages is the 4GiB ceiling of a 32-bit linear memory.
	maxMemoryPages = 65536
)

// Options configures a Cache.
type Options struct {
	// Registerer receives the cache's stats collector. Nil disables export.
	Registerer prometheus.Registerer

	// Logger overrides the package logger for this cache.
	Logger *zap.Logger

	// SupportedFeatures is the capability set modules may require through
	// requires_<feature> exports.
	SupportedFeatures Features

	// BaseDir holds persisted modules and the compilation cache.
	BaseDir string

	// MemoryCacheSize bounds the in-memory cache of compiled modules.
	// 0 disables in-memory caching.
	MemoryCacheSize datasize.ByteSize

	// InstanceMemoryLimit caps the linear memory of a single instance.
	// 0 keeps the engine default of 4GiB.
	InstanceMemoryLimit datasize.ByteSize
}

// memoryLimitPages converts InstanceMemoryLimit to wasm pages, rounding down
// and capping at the 32-bit maximum.
func (o Options) memoryLimitPages() uint32 {
	if o.InstanceMemoryLimit == 0 {
		return 0
	}
	pages := o.InstanceMemoryLimit.Bytes() / wasmPageSize.Bytes()
	if pages > maxMemoryPages {
		return maxMemoryPages
	}
	if pages == 0 {
		return 1
	}
	return uint32(pages)
}

// Features is a set of capability names.
type Features map[string]struct{}

// FeaturesFromCSV parses a comma separated capability list. Whitespace around
// names is ignored, as are empty entries.
func FeaturesFromCSV(csv string) Features {
	f := make(Features)
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			f[name] = struct{}{}
		}
	}
	return f
}

// Has reports whether name is in the set.
func (f Features) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Sorted returns the feature names in lexical order.
func (f Features) Sorted() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f Features) String() string {
	return strings.Join(f.Sorted(), ",")
}
