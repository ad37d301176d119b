package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/wasm-cache/errors"
	"github.com/wippyai/wasm-cache/internal/testwasm"
)

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.BaseDir == "" {
		opts.BaseDir = t.TempDir()
	}
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c
}

func defaultOptions() Options {
	return Options{
		SupportedFeatures:   FeaturesFromCSV("staking"),
		MemoryCacheSize:     512 * datasize.MB,
		InstanceMemoryLimit: 32 * datasize.MB,
	}
}

func requireKind(t *testing.T, err error, want errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	kind, ok := errors.KindOf(err)
	if !ok || kind != want {
		t.Fatalf("error kind = %q (%v), want %q", kind, err, want)
	}
}

func TestNew_CreatesLayout(t *testing.T) {
	dir := t.TempDir()
	opts := defaultOptions()
	opts.BaseDir = dir
	newTestCache(t, opts)

	for _, sub := range []string{"state/wasm", "cache/modules"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Fatalf("stat %s: %v", sub, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}
}

func TestNew_InvalidBaseDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{name: "empty", dir: ""},
		{name: "nul byte", dir: "borken\x00dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.BaseDir = tt.dir
			_, err := New(context.Background(), opts)
			requireKind(t, err, errors.KindConfig)
		})
	}
}

func TestNew_BaseDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := defaultOptions()
	opts.BaseDir = file
	_, err := New(context.Background(), opts)
	requireKind(t, err, errors.KindEngine)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	c := newTestCache(t, defaultOptions())
	code := testwasm.Contract().Encode()

	checksum, err := c.Save(context.Background(), code)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if checksum != ChecksumOf(code) {
		t.Errorf("checksum = %s, want %s", checksum, ChecksumOf(code))
	}

	got, err := c.Load(checksum)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Error("Load returned different bytes")
	}

	// callers own the returned slice
	got[0] = 0xff
	again, err := c.Load(checksum)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(again, code) {
		t.Error("mutating a loaded slice changed the cached module")
	}
}

func TestSave_Idempotent(t *testing.T) {
	c := newTestCache(t, defaultOptions())
	code := testwasm.Contract().Encode()

	first, err := c.Save(context.Background(), code)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := c.Save(context.Background(), code)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if first != second {
		t.Errorf("checksums differ: %s vs %s", first, second)
	}

	list, err := c.Checksums()
	if err != nil {
		t.Fatalf("Checksums: %v", err)
	}
	if diff := cmp.Diff([]Checksum{first}, list); diff != "" {
		t.Errorf("Checksums mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_Empty(t *testing.T) {
	c := newTestCache(t, defaultOptions())
	_, err := c.Save(context.Background(), nil)
	requireKind(t, err, errors.KindEmptyArg)
}

func TestSave_StaticCheckFailure(t *testing.T) {
	c := newTestCache(t, defaultOptions())
	_, err := c.Save(context.Background(), testwasm.Contract("requires_stargate").Encode())
	requireKind(t, err, errors.KindUnsupportedFeature)

	list, err := c.Checksums()
	if err != nil {
		t.Fatalf("Checksums: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("rejected module was stored: %v", list)
	}
}

func TestLoad_NotFound(t *testing.T) {
	c := newTestCache(t, defaultOptions())
	_, err := c.Load(ChecksumOf([]byte("never saved")))
	requireKind(t, err, errors.KindNotFound)

	if s := c.Stats(); s.Misses != 1 {
		t.Errorf("Misses = %d, want 1", s.Misses)
	}
}

func TestLoad_Integrity(t *testing.T) {
	opts := defaultOptions()
	opts.MemoryCacheSize = 0
	opts.BaseDir = t.TempDir()
	c := newTestCache(t, opts)

	checksum, err := c.Save(context.Background(), testwasm.Contract().Encode())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(opts.BaseDir, "state", "wasm", checksum.String())
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = c.Load(checksum)
	requireKind(t, err, errors.KindIntegrity)
}

func TestLoad_Sources(t *testing.T) {
	opts := defaultOptions()
	opts.BaseDir = t.TempDir()
	c := newTestCache(t, opts)

	checksum, err := c.Save(context.Background(), testwasm.Contract().Encode())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := c.Load(checksum); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// a second cache over the same directory only has the disk copy
	reopened := newTestCache(t, opts)
	if _, err := reopened.Load(checksum); err != nil {
		t.Fatalf("Load from disk: %v", err)
	}

	if diff := cmp.Diff(Stats{HitsMemoryCache: 1, Saves: 1}, c.Stats()); diff != "" {
		t.Errorf("first cache stats (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Stats{HitsFsCache: 1}, reopened.Stats()); diff != "" {
		t.Errorf("reopened cache stats (-want +got):\n%s", diff)
	}
}

func TestMemoryCache_Budget(t *testing.T) {
	first := testwasm.Contract().WithNote("first").Encode()
	second := testwasm.Contract().WithNote("second").Encode()

	opts := defaultOptions()
	// room for exactly one module
	opts.MemoryCacheSize = datasize.ByteSize(len(first) + len(second) - 1)
	c := newTestCache(t, opts)

	a, err := c.Save(context.Background(), first)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := c.Save(context.Background(), second)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if c.memory.contains(a) {
		t.Error("oldest module should have been evicted")
	}
	if !c.memory.contains(b) {
		t.Error("newest module should be cached")
	}
	entries, used := c.memory.usage()
	if entries != 1 || used != len(second) {
		t.Errorf("usage = %d entries, %d bytes; want 1, %d", entries, used, len(second))
	}

	// evicted modules are still served from disk, then from memory again
	for i := 0; i < 2; i++ {
		if _, err := c.Load(a); err != nil {
			t.Fatalf("Load evicted: %v", err)
		}
	}
	if !c.memory.contains(a) {
		t.Error("module loaded from disk should be cached again")
	}
	if diff := cmp.Diff(Stats{HitsMemoryCache: 1, HitsFsCache: 1, Saves: 2}, c.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestSave_AfterDiskLoadRunsChecks(t *testing.T) {
	opts := defaultOptions()
	opts.BaseDir = t.TempDir()
	code := testwasm.Contract("requires_staking").Encode()

	checksum, err := newTestCache(t, opts).Save(context.Background(), code)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	opts.SupportedFeatures = FeaturesFromCSV("iterator")
	reopened := newTestCache(t, opts)
	if _, err := reopened.Load(checksum); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// a cached disk load is not a checked module
	_, err = reopened.Save(context.Background(), code)
	requireKind(t, err, errors.KindUnsupportedFeature)
}

func TestSave_RepairsCorruptedFile(t *testing.T) {
	for _, size := range []datasize.ByteSize{0, 512 * datasize.MB} {
		t.Run(size.HR(), func(t *testing.T) {
			opts := defaultOptions()
			opts.MemoryCacheSize = size
			opts.BaseDir = t.TempDir()
			c := newTestCache(t, opts)
			code := testwasm.Contract().Encode()

			checksum, err := c.Save(context.Background(), code)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			path := filepath.Join(opts.BaseDir, "state", "wasm", checksum.String())
			if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
				t.Fatal(err)
			}

			again, err := c.Save(context.Background(), code)
			if err != nil {
				t.Fatalf("second Save: %v", err)
			}
			if again != checksum {
				t.Fatalf("checksum changed: %s != %s", again, checksum)
			}

			stored, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(stored, code) {
				t.Errorf("stored file not repaired: %q", stored)
			}
			if _, err := newTestCache(t, Options{BaseDir: opts.BaseDir}).Load(checksum); err != nil {
				t.Errorf("Load after repair: %v", err)
			}
		})
	}
}

func TestSave_Concurrent(t *testing.T) {
	c := newTestCache(t, defaultOptions())

	const n = 16
	codes := make([][]byte, n)
	for i := range codes {
		codes[i] = testwasm.Contract().WithNote(string(rune('a' + i))).Encode()
	}

	checksums := make([]Checksum, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checksums[i], errs[i] = c.Save(context.Background(), codes[i])
		}(i)
	}
	wg.Wait()

	for i := range codes {
		if errs[i] != nil {
			t.Fatalf("Save %d: %v", i, errs[i])
		}
		got, err := c.Load(checksums[i])
		if err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
		if !bytes.Equal(got, codes[i]) {
			t.Errorf("module %d round-trip mismatch", i)
		}
	}
}

func TestClose(t *testing.T) {
	opts := defaultOptions()
	opts.BaseDir = t.TempDir()
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, err = c.Save(context.Background(), testwasm.Contract().Encode())
	if !stderrors.Is(err, ErrClosed) {
		t.Errorf("Save after Close err = %v, want ErrClosed", err)
	}
	_, err = c.Load(Checksum{})
	if !stderrors.Is(err, ErrClosed) {
		t.Errorf("Load after Close err = %v, want ErrClosed", err)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	opts := defaultOptions()
	opts.Registerer = reg
	c := newTestCache(t, opts)

	checksum, err := c.Save(context.Background(), testwasm.Contract().Encode())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := c.Load(checksum); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		want int
	}{
		{"wasmcache_loads_total", 3},
		{"wasmcache_saves_total", 1},
		{"wasmcache_memory_cache_entries", 1},
		{"wasmcache_memory_cache_bytes", 1},
	}
	for _, tt := range tests {
		n, err := testutil.GatherAndCount(reg, tt.name)
		if err != nil {
			t.Fatalf("GatherAndCount(%s): %v", tt.name, err)
		}
		if n != tt.want {
			t.Errorf("%s series = %d, want %d", tt.name, n, tt.want)
		}
	}
}
