// Command wasmcache populates and inspects a wasm module cache directory.
//
//	wasmcache --data-dir ./cache save contract.wasm
//	wasmcache --data-dir ./cache load <checksum> -o contract.wasm
//	wasmcache --data-dir ./cache browse
//
// Flags can also be set through WASMCACHE_* environment variables or a
// config file passed with --config.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
