package engine

import (
	"strings"

	wabinary "github.com/tetratelabs/wabin/binary"
	wabin "github.com/tetratelabs/wabin/wasm"

	"github.com/wippyai/wasm-cache/errors"
)

const (
	requiresExportPrefix = "requires_"
	importModule         = "env"
)

var requiredExports = []string{"allocate", "deallocate"}

// CheckWasm runs the static checks a module must pass before it is compiled
// and stored:
//   - exactly one memory, defined by the module rather than imported, whose
//     minimum fits memoryLimitPages (0 means unlimited)
//   - function exports allocate and deallocate
//   - only function imports, all from the env module
//   - every requires_<feature> export names a supported feature
func CheckWasm(code []byte, supported Features, memoryLimitPages uint32) error {
	mod, err := wabinary.DecodeModule(code, wabin.CoreFeaturesV2)
	if err != nil {
		return errors.New(errors.PhaseCheck, errors.KindStaticCheck).
			Cause(err).
			Detail("decode module").
			Build()
	}

	if err := checkMemories(mod, memoryLimitPages); err != nil {
		return err
	}
	if err := checkExports(mod); err != nil {
		return err
	}
	if err := checkImports(mod); err != nil {
		return err
	}
	return checkFeatures(mod, supported)
}

func checkMemories(mod *wabin.Module, limitPages uint32) error {
	for _, imp := range mod.ImportSection {
		if imp.Type == wabin.ExternTypeMemory {
			return errors.StaticCheck("module must not import memory")
		}
	}
	if mod.MemorySection == nil {
		return errors.StaticCheck("module must contain exactly one memory")
	}
	if limitPages > 0 && mod.MemorySection.Min > limitPages {
		return errors.StaticCheck("module memory minimum of %d pages exceeds the instance limit of %d pages",
			mod.MemorySection.Min, limitPages)
	}
	return nil
}

func checkExports(mod *wabin.Module) error {
	funcs := make(map[string]bool, len(mod.ExportSection))
	for _, exp := range mod.ExportSection {
		if exp.Type == wabin.ExternTypeFunc {
			funcs[exp.Name] = true
		}
	}
	for _, name := range requiredExports {
		if !funcs[name] {
			return errors.StaticCheck("module does not export required function %q", name)
		}
	}
	return nil
}

func checkImports(mod *wabin.Module) error {
	for _, imp := range mod.ImportSection {
		if imp.Type != wabin.ExternTypeFunc {
			return errors.StaticCheck("module import %s.%s is not a function", imp.Module, imp.Name)
		}
		if imp.Module != importModule {
			return errors.StaticCheck("module imports %s.%s from unsupported module %q",
				imp.Module, imp.Name, imp.Module)
		}
	}
	return nil
}

// RequiredFeatures returns the features declared by requires_<feature> exports.
func RequiredFeatures(mod *wabin.Module) Features {
	required := make(Features)
	for _, exp := range mod.ExportSection {
		if name, ok := strings.CutPrefix(exp.Name, requiresExportPrefix); ok && name != "" {
			required[name] = struct{}{}
		}
	}
	return required
}

func checkFeatures(mod *wabin.Module, supported Features) error {
	var missing []string
	for name := range RequiredFeatures(mod) {
		if !supported.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.UnsupportedFeatures(missing)
	}
	return nil
}
