// Package testwasm encodes small core wasm modules for tests.
package testwasm

const (
	sectionCustom   = 0x00
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a

	externFunc   = 0x00
	externMemory = 0x02
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Import is a function import using the module's single () -> () type.
type Import struct {
	Module string
	Name   string
}

// Memory describes memory limits in 64KiB pages.
type Memory struct {
	Max *uint32
	Min uint32
}

// Module is the description of a module to encode. Every defined function
// has type () -> () and an empty body; exported functions all point at the
// first defined function.
type Module struct {
	Memory       *Memory
	MemoryExport string
	Note         string
	Imports      []Import
	Exports      []string
	Funcs        int
	ImportMemory bool
}

// Contract returns a module that passes the cache's static checks: one
// exported memory, allocate and deallocate exports, plus any extra exports.
func Contract(extraExports ...string) Module {
	return Module{
		Memory:       &Memory{Min: 1},
		MemoryExport: "memory",
		Funcs:        1,
		Exports:      append([]string{"allocate", "deallocate"}, extraExports...),
	}
}

// WithNote returns a copy of m whose encoding carries note in a custom
// section, giving distinct bytes for otherwise identical modules.
func (m Module) WithNote(note string) Module {
	m.Note = note
	return m
}

// Encode returns the binary encoding of m.
func (m Module) Encode() []byte {
	out := append([]byte(nil), header...)

	out = appendSection(out, sectionType, vec(1, []byte{0x60, 0x00, 0x00}))

	if len(m.Imports) > 0 || (m.ImportMemory && m.Memory != nil) {
		var body []byte
		n := 0
		for _, imp := range m.Imports {
			body = appendName(body, imp.Module)
			body = appendName(body, imp.Name)
			body = append(body, externFunc, 0x00)
			n++
		}
		if m.ImportMemory && m.Memory != nil {
			body = appendName(body, "env")
			body = appendName(body, "memory")
			body = append(body, externMemory)
			body = appendLimits(body, *m.Memory)
			n++
		}
		out = appendSection(out, sectionImport, vec(n, body))
	}

	if m.Funcs > 0 {
		body := make([]byte, m.Funcs)
		out = appendSection(out, sectionFunction, vec(m.Funcs, body))
	}

	if m.Memory != nil && !m.ImportMemory {
		out = appendSection(out, sectionMemory, vec(1, appendLimits(nil, *m.Memory)))
	}

	var exports []byte
	n := 0
	funcIdx := uint32(len(m.Imports))
	if m.Funcs > 0 {
		for _, name := range m.Exports {
			exports = appendName(exports, name)
			exports = append(exports, externFunc)
			exports = appendULEB(exports, funcIdx)
			n++
		}
	}
	if m.MemoryExport != "" && m.Memory != nil {
		exports = appendName(exports, m.MemoryExport)
		exports = append(exports, externMemory, 0x00)
		n++
	}
	if n > 0 {
		out = appendSection(out, sectionExport, vec(n, exports))
	}

	if m.Funcs > 0 {
		var code []byte
		for i := 0; i < m.Funcs; i++ {
			// size 2: zero local groups, end
			code = append(code, 0x02, 0x00, 0x0b)
		}
		out = appendSection(out, sectionCode, vec(m.Funcs, code))
	}

	if m.Note != "" {
		body := appendName(nil, "note")
		body = append(body, m.Note...)
		out = appendSection(out, sectionCustom, body)
	}

	return out
}

func vec(n int, items []byte) []byte {
	out := appendULEB(nil, uint32(n))
	return append(out, items...)
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = appendULEB(out, uint32(len(body)))
	return append(out, body...)
}

func appendName(out []byte, s string) []byte {
	out = appendULEB(out, uint32(len(s)))
	return append(out, s...)
}

func appendLimits(out []byte, m Memory) []byte {
	if m.Max != nil {
		out = append(out, 0x01)
		out = appendULEB(out, m.Min)
		return appendULEB(out, *m.Max)
	}
	out = append(out, 0x00)
	return appendULEB(out, m.Min)
}

func appendULEB(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}
