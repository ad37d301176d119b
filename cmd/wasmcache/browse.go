package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	wabinary "github.com/tetratelabs/wabin/binary"
	wabin "github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/term"

	"github.com/wippyai/wasm-cache/engine"
	"github.com/wippyai/wasm-cache/ffi"
	"github.com/wippyai/wasm-cache/memory"
	"github.com/wippyai/wasm-cache/resource"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	checksumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	exportStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newBrowseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Interactively browse stored modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("browse needs an interactive terminal")
			}

			ctx := cmd.Context()
			c, err := a.open(ctx, nil)
			if err != nil {
				return err
			}
			checksums, err := c.Checksums()
			c.Close(ctx)
			if err != nil {
				return err
			}

			var errBuf memory.Buffer
			h := ffi.InitCache(
				memory.Borrow([]byte(a.cfg.DataDir)),
				memory.Borrow([]byte(a.cfg.Features)),
				a.cfg.CacheSize,
				a.cfg.MemoryLimit,
				&errBuf,
			)
			if h == 0 {
				msg, _ := errBuf.Consume()
				return fmt.Errorf("%s", msg)
			}
			defer ffi.ReleaseCache(h)

			p := tea.NewProgram(newBrowseModel(h, a.cfg.DataDir, checksums), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

type browseState int

const (
	stateList browseState = iota
	stateFilter
	stateDetail
)

type moduleInfo struct {
	checksum string
	exports  []string
	size     datasize.ByteSize
	features []string
}

type loadedMsg struct {
	err  error
	info moduleInfo
}

type browseModel struct {
	err      error
	dataDir  string
	all      []string
	visible  []string
	detail   moduleInfo
	filter   textinput.Model
	handle   resource.Handle
	selected int
	state    browseState
}

func newBrowseModel(h resource.Handle, dataDir string, checksums []engine.Checksum) *browseModel {
	all := make([]string, len(checksums))
	for i, c := range checksums {
		all[i] = c.String()
	}
	sort.Strings(all)

	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "checksum prefix"
	filter.Width = 64

	return &browseModel{
		dataDir: dataDir,
		all:     all,
		visible: all,
		filter:  filter,
		handle:  h,
		state:   stateList,
	}
}

func (m *browseModel) Init() tea.Cmd {
	return nil
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateList && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateList {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter":
			switch m.state {
			case stateList:
				if len(m.visible) > 0 {
					return m, m.loadModule(m.visible[m.selected])
				}
			case stateDetail:
				m.state = stateList
				m.err = nil
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateList
				m.err = nil
			}
		}

	case loadedMsg:
		m.detail = msg.info
		m.err = msg.err
		m.state = stateDetail
	}

	return m, nil
}

func (m *browseModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.filter.Blur()
		m.state = stateList
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter(m.filter.Value())
	return m, cmd
}

func (m *browseModel) applyFilter(prefix string) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		m.visible = m.all
	} else {
		m.visible = nil
		for _, c := range m.all {
			if strings.HasPrefix(c, prefix) {
				m.visible = append(m.visible, c)
			}
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

// loadModule fetches the module through the cache boundary, the same path a
// host process takes.
func (m *browseModel) loadModule(hex string) tea.Cmd {
	return func() tea.Msg {
		info := moduleInfo{checksum: hex}
		checksum, err := engine.ParseChecksum(hex)
		if err != nil {
			return loadedMsg{info: info, err: err}
		}

		var errBuf memory.Buffer
		out := ffi.LoadWasm(m.handle, memory.Borrow(checksum.Bytes()), &errBuf)
		if out.IsNil() {
			msg, _ := errBuf.Consume()
			return loadedMsg{info: info, err: fmt.Errorf("%s", msg)}
		}
		code, err := out.Consume()
		if err != nil {
			return loadedMsg{info: info, err: err}
		}

		info, err = describe(hex, code)
		return loadedMsg{info: info, err: err}
	}
}

func describe(checksum string, code []byte) (moduleInfo, error) {
	info := moduleInfo{checksum: checksum, size: datasize.ByteSize(len(code))}
	mod, err := wabinary.DecodeModule(code, wabin.CoreFeaturesV2)
	if err != nil {
		return info, fmt.Errorf("decode module: %w", err)
	}
	for _, exp := range mod.ExportSection {
		info.exports = append(info.exports, fmt.Sprintf("%s %s", api.ExternTypeName(byte(exp.Type)), exp.Name))
	}
	sort.Strings(info.exports)
	info.features = engine.RequiredFeatures(mod).Sorted()
	return info, nil
}

func (m *browseModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Module Cache"))
	b.WriteString(" ")
	b.WriteString(m.dataDir)
	b.WriteString("\n\n")

	switch m.state {
	case stateList, stateFilter:
		if len(m.all) == 0 {
			b.WriteString("No modules stored.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			return b.String()
		}
		for i, c := range m.visible {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + c))
			} else {
				b.WriteString("  " + checksumStyle.Render(c))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter {
			b.WriteString(m.filter.View())
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("enter apply • esc done"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • enter load • / filter • q quit"))
		}

	case stateDetail:
		b.WriteString(checksumStyle.Render(m.detail.checksum))
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(fmt.Sprintf("Size: %s\n", m.detail.size.HR()))
			if len(m.detail.features) > 0 {
				b.WriteString(fmt.Sprintf("Requires: %s\n", strings.Join(m.detail.features, ", ")))
			}
			b.WriteString("Exports:\n")
			for _, e := range m.detail.exports {
				b.WriteString("  " + exportStyle.Render(e) + "\n")
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}

	return b.String()
}
