package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-hoststate/atoms"
	"github.com/wippyai/wasm-hoststate/hostmod"
	"github.com/wippyai/wasm-hoststate/testbed"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	guest    *guest
	opts     options
	result   string
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err   error
	guest *guest
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{opts: opts, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadGuest
}

func (m *interactiveModel) loadGuest() tea.Msg {
	g, err := newGuest(context.Background(), m.opts.delay)
	return loadedMsg{guest: g, err: err}
}

func (m *interactiveModel) funcs() []hostmod.Func[testbed.Ctx] {
	if m.guest == nil {
		return nil
	}
	return m.guest.funcs
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.guest != nil {
				m.guest.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs())-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs()) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.guest = msg.guest

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs()[m.selected]
	m.inputs = make([]textinput.Model, len(f.WitParams))
	for i, t := range f.WitParams {
		ti := textinput.New()
		ti.Placeholder = hostmod.TypeName(t)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction lowers the typed inputs, appends one result pointer per WIT
// result and calls the guest export.
func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()
	f := m.funcs()[m.selected]

	params := make([]uint64, 0, len(f.Params))
	for i, input := range m.inputs {
		v, err := lowerArg(input.Value(), f.WitParams[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		params = append(params, v)
	}
	for i := range f.WitResults {
		params = append(params, api.EncodeU32(uint32(resultOffset+4*i)))
	}

	m.guest.host.Reset()
	errno, err := m.guest.call(ctx, f.Name, params...)
	if err != nil {
		return callResultMsg{err: err}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "errno: %s", atoms.Errno(errno).Error())
	for i, t := range f.WitResults {
		offset := uint32(resultOffset + 4*i)
		if _, ok := t.(wit.F32); ok {
			v, _ := m.guest.readF32(offset)
			fmt.Fprintf(&b, "\nresult[%d]: %v", i, v)
			continue
		}
		bits, _ := m.guest.mod.Memory().ReadUint32Le(offset)
		fmt.Fprintf(&b, "\nresult[%d]: %d", i, bits)
	}
	for _, entry := range m.guest.host.Entries() {
		fmt.Fprintf(&b, "\nlog: %s", entry)
	}
	return callResultMsg{result: b.String()}
}

// lowerArg parses value as t and encodes it as a core wasm value.
func lowerArg(value string, t wit.Type) (uint64, error) {
	switch t.(type) {
	case wit.U8, wit.U16, wit.U32:
		v, err := strconv.ParseUint(value, 10, 32)
		return api.EncodeU32(uint32(v)), err
	case wit.S8, wit.S16, wit.S32:
		v, err := strconv.ParseInt(value, 10, 32)
		return api.EncodeI32(int32(v)), err
	case wit.U64:
		return strconv.ParseUint(value, 10, 64)
	case wit.S64:
		v, err := strconv.ParseInt(value, 10, 64)
		return api.EncodeI64(v), err
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	case wit.Bool:
		if value == "true" || value == "1" {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported type %s", hostmod.TypeName(t))
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.guest == nil {
		return "Loading guest..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Host State Stepper"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%s (delay %d)", atoms.Namespace, m.opts.delay))
	b.WriteString("\n\n")

	funcs := m.funcs()
	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a host function to call from the guest:\n\n")
		for i, f := range funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.Signature()))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(hostmod.TypeName(f.WitParams[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f hostmod.Func[testbed.Ctx]) string {
	params := make([]string, len(f.WitParams))
	for i, t := range f.WitParams {
		params[i] = typeStyle.Render(hostmod.TypeName(t))
	}
	result := ""
	if len(f.WitResults) > 0 {
		result = " -> " + typeStyle.Render(hostmod.TypeName(f.WitResults[0]))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
