package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	rlua "github.com/fschutt/rlua"
	rerrors "github.com/fschutt/rlua/errors"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	inputEchoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const historyLimit = 50

type replEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	l       *rlua.Lua
	output  *strings.Builder
	input   textinput.Model
	history []replEntry
	pending []string
	pins    int
	busy    bool
	err     error
}

type evalDoneMsg struct {
	entry      replEntry
	pins       int
	incomplete bool
}

func newReplModel(libs rlua.StdLib, trace bool) (*replModel, error) {
	var out strings.Builder
	opts := []rlua.Option{rlua.WithOutput(&out)}
	if trace {
		opts = append(opts, rlua.WithNativeTrace())
	}
	l, err := rlua.NewWithLibraries(libs, opts...)
	if err != nil {
		return nil, err
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.Width = 80
	ti.Focus()

	return &replModel{l: l, output: &out, input: ti}, nil
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			m.l.Close()
			return m, tea.Quit

		case "esc":
			m.pending = nil
			m.input.SetValue("")
			m.input.Prompt = "> "
			return m, nil

		case "enter":
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			if strings.TrimSpace(line) == "" && len(m.pending) == 0 {
				return m, nil
			}
			m.input.SetValue("")
			source := line
			if len(m.pending) > 0 {
				source = strings.Join(append(m.pending, line), "\n")
			}
			m.busy = true
			return m, m.evaluate(source)
		}

	case evalDoneMsg:
		m.busy = false
		m.pins = msg.pins
		if msg.incomplete {
			m.pending = append(m.pending, msg.entry.input)
			m.input.Prompt = ">> "
			return m, nil
		}
		m.pending = nil
		m.input.Prompt = "> "
		m.history = append(m.history, msg.entry)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) evaluate(source string) tea.Cmd {
	return func() tea.Msg {
		m.output.Reset()
		results, err := m.l.Eval(source, "=(repl)")
		if err != nil {
			var se *rerrors.Error
			if errors.As(err, &se) && se.Kind == rerrors.KindSyntax && se.Incomplete {
				// Chunk ended mid-statement, wait for more lines.
				return evalDoneMsg{entry: replEntry{input: lastLine(source)}, pins: m.l.PinCount(), incomplete: true}
			}
			return evalDoneMsg{entry: replEntry{input: source, output: err.Error(), isErr: true}, pins: m.l.PinCount()}
		}

		parts := make([]string, 0, len(results)+1)
		if printed := m.output.String(); printed != "" {
			parts = append(parts, strings.TrimRight(printed, "\n"))
		}
		for _, v := range results {
			parts = append(parts, formatValue(v))
		}
		return evalDoneMsg{entry: replEntry{input: source, output: strings.Join(parts, "\n")}, pins: m.l.PinCount()}
	}
}

func lastLine(source string) string {
	if i := strings.LastIndexByte(source, '\n'); i >= 0 {
		return source[i+1:]
	}
	return source
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Lua"))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(fmt.Sprintf("pins: %d", m.pins)))
	b.WriteString("\n\n")

	for _, e := range m.history {
		for _, line := range strings.Split(e.input, "\n") {
			b.WriteString(promptStyle.Render("> "))
			b.WriteString(inputEchoStyle.Render(line))
			b.WriteString("\n")
		}
		if e.output != "" {
			if e.isErr {
				b.WriteString(errorStyle.Render(e.output))
			} else {
				b.WriteString(resultStyle.Render(e.output))
			}
			b.WriteString("\n")
		}
	}

	for _, line := range m.pending {
		b.WriteString(promptStyle.Render(">> "))
		b.WriteString(inputEchoStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter eval • esc cancel input • ctrl+d quit"))

	return b.String()
}

func runInteractive(libs rlua.StdLib, trace bool) error {
	model, err := newReplModel(libs, trace)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model)
	_, err = p.Run()
	return err
}
