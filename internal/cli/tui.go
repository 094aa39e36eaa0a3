package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/mandelbrot/pkg/pipeline"
)

// barWidth is the length of the speedup bar for the best row.
const barWidth = 24

var benchHeaderStyle = lipgloss.NewStyle().Foreground(colorGray).Bold(true)

// =============================================================================
// BenchModel - Live thread-scaling table
// =============================================================================

// benchRowMsg delivers one finished thread count to the model.
type benchRowMsg benchRow

// benchDoneMsg ends the sweep; err is nil on success.
type benchDoneMsg struct{ err error }

// BenchModel is the bubbletea model behind bench --tui.
type BenchModel struct {
	Width      int
	Height     int
	MaxThreads int
	Rows       []benchRow
	Done       bool
	Err        error
	Aborted    bool
}

// NewBenchModel creates a model for a sweep up to maxThreads.
func NewBenchModel(width, height, maxThreads int) BenchModel {
	return BenchModel{Width: width, Height: height, MaxThreads: maxThreads}
}

func (m BenchModel) Init() tea.Cmd {
	return nil
}

func (m BenchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Aborted = true
			return m, tea.Quit
		}
	case benchRowMsg:
		m.Rows = append(m.Rows, benchRow(msg))
	case benchDoneMsg:
		m.Done = true
		m.Err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m BenchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(fmt.Sprintf("Thread scaling %d×%d", m.Width, m.Height)))
	b.WriteString("\n")
	status := fmt.Sprintf("[%d/%d]  q quit", len(m.Rows), m.MaxThreads)
	if m.Done {
		status = fmt.Sprintf("[%d/%d]  done", len(m.Rows), m.MaxThreads)
	}
	b.WriteString(StyleDim.Render(status))
	b.WriteString("\n\n")

	best := 0.0
	for _, r := range m.Rows {
		if r.Speedup > best {
			best = r.Speedup
		}
	}

	rows := make([][]string, 0, len(m.Rows))
	for _, r := range m.Rows {
		rows = append(rows, []string{
			strconv.Itoa(r.Threads),
			formatSeconds(r.Elapsed),
			strconv.FormatFloat(r.Speedup, 'f', 2, 64) + "x",
			speedupBar(r.Speedup, best),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Threads", "Seconds", "Speedup", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return benchHeaderStyle
			}
			if col == 3 {
				return styleBar
			}
			if row >= 0 && row < len(m.Rows) && m.Rows[row].Speedup == best && best > 0 {
				return lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if m.Err != nil {
		b.WriteString(styleIconError.Render(iconError) + " " + m.Err.Error() + "\n")
	}
	return b.String()
}

// speedupBar draws a bar proportional to s relative to best.
func speedupBar(s, best float64) string {
	if best <= 0 || s <= 0 {
		return ""
	}
	n := int(s / best * barWidth)
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}

// runBenchTUI runs the sweep while a bubbletea program shows live results on
// statusOut. Quitting the program cancels the sweep.
func runBenchTUI(ctx context.Context, runner *pipeline.Runner, base pipeline.Options, maxThreads, repeat int) ([]benchRow, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewBenchModel(base.Width, base.Height, maxThreads),
		tea.WithContext(ctx),
		tea.WithOutput(statusOut))

	type outcome struct {
		rows []benchRow
		err  error
	}
	resCh := make(chan outcome, 1)
	go func() {
		rows, err := runBench(ctx, runner, base, maxThreads, repeat, func(r benchRow) {
			p.Send(benchRowMsg(r))
		})
		p.Send(benchDoneMsg{err: err})
		resCh <- outcome{rows: rows, err: err}
	}()

	final, runErr := p.Run()
	cancel()
	res := <-resCh

	if runErr != nil && !stderrors.Is(runErr, tea.ErrProgramKilled) {
		return nil, runErr
	}
	if m, ok := final.(BenchModel); ok && m.Aborted {
		return nil, context.Canceled
	}
	return res.rows, res.err
}
