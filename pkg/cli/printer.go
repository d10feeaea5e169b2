package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
)

var (
	bold  = color.New(color.Bold).SprintfFunc()
	faint = color.New(color.Faint).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
)

type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out: out,
	}
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// PrintAgentName prints the agent name header
func (p *Printer) PrintAgentName(agentID string) {
	p.Printf("\n--- Agent: %s ---\n", bold(agentID))
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.Printf("%s\n", red("❌ %s", err))
}

// PrintDuration prints how long the reply took.
func (p *Printer) PrintDuration(d time.Duration) {
	p.Printf("%s\n", faint("(answered in %s)", HumanDuration(d)))
}

// HumanDuration formats d for people. Sub-minute durations keep a decimal so
// that quick replies don't all read as "Less than a second".
func HumanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return units.HumanDuration(d)
}
