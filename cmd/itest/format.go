package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/deixis/itest/internal/golden"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/workflow"
	"golang.org/x/term"
)

const defaultWidth = 72

// printer renders results for humans. Colour is only used on a terminal.
type printer struct {
	w       io.Writer
	verbose bool
	width   int

	pass   lipgloss.Style
	fail   lipgloss.Style
	dim    lipgloss.Style
	header lipgloss.Style
}

func newPrinter(w io.Writer, verbose bool) *printer {
	r := lipgloss.NewRenderer(w)
	p := &printer{
		w:       w,
		verbose: verbose,
		width:   defaultWidth,
		pass:    r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:     r.NewStyle().Faint(true),
		header:  r.NewStyle().Bold(true),
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

// caseLine prints the one-line outcome of a case as it completes.
func (p *printer) caseLine(c report.CaseResult) {
	dur := p.dim.Render(fmt.Sprintf("(%.2fs)", c.Duration.Seconds()))
	if c.Passed() {
		fmt.Fprintf(p.w, "%s  %s %s\n", p.pass.Render("ok  "), c.Ref(), dur)
	} else {
		fmt.Fprintf(p.w, "%s  %s %s\n      %s\n", p.fail.Render("FAIL"), c.Ref(), dur, c.Summary())
	}
	if c.TeardownError != "" {
		fmt.Fprintf(p.w, "      %s\n", p.dim.Render("teardown: "+c.TeardownError))
	}
	if p.verbose && c.Passed() && c.Stderr != "" {
		p.block("stderr", c.Stderr)
	}
}

// summary prints the details of every failure and the overall verdict.
func (p *printer) summary(rr *report.RunResult) {
	failures := rr.Failures()
	for _, c := range failures {
		fmt.Fprintln(p.w)
		p.detail(c)
	}

	fmt.Fprintln(p.w)
	if len(failures) == 0 {
		fmt.Fprintf(p.w, "%s %s\n", p.pass.Render("ok"), p.dim.Render(fmt.Sprintf("%d cases, run %s", len(rr.Cases), rr.ID)))
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.fail.Render("FAIL"),
		p.dim.Render(fmt.Sprintf("%d of %d cases failed, run %s", len(failures), len(rr.Cases), rr.ID)))
}

// detail prints everything recorded about one case, including the full
// expected and actual texts of a content mismatch.
func (p *printer) detail(c report.CaseResult) {
	title := fmt.Sprintf("--- %s: %s", c.Ref(), c.Status.Label())
	if c.Passed() {
		fmt.Fprintln(p.w, p.header.Render(title))
	} else {
		fmt.Fprintln(p.w, p.fail.Render(title))
	}
	if len(c.Argv) > 0 {
		fmt.Fprintf(p.w, "    argv: %s\n", strings.Join(c.Argv, " "))
		fmt.Fprintf(p.w, "    exit status: %d\n", c.ExitCode)
	}
	if c.Detail != "" {
		fmt.Fprintf(p.w, "    %s\n", c.Detail)
	}
	if c.Stderr != "" && (p.verbose || c.Status == report.ProcessFailure) {
		p.block("stderr", c.Stderr)
	}
	p.block("diff (-expected +actual)", c.Diff)
	p.block("expected", c.Expected)
	p.block("actual", c.Actual)
}

// modules prints the registry contents.
func (p *printer) modules(modules []workflow.ModuleInfo) {
	for _, m := range modules {
		fmt.Fprintf(p.w, "%s %s\n", p.header.Render(m.Name), p.dim.Render(m.Description))
		for _, c := range m.Cases {
			fmt.Fprintf(p.w, "    %s\n", c)
		}
	}
}

// banner separates watch runs.
func (p *printer) banner(changed string) {
	label := " changed: " + changed + " "
	rule := p.width - len(label) - 3
	if rule < 3 {
		rule = 3
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.header.Render("==="+label+strings.Repeat("=", rule)))
}

func (p *printer) block(title, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(p.w, "    %s:\n", p.header.Render(title))
	for _, line := range golden.DisplayLines(text) {
		fmt.Fprintf(p.w, "        %s\n", line)
	}
}
