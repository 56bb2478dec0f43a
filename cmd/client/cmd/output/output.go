// Package output печатает результаты команд: JSON для скриптов, цветной текст для терминала.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Printer struct {
	out   io.Writer
	json  bool
	color bool
}

func New(out io.Writer, jsonOutput bool) *Printer {
	colored := false
	if f, ok := out.(*os.File); ok {
		colored = term.IsTerminal(int(f.Fd())) && !color.NoColor
	}
	return &Printer{out: out, json: jsonOutput, color: colored}
}

// ForCommand создает Printer по флагу --json команды
func ForCommand(cmd *cobra.Command) *Printer {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return New(cmd.OutOrStdout(), jsonOutput)
}

// Result выводит v как JSON или вызывает human для текстового вывода
func (p *Printer) Result(v any, human func(*Printer)) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p)
	return nil
}

func (p *Printer) Title(format string, args ...any) {
	p.line(color.New(color.Bold, color.FgCyan), format, args...)
}

func (p *Printer) Success(format string, args ...any) {
	p.line(color.New(color.FgGreen), format, args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.line(color.New(color.FgYellow), format, args...)
}

func (p *Printer) Fail(format string, args ...any) {
	p.line(color.New(color.FgRed), format, args...)
}

func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Field печатает пару «название: значение» с отступом
func (p *Printer) Field(label string, value any) {
	c := color.New(color.Faint)
	if !p.color {
		c.DisableColor()
	}
	fmt.Fprintf(p.out, "  %s %v\n", c.Sprint(label+":"), value)
}

func (p *Printer) line(c *color.Color, format string, args ...any) {
	if !p.color {
		c.DisableColor()
	}
	fmt.Fprintln(p.out, c.Sprintf(format, args...))
}
