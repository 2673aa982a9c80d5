package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/text/width"

	"devtester/internal/signalbus"
)

// color is a minimal ANSI SGR wrapper. The default report only ever
// needs a handful of fixed codes; a coloring library would buy nothing
// for five constants.
type color string

const (
	colorReset  color = "\x1b[0m"
	colorRed    color = "\x1b[31m"
	colorGreen  color = "\x1b[32m"
	colorYellow color = "\x1b[33m"
	colorCyan   color = "\x1b[36m"
)

func (c color) wrap(s string, enabled bool) string {
	if !enabled {
		return s
	}
	return string(c) + s + string(colorReset)
}

// Default is the human-readable stdout report: colorized when the
// output is a terminal, with an optional Unicode box-drawing variant used
// for the run-start/run-end banners when the terminal's encoding is UTF-8.
type Default struct {
	w io.Writer
	colorize bool
	unicode bool
	bus *signalbus.Bus
	handles []signalbus.Handle
}

// NewDefault creates a Default report writing to w (os.Stdout if nil).
// Colorization is auto-detected via golang.org/x/term when w is *os.File
// and a terminal; the Unicode banner variant additionally needs a UTF-8
// locale (the first set of LC_ALL, LC_CTYPE, LANG). Pass a non-file
// writer (as tests do) to get the plain-ASCII, uncolored rendering.
func NewDefault(w io.Writer) *Default {
	if w == nil {
		w = os.Stdout
	}
	d := &Default{w: w}
	if f, ok := w.(*os.File); ok {
		d.colorize = term.IsTerminal(int(f.Fd()))
		if d.colorize {
			for _, k := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
				if v := strings.ToUpper(os.Getenv(k)); v != "" {
					d.unicode = strings.Contains(v, "UTF-8") || strings.Contains(v, "UTF8")
					break
				}
			}
		}
	}
	return d
}

// Init connects the Default report's renderer to every signal it prints.
func (d *Default) Init(bus *signalbus.Bus) error {
	d.bus = bus
	connect := func(name string, fn func(sender interface{}, p signalbus.Payload)) {
		d.handles = append(d.handles, bus.Connect(name, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
			fn(sender, p)
			return nil
		}))
	}

	connect(signalbus.SigRunStart, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s\n", d.banner("RUN START"))
	})
	connect(signalbus.SigLogdirLocation, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "logdir: %v\n", p["path"])
	})
	connect(signalbus.SigReportTestbed, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "testbed: %v\n", p["testbed"])
	})
	connect(signalbus.SigReportComment, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "# %v\n", p["message"])
	})
	connect(signalbus.SigSuiteStart, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s suite start\n", d.nameOf(sender))
	})
	connect(signalbus.SigTestStart, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s\n", d.nameOf(sender), colorCyan.wrap("START", d.colorize))
	})
	connect(signalbus.SigTestArguments, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: arguments=%v\n", d.nameOf(sender), p["arguments"])
	})
	connect(signalbus.SigTestVersion, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: version=%v\n", d.nameOf(sender), p["version"])
	})
	connect(signalbus.SigTestPassed, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s %v\n", d.nameOf(sender), colorGreen.wrap("PASSED", d.colorize), p["message"])
	})
	connect(signalbus.SigTestFailure, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s %v\n", d.nameOf(sender), colorRed.wrap("FAILED", d.colorize), p["message"])
	})
	connect(signalbus.SigTestExpectedFailure, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s %v\n", d.nameOf(sender), colorYellow.wrap("EXPECTED-FAIL", d.colorize), p["message"])
	})
	connect(signalbus.SigTestIncomplete, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s %v\n", d.nameOf(sender), colorYellow.wrap("INCOMPLETE", d.colorize), p["message"])
	})
	connect(signalbus.SigTestAbort, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s %v\n", d.nameOf(sender), colorRed.wrap("ABORT", d.colorize), p["message"])
	})
	connect(signalbus.SigTestInfo, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: info: %v\n", d.nameOf(sender), p["message"])
	})
	connect(signalbus.SigTestWarning, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s\n", d.nameOf(sender), colorYellow.wrap(fmt.Sprintf("warning: %v", p["message"]), d.colorize))
	})
	connect(signalbus.SigTestDiagnostic, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: %s\n", d.nameOf(sender), colorRed.wrap(fmt.Sprintf("diagnostic: %v", p["message"]), d.colorize))
	})
	// Each data record is offered to any connected analyzer via
	// data-convert; the first non-nil return value is the rendered form.
	connect(signalbus.SigTestData, func(sender interface{}, p signalbus.Payload) {
		for _, del := range d.bus.Send(signalbus.SigDataConvert, d, signalbus.Payload{"data": p["data"], "config": nil}) {
			if del.ReturnValue != nil {
				fmt.Fprintf(d.w, " %s: data: %v\n", d.nameOf(sender), del.ReturnValue)
				return
			}
		}
		fmt.Fprintf(d.w, " %s: data recorded\n", d.nameOf(sender))
	})
	connect(signalbus.SigTestEnd, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, " %s: end\n", d.nameOf(sender))
	})
	connect(signalbus.SigSuiteSummary, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s suite-summary: %v\n", d.nameOf(sender), p["result"])
	})
	connect(signalbus.SigSuiteEnd, func(sender interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s suite end\n", d.nameOf(sender))
	})
	connect(signalbus.SigRunError, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s: %v\n", colorRed.wrap("RUN ERROR", d.colorize), p["exception"])
	})
	connect(signalbus.SigRunEnd, func(_ interface{}, p signalbus.Payload) {
		fmt.Fprintf(d.w, "%s\n", d.banner("RUN END"))
	})

	return nil
}

// Finalize disconnects the Default report's receivers.
func (d *Default) Finalize() error {
	for i := len(d.handles) - 1; i >= 0; i-- {
		d.bus.Disconnect(d.handles[i])
	}
	d.handles = nil
	return nil
}

func (d *Default) nameOf(sender interface{}) string {
	return nameOf(sender)
}

// banner renders a section header, using Unicode box-drawing characters
// (width-aware via golang.org/x/text/width so east-asian-wide runes in a
// title still line up) when the Unicode variant is enabled, or a
// plain ASCII rule otherwise.
func (d *Default) banner(title string) string {
	if !d.unicode {
		return "=== " + title + " ==="
	}
	label := " " + title + " "
	w := runeWidth(label)
	const total = 40
	pad := total - w
	if pad < 0 {
		pad = 0
	}
	left := pad / 2
	right := pad - left
	return "─" + strings.Repeat("─", left) + label + strings.Repeat("─", right)
}

// runeWidth sums the display width of s's runes, counting east-asian wide
// and fullwidth runes as two columns.
func runeWidth(s string) int {
	total := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			total += 2
		default:
			total++
		}
	}
	return total
}
