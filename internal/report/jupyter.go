package report

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"devtester/internal/signalbus"
)

// Widget is the notebook-frontend shell's display surface; the frontend
// itself is external, only this interface is shared. Update is called
// with a full HTML re-render each time the report has new content to
// show.
type Widget interface {
	Update(htmlBody string)
}

// Jupyter is the report sink that renders HTML into a Widget in a
// notebook session: an append-only log table re-rendered in full on every
// event, the simplest widget contract a notebook-frontend shell can
// implement.
type Jupyter struct {
	widget Widget

	mu sync.Mutex
	rows []string

	handles []signalbus.Handle
	bus *signalbus.Bus
}

// NewJupyter creates a Jupyter report driving widget.
func NewJupyter(widget Widget) *Jupyter {
	return &Jupyter{widget: widget}
}

// Init connects the Jupyter report's receivers.
func (j *Jupyter) Init(bus *signalbus.Bus) error {
	j.bus = bus
	add := func(row string) {
		j.mu.Lock()
		j.rows = append(j.rows, row)
		snapshot := append([]string(nil), j.rows...)
		j.mu.Unlock()
		if j.widget != nil {
			j.widget.Update(render(snapshot))
		}
	}

	connect := func(name string, fn func(sender interface{}, p signalbus.Payload) string) {
		j.handles = append(j.handles, bus.Connect(name, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
			add(fn(sender, p))
			return nil
		}))
	}

	connect(signalbus.SigTestStart, func(sender interface{}, p signalbus.Payload) string {
		return fmt.Sprintf("<tr><td>%v</td><td>start</td><td></td></tr>", sender)
	})
	connect(signalbus.SigTestPassed, func(sender interface{}, p signalbus.Payload) string {
		return fmt.Sprintf("<tr><td>%v</td><td class=passed>PASSED</td><td>%s</td></tr>", sender, html.EscapeString(fmt.Sprint(p["message"])))
	})
	connect(signalbus.SigTestFailure, func(sender interface{}, p signalbus.Payload) string {
		return fmt.Sprintf("<tr><td>%v</td><td class=failed>FAILED</td><td>%s</td></tr>", sender, html.EscapeString(fmt.Sprint(p["message"])))
	})
	connect(signalbus.SigTestIncomplete, func(sender interface{}, p signalbus.Payload) string {
		return fmt.Sprintf("<tr><td>%v</td><td class=incomplete>INCOMPLETE</td><td>%s</td></tr>", sender, html.EscapeString(fmt.Sprint(p["message"])))
	})
	connect(signalbus.SigSuiteSummary, func(sender interface{}, p signalbus.Payload) string {
		return fmt.Sprintf("<tr><td colspan=3><b>suite summary: %v</b></td></tr>", p["result"])
	})

	return nil
}

func render(rows []string) string {
	var b strings.Builder
	b.WriteString("<table class=devtester-report>")
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString("</table>")
	return b.String()
}

// Finalize disconnects every receiver Init connected.
func (j *Jupyter) Finalize() error {
	for i := len(j.handles) - 1; i >= 0; i-- {
		j.bus.Disconnect(j.handles[i])
	}
	j.handles = nil
	return nil
}
