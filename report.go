package snileak

import (
	"fmt"
	"strings"
)

// Intent describes one scripted probing attempt: where to connect, which
// SNI hostname to request (nil for none), and whether to reuse the shared
// client context.
type Intent struct {
	Addr       string
	ServerName *string
	Reuse      bool
}

// Requested renders the intent's server name, "(none)" when absent.
func (in Intent) Requested() string {
	if in.ServerName == nil {
		return "(none)"
	}
	return *in.ServerName
}

// Entry pairs one Intent with the server's observation for the same
// connection. Err holds a client-side failure; the entry is still part of
// the report.
type Entry struct {
	Intent Intent
	Record Record
	Err    error
}

// Observed renders what the server saw, "(none)" when no SNI was presented.
func (e Entry) Observed() string {
	if !e.Record.HasSNI {
		return "(none)"
	}
	return e.Record.ServerName
}

// Diverged reports whether the server observed something other than what
// the connection requested. This is the reproduced defect when it shows up
// under context reuse.
func (e Entry) Diverged() bool {
	if e.Err != nil || !e.Record.HandshakeDone {
		return false
	}
	wantName, wantHas := "", false
	if e.Intent.ServerName != nil {
		wantName, wantHas = *e.Intent.ServerName, true
	}
	return e.Record.HasSNI != wantHas || e.Record.ServerName != wantName
}

// Report is the ordered outcome of a demo run: one Entry per issued
// connection, in issue order. It is read-only once the run completes.
type Report struct {
	Entries []Entry
}

// Divergences returns the entries whose observed SNI differs from the
// requested one.
func (r *Report) Divergences() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Diverged() {
			out = append(out, e)
		}
	}
	return out
}

func (r *Report) String() string {
	var b strings.Builder
	for i, e := range r.Entries {
		fmt.Fprintf(&b, "#%d reuse=%-5v requested=%s observed=%s", i, e.Intent.Reuse, e.Intent.Requested(), e.Observed())
		if e.Diverged() {
			b.WriteString(" LEAKED")
		}
		if e.Err != nil {
			fmt.Fprintf(&b, " error=%v", e.Err)
		}
		b.WriteString("\n")
	}
	return b.String()
}
