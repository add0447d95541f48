package snileak

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default SNI hostnames used by the scripted demo sequence.
const (
	HostA = "alpha.example"
	HostB = "beta.example"
)

// DefaultScript returns the fixed demo sequence against addr: two passes,
// context reuse enabled then disabled, each requesting HostA, HostB, and
// finally no SNI at all.
func DefaultScript(addr string) []Intent {
	var script []Intent
	for _, reuse := range []bool{true, false} {
		hostA, hostB := HostA, HostB
		script = append(script,
			Intent{Addr: addr, ServerName: &hostA, Reuse: reuse},
			Intent{Addr: addr, ServerName: &hostB, Reuse: reuse},
			Intent{Addr: addr, ServerName: nil, Reuse: reuse},
		)
	}
	return script
}

// Orchestrator drives a scripted sequence of probing connections against an
// observation server and pairs each request with the server's observation.
type Orchestrator struct {
	Manager *Manager
	Server  *Server
	Prober  *Prober
	Logger  *log.Entry
	// Script overrides the default sequence when non-empty.
	Script []Intent
	// RecordTimeout bounds how long Run waits for the server to publish
	// the observation of a connection. Default 5s.
	RecordTimeout time.Duration
}

// NewOrchestrator returns an Orchestrator for manager and server with
// defaults.
func NewOrchestrator(manager *Manager, server *Server) *Orchestrator {
	return &Orchestrator{
		Manager:       manager,
		Server:        server,
		Prober:        NewProber(),
		Logger:        log.WithField("component", "orchestrator"),
		RecordTimeout: 5 * time.Second,
	}
}

// Run issues the scripted connections one at a time, waiting for each to
// fully complete before issuing the next, and returns the report pairing
// requested with observed SNI values. Per-connection failures are recorded
// and the sequence continues; only a credential load failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	script := o.Script
	if len(script) == 0 {
		script = DefaultScript(o.Server.Addr().String())
	}
	report := &Report{}
	// cursor tracks the next unconsumed index in the server's
	// observation log. Every connection the server accepts yields
	// exactly one record, even on handshake failure; a connection that
	// never dialed yields none and must not shift later pairings.
	cursor := len(o.Server.Records())
	for i, intent := range script {
		handle, err := o.Manager.Handle(intent.Reuse)
		if err != nil {
			return nil, err
		}
		entry := Entry{Intent: intent}
		res, err := o.Prober.Connect(ctx, handle, intent.Addr, intent.ServerName)
		switch {
		case err != nil:
			entry.Err = err
			o.Logger.Errorf("connection %d: %v", i, err)
		case res.Ack != ackByte:
			entry.Err = fmt.Errorf("unexpected ack byte 0x%02x", res.Ack)
			o.Logger.Errorf("connection %d: %v", i, entry.Err)
		}

		if res.LocalAddr == "" {
			// The dial failed: the server never saw this
			// connection and there is no record to wait for.
			report.Entries = append(report.Entries, entry)
			o.Logger.Infof("connection %d: reuse=%v requested=%s not observed", i, intent.Reuse, intent.Requested())
			continue
		}

		timeout := o.RecordTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		rec, rerr := o.Server.WaitRecord(rctx, cursor)
		cancel()
		switch {
		case rerr != nil:
			if entry.Err == nil {
				entry.Err = rerr
			}
		case rec.RemoteAddr != res.LocalAddr:
			entry.Record = rec
			cursor++
			if entry.Err == nil {
				entry.Err = fmt.Errorf("observation %d is from %s, not from this connection (%s)", rec.Index, rec.RemoteAddr, res.LocalAddr)
			}
		default:
			entry.Record = rec
			cursor++
		}

		report.Entries = append(report.Entries, entry)
		o.Logger.Infof("connection %d: reuse=%v requested=%s observed=%s", i, intent.Reuse, intent.Requested(), entry.Observed())
	}
	return report, nil
}
