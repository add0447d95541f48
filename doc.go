// Package snileak is a minimal TLS client/server harness that reproduces
// and reports improper reuse of per-connection Server Name Indication (SNI)
// state across connections sharing a TLS context.
//
//	Orchestrator ----> Manager (context) ----> Prober (connect, set SNI)
//	                                               |
//	                                               v
//	                  Report <---- Server (accept, observe SNI, ack 0xFF)
//
// The [Server] accepts TLS connections on a loopback port and records which
// SNI hostname, if any, arrived on each one. Observation happens twice per
// connection: once directly off the wire before the TLS stack sees the
// ClientHello ([Conn]), and once through a per-connection observer inside
// the handshake. The two must agree.
//
// The [Manager] hands out client contexts ([Handle]). A reused Handle
// models the defect under study: the first connection's server-name
// decision is pinned into the context and silently served to every later
// connection, no matter what they request. A fresh Handle per connection
// never leaks.
//
// The [Orchestrator] runs the fixed two-pass demo, requesting
// "alpha.example", "beta.example", and no name at all, first through one
// shared context and then through fresh ones, and diffs what each
// connection requested against what the server observed:
//
//	bundle, err := credentials.SelfSigned("alpha.example", "beta.example")
//	if err != nil {
//	        // ...
//	}
//	server := snileak.NewServer(bundle)
//	if _, err := server.Start(); err != nil {
//	        // ...
//	}
//	go server.Serve()
//	defer server.Close()
//
//	manager := snileak.NewManager(snileak.StaticSource(bundle))
//	report, err := snileak.NewOrchestrator(manager, server).Run(ctx)
//	if err != nil {
//	        // ...
//	}
//	fmt.Print(report)
//
// The example/demo directory has the runnable demo.
package snileak
