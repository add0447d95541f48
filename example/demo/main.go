// This is the runnable demo: it stands up the SNI observation server on a
// loopback port and drives the fixed two-pass probing sequence against it,
// first reusing one client TLS context, then creating a fresh context per
// connection. The report diffs the SNI hostname each connection requested
// against the one the server observed.
//
// There are no flags. Set SNILEAK_KEYSTORE (a path) and
// SNILEAK_KEYSTORE_PASSWORD to load a password-protected keystore;
// otherwise an in-memory self-signed identity is used.
package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/snileak/snileak"
	"github.com/snileak/snileak/credentials"
)

func main() {
	bundle, err := loadBundle()
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	server := snileak.NewServer(bundle)
	if _, err := server.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
	go server.Serve()
	defer server.Close()

	manager := snileak.NewManager(snileak.StaticSource(bundle))
	report, err := snileak.NewOrchestrator(manager, server).Run(context.Background())
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	fmt.Print(report)
	if n := len(report.Divergences()); n > 0 {
		log.Warnf("%d connection(s) observed an SNI value they did not request", n)
	}
}

func loadBundle() (*credentials.Bundle, error) {
	if path := os.Getenv("SNILEAK_KEYSTORE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return credentials.FromKeystore(data, os.Getenv("SNILEAK_KEYSTORE_PASSWORD"))
	}
	return credentials.SelfSigned(snileak.HostA, snileak.HostB)
}
