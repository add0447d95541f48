package snileak_test

import (
	"fmt"

	"github.com/snileak/snileak"
)

func ExampleReport_String() {
	hostB := "beta.example"
	report := &snileak.Report{Entries: []snileak.Entry{{
		Intent: snileak.Intent{ServerName: &hostB, Reuse: true},
		Record: snileak.Record{ServerName: "alpha.example", HasSNI: true, HandshakeDone: true},
	}, {
		Intent: snileak.Intent{Reuse: false},
		Record: snileak.Record{Index: 1, HandshakeDone: true},
	}}}
	fmt.Print(report)
	// Output:
	// #0 reuse=true  requested=beta.example observed=alpha.example LEAKED
	// #1 reuse=false requested=(none) observed=(none)
}
