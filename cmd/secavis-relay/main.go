// Command secavis-relay retrieves tax notices from the portal, registers
// them in the idempotency ledger and relays them to the intake service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
