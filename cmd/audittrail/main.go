// Command audittrail records, retains and exports a tamper-evident audit trail.
package main

import (
	"github.com/awnumar/memguard"

	"github.com/complykit/audittrail/internal/cli"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	cli.Execute()
}
