// Package audittrail provides the library API for a tamper-evident audit
// trail with retention.
//
// A Trail owns one hash-chained ledger, the retention policies that govern
// it, the signed deletion reports that cleanup produces, and the exports
// generated from it.
//
// # Concurrency Safety
//
// All Trail methods are safe for concurrent use within one process:
//
//   - Append and cleanup deletion never interleave; every entry links to the
//     entry appended immediately before it.
//
//   - Query, VerifyChain and exports read a consistent snapshot of the
//     ledger and never observe a half-applied cleanup.
//
//   - Only one cleanup run executes at a time per Trail.
//
// Two Trail instances opened on the SAME home directory must not write
// concurrently. Appends to the journal are flock-guarded, but each instance
// keeps its own tail pointer in memory.
//
// # Recommended Usage Pattern
//
//	trail, err := audittrail.Open(home, audittrail.Options{})
//	defer trail.Close()
//
//	trail.Append(model.DraftEntry{
//	    Action: "assign-user-roles", EntityType: "user", EntityID: userID,
//	    UserID: adminID, Changes: []model.Change{model.NewChange("roles", old, new)},
//	})
//
//	// nightly
//	trail.RunCleanup(ctx, audittrail.CleanupRequest{InitiatedBy: "scheduler"})
//
//	// on auditor request
//	bundle, err := trail.GenerateTamperEvidentExport(ctx, audittrail.ExportRequest{RequestedBy: auditorID})
package audittrail
