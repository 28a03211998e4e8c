package audit

import (
	"crypto/subtle"
	"fmt"

	"github.com/complykit/audittrail/pkg/model"
)

// VerifyChain walks entries in append order and reports the first break.
// A link that skips exactly the span described by one of gaps is accepted
// as a documented retention gap.
func VerifyChain(entries []model.AuditLogEntry, gaps ...model.ChainGap) (bool, string) {
	if len(entries) == 0 {
		return true, "Hash chain verified: no entries"
	}

	documented := make(map[[2]string]model.ChainGap, len(gaps))
	for _, g := range gaps {
		documented[[2]string{g.PrecedingHash, g.TerminalHash}] = g
	}

	prev := ""
	usedGaps, removed := 0, 0
	for i, e := range entries {
		if !hashEqual(Hash(e), e.EntryHash) {
			return false, fmt.Sprintf("Hash chain broken at entry %s (position %d): entry hash does not match its content", e.ID, i)
		}
		if e.PreviousEntryHash != prev {
			g, ok := documented[[2]string{prev, e.PreviousEntryHash}]
			if !ok {
				return false, fmt.Sprintf("Hash chain broken at entry %s (position %d): previous entry hash does not match the preceding entry", e.ID, i)
			}
			usedGaps++
			removed += g.RemovedCount
		}
		prev = e.EntryHash
	}

	if usedGaps == 0 {
		return true, fmt.Sprintf("Hash chain verified: %d entries intact", len(entries))
	}
	return true, fmt.Sprintf("Hash chain verified: %d entries intact with %d documented gap(s) covering %d entries removed by retention cleanup",
		len(entries), usedGaps, removed)
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
