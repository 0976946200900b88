package grn

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Document numbers look like GRN-2026-000042: one six-digit sequence per
// calendar year. The sequence restarts at 1 whenever the year rolls over or
// the latest stored number does not parse.
const documentPrefix = "GRN"

var documentNoPattern = regexp.MustCompile(`^GRN-(\d{4})-(\d{6})$`)

// NextDocumentNo derives the next number from the most recently issued one.
// Callers must serialize invocations; see TxRepository.AcquireNumberingLock.
func NextDocumentNo(latest string, now time.Time) string {
	year := now.Year()
	seq := 1
	if m := documentNoPattern.FindStringSubmatch(latest); m != nil {
		if latestYear, err := strconv.Atoi(m[1]); err == nil && latestYear == year {
			if latestSeq, err := strconv.Atoi(m[2]); err == nil {
				seq = latestSeq + 1
			}
		}
	}
	return fmt.Sprintf("%s-%d-%06d", documentPrefix, year, seq)
}
