package cache

import (
	"fmt"
	"time"

	"piano/internal/core"
)

// ExpansionKey builds the memoization key for a rule expansion. The rule's
// UpdatedAt timestamp is part of the key, so any edit to the rule naturally
// produces a fresh key and the stale entry ages out instead of being served.
func ExpansionKey(ruleID string, updatedAt time.Time, windowStart, windowEnd core.Date) string {
	return fmt.Sprintf("expand:%s:%d:%s:%s", ruleID, updatedAt.UnixNano(), windowStart, windowEnd)
}

// ProjectionKey builds the memoization key for a goal balance projection.
func ProjectionKey(goalID string, updatedAt time.Time, principalCents int64, fromDate, toDate core.Date) string {
	return fmt.Sprintf("project:%s:%d:%d:%s:%s", goalID, updatedAt.UnixNano(), principalCents, fromDate, toDate)
}
