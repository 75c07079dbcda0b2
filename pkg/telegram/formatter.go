package telegram

import (
	"fmt"
	"time"
)

// FormatDecisionForTelegram builds the operator notification for an
// emitted trade decision.
func FormatDecisionForTelegram(symbol, action string, score float64, notional string, bucketTs int64) string {
	ts := time.UnixMilli(bucketTs).UTC().Format("2006-01-02 15:04")
	return fmt.Sprintf("*%s* `%s`\nscore: `%.4f`\nnotional: `%s`\nbucket: `%s UTC`",
		action, symbol, score, notional, ts)
}
