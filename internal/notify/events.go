package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/gridbot/internal/engine"
)

// FormatEvent renders an engine event as a notification title and message
// body. The event type string doubles as the Notifier filter key.
func FormatEvent(ev engine.Event) (title, message string) {
	switch ev.Type {
	case engine.EventReferenceUpdated:
		title = fmt.Sprintf("Reference updated: %s", ev.Symbol)
		message = fmt.Sprintf("New reference price %.4f", ev.Price)
	case engine.EventOrderFilled:
		title = fmt.Sprintf("Order filled: %s", ev.Symbol)
		message = fmt.Sprintf("%d @ %.4f on tiers %s", ev.Quantity, ev.Price, tierList(ev.TierIDs))
		if ev.Profit != 0 {
			message += fmt.Sprintf(", profit %.2f", ev.Profit)
		}
	case engine.EventTradingSuspended:
		title = fmt.Sprintf("TRADING SUSPENDED: %s", ev.Symbol)
		message = ev.Message
	case engine.EventReconcileMismatch:
		title = fmt.Sprintf("Reconcile mismatch: %s", ev.Symbol)
		message = ev.Message
	default:
		title = fmt.Sprintf("%s: %s", ev.Type, ev.Symbol)
		message = ev.Message
	}
	return title, message
}

func tierList(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
