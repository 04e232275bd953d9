package economy

import (
	"context"
	"log/slog"
)

// Notifier receives events after their transaction has committed. The
// transport collaborator (bot, webhook, ...) implements delivery; the core
// never blocks a transaction on it.
type Notifier interface {
	OwnershipChanged(ctx context.Context, ev OwnershipChange)
	IncomeCredited(ctx context.Context, ev IncomeCredit)
}

// LogNotifier is the default sink: it just logs the events.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Log != nil {
		return n.Log
	}
	return slog.Default()
}

func (n LogNotifier) OwnershipChanged(ctx context.Context, ev OwnershipChange) {
	n.logger().InfoContext(ctx, "ownership changed",
		"event_id", ev.EventID,
		"buyer_id", ev.BuyerID,
		"target_id", ev.TargetID,
		"price_paid", ev.PricePaid,
		"new_price", ev.NewPrice,
	)
}

func (n LogNotifier) IncomeCredited(ctx context.Context, ev IncomeCredit) {
	n.logger().InfoContext(ctx, "income credited",
		"event_id", ev.EventID,
		"owner_id", ev.OwnerID,
		"amount", ev.Amount,
		"prisoners", ev.Prisoners,
	)
}
