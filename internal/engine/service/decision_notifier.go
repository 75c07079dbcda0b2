package service

import (
	"context"
	"fmt"
	"time"

	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/logger"
	"golang-signal-engine/pkg/telegram"

	"github.com/patrickmn/go-cache"
)

// DecisionNotifier pushes emitted decisions to the operator chat. A short
// in-memory cache suppresses duplicate sends when a bucket is reprocessed.
type DecisionNotifier struct {
	log           *logger.Logger
	notifier      telegram.Notifier
	inmemoryCache *cache.Cache
}

// NewDecisionNotifier creates a notifier. A nil telegram notifier
// disables sending.
func NewDecisionNotifier(log *logger.Logger, notifier telegram.Notifier) *DecisionNotifier {
	return &DecisionNotifier{
		log:           log,
		notifier:      notifier,
		inmemoryCache: cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Notify sends the decision message unless the same decision was already
// notified recently.
func (n *DecisionNotifier) Notify(ctx context.Context, decision *entity.Decision) {
	if n == nil || n.notifier == nil {
		return
	}

	key := fmt.Sprintf("%s|%d|%s", decision.Symbol, decision.BucketTs, decision.Action)
	if _, found := n.inmemoryCache.Get(key); found {
		return
	}

	message := telegram.FormatDecisionForTelegram(
		decision.Symbol,
		string(decision.Action),
		decision.Score,
		decision.Notional.String(),
		decision.BucketTs,
	)
	if err := n.notifier.SendMessage(ctx, message); err != nil {
		n.log.Error("Failed to send decision notification",
			logger.ErrorField(err),
			logger.StringField("symbol", decision.Symbol))
		return
	}

	n.inmemoryCache.Set(key, struct{}{}, cache.DefaultExpiration)
}
