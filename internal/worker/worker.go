// Package worker keeps in-memory configuration synchronized with the
// repository by reacting to bus events.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/premium"
	"github.com/opensource-insurance/harrier/internal/resolver"
)

// Worker reloads the resolver engine and premium store when rule sets,
// conditions, or rates change. It subscribes to the configuration topics
// and also runs a periodic resync sweep so a missed event heals itself.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *resolver.Engine
	rates  *premium.Store
	cache  domain.Cache

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ResyncInterval is how often to re-read configuration from the
	// repository regardless of events. Zero disables the sweep.
	ResyncInterval time.Duration
}

// NewWorker creates a configuration reload worker. The cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *resolver.Engine, rates *premium.Store, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		rates:  rates,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the configuration topics and begins the resync sweep.
func (w *Worker) Start(cfg Config) error {
	ruleTopics := []string{
		domain.TopicRuleSetApproved,
		domain.TopicRuleSetReverted,
		domain.TopicRuleSetUpdated,
		domain.TopicCatalogUpdated,
	}

	for _, topic := range ruleTopics {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleRuleSetEvent)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRatesUpdated, w.handleRatesEvent)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if cfg.ResyncInterval > 0 {
		w.wg.Add(1)
		go w.resyncLoop(cfg.ResyncInterval)
	}

	slog.Info("reload worker started",
		"subscription_count", len(w.subscriptions),
		"resync_interval", cfg.ResyncInterval,
	)

	return nil
}

func (w *Worker) handleRuleSetEvent(ctx context.Context, msg *domain.Message) error {
	slog.Debug("configuration event received",
		"topic", msg.Topic,
		"message_id", msg.ID,
	)
	return w.ReloadRuleSets(ctx)
}

func (w *Worker) handleRatesEvent(ctx context.Context, msg *domain.Message) error {
	slog.Debug("rates event received",
		"topic", msg.Topic,
		"message_id", msg.ID,
	)
	return w.ReloadRates(ctx)
}

// ReloadRuleSets rebuilds the condition catalog and live rule sets from
// the repository and swaps them into the resolver engine.
func (w *Worker) ReloadRuleSets(ctx context.Context) error {
	start := time.Now()

	conditions, err := w.repo.ListConditions(ctx)
	if err != nil {
		slog.Error("failed to list conditions", "error", err)
		return err
	}

	sets, err := w.repo.ListLiveRuleSets(ctx)
	if err != nil {
		slog.Error("failed to list live rule sets", "error", err)
		return err
	}

	catalog := domain.NewCatalog(conditions)
	if err := w.engine.ReloadRuleSets(catalog, sets); err != nil {
		slog.Error("rule set reload failed", "error", err)
		return err
	}

	// Coverage reflects live rule sets, so any cached report is stale now.
	if w.cache != nil {
		_ = w.cache.Delete(ctx, domain.CacheKeyCoverage)
	}

	slog.Info("rule sets reloaded",
		"conditions", catalog.Len(),
		"rule_sets", w.engine.RuleSetsCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// ReloadRates rebuilds every premium grid from the repository.
func (w *Worker) ReloadRates(ctx context.Context) error {
	start := time.Now()

	products, err := w.repo.ListProducts(ctx)
	if err != nil {
		slog.Error("failed to list products", "error", err)
		return err
	}

	var rates []domain.PremiumRate
	for _, product := range products {
		productRates, err := w.repo.ListPremiumRates(ctx, product.ID)
		if err != nil {
			slog.Error("failed to list premium rates",
				"product_id", product.ID,
				"error", err,
			)
			return err
		}
		for _, rate := range productRates {
			rates = append(rates, *rate)
		}
	}

	w.rates.ReloadAll(rates)

	slog.Info("premium rates reloaded",
		"rate_count", len(rates),
		"grid_count", w.rates.GridCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// resyncLoop periodically re-reads configuration from the repository.
func (w *Worker) resyncLoop(interval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.ReloadRuleSets(w.ctx); err != nil {
				continue
			}
			_ = w.ReloadRates(w.ctx)
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("reload worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
