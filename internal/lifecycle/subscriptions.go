package lifecycle

import (
	"context"
	"slices"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// SubscriptionManager holds the declarative subscription set and keeps it in
// sync with the broker session.
//
// The set survives disconnects: filters recorded while the session is down
// are applied by Resubscribe on the next connect.
//
// Not safe for concurrent use. A Controller serialises access under its lock.
type SubscriptionManager struct {
	client    mqtt.BrokerClient
	connected func() bool
	logger    *logging.Logger

	// order preserves insertion order for deterministic logging and batching.
	order []string
	set   map[string]struct{}
}

// NewSubscriptionManager returns an empty manager. connected reports whether
// the broker session is currently up.
func NewSubscriptionManager(client mqtt.BrokerClient, connected func() bool, logger *logging.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		client:    client,
		connected: connected,
		logger:    logger,
		set:       make(map[string]struct{}),
	}
}

// SubscribeAll adds filters to the held set and, when connected, issues one
// batched subscribe for them at QoS 1. When disconnected the filters are only
// recorded.
//
// Filters already held are not duplicated. If the broker rejects the batch
// the filters stay held and are retried on the next Resubscribe.
func (m *SubscriptionManager) SubscribeAll(ctx context.Context, filters []string) error {
	unique, err := normalise(filters)
	if err != nil {
		return err
	}
	if len(unique) == 0 {
		return nil
	}

	for _, f := range unique {
		if _, ok := m.set[f]; !ok {
			m.set[f] = struct{}{}
			m.order = append(m.order, f)
		}
	}

	if !m.connected() {
		m.logger.Debug("subscriptions recorded until connected", "filters", unique)
		return nil
	}

	if err := m.client.Subscribe(ctx, toSubscriptions(unique)); err != nil {
		return err
	}
	m.logger.Debug("subscribed", "filters", unique)
	return nil
}

// Resubscribe issues one batched subscribe for the whole held set.
// Clean sessions drop subscriptions, so this runs after every connect.
func (m *SubscriptionManager) Resubscribe(ctx context.Context) error {
	if len(m.order) == 0 {
		return nil
	}
	if err := m.client.Subscribe(ctx, toSubscriptions(m.order)); err != nil {
		return err
	}
	m.logger.Debug("subscriptions restored", "filters", m.order)
	return nil
}

// UnsubscribeAll removes filters from the held set and, when connected,
// issues one batched unsubscribe for them. Disconnected is not an error.
func (m *SubscriptionManager) UnsubscribeAll(ctx context.Context, filters []string) error {
	unique := dedupe(filters)
	if len(unique) == 0 {
		return nil
	}

	for _, f := range unique {
		delete(m.set, f)
	}
	m.order = slices.DeleteFunc(m.order, func(f string) bool {
		_, held := m.set[f]
		return !held
	})

	if !m.connected() {
		return nil
	}

	if err := m.client.Unsubscribe(ctx, unique); err != nil {
		return err
	}
	m.logger.Debug("unsubscribed", "filters", unique)
	return nil
}

// Filters returns a copy of the held set in insertion order.
func (m *SubscriptionManager) Filters() []string {
	return slices.Clone(m.order)
}

// Len returns the number of held filters.
func (m *SubscriptionManager) Len() int {
	return len(m.order)
}

// Has reports whether filter is held.
func (m *SubscriptionManager) Has(filter string) bool {
	_, ok := m.set[filter]
	return ok
}

// Matches reports whether any held filter matches topic.
func (m *SubscriptionManager) Matches(topic string) bool {
	return slices.ContainsFunc(m.order, func(f string) bool {
		return mqtt.MatchFilter(f, topic)
	})
}

// normalise validates filters and drops duplicates, keeping first occurrence.
func normalise(filters []string) ([]string, error) {
	for _, f := range filters {
		if err := mqtt.ValidateFilter(f); err != nil {
			return nil, err
		}
	}
	return dedupe(filters), nil
}

func dedupe(filters []string) []string {
	seen := make(map[string]struct{}, len(filters))
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func toSubscriptions(filters []string) []mqtt.Subscription {
	subs := make([]mqtt.Subscription, len(filters))
	for i, f := range filters {
		subs[i] = mqtt.Subscription{Filter: f, QoS: mqtt.QoSAtLeastOnce}
	}
	return subs
}
