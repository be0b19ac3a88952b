package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scenarioBook(ts string) *domain.OrderbookSnapshot {
	return &domain.OrderbookSnapshot{
		Timestamp:  ts,
		Venue:      "OKX",
		Instrument: "BTC-USDT-SWAP",
		Asks:       []domain.PriceLevel{{Price: 100, Size: 2}, {Price: 101, Size: 3}},
		Bids:       []domain.PriceLevel{{Price: 99, Size: 5}, {Price: 98, Size: 2}},
	}
}

func scenarioParams() domain.TradeParameters {
	return domain.TradeParameters{QuantityUSD: 150, Volatility: 0.05, FeeTier: domain.FeeTierVIP1}
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, published{channel, payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan domain.Message, error) {
	return make(chan domain.Message), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, published{stream, payload})
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) StreamRevRange(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.msgs...)
}

type fakeBookCache struct {
	mu    sync.Mutex
	snaps []*domain.OrderbookSnapshot
	err   error
}

func (c *fakeBookCache) SetSnapshot(_ context.Context, snap *domain.OrderbookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.snaps = append(c.snaps, snap)
	return nil
}

func (c *fakeBookCache) GetSnapshot(_ context.Context, key string) (*domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.snaps) - 1; i >= 0; i-- {
		if c.snaps[i].Key() == key {
			return c.snaps[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *fakeBookCache) GetBBO(context.Context, string) (float64, float64, error) {
	return 0, 0, domain.ErrNotFound
}

func (c *fakeBookCache) stored() []*domain.OrderbookSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.OrderbookSnapshot(nil), c.snaps...)
}

type fakeMetricsCache struct {
	mu     sync.Mutex
	latest map[string]domain.CostMetrics
}

func (c *fakeMetricsCache) SetLatest(_ context.Context, m domain.CostMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		c.latest = map[string]domain.CostMetrics{}
	}
	c.latest[m.Venue+":"+m.Instrument] = m
	return nil
}

func (c *fakeMetricsCache) GetLatest(_ context.Context, key string) (domain.CostMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.latest[key]
	if !ok {
		return domain.CostMetrics{}, domain.ErrNotFound
	}
	return m, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeEstimateStore struct {
	mu   sync.Mutex
	rows []domain.CostMetrics
}

func (s *fakeEstimateStore) Insert(_ context.Context, m domain.CostMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, m)
	return nil
}

func (s *fakeEstimateStore) GetByID(_ context.Context, id string) (domain.CostMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.CostMetrics{}, domain.ErrNotFound
}

func (s *fakeEstimateStore) List(context.Context, domain.ListOpts) ([]domain.CostMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CostMetrics(nil), s.rows...), nil
}

func (s *fakeEstimateStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.CostMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CostMetrics
	for _, r := range s.rows {
		if r.ComputedAt.Before(before) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeEstimateStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.rows[:0]
	var n int64
	for _, r := range s.rows {
		if drop[r.ID] {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

func (s *fakeEstimateStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}
