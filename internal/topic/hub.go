// Package topic runs producers on behalf of subscribers. A subscriber names
// a topic and an update frequency; the hub samples the topic's producer at
// that frequency and delivers each payload, or an error message when the
// producer fails, as a Notice.
package topic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// Notice payload types.
const (
	NoticeProduct = "product"
	NoticeError   = "error"
)

// Notice is one message delivered to a subscriber.
type Notice struct {
	Topic   string    `json:"topic"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Sink receives every successfully produced payload, e.g. for history.
type Sink interface {
	Record(name Name, payload any) error
}

// Config tunes a Hub.
type Config struct {
	DefaultFrequency time.Duration
	MinFrequency     time.Duration
	Buffer           int
}

// Hub owns every live subscription.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	resolver Resolver
	sink     Sink
	config   Config
	logger   *slog.Logger
	closed   bool
}

// NewHub creates a hub resolving topics through r. sink may be nil.
func NewHub(r Resolver, sink Sink, cfg Config, logger *slog.Logger) *Hub {
	if cfg.DefaultFrequency <= 0 {
		cfg.DefaultFrequency = 5 * time.Second
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:     make(map[string]*Subscription),
		resolver: r,
		sink:     sink,
		config:   cfg,
		logger:   logger.With("component", "topic"),
	}
}

// Subscription is a live feed of notices for one topic.
type Subscription struct {
	ID        string
	Topic     Name
	Frequency time.Duration

	notices chan Notice
	cancel  context.CancelFunc
	done    chan struct{}
}

// C returns the notice channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Notice { return s.notices }

// Frequency clamps a requested update frequency to the hub's bounds.
func (h *Hub) Frequency(requested time.Duration) time.Duration {
	if requested <= 0 {
		return h.config.DefaultFrequency
	}
	if requested < h.config.MinFrequency {
		return h.config.MinFrequency
	}
	return requested
}

// Subscribe starts a feed for topic. The first notice is produced
// immediately. The feed stops when ctx is done or Unsubscribe is called.
func (h *Hub) Subscribe(ctx context.Context, topic string, params Params) (*Subscription, error) {
	name, err := ParseName(topic)
	if err != nil {
		return nil, err
	}
	source, err := h.resolver.Resolve(name, params)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve topic %s", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("topic hub is closed")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:        uuid.NewString(),
		Topic:     name,
		Frequency: h.Frequency(params.Frequency),
		notices:   make(chan Notice, h.config.Buffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	h.subs[sub.ID] = sub
	metrics.TopicSubscribers.Inc()
	h.logger.Info("subscribed", "topic", name.String(), "id", sub.ID, "frequency", sub.Frequency)

	go h.run(ctx, sub, source)
	return sub, nil
}

// Unsubscribe stops a subscription and waits for its feed to end.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// Subscriptions returns the number of live subscriptions.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		<-s.done
	}
}

func (h *Hub) run(ctx context.Context, sub *Subscription, source Source) {
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub.ID)
		h.mu.Unlock()
		metrics.TopicSubscribers.Dec()
		close(sub.notices)
		close(sub.done)
		h.logger.Info("unsubscribed", "topic", sub.Topic.String(), "id", sub.ID)
	}()

	h.tick(ctx, sub, source)

	ticker := time.NewTicker(sub.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, sub, source)
		}
	}
}

func (h *Hub) tick(ctx context.Context, sub *Subscription, source Source) {
	payload, err := produce(ctx, source)
	if ctx.Err() != nil {
		return
	}

	n := Notice{Topic: sub.Topic.String(), Time: time.Now()}
	if err != nil {
		h.logger.Warn("producer failed", "topic", n.Topic, "error", err)
		n.Type = NoticeError
		n.Payload = domain.ErrorMessageFrom(err)
	} else {
		n.Type = NoticeProduct
		n.Payload = payload
		if h.sink != nil {
			if err := h.sink.Record(sub.Topic, payload); err != nil {
				h.logger.Warn("history write failed", "topic", n.Topic, "error", err)
			}
		}
	}

	select {
	case sub.notices <- n:
		metrics.TopicNotices.WithLabelValues(sub.Topic.Type, n.Type).Inc()
	default:
		metrics.TopicDropped.Inc()
		h.logger.Debug("subscriber slow, notice dropped", "topic", n.Topic, "id", sub.ID)
	}
}

// produce runs source and reports a panic as an error.
func produce(ctx context.Context, source Source) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, errors.Newf("producer panicked: %v", r)
		}
	}()
	return source(ctx)
}
