package topic

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/stats"
)

// Source produces one payload for a topic.
type Source func(ctx context.Context) (any, error)

// Params carries per-subscription producer parameters. Filter, Page and
// PageSize only apply to object listings.
type Params struct {
	Frequency time.Duration
	Filter    string
	Page      int
	PageSize  int
}

// Resolver turns a topic name into the producer serving it.
type Resolver interface {
	Resolve(name Name, params Params) (Source, error)
}

// Catalog resolves topics against one runtime instance.
type Catalog struct {
	source        stats.ObjectSource
	dispatcher    *dispatch.Dispatcher
	memberTimeout time.Duration
	logger        *slog.Logger
}

// NewCatalog builds a catalog. The dispatcher drives stats fan-outs.
func NewCatalog(source stats.ObjectSource, d *dispatch.Dispatcher, memberTimeout time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{source: source, dispatcher: d, memberTimeout: memberTimeout, logger: logger}
}

// Resolve implements Resolver.
func (c *Catalog) Resolve(name Name, params Params) (Source, error) {
	switch name.Type {
	case stats.SummaryTopicType:
		sp := stats.NewSummaryProducer(c.source)
		return func(ctx context.Context) (any, error) {
			return sp.Produce(ctx)
		}, nil

	case stats.ObjectsTopicType:
		return func(ctx context.Context) (any, error) {
			return stats.ListObjects(c.source, name.Kind, params.Filter, params.Page, params.PageSize)
		}, nil

	case stats.TopicType:
		opts := []stats.Option{stats.WithLogger(c.logger)}
		if c.memberTimeout > 0 {
			opts = append(opts, stats.WithMemberTimeout(c.memberTimeout))
		}
		p, err := stats.NewProducer(c.dispatcher, c.source.Name(), name.Kind, name.Object, opts...)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return p.Produce(ctx)
		}, nil
	}
	return nil, ErrUnknownTopic
}
