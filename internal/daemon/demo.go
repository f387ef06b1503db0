package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/grid"
)

// Demo objects created when [grid] demo is enabled.
const (
	demoQueue    = "orders"
	demoTopic    = "events"
	demoExecutor = "jobs"
	demoMap      = "users"
	demoSet      = "numbers"
	demoList     = "audit"
)

// seedDemo fills the grid with a few objects of each kind so every route
// has something to show.
func seedDemo(g *grid.Grid) error {
	numbers := g.Set(demoSet)
	for i := 1; i <= 20; i++ {
		if _, err := numbers.Add(i); err != nil {
			return err
		}
	}
	users := g.Map(demoMap)
	for i, name := range []string{"ada", "grace", "linus", "ken", "barbara"} {
		if err := users.Put(name, map[string]any{"id": i + 1, "age": 30 + i*7}); err != nil {
			return err
		}
	}
	audit := g.List(demoList)
	for i := 0; i < 5; i++ {
		if err := audit.Add(fmt.Sprintf("boot-%d", i)); err != nil {
			return err
		}
	}
	g.Queue(demoQueue)
	g.Topic(demoTopic)
	g.ExecutorService(demoExecutor)
	g.Register(domain.KindLock, "leader")
	g.Register(domain.KindAtomicLong, "sequence")
	return nil
}

// runDemo keeps the demo objects busy so their statistics move.
func runDemo(ctx context.Context, g *grid.Grid, logger *slog.Logger) {
	queue := g.Queue(demoQueue)
	events := g.Topic(demoTopic)
	jobs := g.ExecutorService(demoExecutor)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		queue.Offer(fmt.Sprintf("order-%d", n))
		if rand.IntN(3) > 0 {
			queue.Poll()
		}
		if err := events.Publish(n, n); err != nil {
			logger.Debug("demo publish failed", "error", err)
		}
		if _, err := jobs.SubmitToKeyOwner(demoJob(g.Name(), n), fmt.Sprint(n)); err != nil {
			logger.Debug("demo job rejected", "error", err)
		}
	}
}

func demoJob(instance string, n int) dispatch.Task {
	return dispatch.ObjectTask{
		Instance: instance,
		Object:   fmt.Sprintf("job-%d", n),
		Run: func(ctx context.Context, inst domain.Instance) (any, error) {
			time.Sleep(time.Duration(rand.IntN(20)) * time.Millisecond)
			if n%10 == 0 {
				return nil, errors.Newf("job-%d failed", n)
			}
			return n, nil
		},
	}
}
