// Package grid is an in-process, partitioned data grid. It implements the
// runtime collaborator the agent needs: members with stable addresses, a
// partition table, named execution services with submit-to-key-owner and
// submit-to-all-members semantics, node-local statistics, and a native
// predicate-based entry query for maps.
//
// Every member keeps its own state and runs tasks on its own worker pool,
// so a task only ever sees what the member it runs on hosts.
package grid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
)

// Config configures an in-process grid.
type Config struct {
	Instance         string
	Members          int
	PartitionCount   int
	WorkersPerMember int
	Host             string
	BasePort         int
}

// DefaultConfig returns a three-member grid with the usual partition count.
func DefaultConfig() Config {
	return Config{
		Instance:         "gridmon",
		Members:          3,
		PartitionCount:   271,
		WorkersPerMember: 16,
		Host:             "127.0.0.1",
		BasePort:         5701,
	}
}

// Grid is one runtime instance spread over several in-process members.
type Grid struct {
	mu        sync.RWMutex
	name      string
	config    Config
	members   []*member
	objects   map[objectKey]domain.ObjectRef
	executors map[string]*executorService
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
}

type objectKey struct {
	kind domain.ObjectKind
	name string
}

// New starts a grid with cfg.Members members.
func New(cfg Config, logger *slog.Logger) (*Grid, error) {
	def := DefaultConfig()
	if cfg.Instance == "" {
		cfg.Instance = def.Instance
	}
	if cfg.Members <= 0 {
		return nil, errors.Wrapf(domain.ErrNoMembers, "grid %q configured with %d members", cfg.Instance, cfg.Members)
	}
	if cfg.PartitionCount <= 0 {
		cfg.PartitionCount = def.PartitionCount
	}
	if cfg.WorkersPerMember <= 0 {
		cfg.WorkersPerMember = def.WorkersPerMember
	}
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = def.BasePort
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Grid{
		name:      cfg.Instance,
		config:    cfg,
		objects:   make(map[objectKey]domain.ObjectRef),
		executors: make(map[string]*executorService),
		logger:    logger.With("component", "grid", "instance", cfg.Instance),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < cfg.Members; i++ {
		info := domain.Member{
			UUID:     uuid.NewString(),
			Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.BasePort+i),
			JoinedAt: time.Now(),
			State:    domain.MemberAlive,
		}
		g.members = append(g.members, newMember(g, i, info))
		g.logger.Info("member joined", "address", info.Address, "uuid", info.UUID)
	}
	return g, nil
}

// Name implements dispatch.Runtime.
func (g *Grid) Name() string { return g.name }

// Members implements dispatch.Runtime. Unreachable members are included.
func (g *Grid) Members() []domain.Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.snapshot())
	}
	return out
}

// ExecutorService implements dispatch.Runtime. Services are created on
// first use and show up as executor objects.
func (g *Grid) ExecutorService(name string) dispatch.ExecutionService {
	g.mu.Lock()
	defer g.mu.Unlock()
	if es, ok := g.executors[name]; ok {
		return es
	}
	es := &executorService{grid: g, name: name}
	g.executors[name] = es
	g.registerLocked(domain.KindExecutor, name)
	return es
}

// Objects lists every distributed object created on the grid, sorted by
// kind then name.
func (g *Grid) Objects() []domain.ObjectRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ObjectRef, 0, len(g.objects))
	for _, ref := range g.objects {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Register creates a named object of a kind that has no data model here
// (locks, latches, atomics...). It only affects listings and summaries.
func (g *Grid) Register(kind domain.ObjectKind, name string) domain.ObjectRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registerLocked(kind, name)
}

func (g *Grid) registerLocked(kind domain.ObjectKind, name string) domain.ObjectRef {
	key := objectKey{kind: kind, name: name}
	if ref, ok := g.objects[key]; ok {
		return ref
	}
	ref := domain.NewObjectRef(g.name, kind, name)
	if !kind.IsPartitioned() {
		ref.PartitionKey = ""
	}
	g.objects[key] = ref
	return ref
}

// SetMemberDown marks a member unreachable (or reachable again). Tasks sent
// to an unreachable member fail with domain.ErrMemberDown.
func (g *Grid) SetMemberDown(address string, down bool) error {
	m, err := g.memberByAddress(address)
	if err != nil {
		return err
	}
	m.setDown(down)
	g.logger.Info("member state changed", "address", address, "down", down)
	return nil
}

// Close stops every member's worker pools.
func (g *Grid) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	members := append([]*member(nil), g.members...)
	g.mu.Unlock()

	g.cancel()
	for _, m := range members {
		m.release()
	}
}

// ─── Partition Table ────────────────────────────────────────────────────────

// PartitionID maps a key to its partition.
func (g *Grid) PartitionID(key string) int {
	return int(xxhash.Sum64String(key) % uint64(g.config.PartitionCount))
}

// Owner returns the member owning key's partition. Partitions are assigned
// round-robin over members in join order.
func (g *Grid) Owner(key string) (domain.Member, error) {
	m, err := g.ownerOf(key)
	if err != nil {
		return domain.Member{}, err
	}
	return m.snapshot(), nil
}

func (g *Grid) ownerOf(key string) (*member, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.members) == 0 {
		return nil, errors.Wrapf(domain.ErrNoPartitionOwner, "key %q", key)
	}
	return g.members[g.PartitionID(key)%len(g.members)], nil
}

// backupOf returns the member holding the backup copy for key, or nil for
// single-member grids.
func (g *Grid) backupOf(key string) *member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.members) < 2 {
		return nil
	}
	return g.members[(g.PartitionID(key)+1)%len(g.members)]
}

func (g *Grid) memberByAddress(address string) (*member, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.members {
		if m.info.Address == address {
			return m, nil
		}
	}
	return nil, errors.Newf("member %q not found", address)
}

func (g *Grid) memberList() []*member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*member(nil), g.members...)
}

// entryKey is the string a map key is hashed by.
func entryKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
