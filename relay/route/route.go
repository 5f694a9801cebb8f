// Package route resolves a client-requested model to an ordered list of
// candidate upstream accounts under a pluggable selection strategy.
package route

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Laisky/errors/v2"

	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/limiter"
	"github.com/NodeNestor/CodeGate/relay/modelcap"
)

// Candidate is one account the orchestrator may forward to.
type Candidate struct {
	Account *model.Account
	// TargetModel overrides the client model when non-empty.
	TargetModel string
	// NeedsFormatConversion is set for every non-anthropic provider.
	NeedsFormatConversion bool
}

// Resolution is the ordered outcome of one routing decision: the primary
// candidate followed by its fallbacks.
type Resolution struct {
	ConfigId   int
	Tier       string
	Strategy   string
	Candidates []Candidate
}

// Primary returns the head candidate, or nil when nothing is routable.
func (r *Resolution) Primary() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// Store is the slice of the record store the resolver reads.
type Store interface {
	GetRouteConfigById(id int) (*model.RouteConfig, error)
	GetActiveRouteConfig() (*model.RouteConfig, error)
	ListTierAssignments(configId int, tier string) ([]*model.TierAssignment, error)
	GetAccountById(id int) (*model.Account, error)
	ListEnabledAccounts(provider string) ([]*model.Account, error)
	MonthlySpend(ctx context.Context, accountId int) (float64, error)
}

// DBStore adapts the model package to the Store interface.
type DBStore struct{}

func (DBStore) GetRouteConfigById(id int) (*model.RouteConfig, error) {
	return model.GetRouteConfigById(id)
}
func (DBStore) GetActiveRouteConfig() (*model.RouteConfig, error) {
	return model.GetActiveRouteConfig()
}
func (DBStore) ListTierAssignments(configId int, tier string) ([]*model.TierAssignment, error) {
	return model.ListTierAssignments(configId, tier)
}
func (DBStore) GetAccountById(id int) (*model.Account, error) {
	return model.GetAccountById(id)
}
func (DBStore) ListEnabledAccounts(provider string) ([]*model.Account, error) {
	return model.ListEnabledAccounts(provider)
}
func (DBStore) MonthlySpend(ctx context.Context, accountId int) (float64, error) {
	return model.MonthlySpend(ctx, accountId)
}

// Resolver computes candidate orderings. Round-robin counters are
// process-local and keyed by (configId, tier).
type Resolver struct {
	store   Store
	limiter *limiter.RateLimiter

	mu       sync.Mutex
	counters map[string]*uint64
}

// NewResolver builds a resolver on top of the given store and rate limiter.
func NewResolver(store Store, rl *limiter.RateLimiter) *Resolver {
	return &Resolver{
		store:    store,
		limiter:  rl,
		counters: make(map[string]*uint64),
	}
}

func (r *Resolver) counter(configId int, tier string) *uint64 {
	key := strconv.Itoa(configId) + ":" + tier
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[key]
	if !ok {
		c = new(uint64)
		r.counters[key] = c
	}
	return c
}

// candidateEntry carries the ordering inputs alongside the candidate.
type candidateEntry struct {
	cand     Candidate
	priority int
	spend    float64
	headroom float64
}

// Resolve maps a client model (and optional tenant config) to an ordered
// candidate list. An empty candidate list means nothing is routable.
func (r *Resolver) Resolve(ctx context.Context, clientModel string, tenantConfigId int) (*Resolution, error) {
	tier := string(modelcap.DetectTier(clientModel))

	cfg, err := r.activeConfig(tenantConfigId)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return r.resolveDirect(tier)
	}

	assignments, err := r.store.ListTierAssignments(cfg.Id, tier)
	if err != nil {
		return nil, err
	}

	entries := make([]candidateEntry, 0, len(assignments))
	for _, assignment := range assignments {
		account, err := r.store.GetAccountById(assignment.AccountId)
		if err != nil || !account.Enabled {
			continue
		}
		if r.limiter.IsLimited(strconv.Itoa(account.Id), account.RPMLimit) {
			continue
		}
		spend, err := r.store.MonthlySpend(ctx, account.Id)
		if err != nil {
			spend = 0
		}
		if account.MonthlyBudget > 0 && spend >= account.MonthlyBudget {
			continue
		}

		headroom := math.Inf(1)
		if account.MonthlyBudget > 0 {
			headroom = account.MonthlyBudget - spend
		}
		entries = append(entries, candidateEntry{
			cand: Candidate{
				Account:               account,
				TargetModel:           assignment.TargetModel,
				NeedsFormatConversion: account.Provider != model.ProviderAnthropic,
			},
			priority: assignment.Priority,
			spend:    spend,
			headroom: headroom,
		})
	}

	r.order(entries, cfg, tier)

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, e.cand)
	}
	return &Resolution{
		ConfigId:   cfg.Id,
		Tier:       tier,
		Strategy:   cfg.Strategy,
		Candidates: candidates,
	}, nil
}

func (r *Resolver) activeConfig(tenantConfigId int) (*model.RouteConfig, error) {
	if tenantConfigId > 0 {
		cfg, err := r.store.GetRouteConfigById(tenantConfigId)
		if err == nil {
			return cfg, nil
		}
		// tenant points at a deleted config; fall back to the global one
	}
	cfg, err := r.store.GetActiveRouteConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load active config")
	}
	return cfg, nil
}

// resolveDirect picks a single account with no fallbacks when no routing
// config exists: any enabled anthropic account, else any enabled account.
func (r *Resolver) resolveDirect(tier string) (*Resolution, error) {
	accounts, err := r.store.ListEnabledAccounts(model.ProviderAnthropic)
	if err != nil {
		return nil, errors.Wrap(err, "list anthropic accounts")
	}
	if len(accounts) == 0 {
		if accounts, err = r.store.ListEnabledAccounts(""); err != nil {
			return nil, errors.Wrap(err, "list accounts")
		}
	}

	res := &Resolution{Tier: tier, Strategy: "direct"}
	if len(accounts) > 0 {
		res.Candidates = []Candidate{{
			Account:               accounts[0],
			NeedsFormatConversion: accounts[0].Provider != model.ProviderAnthropic,
		}}
	}
	return res, nil
}

func (r *Resolver) order(entries []candidateEntry, cfg *model.RouteConfig, tier string) {
	switch cfg.Strategy {
	case model.StrategyRoundRobin:
		// rotate over a deterministic base order
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].priority > entries[j].priority
		})
		if len(entries) > 1 {
			n := atomic.AddUint64(r.counter(cfg.Id, tier), 1) - 1
			rotate(entries, int(n%uint64(len(entries))))
		} else if len(entries) == 1 {
			atomic.AddUint64(r.counter(cfg.Id, tier), 1)
		}
	case model.StrategyLeastUsed:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].spend < entries[j].spend
		})
	case model.StrategyBudgetAware:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].headroom > entries[j].headroom
		})
	default: // priority
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].priority > entries[j].priority
		})
	}
}

func rotate(entries []candidateEntry, by int) {
	if by == 0 || len(entries) == 0 {
		return
	}
	rotated := make([]candidateEntry, 0, len(entries))
	rotated = append(rotated, entries[by:]...)
	rotated = append(rotated, entries[:by]...)
	copy(entries, rotated)
}
