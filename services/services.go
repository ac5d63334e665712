// Package services implements the contribution lifecycle and the financial
// views derived from it. Every mutating entry point resolves admin rights
// first and fails closed.
package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/cache"
	"github.com/phillip/farewell-fund-go/store"
)

const DefaultSnapshotTTL = 30 * time.Second

type Deps struct {
	Store       store.Store
	Cache       cache.Backend
	SnapshotTTL time.Duration
	Notifier    Notifier
	Logger      *zap.Logger
}

type Services struct {
	Authz         *Resolver
	Contributions *ContributionService
	Ledger        *LedgerAggregator
	Budget        *BudgetAllocator
	Leaderboard   *LeaderboardRanker
	Events        *EventService
}

func New(d Deps) *Services {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	backend := d.Cache
	if backend == nil {
		backend = cache.NewLocal()
	}
	ttl := d.SnapshotTTL
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	authz := NewClaimsThenMembership(d.Store, log.Named("authz"))
	return &Services{
		Authz:         authz,
		Contributions: NewContributionService(d.Store, authz, d.Notifier, log.Named("contributions")),
		Ledger:        NewLedgerAggregator(d.Store, authz, backend, ttl, log.Named("ledger")),
		Budget:        NewBudgetAllocator(d.Store, authz, log.Named("budget")),
		Leaderboard:   NewLeaderboardRanker(d.Store, authz, log.Named("leaderboard")),
		Events:        NewEventService(d.Store, authz, log.Named("events")),
	}
}
