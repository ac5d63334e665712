package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

const DefaultLeaderboardLimit = 50

// recognitionSet is wider than the accounting set: it rewards verified and
// reported payments before final approval.
var recognitionSet = []models.ContributionStatus{
	models.StatusVerified,
	models.StatusApproved,
	models.StatusPaidPendingAdminVerification,
}

type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	ContributorID string          `json:"contributor_id"`
	Name          string          `json:"name,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Contributions int             `json:"contributions"`
}

type RankResult struct {
	MemberID   string          `json:"member_id"`
	Rank       int             `json:"rank"`
	Percentile int             `json:"percentile"`
	TotalUsers int             `json:"total_users"`
	Total      decimal.Decimal `json:"total"`
}

type LeaderboardRanker struct {
	store store.Store
	authz *Resolver
	log   *zap.Logger
}

func NewLeaderboardRanker(s store.Store, authz *Resolver, log *zap.Logger) *LeaderboardRanker {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaderboardRanker{store: s, authz: authz, log: log}
}

// Standings aggregates recognized amounts per contributor, sorted by total
// descending with contributor id as the tie breaker.
func Standings(rows []models.Contribution) []LeaderboardEntry {
	byContributor := map[string]*LeaderboardEntry{}
	for _, c := range rows {
		e, ok := byContributor[c.ContributorID]
		if !ok {
			e = &LeaderboardEntry{ContributorID: c.ContributorID}
			byContributor[c.ContributorID] = e
		}
		e.Total = e.Total.Add(c.Amount)
		e.Contributions++
	}

	out := make([]LeaderboardEntry, 0, len(byContributor))
	for _, e := range byContributor {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Total.Cmp(out[j].Total); cmp != 0 {
			return cmp > 0
		}
		return out[i].ContributorID < out[j].ContributorID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Percentile is round((total-rank)/total*100); a lone contributor is 100.
func Percentile(rank, totalUsers int) int {
	if totalUsers <= 0 || rank <= 0 {
		return 0
	}
	if totalUsers == 1 {
		return 100
	}
	p := decimal.NewFromInt(int64(totalUsers - rank)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(totalUsers))).
		Round(0)
	return int(p.IntPart())
}

func (r *LeaderboardRanker) standings(ctx context.Context, eventID string) ([]LeaderboardEntry, error) {
	rows, err := r.store.ListContributions(ctx, store.ContributionFilter{EventID: eventID, Statuses: recognitionSet})
	if err != nil {
		return nil, storageFailure(r.log, "list recognized contributions", err)
	}
	return Standings(rows), nil
}

// Leaderboard returns the top limit entries after the full sort.
func (r *LeaderboardRanker) Leaderboard(ctx context.Context, id *Identity, eventID string, limit int) ([]LeaderboardEntry, error) {
	if err := r.authz.RequireMember(ctx, id, eventID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	entries, err := r.standings(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	members, err := r.store.ListMembers(ctx, eventID)
	if err != nil {
		r.log.Warn("leaderboard names unavailable", zap.String("event_id", eventID), zap.Error(err))
		return entries, nil
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.Name
	}
	for i := range entries {
		entries[i].Name = names[entries[i].ContributorID]
	}
	return entries, nil
}

// Rank reports memberID's position. A member without recognized
// contributions gets rank 0 and percentile 0.
func (r *LeaderboardRanker) Rank(ctx context.Context, id *Identity, eventID, memberID string) (RankResult, error) {
	if err := r.authz.RequireMember(ctx, id, eventID); err != nil {
		return RankResult{}, err
	}

	entries, err := r.standings(ctx, eventID)
	if err != nil {
		return RankResult{}, err
	}

	res := RankResult{MemberID: memberID, TotalUsers: len(entries)}
	for _, e := range entries {
		if e.ContributorID == memberID {
			res.Rank = e.Rank
			res.Total = e.Total
			res.Percentile = Percentile(e.Rank, len(entries))
			break
		}
	}
	return res, nil
}
