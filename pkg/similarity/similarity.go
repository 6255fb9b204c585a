// Package similarity finds similar tenants and derives anonymized
// cross-tenant insights from their profiles.
package similarity

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/palace-sh/palace/pkg/store"
)

// Similarity score weights. A candidate qualifies as a peer at or above the
// threshold; the peer set is capped.
const (
	weightPlatforms = 0.4
	weightNiche     = 0.3
	weightApproval  = 0.2
	weightVelocity  = 0.1

	qualifyThreshold = 0.6
	maxPeers         = 50
)

// Engine scores tenant similarity and derives insights.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// NewEngine creates a similarity engine over the given store.
func NewEngine(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger}
}

// PeerMatch is a qualifying similar tenant.
type PeerMatch struct {
	Profile         store.TenantProfile `json:"profile"`
	Score           float64             `json:"score"`
	SharedPlatforms []string            `json:"shared_platforms"`
}

// SimilarTenants returns the qualifying peers for a subject tenant, best
// match first, capped at maxPeers.
func (e *Engine) SimilarTenants(ctx context.Context, tenantID string) ([]PeerMatch, error) {
	subject, err := e.store.GetProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	var matches []PeerMatch
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.TenantID == tenantID {
			continue
		}

		score, shared := scoreProfiles(subject, candidate)
		if score < qualifyThreshold {
			continue
		}
		matches = append(matches, PeerMatch{
			Profile:         *candidate,
			Score:           score,
			SharedPlatforms: shared,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxPeers {
		matches = matches[:maxPeers]
	}

	return matches, nil
}

// scoreProfiles computes the weighted similarity between two tenants:
// platform-set Jaccard overlap, niche match, approval-rate closeness when
// both samples are large enough, and activity-velocity closeness.
func scoreProfiles(subject, candidate *store.TenantProfile) (float64, []string) {
	jaccard, shared := platformOverlap(subject.Platforms, candidate.Platforms)
	score := jaccard * weightPlatforms

	score += nicheMatch(subject.Niche, candidate.Niche) * weightNiche

	subjectRate, subjectOK := subject.ApprovalRate()
	candidateRate, candidateOK := candidate.ApprovalRate()
	if subjectOK && candidateOK {
		diff := subjectRate - candidateRate
		if diff < 0 {
			diff = -diff
		}
		score += (1 - diff) * weightApproval
	}

	score += velocityCloseness(subject.Velocity, candidate.Velocity) * weightVelocity

	return score, shared
}

func platformOverlap(a, b []string) (float64, []string) {
	setA := make(map[string]bool, len(a))
	for _, p := range a {
		setA[strings.ToLower(strings.TrimSpace(p))] = true
	}
	delete(setA, "")

	setB := make(map[string]bool, len(b))
	for _, p := range b {
		setB[strings.ToLower(strings.TrimSpace(p))] = true
	}
	delete(setB, "")

	if len(setA) == 0 && len(setB) == 0 {
		return 0, nil
	}

	var shared []string
	union := len(setB)
	for p := range setA {
		if setB[p] {
			shared = append(shared, p)
		} else {
			union++
		}
	}
	sort.Strings(shared)

	return float64(len(shared)) / float64(union), shared
}

// nicheMatch scores 1.0 for an exact (case-insensitive) niche match, 0.5 for
// a substring match either way, 0 otherwise.
func nicheMatch(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.5
	}
	return 0
}

func velocityCloseness(a, b float64) float64 {
	if a <= 0 && b <= 0 {
		return 0
	}
	max := a
	if b > max {
		max = b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - diff/max
}
