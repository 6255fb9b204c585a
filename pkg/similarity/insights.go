package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// InsightType enumerates the derivable cross-tenant insights.
type InsightType string

const (
	InsightSuccessPattern InsightType = "success_pattern"
	InsightCommonMistake  InsightType = "common_mistake"
	InsightTiming         InsightType = "timing_insight"
	InsightPlatformTrend  InsightType = "platform_trend"
	InsightNicheBenchmark InsightType = "niche_benchmark"
)

// Approval-rate thresholds used to segment the peer group.
const (
	highPerformerRate = 0.7
	strugglerRate     = 0.4
	solidRate         = 0.6
)

// Insight is an anonymized observation derived from a tenant's peer group.
// It carries no peer identifiers, only aggregates.
type Insight struct {
	Type           InsightType            `json:"type"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Confidence     float64                `json:"confidence"`
	RelevanceScore float64                `json:"relevance_score"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// CrossTenantInsights derives typed insights from a tenant's qualifying peer
// group, sorted by relevance score and capped to limit.
func (e *Engine) CrossTenantInsights(ctx context.Context, tenantID string, limit int) ([]Insight, error) {
	if limit <= 0 {
		limit = 10
	}

	subject, err := e.store.GetProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	peers, err := e.SimilarTenants(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, nil
	}

	var insights []Insight
	if ins := e.successPattern(peers); ins != nil {
		insights = append(insights, *ins)
	}
	if ins := e.commonMistake(peers); ins != nil {
		insights = append(insights, *ins)
	}
	if ins := e.timingInsight(peers); ins != nil {
		insights = append(insights, *ins)
	}
	if ins := e.platformTrend(subject.Platforms, peers); ins != nil {
		insights = append(insights, *ins)
	}
	if ins := e.nicheBenchmark(subject.Approvals, subject.Submissions, peers); ins != nil {
		insights = append(insights, *ins)
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].RelevanceScore > insights[j].RelevanceScore
	})
	if len(insights) > limit {
		insights = insights[:limit]
	}

	e.logger.Debug("derived cross-tenant insights",
		"tenant", tenantID, "peers", len(peers), "insights", len(insights))

	return insights, nil
}

// successPattern reports the platform most common among high-performing
// peers. Requires at least two such peers.
func (e *Engine) successPattern(peers []PeerMatch) *Insight {
	var high []PeerMatch
	for _, p := range peers {
		if rate, ok := p.Profile.ApprovalRate(); ok && rate > highPerformerRate {
			high = append(high, p)
		}
	}
	if len(high) < 2 {
		return nil
	}

	platform, count := mostCommonPlatform(high)
	if platform == "" {
		return nil
	}

	return &Insight{
		Type:           InsightSuccessPattern,
		Title:          "What works for similar accounts",
		Description:    fmt.Sprintf("%d of %d high-performing peers are most active on %s", count, len(high), platform),
		Confidence:     float64(count) / float64(len(high)),
		RelevanceScore: 0.9,
		Data: map[string]interface{}{
			"platform":       platform,
			"peer_count":     len(high),
			"platform_users": count,
		},
	}
}

// commonMistake reports the platform most common among struggling peers.
// Requires at least two strugglers with meaningful samples.
func (e *Engine) commonMistake(peers []PeerMatch) *Insight {
	var strugglers []PeerMatch
	for _, p := range peers {
		if rate, ok := p.Profile.ApprovalRate(); ok && rate < strugglerRate {
			strugglers = append(strugglers, p)
		}
	}
	if len(strugglers) < 2 {
		return nil
	}

	platform, count := mostCommonPlatform(strugglers)
	if platform == "" {
		return nil
	}

	return &Insight{
		Type:           InsightCommonMistake,
		Title:          "Where similar accounts struggle",
		Description:    fmt.Sprintf("%d of %d struggling peers concentrate on %s", count, len(strugglers), platform),
		Confidence:     float64(count) / float64(len(strugglers)),
		RelevanceScore: 0.85,
		Data: map[string]interface{}{
			"platform":       platform,
			"peer_count":     len(strugglers),
			"platform_users": count,
		},
	}
}

// timingInsight reports the average submission velocity among peers with a
// solid approval rate. Requires at least two such peers.
func (e *Engine) timingInsight(peers []PeerMatch) *Insight {
	var total float64
	var count int
	for _, p := range peers {
		if rate, ok := p.Profile.ApprovalRate(); ok && rate >= solidRate {
			total += p.Profile.Velocity
			count++
		}
	}
	if count < 2 {
		return nil
	}

	avg := total / float64(count)
	confidence := float64(count) / 5.0
	if confidence > 1 {
		confidence = 1
	}

	return &Insight{
		Type:           InsightTiming,
		Title:          "Submission pace of successful peers",
		Description:    fmt.Sprintf("Peers with solid approval rates average %.1f submissions per week", avg),
		Confidence:     confidence,
		RelevanceScore: 0.8,
		Data: map[string]interface{}{
			"average_velocity": avg,
			"peer_count":       count,
		},
	}
}

// platformTrend reports the platform with the best success ratio among all
// peers, flagging whether the subject already uses it. A platform needs at
// least two sampled users to be considered.
func (e *Engine) platformTrend(subjectPlatforms []string, peers []PeerMatch) *Insight {
	type stats struct {
		total float64
		users int
	}
	byPlatform := make(map[string]*stats)
	for _, p := range peers {
		rate, ok := p.Profile.ApprovalRate()
		if !ok {
			continue
		}
		for _, platform := range p.Profile.Platforms {
			key := strings.ToLower(strings.TrimSpace(platform))
			if key == "" {
				continue
			}
			if byPlatform[key] == nil {
				byPlatform[key] = &stats{}
			}
			byPlatform[key].total += rate
			byPlatform[key].users++
		}
	}

	best := ""
	bestRatio := -1.0
	bestUsers := 0
	platforms := make([]string, 0, len(byPlatform))
	for platform := range byPlatform {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	for _, platform := range platforms {
		st := byPlatform[platform]
		if st.users < 2 {
			continue
		}
		ratio := st.total / float64(st.users)
		if ratio > bestRatio {
			best = platform
			bestRatio = ratio
			bestUsers = st.users
		}
	}
	if best == "" {
		return nil
	}

	alreadyUsed := false
	for _, p := range subjectPlatforms {
		if strings.EqualFold(strings.TrimSpace(p), best) {
			alreadyUsed = true
			break
		}
	}

	confidence := float64(bestUsers) / 5.0
	if confidence > 1 {
		confidence = 1
	}

	return &Insight{
		Type:           InsightPlatformTrend,
		Title:          "Best performing platform in your peer group",
		Description:    fmt.Sprintf("%s shows a %.0f%% average approval rate across %d peers", best, bestRatio*100, bestUsers),
		Confidence:     confidence,
		RelevanceScore: 0.75,
		Data: map[string]interface{}{
			"platform":       best,
			"success_ratio":  bestRatio,
			"peer_count":     bestUsers,
			"already_in_use": alreadyUsed,
		},
	}
}

// nicheBenchmark places the subject's approval rate on the percentile scale
// of its peers. Requires a sampled subject and at least three sampled peers.
func (e *Engine) nicheBenchmark(approvals, submissions int, peers []PeerMatch) *Insight {
	if submissions < 3 {
		return nil
	}
	subjectRate := float64(approvals) / float64(submissions)

	var rates []float64
	for _, p := range peers {
		if rate, ok := p.Profile.ApprovalRate(); ok {
			rates = append(rates, rate)
		}
	}
	if len(rates) < 3 {
		return nil
	}

	below := 0
	for _, r := range rates {
		if r < subjectRate {
			below++
		}
	}
	percentile := float64(below) / float64(len(rates)) * 100

	band := "growth_opportunity"
	switch {
	case percentile >= 75:
		band = "top_performer"
	case percentile >= 40:
		band = "above_average"
	}

	confidence := float64(len(rates)) / 10.0
	if confidence > 1 {
		confidence = 1
	}

	return &Insight{
		Type:           InsightNicheBenchmark,
		Title:          "How you rank in your niche",
		Description:    fmt.Sprintf("Your approval rate sits at the %.0fth percentile of %d similar accounts", percentile, len(rates)),
		Confidence:     confidence,
		RelevanceScore: 0.7,
		Data: map[string]interface{}{
			"percentile": percentile,
			"band":       band,
			"peer_count": len(rates),
		},
	}
}

func mostCommonPlatform(peers []PeerMatch) (string, int) {
	counts := make(map[string]int)
	for _, p := range peers {
		for _, platform := range p.Profile.Platforms {
			key := strings.ToLower(strings.TrimSpace(platform))
			if key != "" {
				counts[key]++
			}
		}
	}

	platforms := make([]string, 0, len(counts))
	for platform := range counts {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	best := ""
	bestCount := 0
	for _, platform := range platforms {
		if counts[platform] > bestCount {
			best = platform
			bestCount = counts[platform]
		}
	}
	return best, bestCount
}
