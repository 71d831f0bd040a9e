package autoapply

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Experience-level signals scanned in posting text.
var (
	seniorSignals = []string{"senior", "lead", "principal"}
	juniorSignals = []string{"junior", "entry", "intern"}
)

// MatchEngine scores a batch of postings against one profile and keeps
// the candidates that pass the user's hard criteria. Pure computation:
// no stores, no side effects, deterministic for fixed inputs.
type MatchEngine struct {
	scorer   SimilarityScorer
	fallback SimilarityScorer // used when the primary scorer errors; may be nil
}

// NewMatchEngine builds a match engine around the given scorer. When
// fallback is non-nil it is tried if the primary scorer fails, so an
// embeddings outage degrades to lexical scoring instead of skipping the
// user.
func NewMatchEngine(scorer, fallback SimilarityScorer) *MatchEngine {
	return &MatchEngine{scorer: scorer, fallback: fallback}
}

// Rank scores jobs against the profile, applies hard filters, and
// returns surviving candidates sorted by auto-apply score descending.
// Ties keep the order jobs were supplied in.
func (m *MatchEngine) Rank(ctx context.Context, profile MatchingProfile, criteria Criteria, jobs []JobPosting) ([]MatchCandidate, error) {
	if strings.TrimSpace(profile.Text) == "" {
		return nil, &ValidationError{Reason: "profile has no matching text"}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	docs := make([]string, len(jobs))
	for i, j := range jobs {
		docs[i] = j.Text()
	}

	scores, method, err := m.score(ctx, profile.Text, docs)
	if err != nil {
		return nil, &TransientExternalError{Op: "similarity scoring", Err: err}
	}

	var candidates []MatchCandidate
	for i, job := range jobs {
		sim := scores[i]
		if !passesHardCriteria(profile, criteria, job, sim) {
			continue
		}
		auto := autoApplyScore(profile, job, sim)
		if auto < criteria.MinMatchScore {
			continue
		}
		candidates = append(candidates, MatchCandidate{
			Job:        job,
			Similarity: sim,
			AutoScore:  auto,
			Reasons:    matchReasons(profile, job, sim),
			Method:     method,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AutoScore > candidates[j].AutoScore
	})

	slog.Debug("match: ranked candidates",
		slog.String("user_id", profile.UserID),
		slog.String("method", method),
		slog.Int("jobs", len(jobs)),
		slog.Int("kept", len(candidates)))
	return candidates, nil
}

// score runs the primary scorer, falling back once on failure.
func (m *MatchEngine) score(ctx context.Context, profile string, docs []string) ([]float64, string, error) {
	scores, err := m.scorer.ScoreBatch(ctx, profile, docs)
	if err == nil {
		return scores, m.scorer.Name(), nil
	}
	if m.fallback == nil || m.fallback == m.scorer {
		return nil, "", err
	}
	slog.Warn("match: primary scorer failed, using fallback",
		slog.String("primary", m.scorer.Name()),
		slog.String("fallback", m.fallback.Name()),
		slog.Any("error", err))
	scores, ferr := m.fallback.ScoreBatch(ctx, profile, docs)
	if ferr != nil {
		return nil, "", fmt.Errorf("primary: %v, fallback: %w", err, ferr)
	}
	return scores, m.fallback.Name(), nil
}

// passesHardCriteria applies the reject-only gates: similarity floor,
// required-skill coverage, and experience-level mismatch.
func passesHardCriteria(profile MatchingProfile, criteria Criteria, job JobPosting, sim float64) bool {
	if sim < criteria.MinMatchScore {
		return false
	}

	jobText := strings.ToLower(job.Title + " " + job.Description)

	// At least 70% of required skills must be textually present.
	if len(criteria.RequiredSkills) > 0 {
		found := 0
		for _, skill := range criteria.RequiredSkills {
			if strings.Contains(jobText, strings.ToLower(skill)) {
				found++
			}
		}
		if float64(found) < float64(len(criteria.RequiredSkills))*0.7 {
			return false
		}
	}

	if criteria.ExperienceMatch {
		if profile.YearsExperience < 2 && containsAny(jobText, seniorSignals) {
			return false
		}
		if profile.YearsExperience > 8 && containsAny(jobText, juniorSignals) {
			return false
		}
	}

	return true
}

// autoApplyScore composes the raw similarity with bonus heuristics,
// clamped to [0,1]. Bonuses: career-goal token present in job text,
// mid-level experience band, remote preference meeting a remote posting.
func autoApplyScore(profile MatchingProfile, job JobPosting, sim float64) float64 {
	score := sim
	jobText := strings.ToLower(job.Title + " " + job.Description)

	if profile.CareerGoals != "" {
		for _, goal := range tokenize(profile.CareerGoals) {
			if strings.Contains(jobText, goal) {
				score += 0.1
				break
			}
		}
	}

	if profile.YearsExperience >= 2 && profile.YearsExperience <= 10 {
		score += 0.05
	}

	if profile.PreferredWorkMode == "remote" && (job.Remote || strings.Contains(jobText, "remote")) {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// matchReasons renders the human-readable explanation list shown with a
// match, capped at four entries.
func matchReasons(profile MatchingProfile, job JobPosting, sim float64) []string {
	var reasons []string

	switch {
	case sim > 0.7:
		reasons = append(reasons, "Excellent match for your profile")
	case sim > 0.5:
		reasons = append(reasons, "Good match for your skills")
	case sim > 0.3:
		reasons = append(reasons, "Potential match worth considering")
	default:
		reasons = append(reasons, "Basic match, might be a stretch opportunity")
	}

	jobText := strings.ToLower(job.Title + " " + job.Description)
	if skills := matchedSkills(profile.Skills, jobText); len(skills) > 0 {
		top := skills
		if len(top) > 3 {
			top = top[:3]
		}
		reasons = append(reasons, "Matches your skills: "+strings.Join(top, ", "))
	} else if common := commonTerms(profile.Text, job.Text(), 3); len(common) > 0 {
		reasons = append(reasons, "Shared keywords: "+strings.Join(common, ", "))
	}

	if containsAny(jobText, seniorSignals) {
		if profile.YearsExperience >= 5 {
			reasons = append(reasons, "Senior-level position matching your experience")
		} else {
			reasons = append(reasons, "Growth opportunity, senior position")
		}
	}

	if sim > 0.4 && (job.Remote || strings.Contains(jobText, "remote")) {
		reasons = append(reasons, "Remote work opportunity")
	}

	if len(reasons) > 4 {
		reasons = reasons[:4]
	}
	return reasons
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
