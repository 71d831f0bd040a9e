package autoapply

import (
	"context"
	"strings"
	"time"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// JobSourceAdapter fetches a bounded set of fresh postings, already
// structurally filtered against the user's criteria.
type JobSourceAdapter interface {
	FetchFreshJobs(ctx context.Context, criteria Criteria) ([]JobPosting, error)
}

// PostingReader is the slice of storage the store-backed source reads.
type PostingReader interface {
	RecentPostings(ctx context.Context, since time.Time, limit int) ([]JobPosting, error)
}

// StoreJobSource serves postings from the shared table the ingest workers
// keep fresh. The raw recent slice sits behind the cache so a batch of
// users scanning in the same cycle hits the database once; the structural
// filters then run per user on the cached slice.
type StoreJobSource struct {
	store    PostingReader
	cache    *engine.Cache
	freshFor time.Duration
	maxJobs  int
}

func NewStoreJobSource(store PostingReader, cache *engine.Cache, freshFor time.Duration, maxJobs int) *StoreJobSource {
	if freshFor <= 0 {
		freshFor = 7 * 24 * time.Hour
	}
	if maxJobs <= 0 {
		maxJobs = engine.DefaultMaxJobsPerScan
	}
	return &StoreJobSource{store: store, cache: cache, freshFor: freshFor, maxJobs: maxJobs}
}

func (s *StoreJobSource) FetchFreshJobs(ctx context.Context, criteria Criteria) ([]JobPosting, error) {
	jobs, err := s.recent(ctx)
	if err != nil {
		return nil, &TransientExternalError{Op: "job fetch", Err: err}
	}

	out := make([]JobPosting, 0, len(jobs))
	for _, j := range jobs {
		if !passesStructuralFilters(j, criteria) {
			continue
		}
		out = append(out, j)
		if len(out) >= s.maxJobs {
			break
		}
	}
	return out, nil
}

func (s *StoreJobSource) recent(ctx context.Context) ([]JobPosting, error) {
	key := engine.CacheKey("postings", "recent")
	if cached, ok := engine.CacheLoadJSON[[]JobPosting](ctx, s.cache, key); ok {
		return cached, nil
	}

	since := time.Now().UTC().Add(-s.freshFor)
	jobs, err := s.store.RecentPostings(ctx, since, s.maxJobs)
	if err != nil {
		return nil, err
	}
	engine.CacheStoreJSON(ctx, s.cache, key, jobs)
	return jobs, nil
}

// passesStructuralFilters applies the cheap pre-match screens: excluded
// companies and keywords, remote-only, location preference, salary bounds.
// Postings with unknown salary pass the salary screens.
func passesStructuralFilters(j JobPosting, c Criteria) bool {
	company := strings.ToLower(j.Company)
	for _, excluded := range c.ExcludedCompanies {
		if excluded != "" && strings.Contains(company, strings.ToLower(excluded)) {
			return false
		}
	}

	if len(c.ExcludedKeywords) > 0 {
		text := strings.ToLower(j.Title + " " + j.Description)
		for _, kw := range c.ExcludedKeywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return false
			}
		}
	}

	if c.RemoteOnly && !j.Remote {
		return false
	}

	if len(c.PreferredLocations) > 0 && !j.Remote {
		location := strings.ToLower(j.Location)
		matched := false
		for _, pref := range c.PreferredLocations {
			if pref != "" && strings.Contains(location, strings.ToLower(pref)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if c.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMax < *c.SalaryMin {
		return false
	}
	if c.SalaryMax != nil && j.SalaryMin != nil && *j.SalaryMin > *c.SalaryMax {
		return false
	}
	return true
}
