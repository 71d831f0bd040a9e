package autoapply

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// Posting sources the ingestor knows how to pull.
const (
	SourceRemotive = "remotive"
	SourceRemoteOK = "remoteok"
	SourceWWR      = "weworkremotely"
)

const (
	remotiveAPI = "https://remotive.com/api/remote-jobs"
	remoteOKAPI = "https://remoteok.com/api"
	wwrRSSURL   = "https://weworkremotely.com/remote-jobs.rss"

	// descriptionStoreLimit caps stored posting descriptions; the pending
	// snapshot applies its own tighter cap at creation time.
	descriptionStoreLimit = 8000
)

// PostingWriter is the slice of storage the ingestor writes to.
type PostingWriter interface {
	UpsertPosting(ctx context.Context, p *JobPosting) (int64, error)
}

// Ingestor pulls remote job boards on an interval and upserts normalized
// postings into the shared table. One ingestor serves all users; the rate
// limiter keeps it polite toward the boards.
type Ingestor struct {
	store    PostingWriter
	client   *http.Client
	timeout  time.Duration
	interval time.Duration
	limiter  *rate.Limiter
	sources  []string
}

func NewIngestor(store PostingWriter, client *http.Client, timeout, interval time.Duration) *Ingestor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if interval <= 0 {
		interval = engine.DefaultIngestInterval
	}
	if client == nil {
		client = engine.NewHTTPClient(timeout)
	}
	return &Ingestor{
		store:    store,
		client:   client,
		timeout:  timeout,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		sources:  []string{SourceRemotive, SourceRemoteOK, SourceWWR},
	}
}

// Run ingests once immediately, then on every interval tick until ctx is
// canceled.
func (ing *Ingestor) Run(ctx context.Context) {
	ing.IngestAll(ctx)
	ticker := time.NewTicker(ing.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ing.IngestAll(ctx)
		}
	}
}

// IngestAll pulls every configured source. A failing source is logged and
// skipped; the others still run.
func (ing *Ingestor) IngestAll(ctx context.Context) {
	for _, source := range ing.sources {
		var n int
		err := engine.TrackOperation(ctx, "ingest_"+source, func(ctx context.Context) error {
			var err error
			n, err = ing.ingestSource(ctx, source)
			return err
		})
		if err != nil {
			engine.IncrIngestErrors()
			slog.Warn("ingest failed", slog.String("source", source), slog.Any("error", err))
			continue
		}
		slog.Info("ingest complete", slog.String("source", source), slog.Int("postings", n))
	}
}

func (ing *Ingestor) ingestSource(ctx context.Context, source string) (int, error) {
	var (
		jobs []JobPosting
		err  error
	)
	switch source {
	case SourceRemotive:
		jobs, err = ing.fetchRemotive(ctx)
	case SourceRemoteOK:
		jobs, err = ing.fetchRemoteOK(ctx)
	case SourceWWR:
		jobs, err = ing.fetchWWR(ctx)
	default:
		return 0, fmt.Errorf("unknown source %q", source)
	}
	if err != nil {
		return 0, err
	}

	stored := 0
	for i := range jobs {
		if _, err := ing.store.UpsertPosting(ctx, &jobs[i]); err != nil {
			slog.Warn("upsert posting failed",
				slog.String("source", source),
				slog.String("external_id", jobs[i].ExternalID),
				slog.Any("error", err))
			continue
		}
		stored++
	}
	return stored, nil
}

func (ing *Ingestor) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if err := ing.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	engine.IncrIngestRequests()

	ctx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.UserAgentBot)
	req.Header.Set("Accept", accept)

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		return ing.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
}

// --- Remotive API ---

type remotiveResponse struct {
	JobCount int           `json:"job-count"`
	Jobs     []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID                        int      `json:"id"`
	URL                       string   `json:"url"`
	Title                     string   `json:"title"`
	CompanyName               string   `json:"company_name"`
	Tags                      []string `json:"tags"`
	JobType                   string   `json:"job_type"`
	PublicationDate           string   `json:"publication_date"`
	CandidateRequiredLocation string   `json:"candidate_required_location"`
	Salary                    string   `json:"salary"`
	Description               string   `json:"description"`
}

func (ing *Ingestor) fetchRemotive(ctx context.Context) ([]JobPosting, error) {
	body, err := ing.get(ctx, remotiveAPI+"?limit=100", "application/json")
	if err != nil {
		return nil, err
	}
	return parseRemotiveResponse(body)
}

func parseRemotiveResponse(body []byte) ([]JobPosting, error) {
	var rr remotiveResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("remotive parse error: %w", err)
	}

	var jobs []JobPosting
	for _, j := range rr.Jobs {
		if j.Title == "" || j.URL == "" {
			continue
		}

		posted := time.Now().UTC()
		if t, err := time.Parse("2006-01-02T15:04:05", j.PublicationDate); err == nil {
			posted = t.UTC()
		}

		location := j.CandidateRequiredLocation
		if location == "" {
			location = "Worldwide"
		}

		salaryMin, salaryMax := parseSalaryRange(j.Salary)

		jobs = append(jobs, JobPosting{
			Source:      SourceRemotive,
			ExternalID:  strconv.Itoa(j.ID),
			Title:       j.Title,
			Company:     j.CompanyName,
			Location:    location,
			Description: normalizeDescription(j.Description),
			Skills:      j.Tags,
			SalaryMin:   salaryMin,
			SalaryMax:   salaryMax,
			JobType:     strings.ReplaceAll(j.JobType, "_", " "),
			Remote:      true,
			URL:         j.URL,
			PostedAt:    posted,
		})
	}
	return jobs, nil
}

// --- RemoteOK API ---

type remoteOKJob struct {
	Slug        string   `json:"slug"`
	ID          string   `json:"id"`
	Position    string   `json:"position"`
	Company     string   `json:"company"`
	Tags        []string `json:"tags"`
	Location    string   `json:"location"`
	SalaryMin   int      `json:"salary_min"`
	SalaryMax   int      `json:"salary_max"`
	Date        string   `json:"date"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
}

func (ing *Ingestor) fetchRemoteOK(ctx context.Context) ([]JobPosting, error) {
	body, err := ing.get(ctx, remoteOKAPI, "application/json")
	if err != nil {
		return nil, err
	}
	return parseRemoteOKResponse(body)
}

func parseRemoteOKResponse(body []byte) ([]JobPosting, error) {
	// The first array element is API metadata, not a job.
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("remoteok parse error: %w", err)
	}
	if len(raw) <= 1 {
		return nil, nil
	}

	var jobs []JobPosting
	for _, item := range raw[1:] {
		var j remoteOKJob
		if err := json.Unmarshal(item, &j); err != nil {
			continue
		}
		if j.Position == "" {
			continue
		}

		jobURL := j.URL
		if jobURL == "" && j.Slug != "" {
			jobURL = "https://remoteok.com/remote-jobs/" + j.Slug
		}

		posted := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, j.Date); err == nil {
			posted = t.UTC()
		}

		var salaryMin, salaryMax *int
		if j.SalaryMin > 0 {
			v := j.SalaryMin
			salaryMin = &v
		}
		if j.SalaryMax > 0 {
			v := j.SalaryMax
			salaryMax = &v
		}

		jobs = append(jobs, JobPosting{
			Source:      SourceRemoteOK,
			ExternalID:  j.ID,
			Title:       j.Position,
			Company:     j.Company,
			Location:    j.Location,
			Description: normalizeDescription(j.Description),
			Skills:      j.Tags,
			SalaryMin:   salaryMin,
			SalaryMax:   salaryMax,
			JobType:     "full time",
			Remote:      true,
			URL:         jobURL,
			PostedAt:    posted,
		})
	}
	return jobs, nil
}

// --- WeWorkRemotely RSS ---

type wwrRSS struct {
	XMLName xml.Name   `xml:"rss"`
	Channel wwrChannel `xml:"channel"`
}

type wwrChannel struct {
	Items []wwrItem `xml:"item"`
}

type wwrItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Category    string `xml:"category"`
	Type        string `xml:"type"`
	Region      string `xml:"region"`
	Skills      string `xml:"skills"`
	Description string `xml:"description"`
}

func (ing *Ingestor) fetchWWR(ctx context.Context) ([]JobPosting, error) {
	body, err := ing.get(ctx, wwrRSSURL, "application/xml, application/rss+xml")
	if err != nil {
		return nil, err
	}
	return parseWWRResponse(body)
}

func parseWWRResponse(body []byte) ([]JobPosting, error) {
	var rss wwrRSS
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("wwr rss parse error: %w", err)
	}

	var jobs []JobPosting
	for _, item := range rss.Channel.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}

		title, company := parseWWRTitle(item.Title)

		var skills []string
		for _, s := range strings.Split(item.Skills, ",") {
			if s = strings.TrimSpace(s); s != "" {
				skills = append(skills, s)
			}
		}

		posted := time.Now().UTC()
		if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			posted = t.UTC()
		} else if t, err := time.Parse(time.RFC1123, item.PubDate); err == nil {
			posted = t.UTC()
		}

		location := item.Region
		if location == "" {
			location = "Anywhere"
		}

		jobType := item.Type
		if jobType == "" {
			jobType = "full time"
		}

		jobs = append(jobs, JobPosting{
			Source:      SourceWWR,
			ExternalID:  item.Link,
			Title:       title,
			Company:     company,
			Location:    location,
			Description: normalizeDescription(item.Description),
			Skills:      skills,
			JobType:     jobType,
			Remote:      true,
			URL:         item.Link,
			PostedAt:    posted,
		})
	}
	return jobs, nil
}

// parseWWRTitle splits the "Company: Title" feed format.
func parseWWRTitle(raw string) (title, company string) {
	if idx := strings.Index(raw, ": "); idx > 0 {
		return strings.TrimSpace(raw[idx+2:]), strings.TrimSpace(raw[:idx])
	}
	return raw, ""
}

// --- Normalization helpers ---

// normalizeDescription converts a posting's HTML body to markdown, falling
// back to a plain-text extraction when conversion fails.
func normalizeDescription(rawHTML string) string {
	rawHTML = strings.TrimSpace(rawHTML)
	if rawHTML == "" {
		return ""
	}

	md, err := htmltomarkdown.ConvertString(rawHTML)
	if err == nil {
		if text := strings.TrimSpace(md); text != "" {
			return engine.TruncateRunes(text, descriptionStoreLimit, "")
		}
	}
	return engine.TruncateRunes(extractText(rawHTML), descriptionStoreLimit, "")
}

// extractText walks the parsed HTML tree collecting text nodes, skipping
// script and style subtrees.
func extractText(rawHTML string) string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return engine.CleanHTML(rawHTML)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(strings.Fields(b.String()), " ")
}

var salaryTokenRe = regexp.MustCompile(`(\d[\d,]*)\s*([kK])?`)

// parseSalaryRange pulls an annual range out of free text like
// "$70,000 - $90,000" or "USD 80k-100k". Values outside a plausible
// annual range are discarded rather than stored as junk.
func parseSalaryRange(s string) (*int, *int) {
	if s == "" {
		return nil, nil
	}
	matches := salaryTokenRe.FindAllStringSubmatch(s, 2)
	if len(matches) == 0 {
		return nil, nil
	}

	parse := func(m []string) int {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			return 0
		}
		if m[2] != "" {
			n *= 1000
		}
		return n
	}

	lo := parse(matches[0])
	if lo < 10000 || lo > 2000000 {
		return nil, nil
	}
	hi := lo
	if len(matches) > 1 {
		if h := parse(matches[1]); h >= lo && h <= 2000000 {
			hi = h
		}
	}
	return &lo, &hi
}
