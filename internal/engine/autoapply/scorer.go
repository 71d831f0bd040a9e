package autoapply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// Similarity method tags persisted with each match.
const (
	MethodEmbeddings = "embeddings"
	MethodLexical    = "tfidf"
)

// SimilarityScorer computes profile↔job text similarity in [0,1].
// Two implementations exist: an embeddings-service-backed scorer and a
// local term-frequency scorer. The contract is identical for both; the
// variant is chosen at startup based on configuration.
type SimilarityScorer interface {
	Name() string
	ScoreBatch(ctx context.Context, profile string, docs []string) ([]float64, error)
}

// --- lexical scorer ---

// scorerStopWords filters common English words that add noise to term
// matching.
var scorerStopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "you": true,
	"are": true, "have": true, "will": true, "this": true, "that": true,
	"from": true, "our": true, "your": true, "their": true, "they": true,
	"about": true, "which": true, "what": true, "who": true, "how": true,
	"can": true, "not": true, "but": true, "all": true, "also": true,
	"more": true, "than": true, "into": true, "has": true, "its": true,
	"was": true, "were": true, "been": true, "each": true, "new": true,
	"use": true, "using": true, "used": true, "well": true, "such": true,
}

// tokenize splits text into lowercase terms, skipping stop words.
// Preserves tech suffixes like "c++", "c#", "node.js" by treating + # .
// as word chars.
func tokenize(text string) []string {
	var terms []string
	var word strings.Builder
	flush := func() {
		w := word.String()
		word.Reset()
		w = strings.TrimRight(w, ".") // drop trailing dots
		if w == "" || scorerStopWords[w] {
			return
		}
		if len([]rune(w)) >= 3 || strings.ContainsAny(w, "+#") {
			terms = append(terms, w)
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// termSet returns the unique tokens of text.
func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		set[t] = true
	}
	return set
}

// LexicalScorer scores with TF-IDF cosine similarity computed over the
// small corpus formed by the profile plus the supplied documents. Fully
// local and deterministic; the fallback when no embeddings service is
// configured.
type LexicalScorer struct{}

// NewLexicalScorer returns the term-frequency scorer.
func NewLexicalScorer() *LexicalScorer { return &LexicalScorer{} }

func (s *LexicalScorer) Name() string { return MethodLexical }

// ScoreBatch vectorizes profile and docs with TF-IDF over their union
// vocabulary and returns the cosine similarity of each doc against the
// profile, in doc order.
func (s *LexicalScorer) ScoreBatch(_ context.Context, profile string, docs []string) ([]float64, error) {
	if strings.TrimSpace(profile) == "" {
		return nil, fmt.Errorf("lexical scorer: empty profile text")
	}

	corpus := make([][]string, 0, len(docs)+1)
	corpus = append(corpus, tokenize(profile))
	for _, d := range docs {
		corpus = append(corpus, tokenize(d))
	}

	// Document frequency per term.
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool, len(doc))
		for _, t := range doc {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	n := float64(len(corpus))
	idf := make(map[string]float64, len(df))
	for t, d := range df {
		// Smoothed IDF so terms present everywhere still carry weight.
		idf[t] = math.Log((1+n)/(1+float64(d))) + 1
	}

	vec := func(doc []string) map[string]float64 {
		tf := make(map[string]float64)
		for _, t := range doc {
			tf[t]++
		}
		v := make(map[string]float64, len(tf))
		for t, c := range tf {
			v[t] = c * idf[t]
		}
		return v
	}

	profileVec := vec(corpus[0])
	scores := make([]float64, len(docs))
	for i := 1; i < len(corpus); i++ {
		scores[i-1] = cosine(profileVec, vec(corpus[i]))
	}
	return scores, nil
}

// cosine computes cosine similarity between sparse vectors, clamped to
// [0,1] against float rounding.
func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, av := range a {
		na += av * av
		if bv, ok := b[t]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// --- embeddings scorer ---

// EmbeddingScorer scores with dense vectors from an embeddings HTTP
// service (OpenAI-compatible /embeddings endpoint). Higher fidelity than
// the lexical scorer; requires the service to be reachable.
type EmbeddingScorer struct {
	baseURL string
	secret  string
	model   string
	http    *http.Client
}

// NewEmbeddingScorer creates an embeddings-backed scorer.
func NewEmbeddingScorer(baseURL, secret, model string, hc *http.Client) *EmbeddingScorer {
	if model == "" {
		model = "all-MiniLM-L6-v2"
	}
	return &EmbeddingScorer{baseURL: strings.TrimRight(baseURL, "/"), secret: secret, model: model, http: hc}
}

func (s *EmbeddingScorer) Name() string { return MethodEmbeddings }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// ScoreBatch embeds the profile and all docs in one call and returns the
// cosine similarity of each doc against the profile, in doc order.
func (s *EmbeddingScorer) ScoreBatch(ctx context.Context, profile string, docs []string) ([]float64, error) {
	if strings.TrimSpace(profile) == "" {
		return nil, fmt.Errorf("embedding scorer: empty profile text")
	}
	engine.IncrEmbedRequests()

	input := make([]string, 0, len(docs)+1)
	input = append(input, profile)
	input = append(input, docs...)

	payload, err := json.Marshal(embedRequest{Model: s.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("embed request marshal: %w", err)
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", engine.UserAgentBot)
		if s.secret != "" {
			req.Header.Set("Authorization", "Bearer "+s.secret)
		}
		return s.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("embed request: status %d: %s", resp.StatusCode, string(b))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed response decode: %w", err)
	}
	if len(out.Data) != len(input) {
		return nil, fmt.Errorf("embed response: got %d vectors for %d inputs", len(out.Data), len(input))
	}

	profileVec := out.Data[0].Embedding
	scores := make([]float64, len(docs))
	for i := 1; i < len(out.Data); i++ {
		scores[i-1] = cosineDense(profileVec, out.Data[i].Embedding)
	}
	return scores, nil
}

// cosineDense computes cosine similarity between dense vectors, clamped
// to [0,1].
func cosineDense(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// matchedSkills returns the skills textually present in jobText, in the
// order they appear in skills.
func matchedSkills(skills []string, jobText string) []string {
	lower := strings.ToLower(jobText)
	var out []string
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(s)) {
			out = append(out, s)
		}
	}
	return out
}

// commonTerms returns up to limit terms shared by both texts, sorted for
// stable output.
func commonTerms(a, b string, limit int) []string {
	as := termSet(a)
	var out []string
	for t := range termSet(b) {
		if as[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
