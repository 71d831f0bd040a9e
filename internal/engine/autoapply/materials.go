package autoapply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anatolykoptev/go-kit/llm"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// MaterialsGenerator produces application materials for one (profile, job)
// pair.
type MaterialsGenerator interface {
	GenerateApplication(ctx context.Context, profile MatchingProfile, job JobPosting, match MatchCandidate) (*GeneratedMaterials, error)
}

// Completer is the LLM surface the generator needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...llm.ChatOption) (string, error)
}

const coverLetterPrompt = `Write a professional cover letter for this job application.

Job Title: %s
Company: %s
Job Description:
%s

Applicant Profile:
%s

Requirements:
- Professional and enthusiastic tone
- 250 to 400 words
- Highlight the applicant's most relevant skills and experience for this role
- Address it to the hiring team, close with the applicant's name (%s)
- No placeholders or bracketed blanks

Return only the letter text.`

const cvCustomizationsPrompt = `Suggest how to tailor a CV for this job application.

Job Title: %s
Company: %s
Job Description:
%s

Applicant Profile:
%s

Return JSON only, no prose, with exactly these keys:
{"skills_to_highlight": ["up to 5 skills"], "experiences_to_emphasize": ["up to 3 experiences"], "summary_focus": "one sentence", "keywords_to_include": ["up to 8 keywords"]}`

// LLMGenerator builds materials with an LLM. When a call fails or returns
// something unparseable it degrades to deterministic templates, so a
// matched candidate still produces a reviewable application.
type LLMGenerator struct {
	client Completer
}

func NewLLMGenerator(client Completer) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// GenerateApplication runs the cover letter and CV customization prompts
// concurrently and assembles the summary and confidence score.
func (g *LLMGenerator) GenerateApplication(ctx context.Context, profile MatchingProfile, job JobPosting, match MatchCandidate) (*GeneratedMaterials, error) {
	profileText := engine.TruncateRunes(profile.Text, 4000, "")
	description := engine.TruncateRunes(job.Description, DescriptionSnapshotLimit, "")

	var (
		result GeneratedMaterials
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		letter, err := g.coverLetter(ctx, profileText, description, profile, job)
		if err != nil {
			slog.Warn("materials: cover letter fallback",
				slog.String("job", job.Title), slog.Any("error", err))
			letter = fallbackCoverLetter(profile, job)
		}
		mu.Lock()
		result.CoverLetter = letter
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cv, err := g.cvCustomizations(ctx, profileText, description, job)
		if err != nil {
			slog.Warn("materials: cv customizations fallback",
				slog.String("job", job.Title), slog.Any("error", err))
			cv = fallbackCustomizations(profile, job)
		}
		mu.Lock()
		result.CVCustomizations = *cv
		mu.Unlock()
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &TransientExternalError{Op: "materials generation", Err: err}
	}

	result.Summary = fmt.Sprintf("Auto-generated application for %s at %s (match %.0f%%)",
		job.Title, job.Company, match.AutoScore*100)
	result.Confidence = confidenceScore(profile, job)
	return &result, nil
}

func (g *LLMGenerator) coverLetter(ctx context.Context, profileText, description string, profile MatchingProfile, job JobPosting) (string, error) {
	prompt := fmt.Sprintf(coverLetterPrompt, job.Title, job.Company, description, profileText, profile.FullName)
	engine.IncrLLMCalls()
	raw, err := g.client.Complete(ctx, "", prompt,
		llm.WithChatTemperature(0.7),
		llm.WithChatMaxTokens(800),
	)
	if err != nil {
		engine.IncrLLMErrors()
		return "", err
	}
	letter := stripFences(raw)
	if letter == "" {
		return "", fmt.Errorf("empty cover letter response")
	}
	return letter, nil
}

func (g *LLMGenerator) cvCustomizations(ctx context.Context, profileText, description string, job JobPosting) (*CVCustomizations, error) {
	prompt := fmt.Sprintf(cvCustomizationsPrompt, job.Title, job.Company, description, profileText)
	engine.IncrLLMCalls()
	raw, err := g.client.Complete(ctx, "", prompt,
		llm.WithChatTemperature(0.3),
		llm.WithChatMaxTokens(400),
	)
	if err != nil {
		engine.IncrLLMErrors()
		return nil, err
	}

	var cv CVCustomizations
	if err := json.Unmarshal([]byte(stripFences(raw)), &cv); err != nil {
		return nil, fmt.Errorf("parse customizations: %w", err)
	}
	clampCustomizations(&cv)
	return &cv, nil
}

func clampCustomizations(cv *CVCustomizations) {
	if len(cv.SkillsToHighlight) > 5 {
		cv.SkillsToHighlight = cv.SkillsToHighlight[:5]
	}
	if len(cv.ExperiencesToEmphasize) > 3 {
		cv.ExperiencesToEmphasize = cv.ExperiencesToEmphasize[:3]
	}
	if len(cv.KeywordsToInclude) > 8 {
		cv.KeywordsToInclude = cv.KeywordsToInclude[:8]
	}
}

func fallbackCoverLetter(profile MatchingProfile, job JobPosting) string {
	skills := profile.Skills
	if len(skills) > 3 {
		skills = skills[:3]
	}
	expertise := "my field"
	if len(skills) > 0 {
		expertise = strings.Join(skills, ", ")
	}
	name := profile.FullName
	if name == "" {
		name = "The Applicant"
	}
	return fmt.Sprintf(`Dear Hiring Team at %s,

I am writing to express my strong interest in the %s position. With %d years of experience and expertise in %s, I believe I would be a valuable addition to your team.

My background aligns well with the requirements of this role, and I am confident I can contribute from day one. I would welcome the opportunity to discuss how my experience matches your needs.

Thank you for considering my application.

Sincerely,
%s`, job.Company, job.Title, profile.YearsExperience, expertise, name)
}

func fallbackCustomizations(profile MatchingProfile, job JobPosting) *CVCustomizations {
	matched := matchedSkills(profile.Skills, job.Text())
	cv := &CVCustomizations{
		SkillsToHighlight: matched,
		SummaryFocus:      fmt.Sprintf("Relevant experience for %s", job.Title),
		KeywordsToInclude: matched,
	}
	clampCustomizations(cv)
	return cv
}

// confidenceScore estimates how well the generated materials fit: a flat
// base, a bonus for mid-career applicants, and up to 0.3 for overlapping
// skills.
func confidenceScore(profile MatchingProfile, job JobPosting) float64 {
	score := 0.5
	if profile.YearsExperience >= 2 && profile.YearsExperience <= 10 {
		score += 0.2
	}
	matched := matchedSkills(profile.Skills, job.Text())
	bonus := 0.1 * float64(len(matched))
	if bonus > 0.3 {
		bonus = 0.3
	}
	score += bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}
