// Package ai defines the question/answer model for LM-assisted rules,
// prompt construction, strict batch parsing, and request fingerprinting.
package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Answer values. Unknown provider output is normalized to Unsure.
const (
	AnswerYes    = "YES"
	AnswerNo     = "NO"
	AnswerUnsure = "UNSURE"
)

// MaxReasoningLen caps per-answer reasoning text.
const MaxReasoningLen = 400

// Question is one yes/no question a rule asks about the current item.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"question"`
	Context string `json:"context,omitempty"`
}

// Answer is the parsed LM response to a single question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// BatchResult is the outcome of one LM analysis call.
type BatchResult struct {
	Answers   []Answer `json:"answers"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	TokensIn  int      `json:"tokens_in"`
	TokensOut int      `json:"tokens_out"`
	CostUSD   float64  `json:"cost_usd"`
}

// ByQuestion returns the answer for a question ID, if present.
func (r *BatchResult) ByQuestion(id string) (Answer, bool) {
	for _, a := range r.Answers {
		if a.QuestionID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// PromptInput carries the evaluation data the prompt enumerates.
type PromptInput struct {
	Kind           string
	Subreddit      string
	Title          string
	Body           string
	AccountAgeDays int
	TotalKarma     int
	RecentActivity []string // "subreddit: first words" summaries
}

// BuildPrompt renders a single prompt that enumerates all questions and
// instructs the model to answer with a strict JSON array.
func BuildPrompt(questions []Question, in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are a content moderation assistant for the r/")
	b.WriteString(in.Subreddit)
	b.WriteString(" community. Answer each question about the submission below.\n\n")

	fmt.Fprintf(&b, "Submission (%s):\n", in.Kind)
	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	fmt.Fprintf(&b, "Body: %s\n\n", in.Body)

	fmt.Fprintf(&b, "Author: account age %d days, total karma %d\n", in.AccountAgeDays, in.TotalKarma)
	if len(in.RecentActivity) > 0 {
		b.WriteString("Recent activity:\n")
		for _, line := range in.RecentActivity {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	b.WriteString("\nQuestions:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- id=%q: %s", q.ID, q.Text)
		if q.Context != "" {
			fmt.Fprintf(&b, " (context: %s)", q.Context)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with ONLY a JSON array, one object per question:\n")
	b.WriteString(`[{"questionId": "...", "answer": "YES"|"NO"|"UNSURE", "confidence": 0-100, "reasoning": "max 400 chars"}]`)
	b.WriteString("\nDo not include any text outside the JSON array.")

	return b.String()
}

type rawAnswer struct {
	QuestionID string      `json:"questionId"`
	Answer     string      `json:"answer"`
	Confidence json.Number `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
}

// ParseBatch parses the model output strictly: every requested question ID
// must be present, confidence is clamped to [0,100], reasoning truncated,
// and unknown answer values become UNSURE with confidence 0.
func ParseBatch(text string, questionIDs []string) ([]Answer, error) {
	jsonText := extractJSONArray(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []rawAnswer
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}

	byID := make(map[string]rawAnswer, len(raw))
	for _, r := range raw {
		byID[r.QuestionID] = r
	}

	answers := make([]Answer, 0, len(questionIDs))
	for _, id := range questionIDs {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("missing answer for question %q", id)
		}
		answers = append(answers, normalize(r))
	}
	return answers, nil
}

func normalize(r rawAnswer) Answer {
	a := Answer{QuestionID: r.QuestionID, Reasoning: r.Reasoning}

	switch strings.ToUpper(strings.TrimSpace(r.Answer)) {
	case AnswerYes:
		a.Answer = AnswerYes
	case AnswerNo:
		a.Answer = AnswerNo
	case AnswerUnsure:
		a.Answer = AnswerUnsure
	default:
		a.Answer = AnswerUnsure
		a.Confidence = 0
		return truncated(a)
	}

	if f, err := r.Confidence.Float64(); err == nil {
		a.Confidence = int(f)
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 100 {
		a.Confidence = 100
	}
	return truncated(a)
}

func truncated(a Answer) Answer {
	if len(a.Reasoning) > MaxReasoningLen {
		cut := MaxReasoningLen
		for cut > 0 && !utf8.RuneStart(a.Reasoning[cut]) {
			cut--
		}
		a.Reasoning = a.Reasoning[:cut]
	}
	return a
}

// extractJSONArray finds the outermost JSON array in model output, which may
// be wrapped in prose or a markdown fence.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// Fingerprint computes the deterministic cache key input for one LM batch:
// same user, community, content kind, question set, item text, and profile
// summary always hash to the same value.
func Fingerprint(userID, subreddit, kind string, questions []Question, itemText, profileSummary string) string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, part := range []string{userID, subreddit, kind, strings.Join(ids, ","), itemText, profileSummary} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ProfileSummaryHash condenses the profile facts that influence answers.
func ProfileSummaryHash(accountAgeDays, totalKarma int, emailVerified bool) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%d:%d:%t", accountAgeDays, totalKarma, emailVerified))
	return hex.EncodeToString(h[:8])
}
