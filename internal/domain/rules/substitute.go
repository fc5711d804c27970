package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Undefined is the literal inserted for unresolvable substitution paths.
const Undefined = "[undefined]"

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// Substitute replaces {path} placeholders in a template with values from the
// evaluation context. The shorthands {ai.answer}, {ai.confidence}, and
// {ai.reasoning} refer to the currently matched rule's AI answer;
// {ai.<questionId>.<field>} refers to another rule's answer. All other paths
// go through the same allow-list as condition fields.
func Substitute(template string, ctx *EvalContext, current *Rule) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}

	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]

		if resolved, ok := resolveAIShorthand(path, ctx, current); ok {
			return resolved
		}
		if v, ok := LookupField(ctx, path); ok && v != nil {
			return fmt.Sprint(v)
		}
		return Undefined
	})
}

func resolveAIShorthand(path string, ctx *EvalContext, current *Rule) (string, bool) {
	rest, ok := strings.CutPrefix(path, "ai.")
	if !ok {
		return "", false
	}

	// {ai.answer} etc: the current rule's own question.
	if rest == "answer" || rest == "confidence" || rest == "reasoning" {
		if current == nil || current.AI == nil {
			return Undefined, true
		}
		return aiAnswerField(ctx, current.AI.ID, rest), true
	}

	// {ai.<questionId>.<field>}
	qid, field, ok := strings.Cut(rest, ".")
	if !ok {
		return Undefined, true
	}
	switch field {
	case "answer", "confidence", "reasoning":
		return aiAnswerField(ctx, qid, field), true
	}
	return Undefined, true
}

func aiAnswerField(ctx *EvalContext, questionID, field string) string {
	if ctx.AIAnalysis == nil {
		return Undefined
	}
	answer, ok := ctx.AIAnalysis.ByQuestion(questionID)
	if !ok {
		return Undefined
	}
	switch field {
	case "answer":
		return answer.Answer
	case "confidence":
		return fmt.Sprint(answer.Confidence)
	case "reasoning":
		return answer.Reasoning
	}
	return Undefined
}
