package rules

import (
	"strings"
)

// Allowed path prefixes. Anything else resolves to undefined.
const (
	prefixProfile   = "profile"
	prefixItem      = "currentPost"
	prefixHistory   = "postHistory"
	prefixAI        = "aiAnalysis"
	prefixSubreddit = "subreddit"
)

// maxPathDepth bounds path segment count.
const maxPathDepth = 10

// forbiddenSegments are rejected in any position. The engine's accessors are
// fixed switches so these cannot reach object internals, but rejecting them
// outright keeps hostile rule JSON loud in the logs.
var forbiddenSegments = map[string]bool{
	"__proto__":        true,
	"constructor":      true,
	"prototype":        true,
	"__defineGetter__": true,
	"__defineSetter__": true,
}

// AllowedFieldPath reports whether a field path passes the allow-list,
// depth, and forbidden-segment checks.
func AllowedFieldPath(path string) bool {
	segments := strings.Split(path, ".")
	if len(segments) > maxPathDepth {
		return false
	}
	for _, s := range segments {
		if forbiddenSegments[s] {
			return false
		}
	}
	switch segments[0] {
	case prefixProfile, prefixItem, prefixHistory, prefixAI, prefixSubreddit:
		return true
	}
	return false
}

// LookupField resolves a field path against the evaluation context.
// Returns (nil, false) for disallowed, unknown, or nil-source paths.
func LookupField(ctx *EvalContext, path string) (any, bool) {
	if !AllowedFieldPath(path) {
		return nil, false
	}
	segments := strings.Split(path, ".")

	switch segments[0] {
	case prefixSubreddit:
		if len(segments) != 1 {
			return nil, false
		}
		return ctx.Subreddit, true
	case prefixProfile:
		return profileField(ctx, segments[1:])
	case prefixItem:
		return itemField(ctx, segments[1:])
	case prefixHistory:
		return historyField(ctx, segments[1:])
	case prefixAI:
		return aiField(ctx, segments[1:])
	}
	return nil, false
}

func profileField(ctx *EvalContext, rest []string) (any, bool) {
	if ctx.Profile == nil || len(rest) != 1 {
		return nil, false
	}
	p := ctx.Profile
	switch rest[0] {
	case "userId":
		return p.UserID, true
	case "username":
		return p.Username, true
	case "accountAgeDays":
		return p.AccountAgeDays, true
	case "commentKarma":
		return p.CommentKarma, true
	case "postKarma":
		return p.PostKarma, true
	case "totalKarma":
		return p.TotalKarma, true
	case "emailVerified":
		return p.EmailVerified, true
	case "isModerator":
		return p.IsModerator, true
	case "hasFlair":
		return p.HasFlair, true
	case "hasPremium":
		return p.HasPremium, true
	case "isVerified":
		return p.IsVerified, true
	}
	return nil, false
}

func itemField(ctx *EvalContext, rest []string) (any, bool) {
	if ctx.Item == nil || len(rest) != 1 {
		return nil, false
	}
	i := ctx.Item
	switch rest[0] {
	case "kind":
		return string(i.Kind), true
	case "title":
		return i.Title, true
	case "body":
		return i.Body, true
	case "subreddit":
		return i.Subreddit, true
	case "type":
		return string(i.Type), true
	case "urls":
		return i.URLs, true
	case "domains":
		return i.Domains, true
	case "wordCount":
		return i.WordCount, true
	case "charCount":
		return i.CharCount, true
	case "titleLength":
		return i.TitleLength, true
	case "bodyLength":
		return i.BodyLength, true
	case "hasMedia":
		return i.HasMedia, true
	case "linkUrl":
		return i.LinkURL, true
	case "isEdited":
		return i.IsEdited, true
	}
	return nil, false
}

func historyField(ctx *EvalContext, rest []string) (any, bool) {
	if ctx.History == nil {
		return nil, false
	}
	h := ctx.History

	if len(rest) == 1 && rest[0] == "subreddits" {
		return h.Subreddits(), true
	}
	if len(rest) != 2 || rest[0] != "metrics" {
		return nil, false
	}
	m := h.Metrics
	switch rest[1] {
	case "totalItems":
		return m.TotalItems, true
	case "postsInTargetSubs":
		return m.PostsInTargetSubs, true
	case "postsInDatingSubs":
		return m.PostsInDatingSubs, true
	case "avgScore":
		return m.AvgScore, true
	}
	return nil, false
}

// aiField resolves aiAnalysis.<questionId>.answer|confidence|reasoning.
func aiField(ctx *EvalContext, rest []string) (any, bool) {
	if ctx.AIAnalysis == nil || len(rest) != 2 {
		return nil, false
	}
	answer, ok := ctx.AIAnalysis.ByQuestion(rest[0])
	if !ok {
		return nil, false
	}
	switch rest[1] {
	case "answer":
		return answer.Answer, true
	case "confidence":
		return answer.Confidence, true
	case "reasoning":
		return answer.Reasoning, true
	}
	return nil, false
}
