package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Strob0t/ModForge/internal/domain"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/platform"
)

const (
	maxReportReasonLen = 100
	maxCommentLen      = 10_000
	truncationNotice   = "\n\n[Comment truncated due to length]"

	rateLimitedMsg = "Rate limit exceeded - action will be retried"
)

// defaultRemovalTemplate explains a removal when the matched rule carries no
// comment of its own.
const defaultRemovalTemplate = "Your {contentType} in r/{subreddit} was removed: {reason}"

// Target identifies the content an action applies to.
type Target struct {
	ContentID string
	Kind      content.ItemKind
	Subreddit string
}

// Executor applies moderation decisions to the host platform. In dry-run
// mode every non-APPROVE action is logged instead of performed.
type Executor struct {
	platform platform.Client
	dryRun   bool
	logger   *slog.Logger
}

// NewExecutor creates the action executor.
func NewExecutor(client platform.Client, dryRun bool, logger *slog.Logger) *Executor {
	return &Executor{platform: client, dryRun: dryRun, logger: logger}
}

// Execute performs exactly one host action for the decision.
func (e *Executor) Execute(ctx context.Context, target Target, result moderation.EvaluationResult) moderation.ExecutionResult {
	if (e.dryRun || result.DryRun) && result.Action != moderation.ActionApprove {
		e.logger.Info("dry run, host action suppressed",
			"content_id", target.ContentID, "action", result.Action, "reason", result.Reason)
		return moderation.ExecutionResult{Success: true}
	}

	switch result.Action {
	case moderation.ActionApprove:
		return moderation.ExecutionResult{Success: true}
	case moderation.ActionFlag:
		return e.flag(ctx, target, result)
	case moderation.ActionRemove:
		return e.remove(ctx, target, result)
	case moderation.ActionComment:
		return e.comment(ctx, target, result)
	}
	return moderation.ExecutionResult{Success: false, Error: fmt.Sprintf("unknown action %q", result.Action)}
}

func (e *Executor) flag(ctx context.Context, target Target, result moderation.EvaluationResult) moderation.ExecutionResult {
	reason := truncateUTF8(result.Reason, maxReportReasonLen)
	if err := e.platform.Report(ctx, target.ContentID, reason); err != nil {
		return e.failure("report", err)
	}
	return moderation.ExecutionResult{Success: true}
}

// remove posts the explanation comment first, then removes. A failed comment
// never blocks the removal.
func (e *Executor) remove(ctx context.Context, target Target, result moderation.EvaluationResult) moderation.ExecutionResult {
	body := result.Comment
	if body == "" {
		body = defaultRemovalTemplate
	}
	body = renderTemplate(body, target, result)

	commentAdded := false
	if _, err := e.platform.SubmitComment(ctx, target.ContentID, body); err != nil {
		e.logger.Warn("removal comment failed, removing anyway",
			"content_id", target.ContentID, "error", err)
	} else {
		commentAdded = true
	}

	if err := e.platform.Remove(ctx, target.ContentID); err != nil {
		res := e.failure("remove", err)
		res.CommentAdded = commentAdded
		return res
	}
	return moderation.ExecutionResult{Success: true, CommentAdded: commentAdded}
}

func (e *Executor) comment(ctx context.Context, target Target, result moderation.EvaluationResult) moderation.ExecutionResult {
	body := renderTemplate(result.Comment, target, result)
	if body == "" {
		body = renderTemplate(result.Reason, target, result)
	}
	if _, err := e.platform.SubmitComment(ctx, target.ContentID, body); err != nil {
		return e.failure("comment", err)
	}
	return moderation.ExecutionResult{Success: true, CommentAdded: true}
}

func (e *Executor) failure(op string, err error) moderation.ExecutionResult {
	if errors.Is(err, domain.ErrRateLimited) {
		return moderation.ExecutionResult{Success: false, Error: rateLimitedMsg, Retryable: true}
	}
	return moderation.ExecutionResult{Success: false, Error: fmt.Sprintf("%s: %v", op, err)}
}

// renderTemplate fills the executor placeholders and applies the comment
// length cap.
func renderTemplate(tmpl string, target Target, result moderation.EvaluationResult) string {
	r := strings.NewReplacer(
		"{reason}", result.Reason,
		"{subreddit}", target.Subreddit,
		"{contentType}", string(target.Kind),
		"{confidence}", strconv.Itoa(result.Confidence),
	)
	body := r.Replace(tmpl)
	if len(body) > maxCommentLen {
		body = truncateUTF8(body, maxCommentLen-len(truncationNotice)) + truncationNotice
	}
	return body
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
