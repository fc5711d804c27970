package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/rules"
	"github.com/Strob0t/ModForge/internal/port/cache"
)

// GlobalRulesScope is the ruleset scope shared by every subreddit.
const GlobalRulesScope = "global"

// rulesetCacheTTL bounds how long a parsed ruleset is served without
// re-reading the settings source.
const rulesetCacheTTL = 5 * time.Minute

// Settings loads and caches the user-authored rulesets. The settings source
// is the configured rules JSON; parsed sets are cached read-through so
// validation runs once per TTL, not once per event.
type Settings struct {
	cache     cache.Cache
	keys      *Keys
	rulesJSON string
	logger    *slog.Logger
}

// NewSettings creates the ruleset loader.
func NewSettings(c cache.Cache, keys *Keys, rulesJSON string, logger *slog.Logger) *Settings {
	return &Settings{cache: c, keys: keys, rulesJSON: rulesJSON, logger: logger}
}

// RuleSets returns the subreddit ruleset followed by the global ruleset.
// Nil entries mean no rules are configured for that scope; the engine skips
// them. A malformed rules document logs a warning and yields no rules rather
// than failing the event.
func (s *Settings) RuleSets(ctx context.Context, subreddit string) []*rules.RuleSet {
	return []*rules.RuleSet{
		s.load(ctx, subreddit),
		s.load(ctx, GlobalRulesScope),
	}
}

func (s *Settings) load(ctx context.Context, scope string) *rules.RuleSet {
	key := s.keys.RuleSet(scope)

	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var rs rules.RuleSet
		if err := json.Unmarshal(data, &rs); err == nil {
			return &rs
		}
		s.logger.Warn("cached ruleset corrupt, reloading", "scope", scope)
	}

	rs := s.parse(scope)
	if rs == nil {
		return nil
	}

	if data, err := json.Marshal(rs); err == nil {
		if err := s.cache.Set(ctx, key, data, rulesetCacheTTL); err != nil {
			s.logger.Warn("cache ruleset failed", "scope", scope, "error", err)
		}
	}
	return rs
}

func (s *Settings) parse(scope string) *rules.RuleSet {
	if s.rulesJSON == "" {
		return nil
	}

	// Scope-less documents default to global so a single rules document is
	// never evaluated twice per event.
	rs, warnings, err := rules.ParseRuleSet([]byte(s.rulesJSON), GlobalRulesScope)
	if err != nil {
		s.logger.Warn("rules json invalid, no custom rules active", "scope", scope, "error", err)
		return nil
	}
	for _, w := range warnings {
		s.logger.Warn("rule dropped during validation", "scope", scope, "warning", w)
	}

	// The configured document targets one scope; serving it for the other
	// would evaluate every rule twice.
	if rs.Subreddit != scope {
		return nil
	}
	return rs
}
