package rules

import (
	"container/list"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MaxPatternLen caps user-supplied regex patterns.
const MaxPatternLen = 200

// regexCacheCap bounds the compiled-pattern LRU.
const regexCacheCap = 100

// dangerousFragments are rejected outright. Go's regexp is RE2 and cannot
// backtrack, but these patterns signal rules copied from backtracking
// engines and are worthless as moderation conditions.
var dangerousFragments = []string{
	`(.*)+`, `(.+)+`, `(\d+)+`, `(\w+)+`, `(\s*)+`,
}

// nestedQuantifier matches a quantified group followed by another quantifier.
var nestedQuantifier = regexp.MustCompile(`\((?:[^()]*)[*+]\)[*+]`)

// ErrUnsafePattern is wrapped by all pattern rejections.
var ErrUnsafePattern = fmt.Errorf("unsafe regex pattern")

// RegexCache is a bounded LRU of compiled patterns. Safe for concurrent use.
type RegexCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	byKey map[string]*list.Element
}

type regexEntry struct {
	key string
	re  *regexp.Regexp
	err error
}

// NewRegexCache creates a RegexCache with the default capacity.
func NewRegexCache() *RegexCache {
	return &RegexCache{
		cap:   regexCacheCap,
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

// Compile returns a compiled pattern, applying the safety checks.
// Rejected or invalid patterns return an error; callers treat that as
// never-match. Results (including failures) are cached.
func (c *RegexCache) Compile(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	key := pattern
	if caseInsensitive {
		key = "(?i)" + key
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*regexEntry)
		return entry.re, entry.err
	}

	entry := &regexEntry{key: key}
	if err := checkPattern(pattern); err != nil {
		entry.err = err
	} else {
		entry.re, entry.err = regexp.Compile(key)
	}

	c.byKey[key] = c.order.PushFront(entry)
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.byKey, oldest.Value.(*regexEntry).key)
	}

	return entry.re, entry.err
}

// Len returns the number of cached patterns (for testing).
func (c *RegexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func checkPattern(pattern string) error {
	if len(pattern) > MaxPatternLen {
		return fmt.Errorf("%w: pattern longer than %d chars", ErrUnsafePattern, MaxPatternLen)
	}
	for _, frag := range dangerousFragments {
		if strings.Contains(pattern, frag) {
			return fmt.Errorf("%w: contains %q", ErrUnsafePattern, frag)
		}
	}
	if nestedQuantifier.MatchString(pattern) {
		return fmt.Errorf("%w: nested quantifier on a group", ErrUnsafePattern)
	}
	return nil
}
