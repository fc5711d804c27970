package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/port/database"
	"github.com/Strob0t/ModForge/internal/port/kv"
	"github.com/Strob0t/ModForge/internal/port/llm"
	"github.com/Strob0t/ModForge/internal/port/messagequeue"
	"github.com/Strob0t/ModForge/internal/port/platform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memKV is an in-memory kv.Store. TTLs are recorded but only enforced when a
// test advances the fake clock.
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	expires map[string]time.Time
	now     time.Time
	failing bool
}

var _ kv.Store = (*memKV)(nil)

func newMemKV() *memKV {
	return &memKV{
		data:    make(map[string][]byte),
		expires: make(map[string]time.Time),
		now:     time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memKV) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memKV) alive(key string) bool {
	exp, ok := m.expires[key]
	if ok && !m.now.Before(exp) {
		delete(m.data, key)
		delete(m.expires, key)
		return false
	}
	_, ok = m.data[key]
	return ok
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, false, context.DeadlineExceeded
	}
	if !m.alive(key) {
		return nil, false, nil
	}
	return m.data[key], true, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return context.DeadlineExceeded
	}
	m.data[key] = value
	delete(m.expires, key)
	if ttl > 0 {
		m.expires[key] = m.now.Add(ttl)
	}
	return nil
}

func (m *memKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, context.DeadlineExceeded
	}
	if m.alive(key) {
		return false, nil
	}
	m.data[key] = value
	delete(m.expires, key)
	if ttl > 0 {
		m.expires[key] = m.now.Add(ttl)
	}
	return true, nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.expires, key)
	return nil
}

func (m *memKV) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, context.DeadlineExceeded
	}
	var current int64
	if m.alive(key) {
		current, _ = strconv.ParseInt(string(m.data[key]), 10, 64)
	}
	current += delta
	m.data[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (m *memKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.data {
		if m.alive(key) && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// fakePlatform is a scripted platform.Client.
type fakePlatform struct {
	mu       sync.Mutex
	profiles map[string]*profile.UserProfile
	history  map[string][]profile.HistoryItem
	posts    map[string]*platform.Post
	comments map[string]*platform.Comment

	profileErr error
	reportErr  error
	removeErr  error
	commentErr error

	reports  []string
	removals []string
	replies  []string
	modNotes []string
}

var _ platform.Client = (*fakePlatform)(nil)

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		profiles: make(map[string]*profile.UserProfile),
		history:  make(map[string][]profile.HistoryItem),
		posts:    make(map[string]*platform.Post),
		comments: make(map[string]*platform.Comment),
	}
}

func (f *fakePlatform) GetPostByID(_ context.Context, id string) (*platform.Post, error) {
	if p, ok := f.posts[id]; ok {
		return p, nil
	}
	return nil, context.DeadlineExceeded
}

func (f *fakePlatform) GetCommentByID(_ context.Context, id string) (*platform.Comment, error) {
	if c, ok := f.comments[id]; ok {
		return c, nil
	}
	return nil, context.DeadlineExceeded
}

func (f *fakePlatform) GetUserByID(_ context.Context, userID string) (*profile.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, context.DeadlineExceeded
}

func (f *fakePlatform) GetUserContent(_ context.Context, userID string, _ platform.ContentQuery) ([]profile.HistoryItem, error) {
	return f.history[userID], nil
}

func (f *fakePlatform) Report(_ context.Context, contentID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportErr != nil {
		return f.reportErr
	}
	f.reports = append(f.reports, contentID+"|"+reason)
	return nil
}

func (f *fakePlatform) Remove(_ context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removals = append(f.removals, contentID)
	return nil
}

func (f *fakePlatform) SubmitComment(_ context.Context, parentID, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return "", f.commentErr
	}
	f.replies = append(f.replies, parentID+"|"+body)
	return "t1_reply", nil
}

func (f *fakePlatform) AddModNote(_ context.Context, subreddit, userID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modNotes = append(f.modNotes, subreddit+"|"+userID+"|"+note)
	return nil
}

func (f *fakePlatform) ModLogAdd(context.Context, string, string, string, string) error {
	return nil
}

// fakeProvider is a scripted llm.Provider.
type fakeProvider struct {
	name  string
	model string
	resp  *llm.Response
	err   error
	calls int
}

var _ llm.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Complete(context.Context, llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakeClassifier is a scripted llm.SafetyClassifier.
type fakeClassifier struct {
	scores *llm.SafetyScores
	err    error
	calls  int
}

var _ llm.SafetyClassifier = (*fakeClassifier)(nil)

func (f *fakeClassifier) Classify(context.Context, string) (*llm.SafetyScores, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

// memStore is an in-memory database.Store.
type memStore struct {
	mu      sync.Mutex
	audits  []moderation.AuditEntry
	records []cost.Record
	purged  []time.Time
	err     error
}

var _ database.Store = (*memStore)(nil)

func (m *memStore) InsertAuditEntry(_ context.Context, entry moderation.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.audits = append(m.audits, entry)
	return nil
}

func (m *memStore) ListAuditEntries(context.Context, database.AuditFilter) ([]moderation.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audits, nil
}

func (m *memStore) InsertCostRecord(_ context.Context, rec cost.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) CostSummary(context.Context, time.Time) (*cost.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &cost.Summary{}
	for _, r := range m.records {
		s.TotalCostUSD += r.CostUSD
		s.TotalTokensIn += int64(r.TokensIn)
		s.TotalTokensOut += int64(r.TokensOut)
		s.CallCount++
	}
	return s, nil
}

func (m *memStore) CostByProvider(context.Context, time.Time) ([]cost.ProviderSummary, error) {
	return nil, nil
}

func (m *memStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, cutoff)
	return int64(len(m.audits)), nil
}

// memQueue records published messages.
type memQueue struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

var _ messagequeue.Queue = (*memQueue)(nil)

func (m *memQueue) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (m *memQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *memQueue) Drain() error      { return nil }
func (m *memQueue) Close() error      { return nil }
func (m *memQueue) IsConnected() bool { return true }

func (m *memQueue) onSubject(subject string) []publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMsg
	for _, p := range m.published {
		if p.subject == subject {
			out = append(out, p)
		}
	}
	return out
}

// testItem builds a post item for evaluation tests.
func testItem(t *testing.T) *content.Item {
	t.Helper()
	return content.NewItem(content.KindPost, "Test post", "Just a test body", "golang", "", false)
}

func testProfile(userID string) *profile.UserProfile {
	return &profile.UserProfile{
		UserID:         userID,
		Username:       "tester",
		AccountAgeDays: 120,
		TotalKarma:     800,
		EmailVerified:  true,
	}
}
