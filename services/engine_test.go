package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought_engine/models"
	"thought_engine/repository"
)

type fakeEntrySource struct {
	mu          sync.Mutex
	entries     map[string][]models.Entry
	annotations map[string]models.EntryAnnotation
	listErr     error
}

func newFakeEntrySource() *fakeEntrySource {
	return &fakeEntrySource{
		entries:     make(map[string][]models.Entry),
		annotations: make(map[string]models.EntryAnnotation),
	}
}

func (f *fakeEntrySource) add(e models.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.UserID] = append(f.entries[e.UserID], e)
}

func (f *fakeEntrySource) ListEntries(_ context.Context, userID string) ([]models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]models.Entry(nil), f.entries[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEntrySource) CountEntries(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[userID]), nil
}

func (f *fakeEntrySource) AnnotateEntry(_ context.Context, userID, entryID string, ann models.EntryAnnotation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries[userID] {
		if f.entries[userID][i].ID == entryID {
			e := &f.entries[userID][i]
			e.Processed = true
			e.Tags = ann.Tags
			e.Mood = ann.Mood
			f.annotations[entryID] = ann
			return nil
		}
	}
	return models.ErrEntryNotFound
}

func (f *fakeEntrySource) annotation(entryID string) (models.EntryAnnotation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ann, ok := f.annotations[entryID]
	return ann, ok
}

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]models.UserProfile
	upserts  int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]models.UserProfile)}
}

func (f *fakeProfileStore) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (f *fakeProfileStore) UpsertProfile(_ context.Context, p *models.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = *p
	f.upserts++
	return nil
}

// cancellingGenerator 返回合法结果的同时取消调用方的 context
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Complete(_ context.Context, _ models.Instruction) (string, error) {
	g.cancel()
	return basicJSON, nil
}

// cancelOnAnnotate 在回写标注时取消调用方的 context，只有未被取消的回写才会生效
type cancelOnAnnotate struct {
	*fakeEntrySource
	cancel context.CancelFunc
}

func (c *cancelOnAnnotate) AnnotateEntry(ctx context.Context, userID, entryID string, ann models.EntryAnnotation) error {
	c.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeEntrySource.AnnotateEntry(ctx, userID, entryID, ann)
}

type engineFixture struct {
	engine   *Engine
	entries  *fakeEntrySource
	profiles *fakeProfileStore
	gen      *fakeGenerator
	stores   *repository.InsightStores
}

func newEngineFixture(t *testing.T, gen Generator) *engineFixture {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	f := &engineFixture{
		entries:  newFakeEntrySource(),
		profiles: newFakeProfileStore(),
		stores:   repository.NewInsightStores(t.TempDir()),
	}
	if fg, ok := gen.(*fakeGenerator); ok {
		f.gen = fg
	}
	t.Cleanup(func() { f.stores.Close() })

	f.engine = NewEngine(f.entries, f.profiles, f.stores, NewBuilder(catalog, 7), gen)
	f.engine.now = func() time.Time { return testNow }
	return f
}

func (f *engineFixture) addEntry(id, body string, age time.Duration) {
	f.entries.add(models.Entry{ID: id, UserID: "u1", Body: body, CreatedAt: testNow.Add(-age)})
}

func TestEngineEndToEndTierProgression(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	ctx := context.Background()

	f.addEntry("e1", "our startup's revenue grew", time.Hour)

	profile, err := f.engine.BuildProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, profile.PrimaryInterests)
	assert.Equal(t, "business", profile.PrimaryInterests[0].Category)
	assert.Greater(t, profile.PrimaryInterests[0].Score, 0.0)

	first, err := f.engine.Analyze(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, first.IntelligenceLevel)
	assert.NotEmpty(t, first.InsightID)

	stored, err := f.engine.GetInsight(ctx, "u1", first.InsightID)
	require.NoError(t, err)
	assert.Equal(t, "our startup's revenue grew", stored.SourceText)
	assert.Equal(t, []string{"business", "growth"}, stored.Themes)

	ann, ok := f.entries.annotation("e1")
	require.True(t, ok)
	assert.Equal(t, "optimistic", ann.Mood)
	assert.Equal(t, []string{"business", "growth"}, ann.Tags)

	f.addEntry("e2", "went for a run", 50*time.Minute)
	f.addEntry("e3", "read a book about pricing", 40*time.Minute)
	f.addEntry("e4", "planning the next product launch", 30*time.Minute)

	fourth, err := f.engine.Analyze(ctx, "u1", "e4")
	require.NoError(t, err)
	assert.Equal(t, models.TierEnhanced, fourth.IntelligenceLevel)
	assert.Equal(t, models.TierEnhanced, f.gen.lastCall().Tier)
	assert.Equal(t, "business", f.gen.lastCall().Context.TopInterest)

	rebuilt, err := f.engine.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, rebuilt.EntryCountAtBuild)

	all, err := f.engine.QueryInsights(ctx, "u1", models.InsightFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.PayloadEnhanced, all[0].GeneratedPayload.Kind)
}

func TestEngineAnalyzeUnknownEntry(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	f.addEntry("e1", "hello", time.Hour)

	_, err := f.engine.Analyze(context.Background(), "u1", "missing")

	assert.ErrorIs(t, err, models.ErrEntryNotFound)
	assert.Empty(t, f.gen.calls)
}

func TestEngineAnalyzeFailureWritesNothing(t *testing.T) {
	gen := newFakeGenerator()
	gen.err = &models.GenerationBackendError{StatusCode: 502, Err: errors.New("bad gateway")}
	f := newEngineFixture(t, gen)
	f.addEntry("e1", "our startup's revenue grew", time.Hour)
	ctx := context.Background()

	_, err := f.engine.Analyze(ctx, "u1", "e1")
	assert.True(t, models.IsRetryable(err))

	gen.err = nil
	gen.responses[models.TierBasic] = `{"summary":"only a summary"}`
	_, err = f.engine.Analyze(ctx, "u1", "e1")
	var parseErr *models.GenerationParseError
	assert.ErrorAs(t, err, &parseErr)

	all, err := f.engine.QueryInsights(ctx, "u1", models.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	_, annotated := f.entries.annotation("e1")
	assert.False(t, annotated)
}

func TestEngineAnalyzeCancelledBeforePersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newEngineFixture(t, &cancellingGenerator{cancel: cancel})
	f.addEntry("e1", "our startup's revenue grew", time.Hour)

	_, err := f.engine.Analyze(ctx, "u1", "e1")
	assert.ErrorIs(t, err, context.Canceled)

	all, err := f.engine.QueryInsights(context.Background(), "u1", models.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	_, annotated := f.entries.annotation("e1")
	assert.False(t, annotated)
}

func TestEngineAnnotatesAfterSaveDespiteCancellation(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	f.addEntry("e1", "our startup's revenue grew", time.Hour)
	_, err := f.engine.BuildProfile(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.engine.entries = &cancelOnAnnotate{fakeEntrySource: f.entries, cancel: cancel}

	insight, err := f.engine.Analyze(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.NotEmpty(t, insight.InsightID)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	ann, ok := f.entries.annotation("e1")
	require.True(t, ok)
	assert.Equal(t, "optimistic", ann.Mood)
}

func TestEngineProfilePersistence(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	ctx := context.Background()
	f.addEntry("e1", "coding a new app", time.Hour)

	missing, err := f.engine.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	built, err := f.engine.BuildProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.profiles.upserts)

	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	restarted := NewEngine(f.entries, f.profiles, f.stores, NewBuilder(catalog, 7), newFakeGenerator())
	loaded, err := restarted.Profile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, built.PrimaryInterests[0].Category, loaded.PrimaryInterests[0].Category)
	assert.Equal(t, "u1", loaded.UserID)

	rebuilt, err := restarted.RefreshIfStale(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Equal(t, 1, f.profiles.upserts)
}

func TestEngineRefreshIfStale(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	ctx := context.Background()
	f.addEntry("e1", "gym session", time.Hour)

	rebuilt, err := f.engine.RefreshIfStale(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rebuilt)

	rebuilt, err = f.engine.RefreshIfStale(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rebuilt)

	f.addEntry("e2", "yoga", 10*time.Minute)
	rebuilt, err = f.engine.RefreshIfStale(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rebuilt)

	p, err := f.engine.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.EntryCountAtBuild)
}

func TestEngineProgression(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	for i := 0; i < 11; i++ {
		f.addEntry(fmt.Sprintf("e%d", i), "note", time.Duration(i)*time.Hour)
	}

	p, err := f.engine.Progression(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, models.TierAdaptive, p.Tier)
	assert.Equal(t, models.TierGenius, p.NextTier)
	assert.Equal(t, 14, p.EntriesToNext)
	assert.Equal(t, "14 more entries to unlock genius intelligence", p.Status)
}

func TestEngineProfileReadersNeverSeePartialProfiles(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		f.addEntry(fmt.Sprintf("e%d", i), "startup revenue and coding and running", time.Duration(i)*time.Hour)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, err := f.engine.Profile(ctx, "u1")
				if err != nil || p == nil {
					continue
				}
				if p.EntryCountAtBuild != 30 || len(p.PrimaryInterests) == 0 {
					t.Errorf("observed partial profile: count=%d interests=%d", p.EntryCountAtBuild, len(p.PrimaryInterests))
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, err := f.engine.BuildProfile(ctx, "u1")
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestEngineInsightOperations(t *testing.T) {
	f := newEngineFixture(t, newFakeGenerator())
	ctx := context.Background()

	payload := models.InsightPayload{
		Kind:      models.PayloadSynthesis,
		Synthesis: &models.SynthesisResult{Title: "Guitar month", Content: "Practice paid off"},
	}
	id, err := f.engine.SaveInsight(ctx, "u1", "I love Spanish lessons and guitar practice", payload, []string{"music"})
	require.NoError(t, err)

	found, err := f.engine.SearchInsights(ctx, "u1", "spanish")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	starred, err := f.engine.ToggleStar(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, starred)

	require.NoError(t, f.engine.TrackAction(ctx, "u1", id, "social", json.RawMessage(`{"platform":"X"}`)))
	err = f.engine.TrackAction(ctx, "u1", id, "fax", nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	themes := []string{"music", "language"}
	updated, err := f.engine.UpdateInsight(ctx, "u1", id, models.InsightPatch{Themes: &themes})
	require.NoError(t, err)
	assert.Equal(t, themes, updated.Themes)
	assert.Len(t, updated.UserActions.SharedContent, 1)

	require.NoError(t, f.engine.ArchiveInsight(ctx, "u1", id))
	visible, err := f.engine.QueryInsights(ctx, "u1", models.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	require.NoError(t, f.engine.DeleteInsight(ctx, "u1", id))
	_, err = f.engine.GetInsight(ctx, "u1", id)
	assert.ErrorIs(t, err, models.ErrStoreNotFound)

	_, err = f.engine.QueryInsights(ctx, "../other", models.InsightFilter{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
