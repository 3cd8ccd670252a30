package services

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought_engine/logger"
	"thought_engine/models"
)

func TestMain(m *testing.M) {
	logger.Discard()
	os.Exit(m.Run())
}

const testCatalogYAML = `
categories:
  - name: alpha
    keywords: [apple, apricot, avocado, almond, anise, artichoke]
    advanced_terms: [pomology, grafting, rootstock]
    formats: [blog, video]
    platforms: [Web, Mobile]
    forums: [orchard-club]
    source_keywords: [fruit trees]
  - name: beta
    keywords: [banana, basil, beet, berry, broccoli]
    formats: [video, podcast]
    platforms: [Mobile, Radio]
    forums: [garden-hub]
    source_keywords: [greens]
  - name: gamma
    keywords: [cabbage, carrot, celery, cherry]
  - name: delta
    keywords: [date, dill, durian]
  - name: epsilon
    keywords: [eggplant, endive]
  - name: zeta
    keywords: [fig]
tones:
  casual: [lol]
  professional: [meeting]
  enthusiastic: [amazing, love]
  analytical: [because]
`

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return c
}

func entryAt(id, body string, age time.Duration) models.Entry {
	return models.Entry{ID: id, UserID: "u1", Body: body, CreatedAt: testNow.Add(-age)}
}

func interestByName(p models.UserProfile, name string) (models.InterestScore, bool) {
	for _, s := range p.PrimaryInterests {
		if s.Category == name {
			return s, true
		}
	}
	return models.InterestScore{}, false
}

func TestBuildEmpty(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build(nil, testNow)

	assert.Empty(t, p.PrimaryInterests)
	assert.Equal(t, models.ToneCasual, p.DominantTone)
	assert.Equal(t, 0, p.EntryCountAtBuild)
	assert.Equal(t, testNow, p.LastUpdatedAt)
}

func TestBuildStartupRevenue(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	b := NewBuilder(catalog, 7)

	p := b.Build([]models.Entry{entryAt("e1", "our startup's revenue grew", time.Hour)}, testNow)

	require.NotEmpty(t, p.PrimaryInterests)
	top := p.PrimaryInterests[0]
	assert.Equal(t, "business", top.Category)
	assert.Equal(t, 4.0, top.Score)
	assert.Equal(t, []string{"revenue", "startup"}, top.MatchedKeywords)
	assert.Equal(t, 1, top.RecentMentionCount)
	assert.Equal(t, 1, top.TotalMentionCount)

	// 子串匹配的已知局限："start" 中包含 "art"
	creativity, ok := interestByName(p, "creativity")
	require.True(t, ok)
	assert.Equal(t, []string{"art"}, creativity.MatchedKeywords)
}

func TestBuildRecencyWeight(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build([]models.Entry{
		entryAt("new", "apple", 2*24*time.Hour),
		entryAt("old", "apple and apricot", 30*24*time.Hour),
	}, testNow)

	alpha, ok := interestByName(p, "alpha")
	require.True(t, ok)
	assert.Equal(t, 2.0+2.0, alpha.Score)
	assert.Equal(t, 1, alpha.RecentMentionCount)
	assert.Equal(t, 2, alpha.TotalMentionCount)
	assert.Equal(t, []string{"apple", "apricot"}, alpha.MatchedKeywords)
	assert.Equal(t, testNow.Add(-2*24*time.Hour), alpha.LastSeenAt)
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)
	entries := []models.Entry{
		entryAt("e1", "apple banana lol", time.Hour),
		entryAt("e2", "cherry date fig because", 3*24*time.Hour),
		entryAt("e3", "eggplant basil meeting", 20*24*time.Hour),
	}

	first := b.Build(entries, testNow)
	second := b.Build(entries, testNow)

	assert.Equal(t, first, second)
}

func TestBuildTopFiveInvariant(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)
	body := "apple apricot avocado almond anise artichoke " +
		"banana basil beet berry broccoli " +
		"cabbage carrot celery cherry " +
		"date dill durian " +
		"eggplant endive " +
		"fig"

	p := b.Build([]models.Entry{entryAt("e1", body, 30*24*time.Hour)}, testNow)

	require.Len(t, p.PrimaryInterests, 5)
	names := make([]string, 0, 5)
	for i, s := range p.PrimaryInterests {
		names = append(names, s.Category)
		if i > 0 {
			assert.Greater(t, p.PrimaryInterests[i-1].Score, s.Score)
		}
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, names)
}

func TestBuildTieBreaksByRecency(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build([]models.Entry{
		entryAt("e1", "fig", 20*24*time.Hour),
		entryAt("e2", "dill", 10*24*time.Hour),
	}, testNow)

	require.Len(t, p.PrimaryInterests, 2)
	assert.Equal(t, "delta", p.PrimaryInterests[0].Category)
	assert.Equal(t, "zeta", p.PrimaryInterests[1].Category)

	same := b.Build([]models.Entry{entryAt("e1", "fig dill", 10*24*time.Hour)}, testNow)
	require.Len(t, same.PrimaryInterests, 2)
	assert.Equal(t, "delta", same.PrimaryInterests[0].Category)
}

func TestBuildExpertiseMonotonic(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)
	expert := entryAt("expert", "grafting onto rootstock", 5*24*time.Hour)
	low := entryAt("low", "an apple", time.Hour)

	forward := b.Build([]models.Entry{expert, low}, testNow)
	backward := b.Build([]models.Entry{low, expert}, testNow)

	assert.Equal(t, models.ExpertiseExpert, forward.ExpertiseLevel["alpha"])
	assert.Equal(t, models.ExpertiseExpert, backward.ExpertiseLevel["alpha"])
}

func TestBuildExpertiseIntermediate(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)
	long := "Some notes on grafting. " + strings.Repeat("More thoughts follow here. ", 10)
	short := "Some notes on grafting."

	p := b.Build([]models.Entry{entryAt("long", long, time.Hour)}, testNow)
	assert.Equal(t, models.ExpertiseIntermediate, p.ExpertiseLevel["alpha"])

	p = b.Build([]models.Entry{entryAt("short", short, time.Hour)}, testNow)
	assert.Equal(t, models.ExpertiseBeginner, p.ExpertiseLevel["alpha"])

	p = b.Build([]models.Entry{entryAt("none", "banana", time.Hour)}, testNow)
	_, ok := p.ExpertiseLevel["alpha"]
	assert.False(t, ok)
}

func TestBuildDominantTone(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	tie := b.Build([]models.Entry{
		entryAt("e1", "meeting", time.Hour),
		entryAt("e2", "lol", time.Hour),
		entryAt("e3", "because", time.Hour),
		entryAt("e4", "nothing to see", time.Hour),
	}, testNow)
	assert.Equal(t, models.ToneCasual, tie.DominantTone)

	perEntryTie := b.Build([]models.Entry{
		entryAt("e1", "meeting, lol", time.Hour),
	}, testNow)
	assert.Equal(t, models.ToneCasual, perEntryTie.DominantTone)

	pro := b.Build([]models.Entry{
		entryAt("e1", "meeting again", time.Hour),
		entryAt("e2", "meeting", time.Hour),
		entryAt("e3", "amazing, love it", time.Hour),
	}, testNow)
	assert.Equal(t, models.ToneProfessional, pro.DominantTone)

	enthusiastic := b.Build([]models.Entry{
		entryAt("e1", "amazing, love it", time.Hour),
	}, testNow)
	assert.Equal(t, models.ToneEnthusiastic, enthusiastic.DominantTone)
}

func TestBuildSkipsMalformedEntries(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build([]models.Entry{
		{ID: "blank", Body: "   ", CreatedAt: testNow},
		{ID: "undated", Body: "apple"},
		entryAt("ok", "apple", time.Hour),
	}, testNow)

	assert.Equal(t, 2, p.SkippedEntries)
	assert.Equal(t, 3, p.EntryCountAtBuild)
	alpha, ok := interestByName(p, "alpha")
	require.True(t, ok)
	assert.Equal(t, 1, alpha.TotalMentionCount)
}

func TestBuildIgnoresMarkup(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build([]models.Entry{entryAt("e1", `<span data-kind="apple">fig</span>`, time.Hour)}, testNow)

	_, hasAlpha := interestByName(p, "alpha")
	assert.False(t, hasAlpha)
	_, hasZeta := interestByName(p, "zeta")
	assert.True(t, hasZeta)
}

func TestBuildKeepsPlainTextComparisons(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	b := NewBuilder(catalog, 7)

	p := b.Build([]models.Entry{entryAt("e1", "Pricing test: if cost<budget and revenue>cost we grow the startup", time.Hour)}, testNow)

	_, hasFinance := interestByName(p, "finance")
	assert.True(t, hasFinance)
	_, hasBusiness := interestByName(p, "business")
	assert.True(t, hasBusiness)
}

func TestBuildSources(t *testing.T) {
	b := NewBuilder(testCatalog(t), 7)

	p := b.Build([]models.Entry{entryAt("e1", "apple apricot banana", time.Hour)}, testNow)

	assert.Equal(t, []string{"blog", "video", "podcast"}, p.ContentPreferences.Formats)
	assert.Equal(t, []string{"Web", "Mobile", "Radio"}, p.ContentPreferences.Platforms)
	assert.Equal(t, []string{"orchard-club", "garden-hub"}, p.RecommendedSources.Forums)
	assert.Equal(t, []string{"fruit trees", "greens"}, p.RecommendedSources.Keywords)
}

func TestBuildSourceCaps(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	b := NewBuilder(catalog, 7)

	p := b.Build([]models.Entry{
		entryAt("e1", "software startup workout painting lesson budget travel friend", time.Hour),
	}, testNow)

	require.Len(t, p.PrimaryInterests, 5)
	assert.LessOrEqual(t, len(p.ContentPreferences.Formats), 8)
	assert.LessOrEqual(t, len(p.ContentPreferences.Platforms), 6)
	assert.LessOrEqual(t, len(p.RecommendedSources.Forums), 10)
	assert.LessOrEqual(t, len(p.RecommendedSources.Platforms), 6)
	assert.LessOrEqual(t, len(p.RecommendedSources.Keywords), 20)
	assert.Len(t, p.ContentPreferences.Formats, 8)
}

func TestNeedsRebuild(t *testing.T) {
	assert.True(t, NeedsRebuild(nil, 0))
	assert.True(t, NeedsRebuild(&models.UserProfile{EntryCountAtBuild: 3}, 4))
	assert.False(t, NeedsRebuild(&models.UserProfile{EntryCountAtBuild: 4}, 4))
	assert.False(t, NeedsRebuild(&models.UserProfile{EntryCountAtBuild: 5}, 4))
}

func TestParseCatalogRejectsUnknownTone(t *testing.T) {
	_, err := ParseCatalog([]byte("categories:\n  - name: a\n    keywords: [x]\ntones:\n  grumpy: [meh]\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("categories:\n  - name: a\n    keywords: [x]\n  - name: a\n    keywords: [y]\n"))
	assert.Error(t, err)
}

func TestDefaultCatalogKeywordsAreLowercase(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	for _, def := range catalog.Categories() {
		for _, kw := range def.Keywords {
			assert.Equal(t, strings.ToLower(kw), kw, def.Name)
		}
	}
}
