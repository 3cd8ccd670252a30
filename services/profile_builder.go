package services

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/utils"
)

const (
	maxPrimaryInterests = 5
	maxFormats          = 8
	maxPlatforms        = 6
	maxForums           = 10
	maxSourcePlatforms  = 6
	maxSourceKeywords   = 20

	// 正文超过该长度且命中一个进阶术语时视为中级
	intermediateBodyLength = 200
)

// Builder 兴趣画像构建器；只读取关键词表，不持有任何可变状态
type Builder struct {
	catalog *Catalog
	recency time.Duration
}

// NewBuilder 创建画像构建器，recencyDays 为近期条目窗口
func NewBuilder(catalog *Catalog, recencyDays int) *Builder {
	if recencyDays <= 0 {
		recencyDays = 7
	}
	return &Builder{
		catalog: catalog,
		recency: time.Duration(recencyDays) * 24 * time.Hour,
	}
}

// NeedsRebuild 条目数增长后画像即过期，这是唯一的重建条件
func NeedsRebuild(profile *models.UserProfile, currentCount int) bool {
	return profile == nil || profile.EntryCountAtBuild < currentCount
}

type categoryAccumulator struct {
	score    float64
	matched  map[string]struct{}
	recent   int
	total    int
	lastSeen time.Time
}

// Build 根据全部条目重新计算画像。异常条目记录日志后跳过，本方法不会失败
func (b *Builder) Build(entries []models.Entry, now time.Time) models.UserProfile {
	acc := make(map[string]*categoryAccumulator)
	expertise := make(map[string]models.ExpertiseLevel)
	votes := make(map[models.Tone]int)
	skipped := 0

	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			logger.Warn("构建画像时跳过异常条目", "user_id", entry.UserID, "error", err)
			skipped++
			continue
		}

		body := utils.PlainText(entry.Body)
		text := strings.ToLower(utils.PlainText(entry.Title) + " " + body)

		weight := 1.0
		if now.Sub(entry.CreatedAt) <= b.recency {
			weight = 2.0
		}

		for _, cat := range b.catalog.categories {
			matched := matchKeywords(text, cat.Keywords)
			if len(matched) > 0 {
				a := acc[cat.Name]
				if a == nil {
					a = &categoryAccumulator{matched: make(map[string]struct{})}
					acc[cat.Name] = a
				}
				a.score += float64(len(matched)) * weight
				a.total++
				if weight > 1 {
					a.recent++
				}
				for _, kw := range matched {
					a.matched[kw] = struct{}{}
				}
				if entry.CreatedAt.After(a.lastSeen) {
					a.lastSeen = entry.CreatedAt
				}
			}

			advanced := len(matchKeywords(text, cat.AdvancedTerms))
			if len(matched) == 0 && advanced == 0 {
				continue
			}
			level := expertiseSignal(advanced, utf8.RuneCountInString(body))
			if current, ok := expertise[cat.Name]; !ok || level.Rank() > current.Rank() {
				expertise[cat.Name] = level
			}
		}

		if tone, ok := b.entryTone(text); ok {
			votes[tone]++
		}
	}

	interests := rankInterests(acc)
	profile := models.UserProfile{
		PrimaryInterests:  interests,
		ExpertiseLevel:    expertise,
		DominantTone:      dominantTone(votes),
		LastUpdatedAt:     now,
		EntryCountAtBuild: len(entries),
		SkippedEntries:    skipped,
	}
	profile.ContentPreferences, profile.RecommendedSources = b.collectSources(interests)

	logger.Debug("画像构建完成",
		"entries", len(entries),
		"skipped", skipped,
		"interests", len(interests),
		"tone", profile.DominantTone)
	return profile
}

func validateEntry(entry models.Entry) error {
	if strings.TrimSpace(entry.Title) == "" && strings.TrimSpace(entry.Body) == "" {
		return &models.ProfileBuildError{EntryID: entry.ID, Reason: "empty title and body"}
	}
	if entry.CreatedAt.IsZero() {
		return &models.ProfileBuildError{EntryID: entry.ID, Reason: "missing creation time"}
	}
	return nil
}

// matchKeywords 子串包含匹配，返回命中的关键词
func matchKeywords(text string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func expertiseSignal(advancedHits, bodyLength int) models.ExpertiseLevel {
	switch {
	case advancedHits >= 2:
		return models.ExpertiseExpert
	case advancedHits >= 1 && bodyLength > intermediateBodyLength:
		return models.ExpertiseIntermediate
	default:
		return models.ExpertiseBeginner
	}
}

// entryTone 单条条目的语气投票，没有任何命中时不投票
func (b *Builder) entryTone(text string) (models.Tone, bool) {
	best := models.ToneCasual
	bestHits := 0
	for _, tone := range models.Tones {
		hits := len(matchKeywords(text, b.catalog.ToneKeywords(tone)))
		if hits > bestHits {
			best, bestHits = tone, hits
		}
	}
	return best, bestHits > 0
}

func dominantTone(votes map[models.Tone]int) models.Tone {
	best := models.ToneCasual
	bestVotes := 0
	for _, tone := range models.Tones {
		if votes[tone] > bestVotes {
			best, bestVotes = tone, votes[tone]
		}
	}
	return best
}

// rankInterests 按得分降序取前 5；同分时最近出现的优先，再按类别名
func rankInterests(acc map[string]*categoryAccumulator) []models.InterestScore {
	scores := make([]models.InterestScore, 0, len(acc))
	for name, a := range acc {
		keywords := make([]string, 0, len(a.matched))
		for kw := range a.matched {
			keywords = append(keywords, kw)
		}
		sort.Strings(keywords)
		scores = append(scores, models.InterestScore{
			Category:           name,
			Score:              a.score,
			MatchedKeywords:    keywords,
			RecentMentionCount: a.recent,
			TotalMentionCount:  a.total,
			LastSeenAt:         a.lastSeen,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if !scores[i].LastSeenAt.Equal(scores[j].LastSeenAt) {
			return scores[i].LastSeenAt.After(scores[j].LastSeenAt)
		}
		return scores[i].Category < scores[j].Category
	})
	return utils.LimitSlice(scores, maxPrimaryInterests)
}

func (b *Builder) collectSources(interests []models.InterestScore) (models.ContentPreferences, models.RecommendedSources) {
	var formats, platforms, forums, sourcePlatforms, keywords []string
	for _, interest := range interests {
		def, ok := b.catalog.Category(interest.Category)
		if !ok {
			continue
		}
		formats = append(formats, def.Formats...)
		platforms = append(platforms, def.Platforms...)
		forums = append(forums, def.Forums...)
		sourcePlatforms = append(sourcePlatforms, def.Platforms...)
		keywords = append(keywords, def.SourceKeywords...)
	}

	prefs := models.ContentPreferences{
		Formats:   utils.LimitSlice(utils.DeduplicateSlice(formats), maxFormats),
		Platforms: utils.LimitSlice(utils.DeduplicateSlice(platforms), maxPlatforms),
	}
	sources := models.RecommendedSources{
		Forums:    utils.LimitSlice(utils.DeduplicateSlice(forums), maxForums),
		Platforms: utils.LimitSlice(utils.DeduplicateSlice(sourcePlatforms), maxSourcePlatforms),
		Keywords:  utils.LimitSlice(utils.DeduplicateSlice(keywords), maxSourceKeywords),
	}
	return prefs, sources
}
