package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/utils"
)

const insightSchema = `
CREATE TABLE IF NOT EXISTS insights (
	id           TEXT PRIMARY KEY,
	source_text  TEXT NOT NULL,
	source_lower TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	starred      INTEGER NOT NULL DEFAULT 0,
	archived     INTEGER NOT NULL DEFAULT 0,
	themes       TEXT NOT NULL DEFAULT '[]',
	search_terms TEXT NOT NULL DEFAULT '[]',
	user_actions TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at);
CREATE INDEX IF NOT EXISTS idx_insights_starred ON insights(starred);
CREATE INDEX IF NOT EXISTS idx_insights_archived ON insights(archived);

CREATE TABLE IF NOT EXISTS insight_themes (
	insight_id TEXT NOT NULL REFERENCES insights(id) ON DELETE CASCADE,
	theme      TEXT NOT NULL,
	PRIMARY KEY (insight_id, theme)
);
CREATE INDEX IF NOT EXISTS idx_insight_themes_theme ON insight_themes(theme);

CREATE TABLE IF NOT EXISTS insight_terms (
	insight_id TEXT NOT NULL REFERENCES insights(id) ON DELETE CASCADE,
	term       TEXT NOT NULL,
	PRIMARY KEY (insight_id, term)
);
CREATE INDEX IF NOT EXISTS idx_insight_terms_term ON insight_terms(term);
`

var insightColumns = []string{
	"id", "source_text", "payload", "created_at", "starred", "archived",
	"themes", "search_terms", "user_actions",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsightStore 单个用户的本地洞察库
// 所有读-改-写都在同一个事务内完成，连接池只有一个连接，因此同一记录的更新不会丢失
type InsightStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewInsightStore 在已打开的连接上建表
func NewInsightStore(conn *sql.DB) (*InsightStore, error) {
	if _, err := conn.Exec(insightSchema); err != nil {
		return nil, fmt.Errorf("migrate insight store: %w", err)
	}
	return &InsightStore{db: conn, now: time.Now}, nil
}

// Close 关闭底层连接
func (s *InsightStore) Close() error {
	return s.db.Close()
}

func newInsightID(now time.Time) string {
	return fmt.Sprintf("ins_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Save 保存一条洞察，记录与索引在同一事务内写入
func (s *InsightStore) Save(ctx context.Context, sourceText string, payload models.InsightPayload, themes []string) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	now := time.UnixMilli(s.now().UnixMilli()).UTC()
	rec := models.StoredInsight{
		ID:               newInsightID(now),
		SourceText:       sourceText,
		GeneratedPayload: payload,
		CreatedAt:        now,
		Themes:           utils.DeduplicateSlice(themes),
	}
	rec.SearchTerms = utils.SearchTerms(append([]string{sourceText}, rec.Themes...)...)

	payloadJSON, themesJSON, termsJSON, actionsJSON, err := encodeInsight(&rec)
	if err != nil {
		return "", err
	}

	err = s.withTx(ctx, "save", func(tx *sql.Tx) error {
		query, args, err := psql.Insert("insights").
			Columns("id", "source_text", "source_lower", "payload", "created_at", "starred", "archived", "themes", "search_terms", "user_actions").
			Values(rec.ID, rec.SourceText, strings.ToLower(rec.SourceText), payloadJSON, now.UnixMilli(), 0, 0, themesJSON, termsJSON, actionsJSON).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return &models.StoreWriteError{Op: "save", Err: err}
		}
		return writeIndexes(ctx, tx, rec.ID, rec.Themes, rec.SearchTerms)
	})
	if err != nil {
		return "", err
	}

	logger.Debug("洞察已保存", "insight_id", rec.ID, "themes", len(rec.Themes), "terms", len(rec.SearchTerms))
	return rec.ID, nil
}

// Get 按 ID 读取
func (s *InsightStore) Get(ctx context.Context, id string) (*models.StoredInsight, error) {
	return getInsight(ctx, s.db, id)
}

// Query 按条件查询，条件之间为 AND；结果按创建时间倒序后再截断
func (s *InsightStore) Query(ctx context.Context, filter models.InsightFilter) ([]models.StoredInsight, error) {
	q := psql.Select(insightColumns...).From("insights")

	if filter.Starred != nil {
		q = q.Where(sq.Eq{"starred": boolInt(*filter.Starred)})
	}
	// 未指定 archived 时隐藏已归档记录
	if filter.Archived != nil {
		q = q.Where(sq.Eq{"archived": boolInt(*filter.Archived)})
	} else {
		q = q.Where(sq.Eq{"archived": 0})
	}
	if themes := normalizeThemes(filter.Themes); len(themes) > 0 {
		args := make([]any, len(themes))
		for i, t := range themes {
			args[i] = t
		}
		q = q.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM insight_themes t WHERE t.insight_id = insights.id AND t.theme IN ("+sq.Placeholders(len(themes))+"))",
			args...))
	}
	if filter.From != nil {
		q = q.Where(sq.GtOrEq{"created_at": filter.From.UnixMilli()})
	}
	if filter.To != nil {
		q = q.Where(sq.LtOrEq{"created_at": filter.To.UnixMilli()})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	return s.list(ctx, q)
}

// Search 大小写不敏感：匹配原文子串，或检索词、主题中包含该词
// 空白词等同于无条件查询
func (s *InsightStore) Search(ctx context.Context, term string) ([]models.StoredInsight, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.Query(ctx, models.InsightFilter{})
	}

	q := psql.Select(insightColumns...).From("insights").
		Where(sq.Eq{"archived": 0}).
		Where(sq.Or{
			sq.Expr("instr(source_lower, ?) > 0", term),
			sq.Expr("EXISTS (SELECT 1 FROM insight_terms t WHERE t.insight_id = insights.id AND instr(t.term, ?) > 0)", term),
			sq.Expr("EXISTS (SELECT 1 FROM insight_themes t WHERE t.insight_id = insights.id AND instr(t.theme, ?) > 0)", term),
		})
	return s.list(ctx, q)
}

// Update 合并局部字段。已归档记录只允许修改收藏状态
func (s *InsightStore) Update(ctx context.Context, id string, patch models.InsightPatch) (*models.StoredInsight, error) {
	var updated *models.StoredInsight
	err := s.withTx(ctx, "update", func(tx *sql.Tx) error {
		rec, err := getInsight(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = rec
			return nil
		}
		if err := applyPatch(rec, patch); err != nil {
			return err
		}
		if err := writeInsight(ctx, tx, rec); err != nil {
			return err
		}
		if patch.Themes != nil {
			if err := clearIndexes(ctx, tx, rec.ID); err != nil {
				return err
			}
			if err := writeIndexes(ctx, tx, rec.ID, rec.Themes, rec.SearchTerms); err != nil {
				return err
			}
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ToggleStar 翻转收藏状态并返回新值
func (s *InsightStore) ToggleStar(ctx context.Context, id string) (bool, error) {
	var starred bool
	err := s.withTx(ctx, "toggle star", func(tx *sql.Tx) error {
		rec, err := getInsight(ctx, tx, id)
		if err != nil {
			return err
		}
		rec.Starred = !rec.Starred
		starred = rec.Starred
		return writeInsight(ctx, tx, rec)
	})
	return starred, err
}

// Archive 归档，归档后不可恢复
func (s *InsightStore) Archive(ctx context.Context, id string) error {
	archived := true
	_, err := s.Update(ctx, id, models.InsightPatch{Archived: &archived})
	return err
}

// Delete 永久删除记录及其全部索引
func (s *InsightStore) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		if err := clearIndexes(ctx, tx, id); err != nil {
			return err
		}
		query, args, err := psql.Delete("insights").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return &models.StoreWriteError{Op: "delete", Err: err}
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.ErrStoreNotFound
		}
		return nil
	})
}

// TrackAction 向动作列表追加一条记录，不覆盖已有记录
func (s *InsightStore) TrackAction(ctx context.Context, id string, kind models.ActionKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: action payload is not valid JSON", models.ErrInvalidInput)
	}

	return s.withTx(ctx, "track action", func(tx *sql.Tx) error {
		rec, err := getInsight(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.Archived {
			return models.ErrInsightArchived
		}
		record := models.ActionRecord{Payload: payload, RecordedAt: s.now().UTC()}
		if err := rec.UserActions.Append(kind, record); err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		return writeInsight(ctx, tx, rec)
	})
}

func (s *InsightStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &models.StoreWriteError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &models.StoreWriteError{Op: op, Err: err}
	}
	return nil
}

func (s *InsightStore) list(ctx context.Context, q sq.SelectBuilder) ([]models.StoredInsight, error) {
	query, args, err := q.OrderBy("created_at DESC", "rowid DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]models.StoredInsight, 0)
	for rows.Next() {
		rec, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (*models.StoredInsight, error) {
	var (
		rec                                         models.StoredInsight
		payloadJSON, themesJSON, termsJSON, actions string
		createdAt                                   int64
		starred, archived                           int
	)
	if err := row.Scan(&rec.ID, &rec.SourceText, &payloadJSON, &createdAt, &starred, &archived,
		&themesJSON, &termsJSON, &actions); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.Starred = starred != 0
	rec.Archived = archived != 0

	if err := json.Unmarshal([]byte(payloadJSON), &rec.GeneratedPayload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(themesJSON), &rec.Themes); err != nil {
		return nil, fmt.Errorf("decode themes of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(termsJSON), &rec.SearchTerms); err != nil {
		return nil, fmt.Errorf("decode search terms of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &rec.UserActions); err != nil {
		return nil, fmt.Errorf("decode user actions of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func getInsight(ctx context.Context, q rowQuerier, id string) (*models.StoredInsight, error) {
	query, args, err := psql.Select(insightColumns...).From("insights").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanInsight(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStoreNotFound
	}
	return rec, err
}

func writeInsight(ctx context.Context, tx *sql.Tx, rec *models.StoredInsight) error {
	_, themesJSON, termsJSON, actionsJSON, err := encodeInsight(rec)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("insights").
		Set("starred", boolInt(rec.Starred)).
		Set("archived", boolInt(rec.Archived)).
		Set("themes", themesJSON).
		Set("search_terms", termsJSON).
		Set("user_actions", actionsJSON).
		Where(sq.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return &models.StoreWriteError{Op: "update", Err: err}
	}
	return nil
}

func writeIndexes(ctx context.Context, tx *sql.Tx, id string, themes, terms []string) error {
	if lowered := normalizeThemes(themes); len(lowered) > 0 {
		ins := psql.Insert("insight_themes").Options("OR IGNORE").Columns("insight_id", "theme")
		for _, t := range lowered {
			ins = ins.Values(id, t)
		}
		if err := execBuilder(ctx, tx, ins); err != nil {
			return &models.StoreWriteError{Op: "index themes", Err: err}
		}
	}
	if len(terms) > 0 {
		ins := psql.Insert("insight_terms").Options("OR IGNORE").Columns("insight_id", "term")
		for _, t := range terms {
			ins = ins.Values(id, t)
		}
		if err := execBuilder(ctx, tx, ins); err != nil {
			return &models.StoreWriteError{Op: "index terms", Err: err}
		}
	}
	return nil
}

func clearIndexes(ctx context.Context, tx *sql.Tx, id string) error {
	for _, table := range []string{"insight_themes", "insight_terms"} {
		if err := execBuilder(ctx, tx, psql.Delete(table).Where(sq.Eq{"insight_id": id})); err != nil {
			return &models.StoreWriteError{Op: "clear " + table, Err: err}
		}
	}
	return nil
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func applyPatch(rec *models.StoredInsight, patch models.InsightPatch) error {
	if rec.Archived {
		if patch.Archived != nil && !*patch.Archived {
			return models.ErrInsightArchived
		}
		if patch.Themes != nil {
			return models.ErrInsightArchived
		}
	}
	if patch.Starred != nil {
		rec.Starred = *patch.Starred
	}
	if patch.Archived != nil {
		rec.Archived = *patch.Archived
	}
	if patch.Themes != nil {
		rec.Themes = utils.DeduplicateSlice(*patch.Themes)
		rec.SearchTerms = utils.SearchTerms(append([]string{rec.SourceText}, rec.Themes...)...)
	}
	return nil
}

func encodeInsight(rec *models.StoredInsight) (payload, themes, terms, actions string, err error) {
	if rec.Themes == nil {
		rec.Themes = []string{}
	}
	if rec.SearchTerms == nil {
		rec.SearchTerms = []string{}
	}
	p, err := json.Marshal(rec.GeneratedPayload)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode payload: %w", err)
	}
	th, _ := json.Marshal(rec.Themes)
	te, _ := json.Marshal(rec.SearchTerms)
	ac, err := json.Marshal(rec.UserActions)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode user actions: %w", err)
	}
	return string(p), string(th), string(te), string(ac), nil
}

func normalizeThemes(themes []string) []string {
	lowered := make([]string, 0, len(themes))
	for _, t := range themes {
		lowered = append(lowered, strings.ToLower(t))
	}
	return utils.DeduplicateSlice(lowered)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
