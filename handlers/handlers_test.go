package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/repository"
	"thought_engine/services"
)

func TestMain(m *testing.M) {
	logger.Discard()
	m.Run()
}

type memoryEntries struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (m *memoryEntries) ListEntries(_ context.Context, userID string) ([]models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memoryEntries) CountEntries(ctx context.Context, userID string) (int, error) {
	entries, err := m.ListEntries(ctx, userID)
	return len(entries), err
}

func (m *memoryEntries) AnnotateEntry(_ context.Context, userID, entryID string, ann models.EntryAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].UserID == userID && m.entries[i].ID == entryID {
			m.entries[i].Processed = true
			m.entries[i].Tags = ann.Tags
			m.entries[i].Mood = ann.Mood
			return nil
		}
	}
	return models.ErrEntryNotFound
}

type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[string]models.UserProfile
}

func (m *memoryProfiles) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memoryProfiles) UpsertProfile(_ context.Context, p *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = *p
	return nil
}

type stubGenerator struct {
	err error
}

func (s *stubGenerator) Complete(_ context.Context, ins models.Instruction) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if ins.Tier != models.TierBasic {
		return "", errors.New("unexpected tier " + string(ins.Tier))
	}
	return `{"summary":"Revenue is up.","themes":["business"],"mood":"upbeat",
		"encouragement":"Keep going.","next_step":"Write down the next experiment."}`, nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router  *chi.Mux
	entries *memoryEntries
	gen     *stubGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := services.DefaultCatalog()
	require.NoError(t, err)

	stores := repository.NewInsightStores(t.TempDir())
	t.Cleanup(func() { stores.Close() })

	s := &testServer{
		router:  chi.NewRouter(),
		entries: &memoryEntries{},
		gen:     &stubGenerator{},
	}
	engine := services.NewEngine(s.entries, &memoryProfiles{profiles: map[string]models.UserProfile{}},
		stores, services.NewBuilder(catalog, 7), s.gen)
	RegisterRoutes(s.router, engine)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) apiResponse {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestProfileRoutes(t *testing.T) {
	s := newTestServer(t)
	s.entries.entries = append(s.entries.entries, models.Entry{
		ID: "e1", UserID: "u1", Body: "our startup's revenue grew", CreatedAt: time.Now().Add(-time.Hour),
	})

	resp := s.do(t, "GET", "/api/profile/u1", "")
	assert.Equal(t, models.CodeNoUserProfile, resp.Code)

	resp = s.do(t, "POST", "/api/profile/u1/build", "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	built := decodeData[models.UserProfile](t, resp)
	assert.Equal(t, "business", built.TopInterest())

	resp = s.do(t, "GET", "/api/profile/u1", "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	assert.Equal(t, 1, decodeData[models.UserProfile](t, resp).EntryCountAtBuild)

	resp = s.do(t, "GET", "/api/progression/u1", "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	progression := decodeData[models.Progression](t, resp)
	assert.Equal(t, models.TierBasic, progression.Tier)
	assert.Equal(t, 3, progression.EntriesToNext)
}

func TestAnalyzeRoute(t *testing.T) {
	s := newTestServer(t)
	s.entries.entries = append(s.entries.entries, models.Entry{
		ID: "e1", UserID: "u1", Body: "our startup's revenue grew", CreatedAt: time.Now(),
	})

	resp := s.do(t, "POST", "/api/insights/u1/analyze/e1", "")
	require.Equal(t, models.CodeSuccess, resp.Code, resp.Message)
	insight := decodeData[models.Insight](t, resp)
	assert.Equal(t, models.TierBasic, insight.IntelligenceLevel)
	require.NotEmpty(t, insight.InsightID)

	resp = s.do(t, "GET", "/api/insights/u1/"+insight.InsightID, "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	assert.Equal(t, []string{"business"}, decodeData[models.StoredInsight](t, resp).Themes)

	resp = s.do(t, "POST", "/api/insights/u1/analyze/missing", "")
	assert.Equal(t, models.CodeEntryNotFound, resp.Code)
}

func TestAnalyzeRouteReportsRetryableFailure(t *testing.T) {
	s := newTestServer(t)
	s.gen.err = &models.GenerationBackendError{StatusCode: 503, Err: errors.New("overloaded")}
	s.entries.entries = append(s.entries.entries, models.Entry{ID: "e1", UserID: "u1", Body: "note", CreatedAt: time.Now()})

	resp := s.do(t, "POST", "/api/insights/u1/analyze/e1", "")

	assert.Equal(t, models.CodeGenerationError, resp.Code)
	assert.JSONEq(t, `{"retryable":true}`, string(resp.Data))

	list := s.do(t, "GET", "/api/insights/u1", "")
	assert.Empty(t, decodeData[[]models.StoredInsight](t, list))
}

func TestInsightLifecycleRoutes(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, "POST", "/api/insights/u1", `{
		"source_text": "I love Spanish lessons and guitar practice",
		"payload": {"kind": "synthesis", "synthesis": {"title": "Month in review", "content": "Practice paid off"}},
		"themes": ["Music"]
	}`)
	require.Equal(t, models.CodeSuccess, resp.Code, resp.Message)
	id := decodeData[models.SaveInsightResponse](t, resp).ID
	require.NotEmpty(t, id)

	resp = s.do(t, "GET", "/api/insights/u1/search?q=SPANISH", "")
	found := decodeData[[]models.StoredInsight](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	resp = s.do(t, "POST", "/api/insights/u1/"+id+"/star", "")
	assert.True(t, decodeData[models.ToggleStarResponse](t, resp).Starred)

	resp = s.do(t, "GET", "/api/insights/u1?starred=true&theme=music", "")
	assert.Len(t, decodeData[[]models.StoredInsight](t, resp), 1)

	resp = s.do(t, "POST", "/api/insights/u1/"+id+"/actions/calendar", `{"payload":{"title":"Lesson","at":"2026-06-01T10:00:00Z"}}`)
	require.Equal(t, models.CodeSuccess, resp.Code, resp.Message)
	resp = s.do(t, "POST", "/api/insights/u1/"+id+"/actions/fax", "")
	assert.Equal(t, models.CodeInvalidParams, resp.Code)

	resp = s.do(t, "PATCH", "/api/insights/u1/"+id, `{"themes":["music","language"]}`)
	require.Equal(t, models.CodeSuccess, resp.Code, resp.Message)
	updated := decodeData[models.StoredInsight](t, resp)
	assert.Equal(t, []string{"music", "language"}, updated.Themes)
	assert.Len(t, updated.UserActions.CalendarEvents, 1)

	resp = s.do(t, "POST", "/api/insights/u1/"+id+"/archive", "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	resp = s.do(t, "PATCH", "/api/insights/u1/"+id, `{"archived":false}`)
	assert.Equal(t, models.CodeInsightArchived, resp.Code)

	resp = s.do(t, "GET", "/api/insights/u1", "")
	assert.Empty(t, decodeData[[]models.StoredInsight](t, resp))
	resp = s.do(t, "GET", "/api/insights/u1?archived=true", "")
	assert.Len(t, decodeData[[]models.StoredInsight](t, resp), 1)

	resp = s.do(t, "DELETE", "/api/insights/u1/"+id, "")
	require.Equal(t, models.CodeSuccess, resp.Code)
	resp = s.do(t, "GET", "/api/insights/u1/"+id, "")
	assert.Equal(t, models.CodeInsightNotFound, resp.Code)
}

func TestInsightRoutesRejectBadInput(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, "GET", "/api/insights/u1?limit=lots", "")
	assert.Equal(t, models.CodeInvalidParams, resp.Code)

	resp = s.do(t, "POST", "/api/insights/u1", `{not json`)
	assert.Equal(t, models.CodeInvalidParams, resp.Code)

	resp = s.do(t, "POST", "/api/insights/u1", `{"source_text":"x","payload":{"kind":"basic"}}`)
	assert.Equal(t, models.CodeInvalidParams, resp.Code)

	resp = s.do(t, "GET", "/api/insights/..bad/search?q=x", "")
	assert.Equal(t, models.CodeInvalidParams, resp.Code)
}
