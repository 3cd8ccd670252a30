package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "thought_engine/docs" // 导入 swagger 文档
	"thought_engine/services"
)

func RegisterRoutes(r chi.Router, engine *services.Engine) {
	// Swagger 文档
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // Swagger JSON 的 URL
	))

	with := func(h func(http.ResponseWriter, *http.Request, *services.Engine)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			h(w, r, engine)
		}
	}

	r.Post("/api/profile/{userID}/build", with(BuildProfileHandler))
	r.Get("/api/profile/{userID}", with(GetProfileHandler))
	r.Get("/api/progression/{userID}", with(GetProgressionHandler))

	r.Route("/api/insights/{userID}", func(r chi.Router) {
		r.Post("/", with(SaveInsightHandler))
		r.Get("/", with(QueryInsightsHandler))
		r.Get("/search", with(SearchInsightsHandler))
		r.Post("/analyze/{entryID}", with(AnalyzeEntryHandler))

		r.Get("/{id}", with(GetInsightHandler))
		r.Patch("/{id}", with(UpdateInsightHandler))
		r.Delete("/{id}", with(DeleteInsightHandler))
		r.Post("/{id}/star", with(ToggleStarHandler))
		r.Post("/{id}/archive", with(ArchiveInsightHandler))
		r.Post("/{id}/actions/{kind}", with(TrackActionHandler))
	})
}
