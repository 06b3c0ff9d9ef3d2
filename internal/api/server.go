// Package api exposes the tab metadata service over HTTP: tab listing with
// aggregate totals, background sync, cache inspection, and preferences.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tubetally/tubetally/internal/metacache"
	"github.com/tubetally/tubetally/internal/probe"
	"github.com/tubetally/tubetally/internal/scrape"
	"github.com/tubetally/tubetally/internal/syncer"
)

// Service is the surface the HTTP layer needs from the sync coordinator.
type Service interface {
	Refresh(ctx context.Context) (*syncer.RefreshResult, error)
	RequestSync(ctx context.Context, reqs []syncer.SyncRequest) error
	RequestMetadataUpdate(rawURL string, res scrape.Result) syncer.Metadata
	Status() syncer.Status
	CacheSnapshot() map[string]syncer.Metadata
	ClearCache()
	Prefs() metacache.Prefs
	SetPrefs(p metacache.Prefs)
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("TubeTally API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerTabHandlers(api, svc)
	registerSyncHandlers(api, svc)
	registerCacheHandlers(api, svc)
	registerPrefsHandlers(api, svc)
	registerHealthHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var probeErr *probe.CodedError
	if errors.As(err, &probeErr) {
		switch probeErr.Code {
		case probe.CodeValidation:
			return huma.Error400BadRequest(probeErr.Message)
		case probe.CodeTabNotFound:
			return huma.Error404NotFound(probeErr.Message)
		case probe.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(probeErr.Message)
		case probe.CodeCDPUnavailable:
			return huma.Error502BadGateway(probeErr.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", probeErr.Code, probeErr.Message))
		}
	}
	var scrapeErr *scrape.CodedError
	if errors.As(err, &scrapeErr) {
		switch scrapeErr.Code {
		case scrape.CodeRateLimited:
			return huma.Error429TooManyRequests(scrapeErr.Message)
		case scrape.CodeConsentWall:
			return huma.Error502BadGateway(scrapeErr.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", scrapeErr.Code, scrapeErr.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
