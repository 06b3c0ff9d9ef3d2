package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tubetally/tubetally/internal/metacache"
	"github.com/tubetally/tubetally/internal/scrape"
	"github.com/tubetally/tubetally/internal/syncer"
	"github.com/tubetally/tubetally/internal/urlkey"
)

func registerCacheHandlers(api huma.API, svc Service) {
	type cacheOutput struct {
		Body struct {
			Entries map[string]syncer.Metadata `json:"entries"`
			Count   int                        `json:"count"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-cache", Method: http.MethodGet, Path: "/api/v1/cache", Summary: "Dump the metadata cache", Tags: []string{"Cache"}},
		func(ctx context.Context, input *struct{}) (*cacheOutput, error) {
			out := &cacheOutput{}
			out.Body.Entries = svc.CacheSnapshot()
			if out.Body.Entries == nil {
				out.Body.Entries = map[string]syncer.Metadata{}
			}
			out.Body.Count = len(out.Body.Entries)
			return out, nil
		})

	type clearOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-cache", Method: http.MethodDelete, Path: "/api/v1/cache", Summary: "Clear the metadata cache", Description: "Drops all cached metadata. Preferences are kept.", Tags: []string{"Cache"}},
		func(ctx context.Context, input *struct{}) (*clearOutput, error) {
			svc.ClearCache()
			out := &clearOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})

	type metadataInput struct {
		Body struct {
			URL         string  `json:"url" doc:"Video URL in any recognized form; stored under its canonical form"`
			Title       string  `json:"title,omitempty"`
			ChannelName string  `json:"channel_name,omitempty"`
			Seconds     int     `json:"seconds,omitempty" doc:"Video duration in seconds; zero means unknown"`
			CurrentTime float64 `json:"current_time,omitempty"`
			IsLive      bool    `json:"is_live,omitempty"`
		}
	}
	type metadataOutput struct {
		Body struct {
			Key      string          `json:"key"`
			Metadata syncer.Metadata `json:"metadata"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "push-metadata", Method: http.MethodPost, Path: "/api/v1/cache/metadata", Summary: "Push a metadata update", Description: "Merges externally scraped metadata into the cache. A zero duration never overwrites a known one unless the entry is marked live.", Tags: []string{"Cache"}},
		func(ctx context.Context, input *metadataInput) (*metadataOutput, error) {
			if !urlkey.IsVideoURL(input.Body.URL) {
				return nil, huma.Error400BadRequest("url does not name a video")
			}
			meta := svc.RequestMetadataUpdate(input.Body.URL, scrape.Result{
				Title:       input.Body.Title,
				ChannelName: input.Body.ChannelName,
				Seconds:     input.Body.Seconds,
				CurrentTime: input.Body.CurrentTime,
				IsLive:      input.Body.IsLive,
			})
			out := &metadataOutput{}
			out.Body.Key = urlkey.Canonicalize(input.Body.URL)
			out.Body.Metadata = meta
			return out, nil
		})
}

func registerPrefsHandlers(api huma.API, svc Service) {
	type prefsOutput struct {
		Body metacache.Prefs
	}
	huma.Register(api, huma.Operation{OperationID: "get-prefs", Method: http.MethodGet, Path: "/api/v1/prefs", Summary: "Get preferences", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *struct{}) (*prefsOutput, error) {
			out := &prefsOutput{}
			out.Body = svc.Prefs()
			return out, nil
		})

	type putPrefsInput struct {
		Body metacache.Prefs
	}
	huma.Register(api, huma.Operation{OperationID: "put-prefs", Method: http.MethodPut, Path: "/api/v1/prefs", Summary: "Replace preferences", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *putPrefsInput) (*prefsOutput, error) {
			svc.SetPrefs(input.Body)
			out := &prefsOutput{}
			out.Body = svc.Prefs()
			return out, nil
		})
}

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}
