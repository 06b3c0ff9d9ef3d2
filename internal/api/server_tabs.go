package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tubetally/tubetally/internal/syncer"
)

func registerTabHandlers(api huma.API, svc Service) {
	type tabsOutput struct {
		Body syncer.RefreshResult
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List video tabs with metadata and totals", Description: "Runs a full reconciliation cycle over the open video tabs and returns each tab's best-known metadata plus the aggregate totals.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			result, err := svc.Refresh(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body = *result
			if out.Body.Tabs == nil {
				out.Body.Tabs = []syncer.TabSnapshot{}
			}
			return out, nil
		})
}

func registerSyncHandlers(api huma.API, svc Service) {
	type syncInput struct {
		Body struct {
			Requests []syncer.SyncRequest `json:"requests" doc:"Tabs whose videos should be resolved via the slow path"`
		}
	}
	type syncOutput struct {
		Body struct {
			Status string        `json:"status"`
			Detail syncer.Status `json:"detail"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "request-sync", Method: http.MethodPost, Path: "/api/v1/sync", Summary: "Resolve background tabs via the slow path", Description: "Fetches watch pages sequentially with a fixed delay. Requests already satisfied by a fresh cache entry never touch the network. An upstream rate-limit signal aborts the remainder of the batch.", Tags: []string{"Sync"}},
		func(ctx context.Context, input *syncInput) (*syncOutput, error) {
			if len(input.Body.Requests) == 0 {
				return nil, huma.Error400BadRequest("requests must not be empty")
			}
			if err := svc.RequestSync(ctx, input.Body.Requests); err != nil {
				return nil, mapErr(err)
			}
			out := &syncOutput{}
			out.Body.Status = "completed"
			out.Body.Detail = svc.Status()
			return out, nil
		})

	type statusOutput struct {
		Body syncer.Status
	}
	huma.Register(api, huma.Operation{OperationID: "sync-status", Method: http.MethodGet, Path: "/api/v1/sync/status", Summary: "Get sync coordinator status", Tags: []string{"Sync"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = svc.Status()
			return out, nil
		})
}
