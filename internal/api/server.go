package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medirunner/console/internal/fleet"
	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/panorama"
	"github.com/medirunner/console/internal/protocol"
	"github.com/medirunner/console/internal/relay"
	"github.com/medirunner/console/internal/session"
)

type Service interface {
	State(ctx context.Context) session.Status
	Connect(ctx context.Context, robotID string) (session.Status, error)
	Disconnect(ctx context.Context) session.Status
	Ping(ctx context.Context) (int64, error)
	Send(ctx context.Context, msg map[string]any) error
	Command(ctx context.Context, action string, params map[string]any) error
	RequestPanoramic(ctx context.Context) error
	Logs(ctx context.Context) []logbuf.Entry
	ClearLogs(ctx context.Context)
	VisionFrame(ctx context.Context) (protocol.VisionFrame, error)
	PanoramicImage(ctx context.Context) (protocol.PanoramicImage, error)
	ClearPanoramicImage(ctx context.Context)

	ListRobots(ctx context.Context) ([]fleet.Robot, error)
	GetRobot(ctx context.Context, robotID string) (fleet.Robot, error)

	ListPanoramas(ctx context.Context, robotID string) ([]panorama.Meta, error)
	GetPanorama(ctx context.Context, id string) (panorama.Meta, error)
	ReadPanoramaImage(ctx context.Context, id string) ([]byte, string, error)
	DeletePanorama(ctx context.Context, id string) error
}

// Options wires the non-huma routes. Both are optional.
type Options struct {
	// Events backs the /api/v1/events SSE stream.
	Events relay.Source
	// Metrics is served on /metrics.
	Metrics http.Handler
}

type statusOutput struct {
	Body session.Status
}

type deletedOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("MediRunner Console API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", htmlPage(docsHTML))
	router.Get("/docs/events", htmlPage(eventsDocsHTML))
	if opts.Events != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Events))
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	registerHealthHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerMediaHandlers(api, svc)
	registerFleetHandlers(api, svc)
	registerPanoramaHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status    string `json:"status"`
			Connected bool   `json:"connected"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Connected = svc.State(ctx).Connected
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *session.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case session.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case session.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case session.CodeNoRobot, session.CodeNotConnected:
			return huma.Error409Conflict(coded.Message)
		case session.CodeDialFailed, session.CodeSendFailed:
			return huma.Error502BadGateway(coded.Error())
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
