package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/medirunner/console/internal/logbuf"
)

func registerSessionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/session", Summary: "Get connection state", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return &statusOutput{Body: svc.State(ctx)}, nil
		})

	type connectInput struct {
		Body struct {
			RobotID string `json:"robot_id" doc:"Robot to connect to. Switching robots closes the current socket." example:"robot-01"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "connect",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/connect",
		Summary:     "Connect to a robot",
		Description: "Opens the console WebSocket for robot_id. A no-op when already connected or connecting to the same robot.",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *connectInput) (*statusOutput, error) {
		st, err := svc.Connect(ctx, input.Body.RobotID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &statusOutput{Body: st}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "disconnect", Method: http.MethodPost, Path: "/api/v1/session/disconnect", Summary: "Disconnect from the robot", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return &statusOutput{Body: svc.Disconnect(ctx)}, nil
		})

	type pingOutput struct {
		Body struct {
			Timestamp int64 `json:"timestamp" doc:"Ping timestamp (epoch ms); the matching pong echoes it"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/ping",
		Summary:     "Ping the robot",
		Description: "Sends a ping. The round trip time is reported later in the log feed.",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*pingOutput, error) {
		ts, err := svc.Ping(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &pingOutput{}
		out.Body.Timestamp = ts
		return out, nil
	})

	type sentOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "send",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/send",
		Summary:     "Send a raw message",
		Description: "Serialises the body to JSON and writes it to the robot socket. robotId defaults to the current robot.",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{ Body map[string]any }) (*sentOutput, error) {
		if err := svc.Send(ctx, input.Body); err != nil {
			return nil, mapErr(err)
		}
		out := &sentOutput{}
		out.Body.Status = "sent"
		return out, nil
	})

	type commandInput struct {
		Body struct {
			Action string         `json:"action" doc:"Robot action" example:"forward"`
			Params map[string]any `json:"params,omitempty" doc:"Extra payload fields, e.g. speed for set_speed"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "send-command", Method: http.MethodPost, Path: "/api/v1/session/command", Summary: "Send a robot command", Tags: []string{"Session"}},
		func(ctx context.Context, input *commandInput) (*sentOutput, error) {
			if err := svc.Command(ctx, input.Body.Action, input.Body.Params); err != nil {
				return nil, mapErr(err)
			}
			out := &sentOutput{}
			out.Body.Status = "sent"
			return out, nil
		})

	type logsOutput struct {
		Body struct {
			Logs []logbuf.Entry `json:"logs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-logs", Method: http.MethodGet, Path: "/api/v1/session/logs", Summary: "Get the session log (oldest first)", Tags: []string{"Logs"}},
		func(ctx context.Context, input *struct{}) (*logsOutput, error) {
			out := &logsOutput{}
			out.Body.Logs = svc.Logs(ctx)
			if out.Body.Logs == nil {
				out.Body.Logs = []logbuf.Entry{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-logs", Method: http.MethodDelete, Path: "/api/v1/session/logs", Summary: "Clear the session log", Tags: []string{"Logs"}},
		func(ctx context.Context, input *struct{}) (*deletedOutput, error) {
			svc.ClearLogs(ctx)
			out := &deletedOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})
}
