package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/medirunner/console/internal/protocol"
)

func registerMediaHandlers(api huma.API, svc Service) {
	type visionOutput struct {
		Body protocol.VisionFrame
	}
	huma.Register(api, huma.Operation{OperationID: "get-vision-frame", Method: http.MethodGet, Path: "/api/v1/session/vision", Summary: "Get the latest camera frame", Tags: []string{"Media"}},
		func(ctx context.Context, input *struct{}) (*visionOutput, error) {
			frame, err := svc.VisionFrame(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &visionOutput{Body: frame}, nil
		})

	type panoramicOutput struct {
		Body protocol.PanoramicImage
	}
	huma.Register(api, huma.Operation{OperationID: "get-panoramic-image", Method: http.MethodGet, Path: "/api/v1/session/panoramic", Summary: "Get the last panoramic image", Tags: []string{"Media"}},
		func(ctx context.Context, input *struct{}) (*panoramicOutput, error) {
			img, err := svc.PanoramicImage(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &panoramicOutput{Body: img}, nil
		})

	type requestedOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "request-panoramic",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/panoramic",
		Summary:     "Request a panoramic capture",
		Description: "Sends the panoramic command. The image arrives on the panoramic_image feed.",
		Tags:        []string{"Media"},
	}, func(ctx context.Context, input *struct{}) (*requestedOutput, error) {
		if err := svc.RequestPanoramic(ctx); err != nil {
			return nil, mapErr(err)
		}
		out := &requestedOutput{}
		out.Body.Status = "requested"
		return out, nil
	})

	huma.Register(api, huma.Operation{OperationID: "clear-panoramic-image", Method: http.MethodDelete, Path: "/api/v1/session/panoramic", Summary: "Clear the panoramic image", Tags: []string{"Media"}},
		func(ctx context.Context, input *struct{}) (*deletedOutput, error) {
			svc.ClearPanoramicImage(ctx)
			out := &deletedOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})
}
