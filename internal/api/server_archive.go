package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/medirunner/console/internal/fleet"
	"github.com/medirunner/console/internal/panorama"
)

func registerFleetHandlers(api huma.API, svc Service) {
	type listRobotsOutput struct {
		Body struct {
			Robots []fleet.Robot `json:"robots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-robots", Method: http.MethodGet, Path: "/api/v1/robots", Summary: "List known robots", Tags: []string{"Robots"}},
		func(ctx context.Context, input *struct{}) (*listRobotsOutput, error) {
			robots, err := svc.ListRobots(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRobotsOutput{}
			out.Body.Robots = robots
			if out.Body.Robots == nil {
				out.Body.Robots = []fleet.Robot{}
			}
			return out, nil
		})

	type robotOutput struct {
		Body fleet.Robot
	}
	huma.Register(api, huma.Operation{OperationID: "get-robot", Method: http.MethodGet, Path: "/api/v1/robots/{robot_id}", Summary: "Get one robot's status", Tags: []string{"Robots"}},
		func(ctx context.Context, input *struct {
			RobotID string `path:"robot_id"`
		}) (*robotOutput, error) {
			r, err := svc.GetRobot(ctx, input.RobotID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &robotOutput{Body: r}, nil
		})
}

func registerPanoramaHandlers(api huma.API, svc Service) {
	type listPanoramasOutput struct {
		Body struct {
			Panoramas []panorama.Meta `json:"panoramas"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-panoramas", Method: http.MethodGet, Path: "/api/v1/panoramas", Summary: "List archived panoramas (newest first)", Tags: []string{"Panoramas"}},
		func(ctx context.Context, input *struct {
			RobotID string `query:"robot_id" doc:"Only this robot's captures"`
		}) (*listPanoramasOutput, error) {
			metas, err := svc.ListPanoramas(ctx, input.RobotID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listPanoramasOutput{}
			out.Body.Panoramas = metas
			if out.Body.Panoramas == nil {
				out.Body.Panoramas = []panorama.Meta{}
			}
			return out, nil
		})

	type panoramaIDInput struct {
		PanoramaID string `path:"panorama_id"`
	}
	type panoramaOutput struct {
		Body panorama.Meta
	}
	huma.Register(api, huma.Operation{OperationID: "get-panorama", Method: http.MethodGet, Path: "/api/v1/panoramas/{panorama_id}", Summary: "Get panorama metadata", Tags: []string{"Panoramas"}},
		func(ctx context.Context, input *panoramaIDInput) (*panoramaOutput, error) {
			meta, err := svc.GetPanorama(ctx, input.PanoramaID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &panoramaOutput{Body: meta}, nil
		})

	type panoramaImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-panorama-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/panoramas/{panorama_id}/image",
		Summary:     "Get panorama image",
		Tags:        []string{"Panoramas"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Panorama image",
				Content: map[string]*huma.MediaType{
					"image/jpeg": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *panoramaIDInput) (*panoramaImageOutput, error) {
		data, mime, err := svc.ReadPanoramaImage(ctx, input.PanoramaID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &panoramaImageOutput{ContentType: mime, Body: data}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "delete-panorama", Method: http.MethodDelete, Path: "/api/v1/panoramas/{panorama_id}", Summary: "Delete an archived panorama", Tags: []string{"Panoramas"}},
		func(ctx context.Context, input *panoramaIDInput) (*deletedOutput, error) {
			if err := svc.DeletePanorama(ctx, input.PanoramaID); err != nil {
				return nil, mapErr(err)
			}
			out := &deletedOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}
