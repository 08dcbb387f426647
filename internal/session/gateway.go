package session

import (
	"context"

	"github.com/medirunner/console/internal/robotws"
)

// GatewayDialer dials the robot gateway at BaseURL, adding the robotId query parameter.
type GatewayDialer struct {
	BaseURL string
}

func (d GatewayDialer) Dial(ctx context.Context, robotID string) (Socket, error) {
	conn, err := robotws.Dialer{BaseURL: d.BaseURL}.Dial(ctx, robotID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
