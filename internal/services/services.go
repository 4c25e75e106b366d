// package services defines the clients the gateway uses to reach upstream HTTP APIs
package services

import (
	"context"
)

// Upstream forwards verified requests to the music API and reports its health.
type Upstream interface {
	Do(ctx context.Context, req APIRequest) (*APIResponse, error)
	Ping(ctx context.Context) error
}

var _ Upstream = (*APIService)(nil)
