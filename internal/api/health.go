package api

import (
	"context"
	"fmt"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog/log"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

// Health probes the backend. A nil error means the backend answered 2xx.
func (c *Client) Health(ctx context.Context) error {
	endpoint := c.endpoint(models.EndpointHealth)
	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, cancel, err := c.do(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("health probe failed")
		return apierrors.NewNetworkError(models.EndpointHealth, err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, models.EndpointHealth)
	}

	log.Debug().Str("endpoint", endpoint).Msg("backend reachable")
	return nil
}
