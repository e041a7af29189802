package influxdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// QueryFlux executes a Flux query against InfluxDB.
//
// The caller owns the returned result and must drain it (Next/Err) so the
// underlying connection can be reused.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - flux: Flux query string
//
// Returns:
//   - *api.QueryTableResult: Streaming query result
//   - error: nil on success, otherwise the query error
func (c *Client) QueryFlux(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(flux) == "" {
		return nil, fmt.Errorf("influxdb query is required")
	}

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return result, nil
}
