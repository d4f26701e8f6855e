// Package relay reports the latest outdoor sample to a secondary
// aggregation endpoint with a single GET request.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"meteo-station/internal/httpget"
	"meteo-station/internal/mailbox"
)

var ErrRejected = errors.New("relay returned no data")

type Client struct {
	get      httpget.Getter
	baseURL  string
	deviceID string
	logger   *slog.Logger
}

func New(get httpget.Getter, baseURL, deviceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		get:      get,
		baseURL:  baseURL,
		deviceID: strings.ToUpper(deviceID),
		logger:   logger,
	}
}

func (c *Client) URL(s mailbox.OutdoorSample) string {
	q := url.Values{}
	q.Set("ID", c.deviceID)
	q.Set("T1", strconv.FormatFloat(s.Temperature, 'f', 2, 64))
	q.Set("H1", strconv.FormatFloat(s.Humidity, 'f', 2, 64))

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// Send forwards s. An empty or sentinel response is ErrRejected.
func (c *Client) Send(ctx context.Context, s mailbox.OutdoorSample) error {
	if c.deviceID == "" {
		return fmt.Errorf("relay: no device id")
	}
	u := c.URL(s)
	body := c.get.Get(ctx, u)
	if httpget.IsNoData(body) {
		return ErrRejected
	}
	c.logger.Debug("relay accepted sample", "url", u, "response", strings.TrimSpace(body))
	return nil
}
