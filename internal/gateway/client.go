package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/DmitryTakmakov/mailout-service/internal/config"
)

// Client talks to the notification gateway. The response code is the
// delivery outcome consumed by the reconciler; a transport error means the
// gateway was never reached and the attempt should be retried by the caller.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		BaseURL: cfg.GatewayURL,
		Token:   cfg.GatewayToken,
		HTTP:    &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

type sendRequest struct {
	ID    int    `json:"id"`
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// Send posts one message and returns the gateway's status code and body.
func (c *Client) Send(ctx context.Context, deliveryID int, phone, text string) (int, string, error) {
	payload, err := json.Marshal(sendRequest{ID: deliveryID, Phone: phone, Text: text})
	if err != nil {
		return 0, "", err
	}

	url := fmt.Sprintf("%s/v1/send/%d", c.BaseURL, deliveryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
