package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wei/internal"
	"wei/internal/config"
)

// Client queries purchase-requirement records from the procurement
// backend. Requests are rate limited and retried on transient statuses;
// the backend's own concurrency guard ("previous identical request
// still running") gets one extra attempt after a 5 second wait.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        *slog.Logger
	sleep      func(time.Duration)
}

type apiResponse struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ERPTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.ERPRateLimitRPS),
		log:        log,
		sleep:      time.Sleep,
	}
}

// SearchRecords returns the open purchase-requirement rows matching a
// style code. A nil slice with nil error means the search came back
// empty.
func (c *Client) SearchRecords(ctx context.Context, styleCode string) ([]internal.SystemRecord, error) {
	body, err := c.fetchJSON(ctx, "orderreq/search", map[string]string{"keyword": styleCode})
	if err != nil {
		return nil, err
	}

	var records []internal.SystemRecord
	if len(body) > 0 {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	}
	c.log.Info("erp.search.ok", "style", styleCode, "records", len(records))
	return records, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.ERPToken) == "" {
		return nil, errors.New("missing ERP_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.ERPBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	busyRetried := false
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.ERPToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.sleep(backoff)
				lastErr = fmt.Errorf("erp status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("erp api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if isBusyMessage(apiResp.Msg) {
			if busyRetried {
				return nil, fmt.Errorf("erp busy: %s", apiResp.Msg)
			}
			busyRetried = true
			c.log.Warn("erp.fetch.busy", "msg", apiResp.Msg)
			c.sleep(5 * time.Second)
			continue
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("erp request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isBusyMessage(msg string) bool {
	return strings.Contains(msg, "上一个相同请求未结束") || strings.Contains(msg, "请勿重复请求")
}
