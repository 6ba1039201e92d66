package erp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"wei/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	cfg := config.Config{
		ERPBaseURL:      "https://erp.test/api",
		ERPToken:        "test",
		ERPRateLimitRPS: 1000,
		ERPTimeoutMs:    5000,
	}
	client := NewClient(cfg, nil)
	client.httpClient = &http.Client{Transport: rt}
	client.sleep = func(time.Duration) {}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSearchRecordsWithRetry(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/orderreq/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("keyword"); got != "T8821" {
			t.Fatalf("keyword = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("auth = %q", got)
		}
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusBadGateway, `{"error":"boom"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"msg":"","data":[{"Id":"r1","DBSupplierSpName":"杭州罗卡","TotalAmount":6250,"OrderReqCheckDate":"/Date(1773532800000)/"}]}`), nil
	})

	records, err := client.SearchRecords(context.Background(), "T8821")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "r1" {
		t.Fatalf("records = %+v", records)
	}
	if attempt != 2 {
		t.Fatalf("attempts = %d, want 2", attempt)
	}
}

func TestSearchRecordsBusyRetry(t *testing.T) {
	attempt := 0
	var slept []time.Duration
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusOK, `{"msg":"上一个相同请求未结束，请勿重复请求","data":null}`), nil
		}
		return jsonResponse(http.StatusOK, `{"msg":"","data":[]}`), nil
	})
	client.sleep = func(d time.Duration) { slept = append(slept, d) }

	records, err := client.SearchRecords(context.Background(), "T8821")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %+v", records)
	}
	if attempt != 2 {
		t.Fatalf("attempts = %d, want 2", attempt)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("slept = %v, want one 5s wait", slept)
	}
}

func TestSearchRecordsBusyTwiceFails(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"msg":"请勿重复请求","data":null}`), nil
	})

	if _, err := client.SearchRecords(context.Background(), "T8821"); err == nil {
		t.Fatal("expected error after repeated busy responses")
	}
}

func TestSearchRecordsMissingToken(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	client.cfg.ERPToken = ""

	if _, err := client.SearchRecords(context.Background(), "T8821"); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestSearchRecordsNonRetryableStatus(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return jsonResponse(http.StatusUnauthorized, `{"msg":"token expired"}`), nil
	})

	if _, err := client.SearchRecords(context.Background(), "T8821"); err == nil {
		t.Fatal("expected error for 401")
	}
	if attempt != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on 401)", attempt)
	}
}
