package kiwoomApi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyopark/stock_master_bridge/config"
)

func newTestApi(serverURL string) *KiwoomApi {
	cfg := &config.Config{Kiwoom: config.Kiwoom{Timeout: 5 * time.Second}}
	return New(cfg, config.Profile{HostURL: serverURL})
}

func TestIssueToken(t *testing.T) {
	t.Run("documented field names", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth2/token" {
				t.Errorf("path = %q, want /oauth2/token", r.URL.Path)
			}
			if got := r.Header.Get("api-id"); got != "au10001" {
				t.Errorf("api-id = %q, want au10001", got)
			}
			w.Write([]byte(`{"token_type":"Bearer","token":"tok-1"}`))
		}))
		defer srv.Close()

		tokenType, token, err := newTestApi(srv.URL).IssueToken(context.Background(), "key", "secret")
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if tokenType != "Bearer" || token != "tok-1" {
			t.Errorf("IssueToken() = (%q, %q), want (Bearer, tok-1)", tokenType, token)
		}
	})

	t.Run("legacy field names", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"tok-2"}`))
		}))
		defer srv.Close()

		tokenType, token, err := newTestApi(srv.URL).IssueToken(context.Background(), "key", "secret")
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if tokenType != "Bearer" {
			t.Errorf("tokenType = %q, want Bearer default", tokenType)
		}
		if token != "tok-2" {
			t.Errorf("token = %q, want tok-2", token)
		}
	})

	t.Run("error status carries fields not secrets", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client","error_description":"bad key"}`))
		}))
		defer srv.Close()

		_, _, err := newTestApi(srv.URL).IssueToken(context.Background(), "super-secret-key", "super-secret")
		if err == nil {
			t.Fatal("IssueToken() error = nil, want AuthError")
		}

		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("error type = %T, want *AuthError", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
		}
		if strings.Contains(err.Error(), "super-secret") {
			t.Errorf("error message leaks credentials: %q", err.Error())
		}
		if len(authErr.Fields) != 2 {
			t.Errorf("Fields = %v, want the two response keys", authErr.Fields)
		}
	})

	t.Run("missing token field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"return_code":0,"return_msg":"ok"}`))
		}))
		defer srv.Close()

		_, _, err := newTestApi(srv.URL).IssueToken(context.Background(), "key", "secret")
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("error = %v, want *AuthError", err)
		}
		if authErr.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", authErr.StatusCode)
		}
	})

	t.Run("retries transient 5xx", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"token":"tok-3"}`))
		}))
		defer srv.Close()

		_, token, err := newTestApi(srv.URL).IssueToken(context.Background(), "key", "secret")
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if token != "tok-3" {
			t.Errorf("token = %q, want tok-3", token)
		}
		if got := attempts.Load(); got != 2 {
			t.Errorf("attempts = %d, want 2", got)
		}
	})

	t.Run("does not retry 400", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad_request"}`))
		}))
		defer srv.Close()

		if _, _, err := newTestApi(srv.URL).IssueToken(context.Background(), "key", "secret"); err == nil {
			t.Fatal("IssueToken() error = nil, want AuthError")
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})
}

func TestFetchStockList(t *testing.T) {
	t.Run("known wrapper key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("api-id"); got != "ka10099" {
				t.Errorf("api-id = %q, want ka10099", got)
			}
			if got := r.Header.Get("authorization"); got != "Bearer tok" {
				t.Errorf("authorization = %q, want %q", got, "Bearer tok")
			}
			w.Write([]byte(`{"list":[{"code":"005930","name":"삼성전자"}]}`))
		}))
		defer srv.Close()

		records, err := newTestApi(srv.URL).FetchStockList(context.Background(), "Bearer", "tok", "0")
		if err != nil {
			t.Fatalf("FetchStockList() error = %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("len(records) = %d, want 1", len(records))
		}
		if records[0]["code"] != "005930" {
			t.Errorf("records[0][code] = %v, want 005930", records[0]["code"])
		}
	})

	t.Run("unknown wrapper key is scanned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"return_code":0,"weird_wrapper":[{"code":"035420","name":"NAVER"}]}`))
		}))
		defer srv.Close()

		records, err := newTestApi(srv.URL).FetchStockList(context.Background(), "Bearer", "tok", "10")
		if err != nil {
			t.Fatalf("FetchStockList() error = %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("len(records) = %d, want 1", len(records))
		}
	})

	t.Run("nothing list-shaped degrades to empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"return_code":0,"return_msg":"ok"}`))
		}))
		defer srv.Close()

		records, err := newTestApi(srv.URL).FetchStockList(context.Background(), "Bearer", "tok", "50")
		if err != nil {
			t.Fatalf("FetchStockList() error = %v", err)
		}
		if len(records) != 0 {
			t.Errorf("len(records) = %d, want 0", len(records))
		}
	})

	t.Run("invalid json degrades to empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		records, err := newTestApi(srv.URL).FetchStockList(context.Background(), "Bearer", "tok", "8")
		if err != nil {
			t.Fatalf("FetchStockList() error = %v", err)
		}
		if len(records) != 0 {
			t.Errorf("len(records) = %d, want 0", len(records))
		}
	})

	t.Run("http error is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		if _, err := newTestApi(srv.URL).FetchStockList(context.Background(), "Bearer", "tok", "0"); err == nil {
			t.Fatal("FetchStockList() error = nil, want error")
		}
	})
}

func TestExtractRecordsPrefersKnownKeys(t *testing.T) {
	data := map[string]any{
		"aaa":  []any{map[string]any{"code": "WRONG"}},
		"list": []any{map[string]any{"code": "RIGHT"}},
	}
	records := extractRecords(data)
	if len(records) != 1 || records[0]["code"] != "RIGHT" {
		t.Errorf("extractRecords() = %v, want the list wrapper", records)
	}
}
