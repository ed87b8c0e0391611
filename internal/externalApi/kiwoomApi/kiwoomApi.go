package kiwoomApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/utils"
)

const (
	tokenPath   = "/oauth2/token"
	stkInfoPath = "/api/dostk/stkinfo"

	apiIDToken     = "au10001"
	apiIDStockList = "ka10099"

	retryCount    = 3
	retryWaitTime = 500 * time.Millisecond
	retryMaxWait  = 8 * time.Second
)

// AuthError signals a failed or malformed token exchange. It carries the
// HTTP status and the top-level response field names, never the credentials.
type AuthError struct {
	StatusCode int
	Fields     []string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kiwoom token exchange failed: status=%d keys=[%s]", e.StatusCode, strings.Join(e.Fields, ","))
}

type KiwoomApi struct {
	client *resty.Client
}

func New(cfg *config.Config, profile config.Profile) *KiwoomApi {
	client := resty.New().
		SetDebug(cfg.Kiwoom.Debug).
		SetTimeout(cfg.Kiwoom.Timeout).
		SetBaseURL(profile.HostURL).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return isRetryableStatus(r.StatusCode())
		})
	return &KiwoomApi{client: client}
}

// 429 and transient 5xx only; other 4xx are not worth a second attempt.
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IssueToken performs the client-credentials handshake and returns the
// token type and token. Kiwoom varies the field names between environments,
// so both the documented and the legacy variants are accepted.
func (a *KiwoomApi) IssueToken(ctx context.Context, appKey, appSecret string) (tokenType, token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "KiwoomApi.IssueToken"

	slog.Debug("IssueToken start", slog.String("rqID", rqID), slog.String("op", op))

	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     appKey,
		"secretkey":  appSecret,
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetHeader("api-id", apiIDToken).
		SetBody(body).
		Post(tokenPath)

	if err != nil {
		slog.Error("error while dialing Kiwoom token endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", "", fmt.Errorf("kiwoom token request: %w", err)
	}

	data := map[string]any{}
	if unmarshalErr := json.Unmarshal(resp.Body(), &data); unmarshalErr != nil {
		data = map[string]any{}
	}

	if resp.IsError() {
		slog.Error("Kiwoom token endpoint returned error status",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.Int("status", resp.StatusCode()),
		)
		return "", "", &AuthError{StatusCode: resp.StatusCode(), Fields: fieldNames(data)}
	}

	tokenType = firstString(data, "token_type", "tokenType")
	if tokenType == "" {
		tokenType = "Bearer"
	}

	token = firstString(data, "token", "access_token", "accessToken")
	if token == "" {
		slog.Error("Kiwoom token response missing token field",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.Int("status", resp.StatusCode()),
			slog.Any("keys", fieldNames(data)),
		)
		return "", "", &AuthError{StatusCode: resp.StatusCode(), Fields: fieldNames(data)}
	}

	slog.Debug("IssueToken completed", slog.String("rqID", rqID), slog.String("op", op))

	return tokenType, token, nil
}

// FetchStockList fetches one market's raw listing. The wrapper key around
// the record list is unstable, so extraction falls back through the known
// aliases and finally a scan for any list of objects; nothing list-shaped
// degrades to an empty batch rather than an error.
func (a *KiwoomApi) FetchStockList(ctx context.Context, tokenType, token, marketType string) ([]map[string]any, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "KiwoomApi.FetchStockList"

	slog.Debug("FetchStockList start", slog.String("rqID", rqID), slog.String("op", op), slog.String("marketType", marketType))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetHeader("api-id", apiIDStockList).
		SetHeader("authorization", fmt.Sprintf("%s %s", tokenType, token)).
		SetBody(map[string]string{"mrkt_tp": marketType}).
		Post(stkInfoPath)

	if err != nil {
		slog.Error("error while dialing Kiwoom list endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, fmt.Errorf("kiwoom list request mrkt_tp=%s: %w", marketType, err)
	}

	if resp.IsError() {
		slog.Error("Kiwoom list endpoint returned error status",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.String("marketType", marketType),
			slog.Int("status", resp.StatusCode()),
		)
		return nil, fmt.Errorf("kiwoom list HTTP error mrkt_tp=%s status=%d", marketType, resp.StatusCode())
	}

	data := map[string]any{}
	if unmarshalErr := json.Unmarshal(resp.Body(), &data); unmarshalErr != nil {
		slog.Error("can't unmarshal Kiwoom list response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", unmarshalErr.Error()))
		return []map[string]any{}, nil
	}

	records := extractRecords(data)

	slog.Debug("FetchStockList completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("marketType", marketType),
		slog.Int("received", len(records)),
	)

	return records, nil
}

var listKeys = []string{"list", "items", "data", "output", "stkinfo"}

func extractRecords(data map[string]any) []map[string]any {
	for _, key := range listKeys {
		if records, ok := asRecordList(data[key]); ok {
			return records
		}
	}

	// No known wrapper key matched: take the first value that holds at
	// least one object.
	for _, key := range sortedKeys(data) {
		if records, ok := asRecordList(data[key]); ok && len(records) > 0 {
			return records
		}
	}

	return []map[string]any{}
}

func asRecordList(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if record, isObject := item.(map[string]any); isObject {
			records = append(records, record)
		}
	}
	return records, true
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func fieldNames(data map[string]any) []string {
	return sortedKeys(data)
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
