// Package backendApi is the gateway to the destination security master
// service: a liveness probe and the bulk upsert call.
package backendApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/utils"
)

const (
	healthPath = "/health"
	upsertPath = "/api/internal/stocks:upsert"

	healthTimeout = 2 * time.Second
	upsertTimeout = 30 * time.Second

	retryCount    = 3
	retryWaitTime = 500 * time.Millisecond
	retryMaxWait  = 8 * time.Second
)

// UpsertError is a transport or HTTP failure during the upsert call.
// StatusCode is 0 when the request never produced a response.
type UpsertError struct {
	StatusCode int
	Err        error
}

func (e *UpsertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend upsert failed status=%d: %s", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend upsert failed status=%d", e.StatusCode)
}

func (e *UpsertError) Unwrap() error { return e.Err }

type BackendApi struct {
	client       *resty.Client
	healthClient *resty.Client
}

func New(baseURL string) *BackendApi {
	base := strings.TrimRight(baseURL, "/")

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(upsertTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return isRetryableStatus(r.StatusCode())
		})

	// The probe deliberately has no retry: a slow or flapping backend is
	// an unhealthy backend for this run.
	healthClient := resty.New().
		SetBaseURL(base).
		SetTimeout(healthTimeout)

	return &BackendApi{client: client, healthClient: healthClient}
}

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

// CheckHealth reports liveness of the destination. Healthy means exactly
// HTTP 200 with {"status":"ok"}; every other outcome, including transport
// errors and garbage bodies, is unhealthy. It never returns an error.
func (a *BackendApi) CheckHealth(ctx context.Context) bool {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BackendApi.CheckHealth"

	slog.Debug("CheckHealth start", slog.String("rqID", rqID), slog.String("op", op))

	resp, err := a.healthClient.R().SetContext(ctx).Get(healthPath)
	if err != nil {
		slog.Debug("health probe failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return false
	}

	if resp.StatusCode() != http.StatusOK {
		slog.Debug("health probe non-200", slog.String("rqID", rqID), slog.String("op", op), slog.Int("status", resp.StatusCode()))
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false
	}

	return body.Status == "ok"
}

// UpsertSecurities pushes one canonical batch to the destination and
// returns its reconciliation counters. The destination applies the batch
// all-or-nothing, so a failed call leaves no partial state behind.
func (a *BackendApi) UpsertSecurities(ctx context.Context, items []model.Security, bridgeKey string) (model.UpsertResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BackendApi.UpsertSecurities"

	slog.Debug("UpsertSecurities start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("items", len(items)))

	result := model.UpsertResult{}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Bridge-Key", bridgeKey).
		SetBody(map[string]any{"items": items}).
		Post(upsertPath)

	if err != nil {
		slog.Error("error while dialing backend upsert endpoint", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.UpsertResult{}, &UpsertError{Err: err}
	}

	if resp.IsError() {
		slog.Error("backend upsert returned error status",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.Int("status", resp.StatusCode()),
		)
		return model.UpsertResult{}, &UpsertError{StatusCode: resp.StatusCode()}
	}

	// Decode the body unconditionally: the counters must not depend on the
	// destination labelling its response with a JSON content type.
	if unmarshalErr := json.Unmarshal(resp.Body(), &result); unmarshalErr != nil {
		slog.Error("can't unmarshal backend upsert response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", unmarshalErr.Error()))
		return model.UpsertResult{}, &UpsertError{StatusCode: resp.StatusCode(), Err: unmarshalErr}
	}

	slog.Debug("UpsertSecurities completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int("received", result.Received),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
	)

	return result, nil
}
