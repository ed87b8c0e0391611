package syncService

import (
	"context"
	"errors"
	"testing"

	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/backendApi"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/service"
)

type fakeSource struct {
	tokenErr   error
	fetchErr   map[string]error // per market type
	records    map[string][]map[string]any
	fetchCalls []string
}

func (f *fakeSource) IssueToken(ctx context.Context, appKey, appSecret string) (string, string, error) {
	if f.tokenErr != nil {
		return "", "", f.tokenErr
	}
	return "Bearer", "tok", nil
}

func (f *fakeSource) FetchStockList(ctx context.Context, tokenType, token, marketType string) ([]map[string]any, error) {
	f.fetchCalls = append(f.fetchCalls, marketType)
	if err := f.fetchErr[marketType]; err != nil {
		return nil, err
	}
	return f.records[marketType], nil
}

type fakeBackend struct {
	healthy      bool
	upsertErr    error
	healthCalls  int
	upsertCalls  int
	gotItems     []model.Security
	gotBridgeKey string
}

func (f *fakeBackend) CheckHealth(ctx context.Context) bool {
	f.healthCalls++
	return f.healthy
}

func (f *fakeBackend) UpsertSecurities(ctx context.Context, items []model.Security, bridgeKey string) (model.UpsertResult, error) {
	f.upsertCalls++
	f.gotItems = items
	f.gotBridgeKey = bridgeKey
	if f.upsertErr != nil {
		return model.UpsertResult{}, f.upsertErr
	}
	return model.UpsertResult{Received: len(items), Inserted: len(items)}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.Backend{BaseURL: "http://backend:8000", BridgeKey: "bridge-key"},
	}
}

func newService(source *fakeSource, backend *fakeBackend) *SyncService {
	return New(testConfig(), config.Profile{AppKey: "key", AppSecret: "secret"}, source, backend)
}

func TestSync(t *testing.T) {
	t.Run("full run pushes deduped batch", func(t *testing.T) {
		source := &fakeSource{records: map[string][]map[string]any{
			"0":  {{"code": "005930", "name": "삼성전자"}},
			"10": {{"code": "005930", "name": "중복"}, {"code": "035420", "name": "NAVER"}},
		}}
		backend := &fakeBackend{healthy: true}

		summary, _, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if len(source.fetchCalls) != 9 {
			t.Errorf("fetch calls = %d, want all 9 markets", len(source.fetchCalls))
		}
		if source.fetchCalls[0] != "0" || source.fetchCalls[1] != "10" {
			t.Errorf("fetch order starts %v, want [0 10 ...]", source.fetchCalls[:2])
		}
		if backend.upsertCalls != 1 {
			t.Fatalf("upsert calls = %d, want 1", backend.upsertCalls)
		}
		if len(backend.gotItems) != 2 {
			t.Errorf("pushed items = %d, want 2 after dedup", len(backend.gotItems))
		}
		if backend.gotBridgeKey != "bridge-key" {
			t.Errorf("bridge key = %q, want bridge-key", backend.gotBridgeKey)
		}

		if summary.RawCountTotal != 3 {
			t.Errorf("RawCountTotal = %d, want 3", summary.RawCountTotal)
		}
		if summary.NormalizedUnique != 2 {
			t.Errorf("NormalizedUnique = %d, want 2", summary.NormalizedUnique)
		}
		if summary.FetchedMarkets != 9 {
			t.Errorf("FetchedMarkets = %d, want 9", summary.FetchedMarkets)
		}
		result, ok := summary.PushResult.(model.UpsertResult)
		if !ok {
			t.Fatalf("PushResult type = %T, want model.UpsertResult", summary.PushResult)
		}
		if result.Received != 2 {
			t.Errorf("PushResult.Received = %d, want 2", result.Received)
		}
	})

	t.Run("dry run never touches the backend", func(t *testing.T) {
		source := &fakeSource{records: map[string][]map[string]any{
			"0": {{"code": "005930", "name": "삼성전자"}},
		}}
		backend := &fakeBackend{healthy: true}

		summary, sample, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{DryRun: true})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if backend.healthCalls != 0 || backend.upsertCalls != 0 {
			t.Errorf("backend calls = (%d health, %d upsert), want none", backend.healthCalls, backend.upsertCalls)
		}
		if summary.PushResult != model.PushSkipped {
			t.Errorf("PushResult = %v, want %q", summary.PushResult, model.PushSkipped)
		}
		if !summary.DryRun {
			t.Error("DryRun = false, want true")
		}
		if len(sample) != 1 {
			t.Errorf("len(sample) = %d, want 1", len(sample))
		}
	})

	t.Run("limit truncates after dedup", func(t *testing.T) {
		source := &fakeSource{records: map[string][]map[string]any{
			"0": {
				{"code": "005930", "name": "삼성전자"},
				{"code": "000660", "name": "SK하이닉스"},
				{"code": "035420", "name": "NAVER"},
				{"code": "005380", "name": "현대차"},
				{"code": "005930", "name": "중복"},
			},
		}}
		backend := &fakeBackend{healthy: true}

		summary, sample, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{Limit: 2})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(backend.gotItems) != 2 {
			t.Errorf("pushed items = %d, want 2", len(backend.gotItems))
		}
		if summary.NormalizedUnique != 4 {
			t.Errorf("NormalizedUnique = %d, want 4", summary.NormalizedUnique)
		}
		if summary.LimitedTo != 2 {
			t.Errorf("LimitedTo = %d, want 2", summary.LimitedTo)
		}
		if len(sample) != 2 {
			t.Errorf("len(sample) = %d, want 2", len(sample))
		}
	})

	t.Run("auth failure", func(t *testing.T) {
		source := &fakeSource{tokenErr: errors.New("boom")}
		backend := &fakeBackend{healthy: true}

		summary, _, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{})
		if !errors.Is(err, service.ErrAuthentication) {
			t.Errorf("error = %v, want ErrAuthentication", err)
		}
		if summary.PushResult != model.PushNotStarted {
			t.Errorf("PushResult = %v, want %q", summary.PushResult, model.PushNotStarted)
		}
		if len(source.fetchCalls) != 0 {
			t.Errorf("fetch calls = %d, want 0", len(source.fetchCalls))
		}
	})

	t.Run("fetch failure aborts the run", func(t *testing.T) {
		source := &fakeSource{
			records:  map[string][]map[string]any{"0": {{"code": "005930", "name": "삼성전자"}}},
			fetchErr: map[string]error{"10": errors.New("boom")},
		}
		backend := &fakeBackend{healthy: true}

		summary, _, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{})
		if !errors.Is(err, service.ErrFetch) {
			t.Errorf("error = %v, want ErrFetch", err)
		}
		if summary.PushResult != model.PushNotStarted {
			t.Errorf("PushResult = %v, want %q", summary.PushResult, model.PushNotStarted)
		}
		if summary.FetchedMarkets != 2 {
			t.Errorf("FetchedMarkets = %d, want 2", summary.FetchedMarkets)
		}
		if backend.healthCalls != 0 || backend.upsertCalls != 0 {
			t.Errorf("backend calls = (%d health, %d upsert), want none", backend.healthCalls, backend.upsertCalls)
		}
	})

	t.Run("unhealthy backend blocks the push", func(t *testing.T) {
		source := &fakeSource{records: map[string][]map[string]any{
			"0": {{"code": "005930", "name": "삼성전자"}},
		}}
		backend := &fakeBackend{healthy: false}

		summary, _, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{})
		if !errors.Is(err, service.ErrBackendUnavailable) {
			t.Errorf("error = %v, want ErrBackendUnavailable", err)
		}
		if summary.PushResult != model.PushHealthCheckFailed {
			t.Errorf("PushResult = %v, want %q", summary.PushResult, model.PushHealthCheckFailed)
		}
		if backend.upsertCalls != 0 {
			t.Errorf("upsert calls = %d, want 0", backend.upsertCalls)
		}
	})

	t.Run("upsert failure carries the status tag", func(t *testing.T) {
		source := &fakeSource{records: map[string][]map[string]any{
			"0": {{"code": "005930", "name": "삼성전자"}},
		}}
		backend := &fakeBackend{
			healthy:   true,
			upsertErr: &backendApi.UpsertError{StatusCode: 500},
		}

		summary, _, err := newService(source, backend).Sync(context.Background(), model.SyncOptions{})
		if !errors.Is(err, service.ErrUpsert) {
			t.Errorf("error = %v, want ErrUpsert", err)
		}
		if summary.PushResult != "upsert_error_status_500" {
			t.Errorf("PushResult = %v, want upsert_error_status_500", summary.PushResult)
		}
	})
}
