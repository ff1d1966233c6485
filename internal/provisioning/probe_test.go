package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/confide/internal/model"
)

// --- モック定義 ---

type mockReader struct {
	calls  atomic.Int32
	readFn func(ctx context.Context, collection string, q model.Query) ([]model.Record, error)
}

func (m *mockReader) Read(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
	m.calls.Add(1)
	if m.readFn != nil {
		return m.readFn(ctx, collection, q)
	}
	return nil, nil
}

var undefinedTable = &pq.Error{Code: "42P01", Message: `relation "articles" does not exist`}

// --- テスト ---

func TestIsAccessible_SuccessfulRead_ReturnsTrue(t *testing.T) {
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			if q.Limit != probeLimit {
				t.Errorf("probe limit = %d, want %d", q.Limit, probeLimit)
			}
			return []model.Record{{"id": "a1"}}, nil
		},
	}
	p := NewProbe(reader, Config{}, nil, nil)

	if !p.IsAccessible(context.Background(), "articles") {
		t.Error("expected articles to be accessible")
	}
}

func TestIsAccessible_UndefinedTable_ReturnsFalse(t *testing.T) {
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			return nil, undefinedTable
		},
	}
	p := NewProbe(reader, Config{}, nil, nil)

	if p.IsAccessible(context.Background(), "articles") {
		t.Error("expected articles to be inaccessible")
	}
}

func TestIsAccessible_UnrelatedError_IsOptimistic(t *testing.T) {
	errs := []error{
		&pq.Error{Code: "42501", Message: "permission denied"},
		context.DeadlineExceeded,
		errors.New("connection refused"),
	}
	for _, probeErr := range errs {
		reader := &mockReader{
			readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
				return nil, probeErr
			},
		}
		p := NewProbe(reader, Config{}, nil, nil)

		if !p.IsAccessible(context.Background(), "comments") {
			t.Errorf("error %v: expected optimistic accessible result", probeErr)
		}
	}
}

func TestIsAccessible_Panic_ReturnsFalse(t *testing.T) {
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			panic("driver exploded")
		},
	}
	p := NewProbe(reader, Config{}, nil, nil)

	if p.IsAccessible(context.Background(), "confessions") {
		t.Error("expected panic to be classified as inaccessible")
	}
}

func TestIsAccessible_CachesResult(t *testing.T) {
	reader := &mockReader{}
	p := NewProbe(reader, Config{}, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p.IsAccessible(ctx, "articles")
	}

	if got := reader.calls.Load(); got != 1 {
		t.Errorf("probe reads = %d, want 1", got)
	}
}

func TestIsAccessible_ConcurrentCallers_ShareOneProbe(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			once.Do(func() { close(started) })
			<-release
			return nil, nil
		},
	}
	p := NewProbe(reader, Config{}, nil, nil)

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- p.IsAccessible(context.Background(), "articles")
		}()
	}

	<-started
	// 残りの呼び出しが待機に入るまで少し待つ
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := reader.calls.Load(); got != 1 {
		t.Errorf("probe reads = %d, want 1", got)
	}
	for ok := range results {
		if !ok {
			t.Error("expected every caller to observe accessible")
		}
	}
}

func TestIsAccessible_CallerCancellationDoesNotAbortProbe(t *testing.T) {
	release := make(chan struct{})
	var probeCtxErr atomic.Value

	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			<-release
			if ctx.Err() != nil {
				probeCtxErr.Store(ctx.Err())
			}
			return nil, undefinedTable
		},
	}
	p := NewProbe(reader, Config{Timeout: time.Second}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.IsAccessible(ctx, "articles")
	close(release)

	// 2回目の呼び出しは進行中のプローブ結果を待つ
	if p.IsAccessible(context.Background(), "articles") {
		t.Error("expected inaccessible result from the shared probe")
	}
	if v := probeCtxErr.Load(); v != nil {
		t.Errorf("probe context should not inherit caller cancellation, got %v", v)
	}
	if got := reader.calls.Load(); got != 1 {
		t.Errorf("probe reads = %d, want 1", got)
	}
}

func TestIsAccessible_InaccessibleResultExpires(t *testing.T) {
	provisioned := false
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			if provisioned {
				return nil, nil
			}
			return nil, undefinedTable
		},
	}
	p := NewProbe(reader, Config{RetryAfter: time.Minute}, nil, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if p.IsAccessible(ctx, "articles") {
		t.Fatal("expected inaccessible before provisioning")
	}

	provisioned = true
	now = now.Add(30 * time.Second)
	if p.IsAccessible(ctx, "articles") {
		t.Error("expected cached inaccessible result within RetryAfter")
	}

	now = now.Add(time.Minute)
	if !p.IsAccessible(ctx, "articles") {
		t.Error("expected re-probe after RetryAfter to detect provisioning")
	}
	if got := reader.calls.Load(); got != 2 {
		t.Errorf("probe reads = %d, want 2", got)
	}
}

func TestIsAccessible_AccessibleResultNeverExpires(t *testing.T) {
	reader := &mockReader{}
	p := NewProbe(reader, Config{RetryAfter: time.Second}, nil, nil)
	now := time.Now()
	p.now = func() time.Time { return now }

	p.IsAccessible(context.Background(), "profiles")
	now = now.Add(24 * time.Hour)
	p.IsAccessible(context.Background(), "profiles")

	if got := reader.calls.Load(); got != 1 {
		t.Errorf("probe reads = %d, want 1", got)
	}
}

func TestIsAccessible_ZeroRetryAfter_KeepsInaccessibleForever(t *testing.T) {
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			return nil, undefinedTable
		},
	}
	p := NewProbe(reader, Config{RetryAfter: 0}, nil, nil)
	now := time.Now()
	p.now = func() time.Time { return now }

	p.IsAccessible(context.Background(), "articles")
	now = now.Add(365 * 24 * time.Hour)
	p.IsAccessible(context.Background(), "articles")

	if got := reader.calls.Load(); got != 1 {
		t.Errorf("probe reads = %d, want 1", got)
	}
}

func TestForget_ForcesReprobe(t *testing.T) {
	reader := &mockReader{}
	p := NewProbe(reader, Config{}, nil, nil)

	p.IsAccessible(context.Background(), "articles")
	p.Forget("articles")
	p.IsAccessible(context.Background(), "articles")

	if got := reader.calls.Load(); got != 2 {
		t.Errorf("probe reads = %d, want 2", got)
	}
}

func TestStatus_ReportsEveryCollection(t *testing.T) {
	reader := &mockReader{
		readFn: func(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
			if collection == "confessions" {
				return nil, undefinedTable
			}
			return nil, nil
		},
	}
	p := NewProbe(reader, Config{}, nil, nil)

	status := p.Status(context.Background(), model.Collections()...)

	want := map[string]bool{
		"profiles":    true,
		"articles":    true,
		"comments":    true,
		"confessions": false,
	}
	for c, ok := range want {
		if status[c] != ok {
			t.Errorf("status[%s] = %v, want %v", c, status[c], ok)
		}
	}
}
