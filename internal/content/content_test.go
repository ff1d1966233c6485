package content

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/security"
)

// --- モック定義 ---

// memoryCollection はメモリ上でコレクションを保持するCollectionの実装。
// unprovisionedに含まれるコレクションへの書き込みはStoreUnprovisionedErrorを返し、読み取りは空になる。
type memoryCollection struct {
	mu            sync.Mutex
	data          map[string]map[string]model.Record
	unprovisioned map[string]bool
	insertErr     error
	lastQuery     model.Query
	// updates, deletes はUpdate/Deleteの呼び出し回数（失敗を含む）。
	updates, deletes int
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{
		data:          make(map[string]map[string]model.Record),
		unprovisioned: make(map[string]bool),
	}
}

func (m *memoryCollection) List(ctx context.Context, collection string, q model.Query) []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	if m.unprovisioned[collection] {
		return []model.Record{}
	}
	out := []model.Record{}
	for _, rec := range m.data[collection] {
		if matches(rec, q.Filters) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time("created_at").After(out[j].Time("created_at"))
	})
	return out
}

func (m *memoryCollection) GetByID(ctx context.Context, collection, id string) (model.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unprovisioned[collection] {
		return nil, false
	}
	rec, ok := m.data[collection][id]
	return rec, ok
}

func (m *memoryCollection) Insert(ctx context.Context, collection string, record model.Record) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unprovisioned[collection] {
		return nil, &model.StoreUnprovisionedError{Collection: collection}
	}
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]model.Record)
	}
	stored := model.Record{}
	for k, v := range record {
		stored[k] = v
	}
	m.data[collection][record.String("id")] = stored
	return stored, nil
}

func (m *memoryCollection) Update(ctx context.Context, collection, id string, patch model.Record) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.unprovisioned[collection] {
		return nil, &model.StoreUnprovisionedError{Collection: collection}
	}
	rec, ok := m.data[collection][id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	for k, v := range patch {
		rec[k] = v
	}
	return rec, nil
}

func (m *memoryCollection) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.unprovisioned[collection] {
		return &model.StoreUnprovisionedError{Collection: collection}
	}
	if _, ok := m.data[collection][id]; !ok {
		return model.ErrRecordNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func (m *memoryCollection) RequireWritable(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unprovisioned[collection] {
		return &model.StoreUnprovisionedError{Collection: collection}
	}
	return nil
}

func (m *memoryCollection) writeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates + m.deletes
}

func (m *memoryCollection) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[collection])
}

func matches(rec model.Record, filters []model.Filter) bool {
	for _, f := range filters {
		if rec[f.Column] != f.Value {
			return false
		}
	}
	return true
}

var _ Collection = (*memoryCollection)(nil)

func author(id string) *model.Profile {
	return &model.Profile{ID: id, DisplayName: "name-" + id, Role: model.RoleUser}
}

func admin(id string) *model.Profile {
	return &model.Profile{ID: id, DisplayName: "admin-" + id, Role: model.RoleAdmin}
}

// steppingClock は呼び出しごとに1秒進む時計を返す。
func steppingClock() clock {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func newArticleService(store Collection) *ArticleService {
	s := NewArticleService(store, security.NewContentSanitizer(), security.NewPlainTextSanitizer())
	s.now = steppingClock()
	return s
}

// assertStoreUnprovisioned はコレクション名つきのStoreUnprovisionedErrorであることを確認する。
func assertStoreUnprovisioned(t *testing.T, err error, collection string) {
	t.Helper()
	if !errors.Is(err, model.ErrStoreUnprovisioned) {
		t.Fatalf("error = %v, want ErrStoreUnprovisioned", err)
	}
	var unprovisioned *model.StoreUnprovisionedError
	if !errors.As(err, &unprovisioned) || unprovisioned.Collection != collection {
		t.Errorf("error = %v, want StoreUnprovisionedError{%s}", err, collection)
	}
}
