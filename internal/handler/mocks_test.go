package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/hitoshi/confide/internal/content"
	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/session"
)

// --- モック定義 ---

// mockClientSession はmiddleware.ClientSessionのモック実装。
type mockClientSession struct {
	snapshotFn func() session.Snapshot
	waitFn     func(ctx context.Context) (session.Snapshot, error)
	loginFn    func(ctx context.Context, email, password string) (*model.Profile, error)
	registerFn func(ctx context.Context, email, password, inviteCode, displayName string) (*model.Profile, error)
	logoutFn   func(ctx context.Context) error
	refetchFn  func(ctx context.Context) *model.Profile

	mu          sync.Mutex
	subscribers []func(session.Snapshot)
}

func (m *mockClientSession) Snapshot() session.Snapshot {
	if m.snapshotFn != nil {
		return m.snapshotFn()
	}
	return session.Snapshot{State: session.StateAnonymous}
}

func (m *mockClientSession) Subscribe(fn func(session.Snapshot)) func() {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
	return func() {}
}

// publish は登録済みのリスナーにスナップショットを通知する。
func (m *mockClientSession) publish(snap session.Snapshot) {
	m.mu.Lock()
	subs := append([]func(session.Snapshot){}, m.subscribers...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (m *mockClientSession) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

func (m *mockClientSession) Wait(ctx context.Context) (session.Snapshot, error) {
	if m.waitFn != nil {
		return m.waitFn(ctx)
	}
	return m.Snapshot(), nil
}

func (m *mockClientSession) Login(ctx context.Context, email, password string) (*model.Profile, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockClientSession) Register(ctx context.Context, email, password, inviteCode, displayName string) (*model.Profile, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, inviteCode, displayName)
	}
	return nil, nil
}

func (m *mockClientSession) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockClientSession) Refetch(ctx context.Context) *model.Profile {
	if m.refetchFn != nil {
		return m.refetchFn(ctx)
	}
	return nil
}

var _ middleware.ClientSession = (*mockClientSession)(nil)

// signedIn はpでサインイン済みのセッションを返す。
func signedIn(p *model.Profile) *mockClientSession {
	return &mockClientSession{
		snapshotFn: func() session.Snapshot {
			return session.Snapshot{
				State:    session.StateAuthenticated,
				Identity: &model.Identity{ID: p.ID, Email: p.Email},
				Profile:  p,
			}
		},
	}
}

// withSession はリクエストにセッションを注入する。
func withSession(req *http.Request, sess middleware.ClientSession) *http.Request {
	return req.WithContext(middleware.ContextWithSession(req.Context(), sess))
}

// withActor はRequireAuthenticated通過後と同じ状態のリクエストを返す。
func withActor(req *http.Request, p *model.Profile) *http.Request {
	ctx := middleware.ContextWithSession(req.Context(), signedIn(p))
	ctx = middleware.ContextWithUserID(ctx, p.ID)
	ctx = middleware.ContextWithProfile(ctx, p)
	return req.WithContext(ctx)
}

func testUser(id string) *model.Profile {
	return &model.Profile{ID: id, Email: id + "@example.com", DisplayName: id, Role: model.RoleUser}
}

func testAdmin(id string) *model.Profile {
	return &model.Profile{ID: id, Email: id + "@example.com", DisplayName: id, Role: model.RoleAdmin}
}

// mockArticleService はArticleServiceInterfaceのモック実装。
type mockArticleService struct {
	createFn        func(ctx context.Context, author *model.Profile, in content.ArticleInput) (*model.Article, error)
	listFn          func(ctx context.Context) []model.Article
	listPublishedFn func(ctx context.Context) []model.Article
	listFeaturedFn  func(ctx context.Context) []model.Article
	listByAuthorFn  func(ctx context.Context, authorID string) []model.Article
	getFn           func(ctx context.Context, id string) (*model.Article, error)
	updateFn        func(ctx context.Context, actor *model.Profile, id string, patch content.ArticlePatch) (*model.Article, error)
	setPublishedFn  func(ctx context.Context, id string, published bool) (*model.Article, error)
	deleteFn        func(ctx context.Context, actor *model.Profile, id string) error
}

func (m *mockArticleService) Create(ctx context.Context, author *model.Profile, in content.ArticleInput) (*model.Article, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, in)
	}
	return &model.Article{}, nil
}

func (m *mockArticleService) List(ctx context.Context) []model.Article {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil
}

func (m *mockArticleService) ListPublished(ctx context.Context) []model.Article {
	if m.listPublishedFn != nil {
		return m.listPublishedFn(ctx)
	}
	return nil
}

func (m *mockArticleService) ListFeatured(ctx context.Context) []model.Article {
	if m.listFeaturedFn != nil {
		return m.listFeaturedFn(ctx)
	}
	return nil
}

func (m *mockArticleService) ListByAuthor(ctx context.Context, authorID string) []model.Article {
	if m.listByAuthorFn != nil {
		return m.listByAuthorFn(ctx, authorID)
	}
	return nil
}

func (m *mockArticleService) Get(ctx context.Context, id string) (*model.Article, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewRecordNotFoundError(model.CollectionArticles, id)
}

func (m *mockArticleService) Update(ctx context.Context, actor *model.Profile, id string, patch content.ArticlePatch) (*model.Article, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, patch)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockArticleService) SetPublished(ctx context.Context, id string, published bool) (*model.Article, error) {
	if m.setPublishedFn != nil {
		return m.setPublishedFn(ctx, id, published)
	}
	return &model.Article{ID: id, Published: published}, nil
}

func (m *mockArticleService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

// mockCommentService はCommentServiceInterfaceのモック実装。
type mockCommentService struct {
	createFn        func(ctx context.Context, author *model.Profile, articleID, text string) (*model.Comment, error)
	listByArticleFn func(ctx context.Context, articleID string) []model.Comment
	listAllFn       func(ctx context.Context) []model.Comment
	deleteFn        func(ctx context.Context, actor *model.Profile, id string) error
}

func (m *mockCommentService) Create(ctx context.Context, author *model.Profile, articleID, text string) (*model.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, articleID, text)
	}
	return &model.Comment{ArticleID: articleID, Content: text}, nil
}

func (m *mockCommentService) ListByArticle(ctx context.Context, articleID string) []model.Comment {
	if m.listByArticleFn != nil {
		return m.listByArticleFn(ctx, articleID)
	}
	return nil
}

func (m *mockCommentService) ListAll(ctx context.Context) []model.Comment {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil
}

func (m *mockCommentService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

// mockConfessionService はConfessionServiceInterfaceのモック実装。
type mockConfessionService struct {
	createFn     func(ctx context.Context, author *model.Profile, text string) (*model.Confession, error)
	listByUserFn func(ctx context.Context, userID string) []model.Confession
	listAllFn    func(ctx context.Context) []model.Confession
	updateFn     func(ctx context.Context, actor *model.Profile, id, text string) (*model.Confession, error)
	deleteFn     func(ctx context.Context, actor *model.Profile, id string) error
}

func (m *mockConfessionService) Create(ctx context.Context, author *model.Profile, text string) (*model.Confession, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, text)
	}
	return &model.Confession{UserID: author.ID, Content: text}, nil
}

func (m *mockConfessionService) ListByUser(ctx context.Context, userID string) []model.Confession {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil
}

func (m *mockConfessionService) ListAll(ctx context.Context) []model.Confession {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil
}

func (m *mockConfessionService) Update(ctx context.Context, actor *model.Profile, id, text string) (*model.Confession, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, text)
	}
	return &model.Confession{ID: id, Content: text}, nil
}

func (m *mockConfessionService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	listFn      func(ctx context.Context) []*model.Profile
	getFn       func(ctx context.Context, id string) (*model.Profile, error)
	updateOwnFn func(ctx context.Context, actor *model.Profile, in content.ProfileUpdate) (*model.Profile, error)
	setRoleFn   func(ctx context.Context, id string, role string) (*model.Profile, error)
}

func (m *mockProfileService) List(ctx context.Context) []*model.Profile {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil
}

func (m *mockProfileService) Get(ctx context.Context, id string) (*model.Profile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewRecordNotFoundError(model.CollectionProfiles, id)
}

func (m *mockProfileService) UpdateOwn(ctx context.Context, actor *model.Profile, in content.ProfileUpdate) (*model.Profile, error) {
	if m.updateOwnFn != nil {
		return m.updateOwnFn(ctx, actor, in)
	}
	return actor, nil
}

func (m *mockProfileService) SetRole(ctx context.Context, id string, role string) (*model.Profile, error) {
	if m.setRoleFn != nil {
		return m.setRoleFn(ctx, id, role)
	}
	return &model.Profile{ID: id, Role: model.Role(role)}, nil
}

// mockStatusReporter はStatusReporterのモック実装。
type mockStatusReporter struct {
	statusFn func(ctx context.Context, collections ...string) map[string]bool
}

func (m *mockStatusReporter) Status(ctx context.Context, collections ...string) map[string]bool {
	if m.statusFn != nil {
		return m.statusFn(ctx, collections...)
	}
	result := make(map[string]bool, len(collections))
	for _, c := range collections {
		result[c] = true
	}
	return result
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}
