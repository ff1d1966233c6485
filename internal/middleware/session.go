// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/session"
)

// ClientCookieName はクライアントIDを保持するCookieの名前。
const ClientCookieName = "client_id"

const clientCookieMaxAge = 365 * 24 * time.Hour

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey   = contextKey("user_id")
	clientIDContextKey = contextKey("client_id")
	sessionContextKey  = contextKey("session")
	profileContextKey  = contextKey("profile")
)

// ClientSession はクライアント1つ分のセッション操作。session.Managerが実装する。
type ClientSession interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Wait(ctx context.Context) (session.Snapshot, error)
	Login(ctx context.Context, email, password string) (*model.Profile, error)
	Register(ctx context.Context, email, password, inviteCode, displayName string) (*model.Profile, error)
	Logout(ctx context.Context) error
	Refetch(ctx context.Context) *model.Profile
}

// SessionSource はクライアントIDに対応するセッションを返す。
type SessionSource interface {
	Acquire(ctx context.Context, clientID string) ClientSession
}

// SessionSourceFunc は関数をSessionSourceとして扱うためのアダプタ。
type SessionSourceFunc func(ctx context.Context, clientID string) ClientSession

// Acquire はSessionSourceを実装する。
func (f SessionSourceFunc) Acquire(ctx context.Context, clientID string) ClientSession {
	return f(ctx, clientID)
}

// CookieConfig はクライアントIDCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// NewClientSessionMiddleware はクライアントIDCookieからセッションを取得し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または形式が不正な場合は新しいクライアントIDを発行する。
func NewClientSessionMiddleware(source SessionSource, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(ClientCookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					clientID = cookie.Value
				}
			}
			if clientID == "" {
				clientID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   int(clientCookieMaxAge / time.Second),
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			sess := source.Acquire(r.Context(), clientID)
			annotateLog(r.Context(), func(f *logFields) { f.clientID = clientID })

			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			ctx = context.WithValue(ctx, sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated はセッション状態が確定するまで待ち、
// サインイン済みでなければ401を返すミドルウェア。
// 通過したリクエストにはユーザーIDとプロフィールを注入する。
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
			return
		}

		snap, err := sess.Wait(r.Context())
		if err != nil {
			WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewProviderUnavailableError())
			return
		}
		if !snap.Authenticated() {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
			return
		}

		annotateLog(r.Context(), func(f *logFields) { f.userID = snap.Profile.ID })
		ctx := ContextWithUserID(r.Context(), snap.Profile.ID)
		ctx = ContextWithProfile(ctx, snap.Profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin は管理者以外に403を返すミドルウェア。RequireAuthenticatedの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ProfileFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
			return
		}
		if !p.IsAdmin() {
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (ClientSession, bool) {
	sess, ok := ctx.Value(sessionContextKey).(ClientSession)
	return sess, ok && sess != nil
}

// ContextWithSession はコンテキストにセッションを注入する。テスト用。
func ContextWithSession(ctx context.Context, sess ClientSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	clientID, _ := ctx.Value(clientIDContextKey).(string)
	return clientID
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// RequireAuthenticatedを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ProfileFromContext はRequireAuthenticatedが注入したプロフィールを取得する。
func ProfileFromContext(ctx context.Context) (*model.Profile, bool) {
	p, ok := ctx.Value(profileContextKey).(*model.Profile)
	return p, ok && p != nil
}

// ContextWithProfile はコンテキストにプロフィールを注入する。
func ContextWithProfile(ctx context.Context, p *model.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey, p)
}
