package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/murphlabs/murph/backend/internal/backend"
)

type userIDKey struct{}

// UserIDHeader carries the signed-in user's id from the browser.
const UserIDHeader = "X-User-ID"

// UserIDQuery is the fallback for EventSource and WebSocket requests.
const UserIDQuery = "user_id"

// Auth 将浏览器的 Bearer token 与用户 id 放入请求上下文，
// 后端客户端从上下文取 token，不使用全局状态。
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := bearerToken(r); token != "" {
			ctx = backend.WithToken(ctx, token)
		}
		if userID := requestUserID(r); userID != "" {
			ctx = context.WithValue(ctx, userIDKey{}, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the user id Auth found on the request, if any.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func requestUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get(UserIDQuery))
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		// 浏览器的 WebSocket 无法设置请求头
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
