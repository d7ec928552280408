package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"prepkitty/internal/auth"
	"prepkitty/internal/database"
	"prepkitty/internal/tasks"
)

func newRedisAuthHandler(t *testing.T) (*AuthHandler, *miniredis.Miniredis, *fakeQueue) {
	t.Helper()
	mr, client := newMiniRedis(t)
	queue := &fakeQueue{}
	h := NewAuthHandler(newTestDB(t), newTestAuthService(t), client, queue, nil, AuthOptions{
		FrontendBaseURL:    "https://app.example.com",
		LoginLockThreshold: 3,
	})
	return h, mr, queue
}

func withRefreshCookie(c *gin.Context, token string) {
	c.Request.AddCookie(&http.Cookie{Name: refreshTokenCookieName, Value: token})
}

func responseCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == refreshTokenCookieName {
			return ck
		}
	}
	t.Fatal("response has no refresh cookie")
	return nil
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	h, mr, _ := newRedisAuthHandler(t)
	user := seedUser(t, h.db, "rotate@example.com", true)
	pair, err := h.authService.GenerateTokenPair(auth.Subject{UserID: user.ID})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	c, w := newContext(http.MethodPost, "/v1/auth/refresh", nil, 0)
	withRefreshCookie(c, pair.RefreshToken)
	h.Refresh(c)
	if w.Code != http.StatusOK {
		t.Fatalf("first refresh: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	rotated := responseCookie(t, w)
	if rotated.Value == "" || rotated.Value == pair.RefreshToken || !rotated.HttpOnly {
		t.Fatalf("unexpected rotated cookie %+v", rotated)
	}

	old, err := h.authService.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate old token: %v", err)
	}
	if !mr.Exists(refreshTokenBlacklistKeyPrefix + old.ID) {
		t.Fatal("old jti should be blacklisted")
	}
	if ttl := mr.TTL(refreshTokenBlacklistKeyPrefix + old.ID); ttl <= 0 {
		t.Fatalf("blacklist entry should expire, ttl=%v", ttl)
	}

	c, w = newContext(http.MethodPost, "/v1/auth/refresh", nil, 0)
	withRefreshCookie(c, pair.RefreshToken)
	h.Refresh(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused token: expected 401 got %d", w.Code)
	}

	c, w = newContext(http.MethodPost, "/v1/auth/refresh", nil, 0)
	withRefreshCookie(c, rotated.Value)
	h.Refresh(c)
	if w.Code != http.StatusOK {
		t.Fatalf("rotated token: expected 200 got %d", w.Code)
	}
}

func TestRefresh_ClaimIsSingleUse(t *testing.T) {
	h, _, _ := newRedisAuthHandler(t)
	pair, err := h.authService.GenerateTokenPair(auth.Subject{UserID: 9})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	claims, err := h.validateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	ctx := t.Context()
	if err := h.claimJTI(ctx, claims); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := h.claimJTI(ctx, claims); !errors.Is(err, errRefreshRevoked) {
		t.Fatalf("second claim: expected errRefreshRevoked, got %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	h, _, _ := newRedisAuthHandler(t)
	pair, err := h.authService.GenerateTokenPair(auth.Subject{UserID: 4})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	c, w := newContext(http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": pair.AccessToken}, 0)
	h.Refresh(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}
}

func TestLogout_BlacklistsAndClearsCookie(t *testing.T) {
	h, mr, _ := newRedisAuthHandler(t)
	user := seedUser(t, h.db, "logout@example.com", true)
	pair, err := h.authService.GenerateTokenPair(auth.Subject{UserID: user.ID})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	c, w := newContext(http.MethodPost, "/v1/auth/logout", nil, 0)
	withRefreshCookie(c, pair.RefreshToken)
	h.Logout(c)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200 got %d", w.Code)
	}
	if cleared := responseCookie(t, w); cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("cookie should be cleared, got %+v", cleared)
	}

	claims, _ := h.authService.ValidateToken(pair.RefreshToken)
	if got, _ := mr.Get(refreshTokenBlacklistKeyPrefix + claims.ID); got != "revoked" {
		t.Fatalf("blacklist value = %q", got)
	}

	c, w = newContext(http.MethodPost, "/v1/auth/refresh", nil, 0)
	withRefreshCookie(c, pair.RefreshToken)
	h.Refresh(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401 got %d", w.Code)
	}

	c, w = newContext(http.MethodPost, "/v1/auth/logout", nil, 0)
	h.Logout(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("logout without token: expected 400 got %d", w.Code)
	}
}

func TestChangePassword(t *testing.T) {
	h, mr, _ := newRedisAuthHandler(t)
	user := seedUser(t, h.db, "change@example.com", true)
	h.db.Model(&user).Update("must_change_password", true)
	pair, err := h.authService.GenerateTokenPair(auth.Subject{UserID: user.ID, MustChangePassword: true})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{name: "too short", body: gin.H{"current_password": "correct-horse", "new_password": "short", "confirm_password": "short"}, want: http.StatusBadRequest},
		{name: "confirmation mismatch", body: gin.H{"current_password": "correct-horse", "new_password": "battery-staple", "confirm_password": "battery-stapler"}, want: http.StatusBadRequest},
		{name: "same as current", body: gin.H{"current_password": "correct-horse", "new_password": "correct-horse", "confirm_password": "correct-horse"}, want: http.StatusBadRequest},
		{name: "wrong current", body: gin.H{"current_password": "nope-nope", "new_password": "battery-staple", "confirm_password": "battery-staple"}, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newContext(http.MethodPost, "/v1/auth/change-password", tc.body, user.ID)
			h.ChangePassword(c)
			if w.Code != tc.want {
				t.Fatalf("expected %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	c, w := newContext(http.MethodPost, "/v1/auth/change-password", gin.H{
		"current_password": "correct-horse",
		"new_password":     "battery-staple",
		"confirm_password": "battery-staple",
	}, user.ID)
	withRefreshCookie(c, pair.RefreshToken)
	h.ChangePassword(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	decodeBody(t, w, &resp)
	if resp.MustChangePassword || resp.AccessToken == "" {
		t.Fatalf("unexpected token response %+v", resp)
	}

	access, err := h.authService.ValidateToken(resp.AccessToken)
	if err != nil || access.MustChangePassword {
		t.Fatalf("new access token should not carry the flag: %+v err=%v", access, err)
	}

	var stored database.User
	h.db.First(&stored, user.ID)
	if stored.MustChangePassword || !auth.CheckPasswordHash("battery-staple", stored.PasswordHash) {
		t.Fatalf("password not updated: %+v", stored)
	}

	old, _ := h.authService.ValidateToken(pair.RefreshToken)
	if !mr.Exists(refreshTokenBlacklistKeyPrefix + old.ID) {
		t.Fatal("cookie refresh token should be revoked")
	}
}

func TestResendVerification_RateLimited(t *testing.T) {
	h, _, queue := newRedisAuthHandler(t)
	seedUser(t, h.db, "waiting@example.com", false)
	seedUser(t, h.db, "verified@example.com", true)

	for i := 1; i <= 3; i++ {
		c, w := newContext(http.MethodPost, "/v1/auth/resend-verification", gin.H{"email": "Waiting@example.com"}, 0)
		h.ResendVerification(c)
		if w.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202 got %d", i, w.Code)
		}
	}
	if len(queue.tasks) != 3 || queue.tasks[0].Type() != tasks.TypeVerificationEmail {
		t.Fatalf("expected three verification tasks, got %d", len(queue.tasks))
	}
	var tokens int64
	h.db.Model(&database.VerificationToken{}).Where("identifier = ?", "waiting@example.com").Count(&tokens)
	if tokens != 1 {
		t.Fatalf("expected one live token after rotation, got %d", tokens)
	}

	c, w := newContext(http.MethodPost, "/v1/auth/resend-verification", gin.H{"email": "waiting@example.com"}, 0)
	h.ResendVerification(c)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth request: expected 429 got %d", w.Code)
	}

	for _, email := range []string{"nobody@example.com", "verified@example.com"} {
		c, w := newContext(http.MethodPost, "/v1/auth/resend-verification", gin.H{"email": email}, 0)
		h.ResendVerification(c)
		if w.Code != http.StatusAccepted {
			t.Fatalf("%s: expected 202 got %d", email, w.Code)
		}
	}
	if len(queue.tasks) != 3 {
		t.Fatalf("unknown or verified accounts must not get mail, got %d tasks", len(queue.tasks))
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	h, mr, _ := newRedisAuthHandler(t)
	seedUser(t, h.db, "locked@example.com", true)

	for i := 0; i < 3; i++ {
		c, w := newContext(http.MethodPost, "/v1/auth/login", gin.H{"email": "locked@example.com", "password": "wrong-one"}, 0)
		h.Login(c)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401 got %d", i, w.Code)
		}
	}
	if !mr.Exists(loginLockKeyPrefix + "locked@example.com") {
		t.Fatal("expected lock key after threshold")
	}

	c, w := newContext(http.MethodPost, "/v1/auth/login", gin.H{"email": "locked@example.com", "password": "correct-horse"}, 0)
	h.Login(c)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("locked account: expected 429 got %d", w.Code)
	}
}
