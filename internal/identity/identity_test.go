package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/store"
)

type fakeRepo struct {
	store.Repository
	users    map[string]*domain.User
	lastSeen map[string]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User), lastSeen: make(map[string]time.Time)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	return f.users[userID], nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.users[user.UserID] = user
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, userID string, t time.Time) error {
	f.lastSeen[userID] = t
	return nil
}

func serve(t *testing.T, repo store.Repository, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var userID, sessionID string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = UserIDFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, userID, sessionID
}

func TestMiddlewareIssuesCookie(t *testing.T) {
	repo := newFakeRepo()
	rec, userID, sessionID := serve(t, repo, httptest.NewRequest(http.MethodGet, "/api/progress", nil))

	if !ValidUserID(userID) {
		t.Fatalf("expected generated player id, got %q", userID)
	}
	if sessionID != DefaultSessionIDValue {
		t.Fatalf("expected default session, got %q", sessionID)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != userID {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if _, ok := repo.users[userID]; !ok {
		t.Fatal("expected player to be recorded")
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	repo := newFakeRepo()
	const id = "anon_0123456789abcdef0123456789abcdef"
	repo.users[id] = &domain.User{UserID: id}

	req := httptest.NewRequest(http.MethodGet, "/api/view", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	req.Header.Set(SessionHeaderName, "tab-42")

	_, userID, sessionID := serve(t, repo, req)
	if userID != id || sessionID != "tab-42" {
		t.Fatalf("got user=%q session=%q", userID, sessionID)
	}
	if _, ok := repo.lastSeen[id]; !ok {
		t.Fatal("expected last seen to be refreshed")
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/call?session_id=bad%20id", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})

	_, userID, sessionID := serve(t, newFakeRepo(), req)
	if userID == "../../etc/passwd" || !ValidUserID(userID) {
		t.Fatalf("forged cookie accepted: %q", userID)
	}
	if sessionID != DefaultSessionIDValue {
		t.Fatalf("expected invalid session id to be replaced, got %q", sessionID)
	}
}
