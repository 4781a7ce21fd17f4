package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/credential"
	"github.com/Clark-Hu/movie-ratings/internal/ledger"
	"github.com/Clark-Hu/movie-ratings/internal/repository/memory"
	"github.com/Clark-Hu/movie-ratings/internal/token"
)

const testPassword = "Sup3rSecret"

type testServer struct {
	*Server
	db *memory.DB
}

func buildTestServer(tb testing.TB) *testServer {
	tb.Helper()
	cfg := config.Config{
		Port:             "0",
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
	}

	db := memory.New()
	hasher, err := credential.NewHasher(bcrypt.MinCost)
	if err != nil {
		tb.Fatalf("hasher: %v", err)
	}
	tokens, err := token.NewService([]byte("handler-secret"), token.DefaultTTL)
	if err != nil {
		tb.Fatalf("token service: %v", err)
	}

	srv := New(cfg, Deps{
		Movies:   db.Movies(),
		Ratings:  ledger.New(db),
		Gate:     auth.NewGate(tokens, db.Users()),
		Accounts: auth.NewService(db.Users(), hasher, tokens),
		Health:   db,
	}, zap.NewNop())
	srv.now = func() time.Time { return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC) }
	return &testServer{Server: srv, db: db}
}

func (ts *testServer) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

// signup registers username and returns its id and access token.
func (ts *testServer) signup(tb testing.TB, username string) (int64, string) {
	tb.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		tb.Fatalf("register %s: status %d body %s", username, rec.Code, rec.Body)
	}
	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	if rec.Code != http.StatusOK {
		tb.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body)
	}
	var resp tokenResponse
	decode(tb, rec, &resp)
	return resp.User.ID, resp.AccessToken
}

func (ts *testServer) createMovie(tb testing.TB, bearer, title string, year int) movieResponse {
	tb.Helper()
	rec := ts.do(http.MethodPost, "/api/movies", bearer, map[string]interface{}{
		"title":        title,
		"genre":        "Drama",
		"release_year": year,
	})
	if rec.Code != http.StatusCreated {
		tb.Fatalf("create movie: status %d body %s", rec.Code, rec.Body)
	}
	var movie movieResponse
	decode(tb, rec, &movie)
	return movie
}

func decode(tb testing.TB, rec *httptest.ResponseRecorder, dst interface{}) {
	tb.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		tb.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(tb testing.TB, rec *httptest.ResponseRecorder) string {
	tb.Helper()
	var resp errorResponse
	decode(tb, rec, &resp)
	return resp.Code
}

func TestHealthz(t *testing.T) {
	srv := buildTestServer(t)
	rec := srv.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	srv := buildTestServer(t)
	id, bearer := srv.signup(t, "alice")

	rec := srv.do(http.MethodGet, "/api/auth/me", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", rec.Code)
	}
	var me userResponse
	decode(t, rec, &me)
	if me.ID != id || me.Username != "alice" {
		t.Fatalf("me = %+v", me)
	}

	rec = srv.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = srv.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "weak",
	})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Fatalf("weak password status = %d body %s", rec.Code, rec.Body)
	}

	rec = srv.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "Wrong-pass1",
	})
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("bad login status = %d, header %q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestLoginAcceptsForm(t *testing.T) {
	srv := buildTestServer(t)
	srv.signup(t, "alice")

	form := url.Values{"username": {"alice"}, "password": {testPassword}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("form login status = %d body %s", rec.Code, rec.Body)
	}
	var resp tokenResponse
	decode(t, rec, &resp)
	if resp.TokenType != "bearer" || resp.AccessToken == "" || resp.ExpiresIn != 1800 {
		t.Fatalf("token response = %+v", resp)
	}
}

func TestAuthGateStatuses(t *testing.T) {
	srv := buildTestServer(t)
	_, bearer := srv.signup(t, "alice")

	tests := []struct {
		name       string
		bearer     string
		wantStatus int
		wantHeader string
	}{
		{"missing", "", http.StatusForbidden, ""},
		{"invalid", "garbage", http.StatusUnauthorized, "Bearer"},
		{"valid", bearer, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodGet, "/api/auth/me", tt.bearer, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tt.wantHeader {
				t.Fatalf("WWW-Authenticate = %q, want %q", got, tt.wantHeader)
			}
		})
	}

	if err := srv.db.Users().Delete(context.Background(), 1); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	rec := srv.do(http.MethodGet, "/api/auth/me", bearer, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted user status = %d, want 401", rec.Code)
	}
}

func TestHandleCreateMovie_AuthValidation(t *testing.T) {
	srv := buildTestServer(t)

	body := `{"title":"Test","genre":"Action","release_year":2024}`
	rec := srv.do(http.MethodPost, "/api/movies", "", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleCreateMovie_InvalidPayload(t *testing.T) {
	srv := buildTestServer(t)
	_, bearer := srv.signup(t, "alice")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "invalid json"},
		{"missing fields", `{"title":"","genre":"","release_year":2000}`},
		{"too early", `{"title":"Old","genre":"Silent","release_year":1887}`},
		{"too far ahead", `{"title":"Future","genre":"Sci-Fi","release_year":2031}`},
		{"unknown field", `{"title":"X","genre":"Y","release_year":2000,"budget":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodPost, "/api/movies", bearer, tt.body)
			if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 4xx validation", rec.Code)
			}
		})
	}

	movie := srv.createMovie(t, bearer, "Future Edge", 2030)
	if movie.ReleaseYear != 2030 {
		t.Fatalf("release year = %d, want 2030", movie.ReleaseYear)
	}
}

func TestMovieLifecycle(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, owner := srv.signup(t, "owner")
	_, other := srv.signup(t, "other")

	movie := srv.createMovie(t, owner, "Heat", 1995)
	if movie.CreatedBy != ownerID || movie.RatingsCount != 0 {
		t.Fatalf("created movie = %+v", movie)
	}

	rec := srv.do(http.MethodGet, fmt.Sprintf("/api/movies/%d", movie.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = srv.do(http.MethodDelete, fmt.Sprintf("/api/movies/%d", movie.ID), other, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete by other status = %d, want 403", rec.Code)
	}

	rec = srv.do(http.MethodDelete, fmt.Sprintf("/api/movies/%d", movie.ID), owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete by owner status = %d, want 200", rec.Code)
	}

	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/movies/%d", movie.ID), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	rec = srv.do(http.MethodGet, "/api/movies/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d, want 400", rec.Code)
	}
}

func TestHandleListMovies(t *testing.T) {
	srv := buildTestServer(t)
	_, bearer := srv.signup(t, "alice")
	for i, year := range []int{1990, 2000, 2010} {
		srv.createMovie(t, bearer, fmt.Sprintf("Movie %d", i), year)
	}

	rec := srv.do(http.MethodGet, "/api/movies?min_year=1995&limit=1&page=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var resp movieListResponse
	decode(t, rec, &resp)
	if resp.Total != 2 || resp.Page != 2 || resp.Limit != 1 || len(resp.Movies) != 1 {
		t.Fatalf("list response = %+v", resp)
	}
	if resp.Movies[0].ReleaseYear != 2010 {
		t.Fatalf("page 2 movie = %+v", resp.Movies[0])
	}

	for _, query := range []string{"min_year=abc", "page=0", "limit=101", "limit=-1"} {
		rec := srv.do(http.MethodGet, "/api/movies?"+query, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestRatingsFlow(t *testing.T) {
	srv := buildTestServer(t)
	aliceID, alice := srv.signup(t, "alice")
	_, bob := srv.signup(t, "bob")
	movie := srv.createMovie(t, alice, "Inception", 2010)
	ratingsPath := fmt.Sprintf("/api/movies/%d/ratings", movie.ID)

	rec := srv.do(http.MethodPost, ratingsPath, alice, map[string]interface{}{"rating": 4, "review": "  sharp  "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first rating status = %d body %s", rec.Code, rec.Body)
	}
	var first ratingResponse
	decode(t, rec, &first)
	if first.Review == nil || *first.Review != "sharp" || first.UpdatedAt != nil {
		t.Fatalf("first rating = %+v", first)
	}

	rec = srv.do(http.MethodPost, ratingsPath, bob, map[string]int{"rating": 5})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bob rating status = %d", rec.Code)
	}

	rec = srv.do(http.MethodPost, ratingsPath, alice, map[string]int{"rating": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("update rating status = %d, want 200", rec.Code)
	}
	var updated ratingResponse
	decode(t, rec, &updated)
	if updated.ID != first.ID || updated.Rating != 2 || updated.UpdatedAt == nil {
		t.Fatalf("updated rating = %+v", updated)
	}

	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/movies/%d", movie.ID), "", nil)
	var got movieResponse
	decode(t, rec, &got)
	if got.RatingsCount != 2 || got.RatingsAvg != 3.5 {
		t.Fatalf("movie stats = count %d avg %v, want 2/3.5", got.RatingsCount, got.RatingsAvg)
	}

	rec = srv.do(http.MethodGet, ratingsPath+"?limit=1", "", nil)
	var list ratingListResponse
	decode(t, rec, &list)
	if list.Total != 2 || len(list.Ratings) != 1 || list.Ratings[0].UserID != aliceID {
		t.Fatalf("movie ratings = %+v", list)
	}

	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/users/%d/ratings", aliceID), alice, nil)
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || list.Total != 1 {
		t.Fatalf("own ratings status %d list %+v", rec.Code, list)
	}
	rec = srv.do(http.MethodGet, fmt.Sprintf("/api/users/%d/ratings", aliceID), bob, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other's ratings status = %d, want 403", rec.Code)
	}
}

func TestHandleSubmitRating_InvalidRating(t *testing.T) {
	srv := buildTestServer(t)
	_, bearer := srv.signup(t, "alice")
	movie := srv.createMovie(t, bearer, "Test", 2024)
	path := fmt.Sprintf("/api/movies/%d/ratings", movie.ID)

	for _, body := range []string{`{"rating":0}`, `{"rating":6}`, `{"rating":4.5}`, `{}`} {
		rec := srv.do(http.MethodPost, path, bearer, body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status = %d, want 422", body, rec.Code)
		}
	}
	if n := srv.db.RatingCount(movie.ID, 1); n != 0 {
		t.Fatalf("invalid ratings stored %d rows", n)
	}

	rec := srv.do(http.MethodPost, "/api/movies/999/ratings", bearer, `{"rating":3}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown movie status = %d, want 404", rec.Code)
	}
	rec = srv.do(http.MethodGet, "/api/movies/999/ratings", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown movie list status = %d, want 404", rec.Code)
	}
}

func TestHandleSubmitRating_StorageFailure(t *testing.T) {
	srv := buildTestServer(t)
	_, bearer := srv.signup(t, "alice")
	movie := srv.createMovie(t, bearer, "Test", 2024)

	srv.db.FailCommits(fmt.Errorf("disk full"))
	rec := srv.do(http.MethodPost, fmt.Sprintf("/api/movies/%d/ratings", movie.ID), bearer, `{"rating":3}`)
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != "INTERNAL_ERROR" {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Fatalf("internal error leaked: %s", rec.Body)
	}
}
