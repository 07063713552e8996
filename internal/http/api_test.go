package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-api/internal/auth"
	apphttp "library-api/internal/http"
	"library-api/internal/repository/sqldb"
	"library-api/internal/service"
)

const password = "Secr3t!"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	windows map[string]time.Duration
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, windows: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[key] = expiration
	return redis.NewBoolResult(true, nil)
}

type fakeExporter struct {
	mu       sync.Mutex
	requests int
}

func (f *fakeExporter) Start(ctx context.Context) error { return nil }
func (f *fakeExporter) Shutdown()                       {}
func (f *fakeExporter) Enqueue() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return true
}

type stack struct {
	router *gin.Engine
	svc    apphttp.Services
	db     *sqldb.DB
}

func newStack(t *testing.T, mutate func(*apphttp.Services, *apphttp.Options)) stack {
	t.Helper()

	db, err := sqldb.Open("sqlite", filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	users := sqldb.NewUserRepository(db)
	authors := sqldb.NewAuthorRepository(db)
	books := sqldb.NewBookRepository(db)
	require.NoError(t, users.Init(ctx))
	require.NoError(t, authors.Init(ctx))
	require.NoError(t, books.Init(ctx))

	userService := service.NewUserService(users, books)
	svc := apphttp.Services{
		Users:   userService,
		Authors: service.NewAuthorService(authors, books),
		Books:   service.NewBookService(books, authors, users),
		Auth:    service.NewAuthService(userService, auth.NewTokenIssuer("test-secret", time.Minute)),
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts := apphttp.Options{Logger: logger}
	if mutate != nil {
		mutate(&svc, &opts)
	}

	router := gin.New()
	apphttp.NewHandler(svc, opts).RegisterRoutes(router)
	return stack{router: router, svc: svc, db: db}
}

func (s stack) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s stack) login(t *testing.T, email, pw string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"email": {email}, "password": {pw}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s stack) token(t *testing.T, email string) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/users", map[string]any{"name": "Reader", "email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.login(t, email, password)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, rec, &tok)
	require.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, map[string]string{"status": "error", "message": msg}, body)
}

func idOf(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	var body struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &body)
	require.NotZero(t, body.ID)
	return body.ID
}

func TestRootAndHealth(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"API running"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/nowhere", nil)
	assertError(t, rec, http.StatusNotFound, "Not found")
}

func TestUsersEndpoints(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodGet, "/users", nil)
	assertError(t, rec, http.StatusNotFound, "No users registered")

	rec = s.do(t, http.MethodPost, "/users", map[string]any{"name": "Ada", "email": "ada@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	decode(t, rec, &created)
	assert.Equal(t, "ada@example.com", created["email"])
	assert.Equal(t, time.Now().UTC().Format("02-01-2006"), created["registered_at"])
	assert.NotContains(t, created, "password_hash")
	id := int64(created["id"].(float64))

	rec = s.do(t, http.MethodPost, "/users", map[string]any{"name": "Ada", "email": "ada@example.com", "password": password})
	assertError(t, rec, http.StatusConflict, "Email already in use")

	rec = s.do(t, http.MethodPost, "/users", map[string]any{"name": "Bob", "email": "not-an-email", "password": password})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/by_email?email=ada@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, idOf(t, rec))

	rec = s.do(t, http.MethodGet, "/users/by_email?email=ghost@example.com", nil)
	assertError(t, rec, http.StatusNotFound, "User not found")

	rec = s.do(t, http.MethodPatch, fmt.Sprintf("/users/%d", id), map[string]any{"name": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Ada Lovelace")

	rec = s.do(t, http.MethodGet, "/users/abc", nil)
	assertError(t, rec, http.StatusBadRequest, "invalid user id")

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/users/%d", id), nil)
	assertError(t, rec, http.StatusNotFound, "User not found")
}

func TestAuthorsEndpoints(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodGet, "/authors", nil)
	assertError(t, rec, http.StatusNotFound, "No author has been registered")

	rec = s.do(t, http.MethodPost, "/authors", map[string]any{"name": "Anna Akhmatova", "birth_date": "23-06-1889"})
	assertError(t, rec, http.StatusBadRequest, "The date must be in the following format dd/mm/yyyy")

	rec = s.do(t, http.MethodPost, "/authors", map[string]any{"name": "Anna Akhmatova", "birth_date": "23/06/1889"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var author map[string]any
	decode(t, rec, &author)
	assert.Equal(t, "23/06/1889", author["birth_date"])
	id := int64(author["id"].(float64))

	rec = s.do(t, http.MethodPost, "/authors", map[string]any{"name": "Nameless"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"birth_date":null`)

	rec = s.do(t, http.MethodPost, "/books", map[string]any{"title": "Requiem", "author_id": id})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/authors/%d", id), nil)
	assertError(t, rec, http.StatusBadRequest, "Author has associated books")

	rec = s.do(t, http.MethodGet, "/authors/999", nil)
	assertError(t, rec, http.StatusNotFound, "Author not registered")
}

func TestBookLendingFlow(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodPost, "/users", map[string]any{"name": "First", "email": "first@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := idOf(t, rec)
	rec = s.do(t, http.MethodPost, "/users", map[string]any{"name": "Second", "email": "second@example.com", "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := idOf(t, rec)

	rec = s.do(t, http.MethodPost, "/authors", map[string]any{"name": "Antoine de Saint-Exupery"})
	require.Equal(t, http.StatusCreated, rec.Code)
	author := idOf(t, rec)

	rec = s.do(t, http.MethodPost, "/books", map[string]any{"title": "Orphan", "author_id": 999})
	assertError(t, rec, http.StatusNotFound, "Author not found")

	rec = s.do(t, http.MethodPost, "/books", map[string]any{"title": "Le Petit Prince", "publication_year": 1943, "author_id": author})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	book := idOf(t, rec)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/books/%d/borrow?user_id=%d", book, first), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"borrower_id":%d`, first))

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/books/%d/borrow?user_id=%d", book, second), nil)
	assertError(t, rec, http.StatusBadRequest, "Book is already borrowed")

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/books/%d", book), nil)
	assertError(t, rec, http.StatusBadRequest, "Cannot delete a book that is currently borrowed")

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/books/%d/return?user_id=%d", book, second), nil)
	assertError(t, rec, http.StatusBadRequest, "Book not borrowed by this user")

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/books/%d/return?user_id=%d", book, first), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"borrower_id":null`)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/books/%d/borrow", book), nil)
	assertError(t, rec, http.StatusBadRequest, "invalid user id")

	rec = s.do(t, http.MethodGet, "/books/search?title=petit&author_name=EXUPERY&year=1943", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results []map[string]any
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "Antoine de Saint-Exupery", results[0]["author_name"])

	rec = s.do(t, http.MethodGet, "/books/search?year=abc", nil)
	assertError(t, rec, http.StatusBadRequest, "invalid year")

	rec = s.do(t, http.MethodGet, "/books/search?title=missing", nil)
	assertError(t, rec, http.StatusNotFound, "Books not found")

	rec = s.do(t, http.MethodPatch, fmt.Sprintf("/books/%d", book), map[string]any{"publication_year": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/books/%d", book), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/books", nil)
	assertError(t, rec, http.StatusNotFound, "No books found")
}

func TestLoginAndMe(t *testing.T) {
	s := newStack(t, nil)
	token := s.token(t, "me@example.com")

	rec := s.do(t, http.MethodGet, "/auth/me", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "me@example.com")

	rec = s.do(t, http.MethodGet, "/auth/me", nil)
	assertError(t, rec, http.StatusUnauthorized, "Not authenticated")
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = s.do(t, http.MethodGet, "/auth/me", nil, "Authorization", "Bearer "+token+"x")
	assertError(t, rec, http.StatusUnauthorized, "Could not validate credentials")

	rec = s.login(t, "me@example.com", "Wr0ng!pw")
	assertError(t, rec, http.StatusUnauthorized, "Incorrect email or password")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	counter := newFakeCounter()
	s := newStack(t, func(_ *apphttp.Services, opts *apphttp.Options) {
		opts.LoginCounter = counter
		opts.LoginPerWindow = 2
		opts.LoginWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		rec := s.login(t, "nobody@example.com", password)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.login(t, "nobody@example.com", password)
	assertError(t, rec, http.StatusTooManyRequests, "rate_limited")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	counter.mu.Lock()
	defer counter.mu.Unlock()
	for _, window := range counter.windows {
		assert.Equal(t, time.Minute, window)
	}
	assert.Len(t, counter.windows, 1)
}

func TestExportsDisabled(t *testing.T) {
	s := newStack(t, nil)
	token := s.token(t, "exports@example.com")

	rec := s.do(t, http.MethodPost, "/exports", nil)
	assertError(t, rec, http.StatusUnauthorized, "Not authenticated")

	rec = s.do(t, http.MethodPost, "/exports", nil, "Authorization", "Bearer "+token)
	assertError(t, rec, http.StatusServiceUnavailable, "Catalog export is not configured")

	rec = s.do(t, http.MethodGet, "/exports", nil, "Authorization", "Bearer "+token)
	assertError(t, rec, http.StatusServiceUnavailable, "Catalog export is not configured")
}

func TestExportsQueued(t *testing.T) {
	exp := &fakeExporter{}
	s := newStack(t, func(svc *apphttp.Services, _ *apphttp.Options) {
		svc.Exporter = exp
	})
	token := s.token(t, "exports@example.com")

	rec := s.do(t, http.MethodPost, "/exports", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":true}`, rec.Body.String())

	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, 1, exp.requests)
}

func TestCORSPreflight(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodOptions, "/books", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearchFoldsAccentedText(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do(t, http.MethodPost, "/authors", map[string]any{"name": "Émile Zola"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	authorID := idOf(t, rec)
	rec = s.do(t, http.MethodPost, "/books", map[string]any{"title": "ÉTUDE", "author_id": authorID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/books/search?author_name="+url.QueryEscape("émile")+"&title="+url.QueryEscape("étude"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results []map[string]any
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "ÉTUDE", results[0]["title"])

	rec = s.do(t, http.MethodGet, "/books/search?title="+url.QueryEscape("%"), nil)
	assertError(t, rec, http.StatusNotFound, "Books not found")
}

func TestDatabaseUnavailable(t *testing.T) {
	s := newStack(t, nil)
	require.NoError(t, s.db.Close())

	rec := s.do(t, http.MethodGet, "/books", nil)
	assertError(t, rec, http.StatusServiceUnavailable, "Database unavailable")

	rec = s.do(t, http.MethodGet, "/authors/1", nil)
	assertError(t, rec, http.StatusServiceUnavailable, "Database unavailable")
}
