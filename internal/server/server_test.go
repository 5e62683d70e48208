package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollwave/backend/internal/config"
	"github.com/pollwave/backend/internal/feed"
	"github.com/pollwave/backend/internal/handlers"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/polls"
	"github.com/pollwave/backend/internal/quota"
	"github.com/pollwave/backend/internal/state"
	"github.com/pollwave/backend/internal/store"
	"github.com/pollwave/backend/internal/store/memory"
	"github.com/pollwave/backend/internal/voting"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router http.Handler
	store  *memory.Store
}

func newTestEnv(t *testing.T, opts ...func(*handlers.Deps)) *testEnv {
	t.Helper()
	s := memory.NewStore()

	file, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	gate := quota.NewGate(quota.NewFileStore(file), quota.Limits{PerMinute: 15, PerDay: 500})

	cfg := config.Config{
		Port:         "0",
		JWTSecret:    "test-secret",
		AdminToken:   "admin",
		APIRateLimit: 1000,
		APIRateBurst: 1000,
	}
	deps := handlers.Deps{
		Store:     s,
		Feed:      feed.NewRanker(s),
		Votes:     voting.NewEngine(s),
		Polls:     polls.NewService(s, nil, false),
		Quota:     gate,
		JWTSecret: []byte(cfg.JWTSecret),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := New(cfg, deps)
	return &testEnv{router: srv.RegisterRoutes(), store: s}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, device string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/anon", "", gin.H{"deviceId": device})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"up"`)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnonLogin(t *testing.T) {
	env := newTestEnv(t)

	_, first := env.login(t, "device-a")
	_, again := env.login(t, "device-a")
	_, other := env.login(t, "device-b")
	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)

	w := env.do(t, http.MethodPost, "/api/v1/auth/anon", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestionsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/questions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateVoteAndFeed(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "device-a")
	otherToken, _ := env.login(t, "device-b")

	w := env.do(t, http.MethodPost, "/api/v1/questions", token, gin.H{
		"text":     "Kedi mi köpek mi?",
		"options":  []string{"Kedi", "Köpek"},
		"category": "Gündem",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.CreatePollResponse
	decode(t, w, &created)
	assert.Equal(t, models.PollPublished, created.Status)

	w = env.do(t, http.MethodPost, "/api/v1/questions", token, gin.H{
		"text":    "Tek seçenek?",
		"options": []string{"Evet"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/questions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page []feed.FeedPoll
	decode(t, w, &page)
	require.Len(t, page, 1)
	require.Len(t, page[0].Options, 2)
	kedi, kopek := page[0].Options[0].ID, page[0].Options[1].ID

	votePath := "/api/v1/questions/" + created.ID + "/vote"
	w = env.do(t, http.MethodPost, votePath, token, gin.H{"optionId": kedi})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res voting.Result
	decode(t, w, &res)
	assert.Equal(t, 1, res.PollVoteCount)
	assert.Equal(t, 100, res.PerOption[0].Percentage)

	w = env.do(t, http.MethodPost, votePath, token, gin.H{"optionId": kopek})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, votePath, otherToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, votePath, otherToken, gin.H{"optionId": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/questions/missing/vote", otherToken, gin.H{"optionId": kedi})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, votePath, otherToken, gin.H{"optionId": kopek})
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &res)
	assert.Equal(t, 2, res.PollVoteCount)
	assert.Equal(t, 50, res.PerOption[1].Percentage)

	w = env.do(t, http.MethodGet, "/api/v1/questions?limit=5&offset=0", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, kedi, page[0].ViewerChoice)
	assert.Equal(t, 2, page[0].VoteCount)
}

type unavailableRecorder struct{}

func (unavailableRecorder) RecordVote(context.Context, string, string, string) (models.Poll, error) {
	return models.Poll{}, errors.Errorf("%w: connection reset", store.ErrTransient)
}

func TestVoteTransientFailure(t *testing.T) {
	env := newTestEnv(t, func(d *handlers.Deps) {
		d.Votes = voting.NewEngine(unavailableRecorder{})
	})
	token, _ := env.login(t, "device-a")

	w := env.do(t, http.MethodPost, "/api/v1/questions/p1/vote", token, gin.H{"optionId": "o1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "Service temporarily unavailable, try again", body["error"])
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "device-a")

	poll := &models.Poll{
		Text:    "Soru?",
		Status:  models.PollPublished,
		Options: []models.Option{{Text: "A"}, {Text: "B"}},
	}
	require.NoError(t, env.store.CreatePoll(context.Background(), poll))

	path := "/api/v1/comments/" + poll.ID
	w := env.do(t, http.MethodPost, path, token, gin.H{"text": "güzel soru"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var comment models.Comment
	decode(t, w, &comment)

	w = env.do(t, http.MethodPost, path, token, gin.H{"text": "katılıyorum", "parentId": comment.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, path, token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/comments/missing", token, gin.H{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var comments []models.Comment
	decode(t, w, &comments)
	require.Len(t, comments, 2)
	assert.Equal(t, "güzel soru", comments[0].Text)
	require.NotNil(t, comments[1].ParentID)
	assert.Equal(t, comment.ID, *comments[1].ParentID)

	w = env.do(t, http.MethodGet, path+"?limit=1&offset=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &comments)
	require.Len(t, comments, 1)
	assert.Equal(t, "katılıyorum", comments[0].Text)
}

func TestReviewRoutes(t *testing.T) {
	env := newTestEnv(t)
	poll := &models.Poll{
		Text:      "Beklemede?",
		Status:    models.PollPending,
		CreatedAt: time.Now(),
		Options:   []models.Option{{Text: "A"}, {Text: "B"}},
	}
	require.NoError(t, env.store.CreatePoll(context.Background(), poll))

	w := env.do(t, http.MethodGet, "/api/v1/review/pending", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/review/pending", "", nil, "X-Admin-Token", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	var pending []models.Poll
	decode(t, w, &pending)
	require.Len(t, pending, 1)

	w = env.do(t, http.MethodPost, "/api/v1/review/"+poll.ID+"/approve", "", nil, "X-Admin-Token", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	var approved models.Poll
	decode(t, w, &approved)
	assert.Equal(t, models.PollPublished, approved.Status)

	w = env.do(t, http.MethodPost, "/api/v1/review/"+poll.ID+"/reject", "", nil, "X-Admin-Token", "admin")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuotaUsage(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/quota", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var usage quota.Usage
	decode(t, w, &usage)
	assert.Equal(t, quota.Usage{MinuteLimit: 15, DayLimit: 500}, usage)
}
