package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/huddle/api/internal/access"
	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/blob"
	"github.com/huddle/api/internal/conversation"
	"github.com/huddle/api/internal/imaging"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/oembed"
	"github.com/huddle/api/internal/pipeline"
	"github.com/huddle/api/internal/player"
	"github.com/huddle/api/internal/preview"
	"github.com/huddle/api/internal/testutil"
)

type testEnv struct {
	handler  *Handler
	router   http.Handler
	db       *sql.DB
	blobs    *blob.FSStore
	previews *preview.Repository
	messages *message.Repository

	userID   string
	playerID string
	convID   string
	token    string
}

// newTestEnv creates a fully-wired Handler behind a minimal router, backed
// by an in-memory SQLite database, plus one logged-in participant.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.TestDB(t)

	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating blob store: %v", err)
	}

	// Plain client so tests can reach loopback upstreams.
	client := &http.Client{Timeout: 5 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	previews := preview.NewRepository(db)
	messages := message.NewRepository(db)
	sessions := auth.NewSessionStore(db, 24*time.Hour)
	transformer := imaging.NewTransformer(client, imaging.Options{})

	gate := access.NewGate(
		access.SQLSessionResolver{DB: db},
		access.PlayerRepoResolver{Repo: player.NewRepository(db)},
		access.ConversationRepoChecker{Repo: conversation.NewRepository(db)},
	)

	p := pipeline.New(previews, messages, blobs, transformer,
		oembed.NewClient(client, "huddlebot/1.0"), client, logger, pipeline.Options{})

	h := New(Dependencies{
		AuthService: auth.NewService(db, 4),
		Sessions:    sessions,
		Messages:    messages,
		Previews:    previews,
		Blobs:       blobs,
		Gate:        gate,
		Transformer: transformer,
		Pipeline:    p,
		Logger:      logger,
	})

	r := chi.NewRouter()
	r.Use(auth.TokenMiddleware(sessions))
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth())
		r.Post("/api/messages", h.CreateMessage)
		r.Get("/api/messages/{id}", h.GetMessage)
		r.Get("/api/previews", h.GetPreviews)
		r.Post("/api/transform", h.Transform)
	})
	r.Get("/api/images/{conversationId}/{ref}", h.ServeImage)

	user := testutil.CreateTestUser(t, db, "casey@example.com", "Casey")
	pl := testutil.CreateTestPlayer(t, db, user.ID, user.Email, "Casey")
	conv := testutil.CreateTestConversation(t, db, "team chat", pl.ID)
	token := testutil.CreateTestSession(t, db, user.ID, time.Now().Add(time.Hour))

	return &testEnv{
		handler:  h,
		router:   r,
		db:       db,
		blobs:    blobs,
		previews: previews,
		messages: messages,
		userID:   user.ID,
		playerID: pl.ID,
		convID:   conv.ID,
		token:    token,
	}
}

// do performs a request against the test router. A non-empty token is sent
// as a bearer token.
func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// outsider creates a second logged-in participant who shares no
// conversations with the default fixture.
func (e *testEnv) outsider(t *testing.T) string {
	t.Helper()
	u := testutil.CreateTestUser(t, e.db, "riley@example.com", "Riley")
	pl := testutil.CreateTestPlayer(t, e.db, u.ID, u.Email, "Riley")
	testutil.CreateTestConversation(t, e.db, "other chat", pl.ID)
	return testutil.CreateTestSession(t, e.db, u.ID, time.Now().Add(time.Hour))
}
