package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huddle/api/internal/blob"
	"github.com/huddle/api/internal/imaging"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/oembed"
	"github.com/huddle/api/internal/preview"
	"github.com/huddle/api/internal/testutil"
	"github.com/huddle/api/internal/urlkey"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	db       *sql.DB
	previews *preview.Repository
	messages *message.Repository
	blobs    *blob.FSStore
	pipeline *Pipeline
	convID   string
	playerID string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestDB(t)

	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating blob store: %v", err)
	}

	// Plain client so tests can reach the loopback upstream.
	client := &http.Client{Timeout: 5 * time.Second}

	previews := preview.NewRepository(db)
	messages := message.NewRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(previews, messages, blobs,
		imaging.NewTransformer(client, imaging.Options{}),
		oembed.NewClient(client, "huddlebot/1.0"),
		client, logger, Options{OembedTTL: time.Hour})

	user := testutil.CreateTestUser(t, db, "jo@example.com", "Jo")
	player := testutil.CreateTestPlayer(t, db, user.ID, user.Email, "Jo")
	conv := testutil.CreateTestConversation(t, db, "team chat", player.ID)

	return &fixture{
		db:       db,
		previews: previews,
		messages: messages,
		blobs:    blobs,
		pipeline: p,
		convID:   conv.ID,
		playerID: player.ID,
	}
}

func (f *fixture) createMessage(t *testing.T, content string) *message.Message {
	t.Helper()
	msg := &message.Message{
		ConversationID: f.convID,
		PlayerID:       &f.playerID,
		Content:        content,
	}
	if err := f.messages.Create(context.Background(), msg); err != nil {
		t.Fatalf("creating message: %v", err)
	}
	return msg
}

func (f *fixture) embedFor(t *testing.T, messageID, urlHash string) message.Embed {
	t.Helper()
	msg, err := f.messages.GetByID(context.Background(), messageID)
	if err != nil {
		t.Fatalf("loading message: %v", err)
	}
	for _, e := range msg.Embeds {
		if e.URLHash == urlHash {
			return e
		}
	}
	t.Fatalf("no embed with hash %s on message %s", urlHash, messageID)
	return message.Embed{}
}

func previewCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM link_previews`).Scan(&n); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

func TestProcess_SuccessWithRehostedImage(t *testing.T) {
	f := setup(t)
	img := pngBytes(t, 800, 600)

	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head>
			<meta property="og:title" content="Match Report">
			<meta property="og:description" content="A hard-fought draw.">
			<meta property="og:site_name" content="Example News">
			<meta property="og:image" content="/photo.png">
			<link rel="icon" href="/favicon.ico">
			</head><body>hi</body></html>`)
	})
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	})

	pageURL := srv.URL + "/article"
	msg := f.createMessage(t, "read this: "+pageURL)
	if len(msg.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(msg.Embeds))
	}

	f.pipeline.ProcessMessage(context.Background(), msg)

	rec, err := f.previews.GetOne(context.Background(), msg.Embeds[0].URLHash)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if rec == nil || rec.Status != preview.StatusSuccess {
		t.Fatalf("record = %+v, want success", rec)
	}
	if rec.Title != "Match Report" || rec.SiteName != "Example News" {
		t.Errorf("metadata = %q / %q", rec.Title, rec.SiteName)
	}
	if rec.FaviconURL != srv.URL+"/favicon.ico" {
		t.Errorf("favicon = %q", rec.FaviconURL)
	}
	if rec.ImageFullRef == "" || rec.ImageThumbRef == "" {
		t.Fatalf("image refs not set: %+v", rec)
	}
	if rec.ImageWidth != 800 || rec.ImageHeight != 600 {
		t.Errorf("dimensions = %dx%d, want 800x600", rec.ImageWidth, rec.ImageHeight)
	}
	if rec.OriginalImageURL != srv.URL+"/photo.png" {
		t.Errorf("original image url = %q", rec.OriginalImageURL)
	}

	for _, ref := range []string{rec.ImageFullRef, rec.ImageThumbRef} {
		rc, ct, err := f.blobs.Open(context.Background(), ref)
		if err != nil {
			t.Fatalf("stored variant %s missing: %v", ref, err)
		}
		rc.Close()
		if ct != "image/jpeg" {
			t.Errorf("content type = %q, want image/jpeg", ct)
		}
	}

	if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
		t.Errorf("embed status = %q, want ready", e.Status)
	}
}

func TestProcess_SameURLInTwoMessages(t *testing.T) {
	f := setup(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Shared Page</title></head><body></body></html>`)
	}))
	defer srv.Close()

	first := f.createMessage(t, "look "+srv.URL+"/page")
	second := f.createMessage(t, "same link "+srv.URL+"/page")

	f.pipeline.ProcessMessage(context.Background(), first)
	f.pipeline.ProcessMessage(context.Background(), second)

	if n := previewCount(t, f.db); n != 1 {
		t.Fatalf("preview rows = %d, want 1", n)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream fetches = %d, want 1", hits.Load())
	}

	for _, msg := range []*message.Message{first, second} {
		if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
			t.Errorf("message %s embed status = %q, want ready", msg.ID, e.Status)
		}
	}
}

func TestProcess_NoUsableMetadata(t *testing.T) {
	f := setup(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head></head><body>just text</body></html>`)
	}))
	defer srv.Close()

	msg := f.createMessage(t, srv.URL+"/bare")
	f.pipeline.ProcessMessage(context.Background(), msg)

	rec, err := f.previews.GetOne(context.Background(), msg.Embeds[0].URLHash)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if rec == nil || rec.Status != preview.StatusNoPreview {
		t.Fatalf("record = %+v, want no_preview", rec)
	}
	if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
		t.Errorf("embed status = %q, want ready", e.Status)
	}
}

func TestProcess_UpstreamFailure(t *testing.T) {
	f := setup(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	msg := f.createMessage(t, srv.URL+"/down")
	f.pipeline.ProcessMessage(context.Background(), msg)

	rec, err := f.previews.GetOne(context.Background(), msg.Embeds[0].URLHash)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if rec == nil || rec.Status != preview.StatusError {
		t.Fatalf("record = %+v, want error", rec)
	}
	if rec.ErrorMessage == "" {
		t.Error("error message not recorded")
	}

	e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash)
	if e.Status != message.EmbedStatusError {
		t.Errorf("embed status = %q, want error", e.Status)
	}
	if e.ErrorMessage == "" {
		t.Error("embed error message not carried")
	}
}

func TestProcess_TerminalRowIsNotRefetched(t *testing.T) {
	f := setup(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	first := f.createMessage(t, srv.URL+"/flaky")
	f.pipeline.ProcessMessage(context.Background(), first)
	if hits.Load() != 1 {
		t.Fatalf("fetches after first message = %d, want 1", hits.Load())
	}

	// The upstream has recovered, but the error row is terminal.
	second := f.createMessage(t, srv.URL+"/flaky")
	f.pipeline.ProcessMessage(context.Background(), second)

	if hits.Load() != 1 {
		t.Errorf("fetches after second message = %d, want 1", hits.Load())
	}
	if e := f.embedFor(t, second.ID, second.Embeds[0].URLHash); e.Status != message.EmbedStatusError {
		t.Errorf("second embed status = %q, want error", e.Status)
	}
}

func TestProcess_ImageFailureKeepsMetadata(t *testing.T) {
	f := setup(t)

	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="Broken Image Post">
			<meta property="og:image" content="/gone.png">
			</head><body></body></html>`)
	})
	mux.HandleFunc("/gone.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	msg := f.createMessage(t, srv.URL+"/post")
	f.pipeline.ProcessMessage(context.Background(), msg)

	rec, err := f.previews.GetOne(context.Background(), msg.Embeds[0].URLHash)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if rec == nil || rec.Status != preview.StatusSuccess {
		t.Fatalf("record = %+v, want success", rec)
	}
	if rec.ImageFullRef != "" || rec.ImageThumbRef != "" {
		t.Errorf("image refs set despite failed rehost: %+v", rec)
	}
	if rec.OriginalImageURL != srv.URL+"/gone.png" {
		t.Errorf("original image url = %q, want fallback preserved", rec.OriginalImageURL)
	}
	if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
		t.Errorf("embed status = %q, want ready", e.Status)
	}
}

func TestProcess_OembedProvider(t *testing.T) {
	f := setup(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"html":"<blockquote>post</blockquote>","author_name":"jo","width":540}`)
	}))
	defer srv.Close()
	restore := oembed.SetEndpoint(oembed.ProviderInstagram, srv.URL+"/oembed")
	defer restore()

	msg := f.createMessage(t, "see https://www.instagram.com/p/abc123/")
	if len(msg.Embeds) != 1 || msg.Embeds[0].Type != message.EmbedTypeOembed {
		t.Fatalf("embeds = %+v, want one oembed entry", msg.Embeds)
	}

	f.pipeline.ProcessMessage(context.Background(), msg)

	rec, err := f.previews.GetOembed(context.Background(), msg.Embeds[0].URLHash)
	if err != nil {
		t.Fatalf("GetOembed: %v", err)
	}
	if rec == nil {
		t.Fatal("oembed row not cached")
	}
	if rec.Provider != oembed.ProviderInstagram || rec.HTML == "" {
		t.Errorf("cached row = %+v", rec)
	}
	if !rec.ExpiresAt.After(rec.FetchedAt) {
		t.Errorf("expires_at %v not after fetched_at %v", rec.ExpiresAt, rec.FetchedAt)
	}

	// The generic preview table stays untouched for provider URLs.
	if n := previewCount(t, f.db); n != 0 {
		t.Errorf("link preview rows = %d, want 0", n)
	}
	if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
		t.Errorf("embed status = %q, want ready", e.Status)
	}
}

func TestProcess_OembedCacheHitSkipsEndpoint(t *testing.T) {
	f := setup(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"html":"<blockquote>post</blockquote>"}`)
	}))
	defer srv.Close()
	restore := oembed.SetEndpoint(oembed.ProviderInstagram, srv.URL+"/oembed")
	defer restore()

	target := "https://www.instagram.com/p/cached/"
	hash, canonical, err := urlkey.HashURL(target)
	if err != nil {
		t.Fatalf("HashURL: %v", err)
	}
	now := time.Now().UTC()
	_, err = f.previews.UpsertOembed(context.Background(), &preview.OembedRecord{
		URLHash:   hash,
		URL:       canonical,
		Provider:  oembed.ProviderInstagram,
		HTML:      "<blockquote>already here</blockquote>",
		FetchedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	msg := f.createMessage(t, target)
	f.pipeline.ProcessMessage(context.Background(), msg)

	if hits.Load() != 0 {
		t.Errorf("endpoint fetches = %d, want 0", hits.Load())
	}
	if e := f.embedFor(t, msg.ID, msg.Embeds[0].URLHash); e.Status != message.EmbedStatusReady {
		t.Errorf("embed status = %q, want ready", e.Status)
	}
}
