package message

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/huddle/api/internal/testutil"
	"github.com/huddle/api/internal/urlkey"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"no url", "hello world", nil},
		{"simple url", "check https://example.com for details", []string{"https://example.com"}},
		{"two urls", "https://first.com and https://second.com", []string{"https://first.com", "https://second.com"}},
		{"duplicate collapsed", "https://example.com twice https://example.com", []string{"https://example.com"}},
		{"trailing punctuation", "Visit https://example.com.", []string{"https://example.com"}},
		{"in parens", "(https://example.com)", []string{"https://example.com"}},
		{"skip internal api", "see https://app.com/api/files/1 then https://real.com", []string{"https://real.com"}},
		{"bracket link", "<https://example.com/page|Example Page>", []string{"https://example.com/page"}},
		{"bracket then plain", "<https://a.com/x|a> plus https://b.com", []string{"https://a.com/x", "https://b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func setupConversation(t *testing.T) (repo *Repository, conversationID, playerID string) {
	t.Helper()
	db := testutil.TestDB(t)
	user := testutil.CreateTestUser(t, db, "sam@example.com", "Sam")
	player := testutil.CreateTestPlayer(t, db, user.ID, user.Email, "Sam")
	conv := testutil.CreateTestConversation(t, db, "general", player.ID)
	return NewRepository(db), conv.ID, player.ID
}

func TestCreate_SnapshotsEmbeds(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	msg := &Message{
		ConversationID: convID,
		PlayerID:       &playerID,
		Content:        "read https://example.com/article and https://www.instagram.com/p/abc/",
	}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Embeds) != 2 {
		t.Fatalf("embeds = %d, want 2", len(got.Embeds))
	}

	first := got.Embeds[0]
	if first.Type != EmbedTypeLink || first.Status != EmbedStatusPending {
		t.Errorf("first embed = %+v, want pending link", first)
	}
	wantHash, _, _ := urlkey.HashURL("https://example.com/article")
	if first.URLHash != wantHash {
		t.Errorf("url_hash = %q, want %q", first.URLHash, wantHash)
	}

	second := got.Embeds[1]
	if second.Type != EmbedTypeOembed {
		t.Errorf("second embed type = %q, want oembed", second.Type)
	}
}

func TestCreate_CollapsesSpellingVariants(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	// Two raw spellings, one canonical URL: exactly one embed entry, or the
	// duplicate would be stranded in pending forever (status patching stops
	// at the first hash match).
	msg := &Message{
		ConversationID: convID,
		PlayerID:       &playerID,
		Content:        "see https://EXAMPLE.com/x and https://example.com/x",
	}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1 per distinct URL", len(got.Embeds))
	}
	wantHash, canonical, _ := urlkey.HashURL("https://example.com/x")
	if got.Embeds[0].URLHash != wantHash {
		t.Errorf("url_hash = %q, want %q", got.Embeds[0].URLHash, wantHash)
	}
	if got.Embeds[0].URL != canonical {
		t.Errorf("url = %q, want %q", got.Embeds[0].URL, canonical)
	}
}

func TestCreate_NoURLs(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	msg := &Message{ConversationID: convID, PlayerID: &playerID, Content: "no links here"}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Embeds) != 0 {
		t.Fatalf("embeds = %v, want empty", got.Embeds)
	}
}

func TestUpdateEmbedStatus_TouchesOnlyMatch(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	msg := &Message{
		ConversationID: convID,
		PlayerID:       &playerID,
		Content:        "https://a.com https://b.com https://c.com",
	}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	before, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	target := before.Embeds[1]

	if err := repo.UpdateEmbedStatus(ctx, msg.ID, target.URLHash, EmbedStatusReady, ""); err != nil {
		t.Fatalf("UpdateEmbedStatus: %v", err)
	}

	after, err := repo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetByID after: %v", err)
	}
	if len(after.Embeds) != 3 {
		t.Fatalf("embeds = %d, want 3", len(after.Embeds))
	}

	// Siblings A and C unchanged, same order.
	if !reflect.DeepEqual(after.Embeds[0], before.Embeds[0]) {
		t.Errorf("embed A changed: %+v -> %+v", before.Embeds[0], after.Embeds[0])
	}
	if !reflect.DeepEqual(after.Embeds[2], before.Embeds[2]) {
		t.Errorf("embed C changed: %+v -> %+v", before.Embeds[2], after.Embeds[2])
	}
	if after.Embeds[1].Status != EmbedStatusReady {
		t.Errorf("embed B status = %q, want ready", after.Embeds[1].Status)
	}
}

func TestUpdateEmbedStatus_ErrorCarriesMessage(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	msg := &Message{ConversationID: convID, PlayerID: &playerID, Content: "https://broken.example.com"}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	hash := msg.Embeds[0].URLHash

	if err := repo.UpdateEmbedStatus(ctx, msg.ID, hash, EmbedStatusError, "image fetch timed out"); err != nil {
		t.Fatalf("UpdateEmbedStatus: %v", err)
	}

	got, _ := repo.GetByID(ctx, msg.ID)
	if got.Embeds[0].Status != EmbedStatusError {
		t.Errorf("status = %q, want error", got.Embeds[0].Status)
	}
	if got.Embeds[0].ErrorMessage != "image fetch timed out" {
		t.Errorf("error_message = %q", got.Embeds[0].ErrorMessage)
	}
}

func TestUpdateEmbedStatus_MessageGone(t *testing.T) {
	repo, _, _ := setupConversation(t)

	// Deleted-message race is a no-op, not an error.
	if err := repo.UpdateEmbedStatus(context.Background(), "01NOPE", "deadbeef", EmbedStatusReady, ""); err != nil {
		t.Fatalf("UpdateEmbedStatus: %v", err)
	}
}

func TestUpdateEmbedStatus_EntryMissing(t *testing.T) {
	repo, convID, playerID := setupConversation(t)
	ctx := context.Background()

	msg := &Message{ConversationID: convID, PlayerID: &playerID, Content: "https://only.example.com"}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Hash for a URL that was never in this message: dropped silently.
	if err := repo.UpdateEmbedStatus(ctx, msg.ID, urlkey.Hash("https://other.example.com"), EmbedStatusReady, ""); err != nil {
		t.Fatalf("UpdateEmbedStatus: %v", err)
	}

	got, _ := repo.GetByID(ctx, msg.ID)
	if got.Embeds[0].Status != EmbedStatusPending {
		t.Errorf("status = %q, want pending untouched", got.Embeds[0].Status)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, _, _ := setupConversation(t)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestPatchEmbed_SiblingBytesUntouched(t *testing.T) {
	// Sibling entries must come through byte-for-byte, including unknown
	// fields a newer writer may have added.
	raw := `[{"type":"link","url":"https://a.com","url_hash":"ha","status":"pending","extra_field":42},` +
		`{"type":"link","url":"https://b.com","url_hash":"hb","status":"pending"}]`

	out, changed, err := patchEmbed(raw, "hb", EmbedStatusReady, "")
	if err != nil {
		t.Fatalf("patchEmbed: %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if string(entries[0]) != `{"type":"link","url":"https://a.com","url_hash":"ha","status":"pending","extra_field":42}` {
		t.Errorf("sibling entry rewritten: %s", entries[0])
	}
}
