package player

import (
	"context"
	"errors"
	"testing"

	"github.com/huddle/api/internal/testutil"
)

func TestGetForUser_DirectLink(t *testing.T) {
	db := testutil.TestDB(t)
	repo := NewRepository(db)

	user := testutil.CreateTestUser(t, db, "sam@example.com", "Sam")
	p := testutil.CreateTestPlayer(t, db, user.ID, user.Email, "Sam")

	got, err := repo.GetForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetForUser: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("player = %q, want %q", got.ID, p.ID)
	}
}

func TestGetForUser_EmailFallback(t *testing.T) {
	db := testutil.TestDB(t)
	repo := NewRepository(db)

	// Player imported from a roster sheet with no user link; the email
	// differs only in case and whitespace.
	user := testutil.CreateTestUser(t, db, "casey@example.com", "Casey")
	p := testutil.CreateTestPlayer(t, db, "", " Casey@Example.com ", "Casey")

	got, err := repo.GetForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetForUser: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("player = %q, want %q (email fallback)", got.ID, p.ID)
	}
}

func TestGetForUser_NotFound(t *testing.T) {
	db := testutil.TestDB(t)
	repo := NewRepository(db)

	user := testutil.CreateTestUser(t, db, "ghost@example.com", "Ghost")

	if _, err := repo.GetForUser(context.Background(), user.ID); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Casey@Example.COM "); got != "casey@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
