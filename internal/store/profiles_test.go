package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateProfile_FirstIsAdmin(t *testing.T) {
	s := testStore(t)

	first, err := s.CreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !first.IsAdmin {
		t.Error("first profile must be the admin")
	}

	second, err := s.CreateProfile("bob")
	if err != nil {
		t.Fatal(err)
	}
	if second.IsAdmin {
		t.Error("second profile must not be admin")
	}
}

func TestCreateProfile_Idempotent(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}
	again, err := s.CreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !again.IsAdmin {
		t.Error("re-creating must return the stored profile unchanged")
	}

	profiles, err := s.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 {
		t.Errorf("expected one profile, got %d", len(profiles))
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetProfile("ghost")
	if !errors.Is(err, core.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestStarredItemsRoundtrip(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}

	if err := s.StarAlbum("alice", "5099902987613"); err != nil {
		t.Fatal(err)
	}
	if err := s.StarTrack("alice", "5099902987613", 4); err != nil {
		t.Fatal(err)
	}
	if err := s.StarTrack("alice", "5099902987613", 1); err != nil {
		t.Fatal(err)
	}
	// Starring twice is a no-op.
	if err := s.StarAlbum("alice", "5099902987613"); err != nil {
		t.Fatal(err)
	}

	profile, err := s.GetProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !profile.StarredAlbums["5099902987613"] {
		t.Error("album star not persisted")
	}
	tracks := profile.StarredTracks["5099902987613"]
	if len(tracks) != 2 || tracks[0] != 1 || tracks[1] != 4 {
		t.Errorf("unexpected starred tracks %v", tracks)
	}

	if err := s.UnstarAlbum("alice", "5099902987613"); err != nil {
		t.Fatal(err)
	}
	if err := s.UnstarTrack("alice", "5099902987613", 4); err != nil {
		t.Fatal(err)
	}

	profile, err = s.GetProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if profile.StarredAlbums["5099902987613"] {
		t.Error("album star not removed")
	}
	if tracks := profile.StarredTracks["5099902987613"]; len(tracks) != 1 || tracks[0] != 1 {
		t.Errorf("unexpected starred tracks after unstar %v", tracks)
	}
}

func TestLinkRoundtrip(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}

	link := &core.LinkedAlbum{
		Barcode:    "5099902987613",
		SpotifyID:  "abc123",
		SpotifyURI: "spotify:album:abc123",
		Name:       "The Dark Side of the Moon",
		Artist:     "Pink Floyd",
		LinkedAt:   time.Now().UTC(),
	}
	if err := s.SaveLink("alice", link); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetLink("alice", "5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.SpotifyID != "abc123" {
		t.Fatalf("unexpected link %+v", got)
	}

	// Saving again replaces.
	link.SpotifyID = "def456"
	if err := s.SaveLink("alice", link); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetLink("alice", "5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.SpotifyID != "def456" {
		t.Errorf("expected replaced link, got %q", got.SpotifyID)
	}

	all, err := s.AllLinks("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected one link, got %d", len(all))
	}

	removed, err := s.DeleteLink("alice", "5099902987613")
	if err != nil || !removed {
		t.Fatalf("delete failed: removed=%v err=%v", removed, err)
	}
	removed, err = s.DeleteLink("alice", "5099902987613")
	if err != nil || removed {
		t.Fatalf("second delete should report nothing removed: removed=%v err=%v", removed, err)
	}

	if got, _ := s.GetLink("alice", "5099902987613"); got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestAuthRoundtrip(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}

	auth := &core.SpotifyAuth{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		UserID:       "spotify-alice",
	}
	if err := s.SaveAuth("alice", auth); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAuth("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AccessToken != "access" || got.UserID != "spotify-alice" {
		t.Fatalf("unexpected auth %+v", got)
	}

	if err := s.ClearAuth("alice"); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetAuth("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil auth after clear, got %+v", got)
	}

	if err := s.SaveAuth("ghost", auth); !errors.Is(err, core.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound for unknown profile, got %v", err)
	}
}

func TestPreferredDeviceRoundtrip(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}

	device := &core.PreferredDevice{
		ID:       "speaker",
		Name:     "Kitchen",
		Type:     core.DeviceSpeaker,
		LastUsed: time.Now().UTC(),
	}
	if err := s.SetPreferredDevice("alice", device); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPreferredDevice("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "speaker" || got.Type != core.DeviceSpeaker {
		t.Fatalf("unexpected device %+v", got)
	}
}

func TestDeleteProfile_AdminOnly(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil { // admin
		t.Fatal(err)
	}
	if _, err := s.CreateProfile("bob"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteProfile("bob", "alice"); !errors.Is(err, core.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}

	if err := s.StarAlbum("bob", "5099902987613"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProfile("alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProfile("bob"); !errors.Is(err, core.ErrProfileNotFound) {
		t.Errorf("expected profile gone, got %v", err)
	}

	if err := s.DeleteProfile("alice", "ghost"); !errors.Is(err, core.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound for unknown target, got %v", err)
	}
}

func TestSyncBackupRoundtrip(t *testing.T) {
	s := testStore(t)

	if err := s.SaveSyncBackup("sync-1", "starred", []byte(`{"albums":[]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSyncBackup("sync-1", "starred")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"albums":[]}` {
		t.Errorf("unexpected payload %q", got)
	}

	// Overwrite, last writer wins.
	if err := s.SaveSyncBackup("sync-1", "starred", []byte(`{"albums":["x"]}`)); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetSyncBackup("sync-1", "starred")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"albums":["x"]}` {
		t.Errorf("unexpected payload after overwrite %q", got)
	}

	missing, err := s.GetSyncBackup("sync-1", "links")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown kind, got %q", missing)
	}
}

func TestSetSyncID(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateProfile("alice"); err != nil {
		t.Fatal(err)
	}

	if err := s.SetSyncID("alice", "sync-1"); err != nil {
		t.Fatal(err)
	}
	profile, err := s.GetProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if profile.SyncID != "sync-1" {
		t.Errorf("expected sync id persisted, got %q", profile.SyncID)
	}
}
