package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// The first profile ever created becomes the admin; profile deletion is an
// admin-only operation.

// CreateProfile registers a new user. Creating an existing username returns
// the stored profile unchanged.
func (s *Store) CreateProfile(username string) (*core.UserProfile, error) {
	if existing, err := s.GetProfile(username); err == nil {
		return existing, nil
	} else if !errors.Is(err, core.ErrProfileNotFound) {
		return nil, err
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}
	isAdmin := count == 0

	_, err := s.db.Exec(`INSERT INTO profiles (username, is_admin) VALUES (?, ?)`, username, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("create profile %q: %w", username, err)
	}

	s.logger.Info("Profile created", zap.String("username", username), zap.Bool("isAdmin", isAdmin))
	return s.GetProfile(username)
}

// GetProfile loads a full profile including starred items, auth, and the
// device preference.
func (s *Store) GetProfile(username string) (*core.UserProfile, error) {
	profile := &core.UserProfile{
		Username:      username,
		StarredAlbums: make(map[string]bool),
		StarredTracks: make(map[string][]int),
	}

	var authJSON, deviceJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT is_admin, sync_id, auth_json, device_json, created_at FROM profiles WHERE username = ?`,
		username,
	).Scan(&profile.IsAdmin, &profile.SyncID, &authJSON, &deviceJSON, &profile.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", username, err)
	}

	if authJSON.Valid && authJSON.String != "" {
		auth := &core.SpotifyAuth{}
		if err := json.Unmarshal([]byte(authJSON.String), auth); err == nil {
			profile.Auth = auth
		}
	}
	if deviceJSON.Valid && deviceJSON.String != "" {
		device := &core.PreferredDevice{}
		if err := json.Unmarshal([]byte(deviceJSON.String), device); err == nil {
			profile.PreferredDevice = device
		}
	}

	albums, err := s.db.Query(`SELECT barcode FROM starred_albums WHERE username = ?`, username)
	if err != nil {
		return nil, fmt.Errorf("load starred albums: %w", err)
	}
	defer albums.Close()
	for albums.Next() {
		var barcode string
		if err := albums.Scan(&barcode); err != nil {
			return nil, err
		}
		profile.StarredAlbums[barcode] = true
	}
	if err := albums.Err(); err != nil {
		return nil, err
	}

	tracks, err := s.db.Query(
		`SELECT barcode, track_number FROM starred_tracks WHERE username = ? ORDER BY barcode, track_number`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("load starred tracks: %w", err)
	}
	defer tracks.Close()
	for tracks.Next() {
		var barcode string
		var trackNumber int
		if err := tracks.Scan(&barcode, &trackNumber); err != nil {
			return nil, err
		}
		profile.StarredTracks[barcode] = append(profile.StarredTracks[barcode], trackNumber)
	}
	if err := tracks.Err(); err != nil {
		return nil, err
	}

	return profile, nil
}

// DeleteProfile removes a profile and everything hanging off it. Only the
// admin may delete profiles.
func (s *Store) DeleteProfile(requestedBy, username string) error {
	requester, err := s.GetProfile(requestedBy)
	if err != nil {
		return err
	}
	if !requester.IsAdmin {
		return core.ErrNotAdmin
	}
	if _, err := s.GetProfile(username); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM starred_albums WHERE username = ?`,
		`DELETE FROM starred_tracks WHERE username = ?`,
		`DELETE FROM linked_albums WHERE username = ?`,
		`DELETE FROM profiles WHERE username = ?`,
	} {
		if _, err := tx.Exec(q, username); err != nil {
			return fmt.Errorf("delete profile %q: %w", username, err)
		}
	}
	return tx.Commit()
}

// ListProfiles returns all profiles, admin first, then by creation time.
func (s *Store) ListProfiles() ([]*core.UserProfile, error) {
	rows, err := s.db.Query(`SELECT username FROM profiles ORDER BY is_admin DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		usernames = append(usernames, username)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profiles := make([]*core.UserProfile, 0, len(usernames))
	for _, username := range usernames {
		profile, err := s.GetProfile(username)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (s *Store) StarAlbum(username, barcode string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO starred_albums (username, barcode) VALUES (?, ?)`,
		username, barcode,
	)
	return err
}

func (s *Store) UnstarAlbum(username, barcode string) error {
	_, err := s.db.Exec(
		`DELETE FROM starred_albums WHERE username = ? AND barcode = ?`,
		username, barcode,
	)
	return err
}

func (s *Store) StarTrack(username, barcode string, trackNumber int) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO starred_tracks (username, barcode, track_number) VALUES (?, ?, ?)`,
		username, barcode, trackNumber,
	)
	return err
}

func (s *Store) UnstarTrack(username, barcode string, trackNumber int) error {
	_, err := s.db.Exec(
		`DELETE FROM starred_tracks WHERE username = ? AND barcode = ? AND track_number = ?`,
		username, barcode, trackNumber,
	)
	return err
}

// SaveLink stores an album link, replacing any previous link for the barcode.
func (s *Store) SaveLink(username string, link *core.LinkedAlbum) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO linked_albums (username, barcode, link_json) VALUES (?, ?, ?)
		 ON CONFLICT (username, barcode) DO UPDATE SET link_json = excluded.link_json`,
		username, link.Barcode, string(payload),
	)
	return err
}

func (s *Store) DeleteLink(username, barcode string) (bool, error) {
	result, err := s.db.Exec(
		`DELETE FROM linked_albums WHERE username = ? AND barcode = ?`,
		username, barcode,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) GetLink(username, barcode string) (*core.LinkedAlbum, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT link_json FROM linked_albums WHERE username = ? AND barcode = ?`,
		username, barcode,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	link := &core.LinkedAlbum{}
	if err := json.Unmarshal([]byte(payload), link); err != nil {
		return nil, fmt.Errorf("decode link for %q: %w", barcode, err)
	}
	return link, nil
}

func (s *Store) AllLinks(username string) (map[string]*core.LinkedAlbum, error) {
	rows, err := s.db.Query(`SELECT barcode, link_json FROM linked_albums WHERE username = ?`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make(map[string]*core.LinkedAlbum)
	for rows.Next() {
		var barcode, payload string
		if err := rows.Scan(&barcode, &payload); err != nil {
			return nil, err
		}
		link := &core.LinkedAlbum{}
		if err := json.Unmarshal([]byte(payload), link); err != nil {
			return nil, fmt.Errorf("decode link for %q: %w", barcode, err)
		}
		links[barcode] = link
	}
	return links, rows.Err()
}

// SetSyncID attaches the backup sync identifier to a profile.
func (s *Store) SetSyncID(username, syncID string) error {
	return s.updateProfileColumn(username, "sync_id", syncID)
}

// SaveAuth stores Spotify credentials on the profile.
func (s *Store) SaveAuth(username string, auth *core.SpotifyAuth) error {
	payload, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode auth: %w", err)
	}
	return s.updateProfileColumn(username, "auth_json", string(payload))
}

func (s *Store) GetAuth(username string) (*core.SpotifyAuth, error) {
	var payload sql.NullString
	err := s.db.QueryRow(`SELECT auth_json FROM profiles WHERE username = ?`, username).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	if !payload.Valid || payload.String == "" {
		return nil, nil
	}

	auth := &core.SpotifyAuth{}
	if err := json.Unmarshal([]byte(payload.String), auth); err != nil {
		return nil, fmt.Errorf("decode auth for %q: %w", username, err)
	}
	return auth, nil
}

func (s *Store) ClearAuth(username string) error {
	return s.updateProfileColumn(username, "auth_json", "")
}

// SetPreferredDevice stores the playback-device preference.
func (s *Store) SetPreferredDevice(username string, device *core.PreferredDevice) error {
	payload, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encode device: %w", err)
	}
	return s.updateProfileColumn(username, "device_json", string(payload))
}

func (s *Store) GetPreferredDevice(username string) (*core.PreferredDevice, error) {
	var payload sql.NullString
	err := s.db.QueryRow(`SELECT device_json FROM profiles WHERE username = ?`, username).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	if !payload.Valid || payload.String == "" {
		return nil, nil
	}

	device := &core.PreferredDevice{}
	if err := json.Unmarshal([]byte(payload.String), device); err != nil {
		return nil, fmt.Errorf("decode device for %q: %w", username, err)
	}
	return device, nil
}

// SaveSyncBackup stores an opaque backup blob under (syncID, kind). Backups
// are eventually consistent: a later local change may overtake an in-flight
// backup, so readers must treat them as snapshots, not authority.
func (s *Store) SaveSyncBackup(syncID, kind string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_backups (sync_id, kind, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (sync_id, kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		syncID, kind, payload, time.Now().UTC(),
	)
	return err
}

func (s *Store) GetSyncBackup(syncID, kind string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM sync_backups WHERE sync_id = ? AND kind = ?`,
		syncID, kind,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payload, err
}

func (s *Store) updateProfileColumn(username, column, value string) error {
	result, err := s.db.Exec(
		`UPDATE profiles SET `+column+` = ? WHERE username = ?`,
		value, username,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrProfileNotFound
	}
	return nil
}
