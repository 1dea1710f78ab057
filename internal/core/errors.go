package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the playback and linking paths. All of these are local
// to the triggering action and must never crash the session.
var (
	// ErrNoDeviceAvailable means the device list came back empty. Callers
	// surface actionable guidance instead of retrying.
	ErrNoDeviceAvailable = errors.New("no playback device available, open Spotify on a device first")

	// ErrAuthExpired means stored credentials are invalid and a refresh
	// exchange failed. Playback controls disable themselves until the user
	// re-authenticates.
	ErrAuthExpired = errors.New("spotify authentication expired")

	// ErrRefreshFailed wraps a failed token refresh exchange.
	ErrRefreshFailed = errors.New("spotify token refresh failed")

	// ErrNotAuthenticated means no Spotify credentials are stored for the user.
	ErrNotAuthenticated = errors.New("user has no spotify authentication")

	// ErrProfileNotFound means the named user profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNotAdmin means a profile-admin operation was attempted by a non-admin.
	ErrNotAdmin = errors.New("operation requires the admin profile")
)

// SearchError reports a failed album search: either required catalog fields
// were missing, or the Spotify call itself failed. Retryable, never fatal.
type SearchError struct {
	Reason string
	Err    error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("album search failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("album search failed: %s", e.Reason)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// PlaybackCommandError reports a non-2xx response from a playback control
// endpoint. Safe to retry the same user action.
type PlaybackCommandError struct {
	Command string
	Err     error
}

func (e *PlaybackCommandError) Error() string {
	return fmt.Sprintf("playback command %q failed: %v", e.Command, e.Err)
}

func (e *PlaybackCommandError) Unwrap() error {
	return e.Err
}
