package spotify

import (
	"testing"

	"github.com/zmb3/spotify/v2"

	"discobase/internal/core"
)

func TestConvertAlbum(t *testing.T) {
	album := &spotify.SimpleAlbum{
		ID:          "4LH4d3cOWNNsVw41Gqt2kv",
		URI:         "spotify:album:4LH4d3cOWNNsVw41Gqt2kv",
		Name:        "The Dark Side of the Moon",
		Artists:     []spotify.SimpleArtist{{Name: "Pink Floyd"}},
		ReleaseDate: "1973-03-01",
		TotalTracks: 10,
		Images: []spotify.Image{
			{URL: "https://i.scdn.co/image/abc", Width: 640, Height: 640},
		},
		ExternalURLs: map[string]string{"spotify": "https://open.spotify.com/album/4LH4d3cOWNNsVw41Gqt2kv"},
	}

	got := convertAlbum(album)

	if got.ID != "4LH4d3cOWNNsVw41Gqt2kv" {
		t.Errorf("unexpected ID: %s", got.ID)
	}
	if got.Artist != "Pink Floyd" {
		t.Errorf("unexpected artist: %s", got.Artist)
	}
	if got.ReleaseYear() != 1973 {
		t.Errorf("expected release year 1973, got %d", got.ReleaseYear())
	}
	if !got.HasImage() {
		t.Error("expected candidate to have an image")
	}
	if got.TotalTracks != 10 {
		t.Errorf("expected 10 tracks, got %d", got.TotalTracks)
	}
}

func TestConvertAlbum_MultipleArtists(t *testing.T) {
	album := &spotify.SimpleAlbum{
		Name: "Watch the Throne",
		Artists: []spotify.SimpleArtist{
			{Name: "JAY-Z"},
			{Name: "Kanye West"},
		},
	}

	got := convertAlbum(album)
	if got.Artist != "JAY-Z, Kanye West" {
		t.Errorf("unexpected joined artist: %s", got.Artist)
	}
	if got.HasImage() {
		t.Error("expected no image")
	}
}

func TestDeviceType(t *testing.T) {
	tests := []struct {
		raw  string
		want core.DeviceType
	}{
		{"Computer", core.DeviceComputer},
		{"Smartphone", core.DeviceSmartphone},
		{"Speaker", core.DeviceSpeaker},
		{"TV", core.DeviceTV},
		{"GAME_CONSOLE", core.DeviceConsole},
		{"CastAudio", core.DeviceOther},
		{"", core.DeviceOther},
	}

	for _, tt := range tests {
		if got := deviceType(tt.raw); got != tt.want {
			t.Errorf("deviceType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
