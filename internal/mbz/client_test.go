package mbz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

const searchBody = `{
	"releases": [{
		"id": "f5093c06-23e3-404f-aeaa-40f72885ee3a",
		"title": "The Dark Side of the Moon",
		"country": "GB",
		"date": "1973-03-16",
		"artist-credit": [{"name": "Pink Floyd"}]
	}]
}`

const detailBody = `{
	"id": "f5093c06-23e3-404f-aeaa-40f72885ee3a",
	"title": "The Dark Side of the Moon",
	"artist-credit": [{"name": "Pink Floyd"}],
	"release-group": {"first-release-date": "1973-03-01"},
	"media": [{
		"tracks": [
			{"title": "Speak to Me", "recording": {"title": "Speak to Me"}},
			{"title": "Breathe", "recording": {"title": "Breathe (In the Air)"}}
		]
	}]
}`

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := &core.MusicBrainzConfig{
		BaseURL:     server.URL,
		CoverArtURL: server.URL + "/caa",
		UserAgent:   "discobase-test/1.0 ( test@example.com )",
	}
	limiter := NewAdaptiveLimiter(time.Millisecond, time.Second, nil, zap.NewNop())
	return NewClient(config, limiter, zap.NewNop()), server
}

func TestLookupBarcode(t *testing.T) {
	var sawUserAgent string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserAgent = r.Header.Get("User-Agent")
		switch {
		case r.URL.Path == "/release":
			if q := r.URL.Query().Get("query"); q != "barcode:5099902987613" {
				t.Errorf("unexpected query %q", q)
			}
			w.Write([]byte(searchBody))
		case r.URL.Path == "/release/f5093c06-23e3-404f-aeaa-40f72885ee3a":
			if inc := r.URL.Query().Get("inc"); inc != "release-groups" {
				t.Errorf("unexpected includes %q", inc)
			}
			w.Write([]byte(detailBody))
		default:
			http.NotFound(w, r)
		}
	}))

	album, err := client.LookupBarcode(context.Background(), "5099902987613")
	if err != nil {
		t.Fatal(err)
	}

	if album.Artist != "Pink Floyd" || album.Title != "The Dark Side of the Moon" {
		t.Errorf("unexpected album %+v", album)
	}
	if album.FirstReleaseDate != "1973-03-01" {
		t.Errorf("expected release-group date, got %q", album.FirstReleaseDate)
	}
	if album.Country != "GB" || album.MusicBrainzID != "f5093c06-23e3-404f-aeaa-40f72885ee3a" {
		t.Errorf("unexpected album metadata %+v", album)
	}
	if sawUserAgent == "" {
		t.Error("requests must carry a User-Agent, MusicBrainz rejects anonymous clients")
	}
}

func TestLookupBarcode_NotFound(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"releases": []}`))
	}))

	_, err := client.LookupBarcode(context.Background(), "000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupBarcode_ServerBusyBacksOff(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	initial := client.limiter.Delay()

	_, err := client.LookupBarcode(context.Background(), "5099902987613")
	if !errors.Is(err, ErrServerBusy) {
		t.Fatalf("expected ErrServerBusy, got %v", err)
	}
	if client.limiter.Delay() <= initial {
		t.Error("limiter should back off after a 503")
	}
}

func TestTrackNames(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inc := r.URL.Query().Get("inc"); inc != "recordings" {
			t.Errorf("unexpected includes %q", inc)
		}
		w.Write([]byte(detailBody))
	}))

	tracks, err := client.TrackNames(context.Background(), "f5093c06-23e3-404f-aeaa-40f72885ee3a")
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 || tracks[1] != "Breathe (In the Air)" {
		t.Errorf("expected recording titles, got %v", tracks)
	}
}

func TestFrontCover(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/caa/release/mbid-1/front" {
			w.Write([]byte("image-bytes"))
			return
		}
		http.NotFound(w, r)
	}))

	data, err := client.FrontCover(context.Background(), "mbid-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected image payload %q", data)
	}

	_, err = client.FrontCover(context.Background(), "mbid-missing")
	if !errors.Is(err, ErrNoCoverArt) {
		t.Fatalf("expected ErrNoCoverArt, got %v", err)
	}
}
