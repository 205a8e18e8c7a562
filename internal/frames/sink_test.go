package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"canvascapture/internal/logging"
	"canvascapture/internal/services"
	"canvascapture/internal/session"
)

var samplePNG = append(append([]byte{}, pngSignature...), []byte("IHDR fake image body")...)

func newTestSink(t *testing.T, mutate func(*Options)) (*Sink, *session.Store) {
	t.Helper()
	store := session.NewStore(t.TempDir())
	opts := Options{ContentType: "image/png", Encoding: EncodingAuto, MaxBytes: 1 << 20}
	if mutate != nil {
		mutate(&opts)
	}
	sink, err := NewSink(store, opts, logging.NewNop())
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	return sink, store
}

func newSession(t *testing.T, store *session.Store) string {
	t.Helper()
	id, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestAcceptStoresRawPNG(t *testing.T) {
	sink, store := newTestSink(t, nil)
	id := newSession(t, store)

	if err := sink.Accept(context.Background(), id, 0, bytes.NewReader(samplePNG), "image/png"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(store.Root(), id, "0.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, samplePNG) {
		t.Fatal("stored bytes differ from upload")
	}
}

func TestAcceptDecodesDataURL(t *testing.T) {
	sink, store := newTestSink(t, nil)
	id := newSession(t, store)
	body := "data:image/png;base64," + base64.StdEncoding.EncodeToString(samplePNG)

	if err := sink.Accept(context.Background(), id, 4, strings.NewReader(body), "image/png"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(store.Root(), id, "4.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, samplePNG) {
		t.Fatal("decoded bytes differ from source image")
	}
}

func TestAcceptContentTypeRules(t *testing.T) {
	sink, store := newTestSink(t, nil)
	id := newSession(t, store)

	if err := sink.Accept(context.Background(), id, 0, bytes.NewReader(samplePNG), "IMAGE/PNG; charset=binary"); err != nil {
		t.Fatalf("parameters and case should be ignored: %v", err)
	}
	for _, ct := range []string{"image/jpeg", "", "text/plain", ";;"} {
		err := sink.Accept(context.Background(), id, 1, bytes.NewReader(samplePNG), ct)
		if !errors.Is(err, ErrContentType) {
			t.Fatalf("content type %q: expected ErrContentType, got %v", ct, err)
		}
	}
	if _, err := os.Stat(filepath.Join(store.Root(), id, "1.png")); !os.IsNotExist(err) {
		t.Fatal("rejected frame must not be persisted")
	}
}

func TestAcceptRejectsUnknownSession(t *testing.T) {
	sink, store := newTestSink(t, nil)
	id := strings.Repeat("ab", session.IDLength/2)

	err := sink.Accept(context.Background(), id, 0, bytes.NewReader(samplePNG), "image/png")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if exists, _ := store.Exists(id); exists {
		t.Fatal("strict mode must not create the directory")
	}
}

func TestAcceptLenientRecreatesSession(t *testing.T) {
	sink, store := newTestSink(t, func(o *Options) { o.LenientSessions = true })
	id := strings.Repeat("cd", session.IDLength/2)

	if err := sink.Accept(context.Background(), id, 2, bytes.NewReader(samplePNG), "image/png"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), id, "2.png")); err != nil {
		t.Fatalf("expected frame in recreated directory: %v", err)
	}
}

func TestAcceptValidatesInput(t *testing.T) {
	sink, store := newTestSink(t, nil)
	id := newSession(t, store)

	if err := sink.Accept(context.Background(), "../etc", 0, bytes.NewReader(samplePNG), "image/png"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad id, got %v", err)
	}
	if err := sink.Accept(context.Background(), id, -1, bytes.NewReader(samplePNG), "image/png"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for negative index, got %v", err)
	}
	if err := sink.Accept(context.Background(), id, 0, strings.NewReader("not base64 !!"), "image/png"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for undecodable body, got %v", err)
	}
}

func TestAcceptEnforcesSizeLimit(t *testing.T) {
	sink, store := newTestSink(t, func(o *Options) { o.MaxBytes = 16; o.Encoding = EncodingRaw })
	id := newSession(t, store)

	if err := sink.Accept(context.Background(), id, 0, bytes.NewReader(make([]byte, 16)), "image/png"); err != nil {
		t.Fatalf("body at the limit should pass: %v", err)
	}
	err := sink.Accept(context.Background(), id, 1, bytes.NewReader(make([]byte, 17)), "image/png")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), id, "1.png")); !os.IsNotExist(err) {
		t.Fatal("oversized frame must not be persisted")
	}
}

func TestAcceptConcurrentSameIndex(t *testing.T) {
	sink, store := newTestSink(t, func(o *Options) { o.Encoding = EncodingRaw })
	id := newSession(t, store)

	bodies := [][]byte{bytes.Repeat([]byte("a"), 4096), bytes.Repeat([]byte("b"), 4096)}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(body []byte) {
			defer wg.Done()
			if err := sink.Accept(context.Background(), id, 0, bytes.NewReader(body), "image/png"); err != nil {
				t.Errorf("Accept: %v", err)
			}
		}(bodies[i%2])
	}
	wg.Wait()

	got, err := os.ReadFile(filepath.Join(store.Root(), id, "0.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bodies[0]) && !bytes.Equal(got, bodies[1]) {
		t.Fatal("frame content is a mix of concurrent uploads")
	}
}

func TestListSortsNumericallyAndSkipsOthers(t *testing.T) {
	sink, store := newTestSink(t, func(o *Options) { o.Encoding = EncodingRaw })
	id := newSession(t, store)
	for _, index := range []int{10, 2, 0, 7} {
		if err := sink.Accept(context.Background(), id, index, bytes.NewReader(samplePNG), "image/png"); err != nil {
			t.Fatal(err)
		}
	}
	dir := session.Dir(store.Root(), id)
	for _, name := range []string{"frames.ffconcat", session.ArtifactName, "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	frames, err := sink.List(context.Background(), id)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []int
	for _, f := range frames {
		got = append(got, f.Index)
	}
	want := []int{0, 2, 7, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if n, _ := sink.Count(context.Background(), id); n != 4 {
		t.Fatalf("expected count 4, got %d", n)
	}
}

func TestCleanRemovesOnlyFrames(t *testing.T) {
	sink, store := newTestSink(t, func(o *Options) { o.Encoding = EncodingRaw })
	id := newSession(t, store)
	for i := 0; i < 3; i++ {
		if err := sink.Accept(context.Background(), id, i, bytes.NewReader(samplePNG), "image/png"); err != nil {
			t.Fatal(err)
		}
	}
	artifact := session.ArtifactPath(store.Root(), id)
	if err := os.WriteFile(artifact, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := sink.Clean(context.Background(), id)
	if err != nil || removed != 3 {
		t.Fatalf("Clean = %d, %v", removed, err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatal("artifact must survive frame cleanup")
	}
	if n, _ := sink.Count(context.Background(), id); n != 0 {
		t.Fatalf("expected no frames left, got %d", n)
	}
}

func TestListUnknownSession(t *testing.T) {
	sink, _ := newTestSink(t, nil)
	_, err := sink.List(context.Background(), strings.Repeat("0", session.IDLength))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseIndex(t *testing.T) {
	for _, raw := range []string{"0", "17", "000"} {
		if _, err := ParseIndex(raw); err != nil {
			t.Errorf("ParseIndex(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"", "-1", "1.5", "abc", "99999999999999999999999"} {
		if _, err := ParseIndex(raw); !errors.Is(err, services.ErrValidation) {
			t.Errorf("ParseIndex(%q) expected validation error, got %v", raw, err)
		}
	}
}

func TestNewSinkRequiresSettings(t *testing.T) {
	store := session.NewStore(t.TempDir())
	if _, err := NewSink(nil, Options{ContentType: "image/png", MaxBytes: 1}, nil); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewSink(store, Options{ContentType: "", MaxBytes: 1}, nil); err == nil {
		t.Fatal("expected error for empty content type")
	}
	if _, err := NewSink(store, Options{ContentType: "image/png"}, nil); err == nil {
		t.Fatal("expected error for missing size limit")
	}
}
