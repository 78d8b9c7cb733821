package catalog

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const sampleMetadata = `song_name,bpm,time_signature
loop.wav,120,4
waltz.mp3,90,3/4
frames.opf,128,4
`

func fakeProbe(durations map[string]float64) ProbeFunc {
	return func(path string) (float64, error) {
		d, ok := durations[filepath.Base(path)]
		if !ok {
			return 0, errors.New("cannot decode")
		}
		return d, nil
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DefaultMetadataFile), sampleMetadata)
	for _, name := range []string{"loop.wav", "waltz.mp3", "frames.opf", "notes.txt", "untracked.wav"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755); err != nil {
		t.Fatal(err)
	}
	lib := New(dir, "", fakeProbe(map[string]float64{
		"loop.wav":      20,
		"waltz.mp3":     60,
		"frames.opf":    15,
		"untracked.wav": 5,
	}), nil)
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return lib, dir
}

func TestParseMetadata(t *testing.T) {
	in := "bpm, time_signature ,song_name\n100,4/4,a.wav\n87.5,3,b.mp3\n,4,\n"
	got, err := ParseMetadata(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	want := map[string]Tempo{
		"a.wav": {BPM: 100, BeatsPerBar: 4},
		"b.mp3": {BPM: 87.5, BeatsPerBar: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseMetadataErrors(t *testing.T) {
	cases := map[string]string{
		"missing column": "song_name,bpm\na.wav,120\n",
		"bad bpm":        "song_name,bpm,time_signature\na.wav,fast,4\n",
		"bad signature":  "song_name,bpm,time_signature\na.wav,120,four\n",
	}
	for name, in := range cases {
		if _, err := ParseMetadata(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	got, err := ParseMetadata(strings.NewReader(""))
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file should parse to an empty table, got %v %v", got, err)
	}
}

func TestLookup(t *testing.T) {
	lib, dir := newLibrary(t)

	s, err := lib.Lookup("waltz.mp3")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	want := Song{Name: "waltz.mp3", Path: filepath.Join(dir, "waltz.mp3"), BPM: 90, BeatsPerBar: 3, Duration: 60}
	if s != want {
		t.Fatalf("got %+v, want %+v", s, want)
	}

	for _, name := range []string{"", "..", "../etc/passwd", "sub/loop.wav", "notes.txt", "untracked.wav", "gone.wav"} {
		if _, err := lib.Lookup(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup(%q): expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestLookupProbeFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DefaultMetadataFile), sampleMetadata)
	writeFile(t, filepath.Join(dir, "loop.wav"), "x")
	lib := New(dir, "", fakeProbe(nil), nil)
	_ = lib.Reload()

	_, err := lib.Lookup("loop.wav")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a probe error, got %v", err)
	}
}

func TestListSongs(t *testing.T) {
	lib, _ := newLibrary(t)
	got, err := lib.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	want := []string{"frames.opf", "loop.wav", "untracked.wav", "waltz.mp3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReloadKeepsPreviousTableOnError(t *testing.T) {
	lib, dir := newLibrary(t)
	writeFile(t, filepath.Join(dir, DefaultMetadataFile), "song_name,bpm,time_signature\nloop.wav,oops,4\n")
	if err := lib.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := lib.Tempo("loop.wav"); !ok {
		t.Fatal("previous metadata should survive a failed reload")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	lib, dir := newLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan error, 4)
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx, func(err error) { reloaded <- err }) }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(dir, DefaultMetadataFile), sampleMetadata+"untracked.wav,140,4\n")

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("metadata change was not picked up")
	}
	if tempo, ok := lib.Tempo("untracked.wav"); !ok || tempo.BPM != 140 {
		t.Fatalf("expected the new row, got %+v %v", tempo, ok)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
