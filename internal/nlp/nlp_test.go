package nlp

import (
	"os"
	"path/filepath"
	"testing"

	"personae/internal/config"
	"personae/internal/gender"
	"personae/internal/ingest"
)

const playFixture = `ДЕЙСТВУЮЩИЕ ЛИЦА

ИВАН ПЕТРОВИЧ — молодой дворянин.
МАРИЯ ИВАНОВНА — его сестра.

Действие первое

ИВАН ПЕТРОВИЧ: Добрый вечер, сестра.
МАРИЯ ИВАНОВНА: Здравствуй, брат. Ты сегодня поздно.
ИВАН ПЕТРОВИЧ: Дела задержали меня в городе.
`

type memStore struct {
	data map[string]*Result
	puts int
	gets int
}

func newMemStore() *memStore { return &memStore{data: map[string]*Result{}} }

func (m *memStore) Get(hash string) (*Result, bool, error) {
	m.gets++
	res, ok := m.data[hash]
	return res, ok, nil
}

func (m *memStore) Put(hash, filename string, res *Result) error {
	m.puts++
	m.data[hash] = res
	return nil
}

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func newTestProcessor(t *testing.T, store Store) *Processor {
	t.Helper()
	p := NewProcessor(config.Defaults(), store)
	p.SetTempDir(t.TempDir())
	return p
}

func TestProcessPlayEndToEnd(t *testing.T) {
	p := newTestProcessor(t, newMemStore())
	res, err := p.Process(writeUpload(t, "play.txt", playFixture), "play.txt", false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if res.Stats.MethodUsed != "play_format" {
		t.Fatalf("method: %q", res.Stats.MethodUsed)
	}
	if res.Stats.RunID == "" {
		t.Fatal("run id missing")
	}
	if res.Stats.CharactersFound != 2 || len(res.Characters) != 2 {
		t.Fatalf("characters: %+v", res.Characters)
	}

	byName := map[string]int{}
	for i, c := range res.Characters {
		byName[c.Name] = i
	}
	ivan, ok := byName["ИВАН ПЕТРОВИЧ"]
	if !ok {
		t.Fatalf("characters: %+v", res.Characters)
	}
	maria, ok := byName["МАРИЯ ИВАНОВНА"]
	if !ok {
		t.Fatalf("characters: %+v", res.Characters)
	}
	if g := res.Characters[ivan].Gender; g != gender.Male {
		t.Errorf("ИВАН ПЕТРОВИЧ gender: %s", g)
	}
	if g := res.Characters[maria].Gender; g != gender.Female {
		t.Errorf("МАРИЯ ИВАНОВНА gender: %s", g)
	}
	for _, c := range res.Characters {
		if c.ImportanceScore <= 0 || c.ImportanceScore > 1 {
			t.Errorf("%s score: %v", c.Name, c.ImportanceScore)
		}
		if c.DialogueWords == 0 {
			t.Errorf("%s has no speech", c.Name)
		}
	}
	if res.Stats.AttributedLines != 3 {
		t.Fatalf("attributed: %d", res.Stats.AttributedLines)
	}
	if res.Metadata["filename"] != "play.txt" {
		t.Fatalf("metadata: %v", res.Metadata)
	}
	if len(res.Logs) == 0 {
		t.Fatal("run logs missing")
	}
}

func TestProcessUsesCache(t *testing.T) {
	store := newMemStore()
	p := newTestProcessor(t, store)
	path := writeUpload(t, "play.txt", playFixture)

	first, err := p.Process(path, "play.txt", false)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Stats.Cached {
		t.Fatal("first run flagged as cached")
	}
	if store.puts != 1 {
		t.Fatalf("puts after first run: %d", store.puts)
	}

	second, err := p.Process(path, "play.txt", false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Stats.Cached {
		t.Fatal("second run not served from cache")
	}
	if store.puts != 1 {
		t.Fatalf("cache hit still wrote: %d puts", store.puts)
	}
	if second.Stats.RunID != first.Stats.RunID {
		t.Fatalf("cached result is a different run: %s vs %s", second.Stats.RunID, first.Stats.RunID)
	}

	forced, err := p.Process(path, "play.txt", true)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if forced.Stats.Cached {
		t.Fatal("forced run served from cache")
	}
	if store.puts != 2 {
		t.Fatalf("forced run did not recompute: %d puts", store.puts)
	}
}

func TestProcessEmptyFile(t *testing.T) {
	p := newTestProcessor(t, newMemStore())
	res, err := p.Process(writeUpload(t, "empty.txt", ""), "empty.txt", false)
	if err != nil {
		t.Fatalf("empty file must not error: %v", err)
	}
	if res.Stats.MethodUsed != "none" || res.Stats.CharactersFound != 0 {
		t.Fatalf("stats: %+v", res.Stats)
	}
}

func TestProcessCleansTempFiles(t *testing.T) {
	tmp := t.TempDir()
	p := NewProcessor(config.Defaults(), nil)
	p.SetTempDir(tmp)

	if _, err := p.Process(writeUpload(t, "play.txt", playFixture), "play.txt", false); err != nil {
		t.Fatalf("process: %v", err)
	}
	// Failure path: the extension routes to no parser.
	if _, err := p.Process(writeUpload(t, "data.bin", "garbage"), "data.bin", false); err == nil {
		t.Fatal("expected error for unsupported extension")
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ingest.ErrUnsupportedFormat) || !IsFatal(ingest.ErrCorruptFile) || !IsFatal(ingest.ErrEncoding) {
		t.Fatal("typed parse failures must be fatal")
	}
	if IsFatal(os.ErrPermission) {
		t.Fatal("environmental error misclassified")
	}
}

func TestGetCapabilities(t *testing.T) {
	caps := GetCapabilities()
	if len(caps.Formats) != 4 {
		t.Fatalf("formats: %v", caps.Formats)
	}
	found := false
	for _, op := range caps.Operations {
		if op == "speech_attribution" {
			found = true
		}
	}
	if !found {
		t.Fatalf("operations: %v", caps.Operations)
	}
}
