package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"personae/internal/config"
)

func TestEnsureAtCreatesLayout(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ws")
	got, err := EnsureAt(base)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != base {
		t.Fatalf("base: %q", got)
	}
	for _, p := range []string{filepath.Join(base, "cache"), filepath.Join(base, "configs")} {
		if st, err := os.Stat(p); err != nil || !st.IsDir() {
			t.Fatalf("missing dir %s: %v", p, err)
		}
	}
	params, err := config.Load(ParamsPath(base))
	if err != nil {
		t.Fatalf("seeded params unreadable: %v", err)
	}
	if params != config.Defaults() {
		t.Fatalf("seeded params differ from defaults: %+v", params)
	}
}

func TestEnsureAtKeepsExistingParams(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ws")
	if _, err := EnsureAt(base); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	custom := config.Defaults()
	custom.MinRecurrence = 7
	if err := config.Save(ParamsPath(base), custom); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := EnsureAt(base); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	params, err := config.Load(ParamsPath(base))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.MinRecurrence != 7 {
		t.Fatalf("customized params overwritten: %+v", params)
	}
}

func TestEnsureDefaultHonorsEnvOverride(t *testing.T) {
	base := filepath.Join(t.TempDir(), "override")
	t.Setenv("PERSONAE_HOME", base)
	got, err := EnsureDefault()
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != base {
		t.Fatalf("env override ignored: %q", got)
	}
	if _, err := os.Stat(CachePath(base)); !os.IsNotExist(err) {
		// The cache db itself is created lazily by the store.
		t.Fatalf("unexpected cache file state: %v", err)
	}
}
