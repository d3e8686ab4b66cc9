package batch

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRunProcessesEveryPath(t *testing.T) {
	paths := []string{"a", "b", "c", "d", "e"}
	var mu sync.Mutex
	seen := map[string]int{}

	errs := Run(paths, 3, func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[path]++
		return nil
	})
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(seen) != len(paths) {
		t.Fatalf("seen: %v", seen)
	}
	for _, p := range paths {
		if seen[p] != 1 {
			t.Fatalf("path %s processed %d times", p, seen[p])
		}
	}
}

func TestRunCollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	errs := Run([]string{"ok", "bad", "ok2", "bad2"}, 2, func(path string) error {
		if path == "bad" || path == "bad2" {
			return fmt.Errorf("%s: %w", path, boom)
		}
		return nil
	})
	if len(errs) != 2 {
		t.Fatalf("errors: %v", errs)
	}
	for _, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestRunDefaultsWorkerCount(t *testing.T) {
	errs := Run([]string{"a"}, 0, func(string) error { return nil })
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
}

func TestRunEmptyInput(t *testing.T) {
	if errs := Run(nil, 4, func(string) error { return nil }); errs != nil {
		t.Fatalf("errors: %v", errs)
	}
	if errs := Run([]string{"a"}, 4, nil); errs != nil {
		t.Fatalf("nil job: %v", errs)
	}
}
