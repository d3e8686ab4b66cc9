package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"personae/internal/batch"
	"personae/internal/config"
	"personae/internal/nlp"
	"personae/internal/store"
	"personae/internal/workspace"
)

func main() {
	_ = godotenv.Load()

	var (
		outDir     = flag.String("out", "", "directory for per-file JSON results (default: stdout)")
		paramsPath = flag.String("params", "", "extraction parameters YAML (default: workspace configs/params.yaml)")
		force      = flag.Bool("force", false, "reprocess even when a cached result exists")
		workers    = flag.Int("workers", 1, "concurrent files in batch mode")
		caps       = flag.Bool("capabilities", false, "print the capability descriptor and exit")
	)
	flag.Parse()

	if *caps {
		printCapabilities()
		return
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: personae [flags] file.txt [file.fb2 ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	root, err := workspace.EnsureDefault()
	if err != nil {
		log.Fatalf("workspace initialization failed: %v", err)
	}

	if *paramsPath == "" {
		*paramsPath = workspace.ParamsPath(root)
	}
	params, err := config.Load(*paramsPath)
	if err != nil {
		log.Printf("params load failed, using defaults: %v", err)
	}

	st, err := store.Open(workspace.CachePath(root))
	if err != nil {
		log.Fatalf("result cache open failed: %v", err)
	}
	defer st.Close()

	proc := nlp.NewProcessor(params, st)

	var mu sync.Mutex
	errs := batch.Run(files, *workers, func(path string) error {
		res, err := proc.Process(path, filepath.Base(path), *force)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		raw, err := res.JSON()
		if err != nil {
			return fmt.Errorf("%s: encode result: %w", path, err)
		}
		if *outDir != "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
			return os.WriteFile(filepath.Join(*outDir, name), raw, 0o644)
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Println(string(raw))
		return nil
	})

	for _, err := range errs {
		log.Printf("failed: %v", err)
	}
	if len(errs) == len(files) {
		os.Exit(1)
	}
}

func printCapabilities() {
	c := nlp.GetCapabilities()
	fmt.Printf("formats:    %s\n", strings.Join(c.Formats, " "))
	fmt.Printf("operations: %s\n", strings.Join(c.Operations, " "))
	fmt.Printf("languages:  %s\n", strings.Join(c.Languages, " "))
}
