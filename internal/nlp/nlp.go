// Package nlp sequences the extraction pipeline: parse, normalize, extract,
// score, annotate gender. It is the single entry point the web layer
// consumes and the only place a temporary file is created.
package nlp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"personae/internal/config"
	"personae/internal/extract"
	"personae/internal/gender"
	"personae/internal/ingest"
	"personae/internal/score"
)

// ExtractionStats summarizes one run. Read-only once the run completes.
type ExtractionStats struct {
	RunID             string `json:"run_id"`
	MethodUsed        string `json:"method_used"`
	CharactersFound   int    `json:"characters_found"`
	AttributedLines   int    `json:"attributed_lines"`
	UnattributedLines int    `json:"unattributed_lines"`
	ProcessingMillis  int64  `json:"processing_ms"`
	Degraded          bool   `json:"degraded,omitempty"`
	Cached            bool   `json:"cached,omitempty"`
}

// RunLog is one staged log record, collected into the result for
// debugging.
type RunLog struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Result is the aggregate handed by value to the persistence collaborator.
type Result struct {
	Metadata   map[string]string       `json:"metadata"`
	Stats      ExtractionStats         `json:"extraction_stats"`
	Characters []extract.CharacterData `json:"characters"`
	Speech     []extract.SpeechData    `json:"speech"`
	Logs       []RunLog                `json:"logs,omitempty"`
}

// JSON renders the result for logs and debugging.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Store is the persistence collaborator boundary: the orchestrator never
// writes durable state itself.
type Store interface {
	Get(contentHash string) (*Result, bool, error)
	Put(contentHash, filename string, res *Result) error
}

// Capabilities is the static descriptor surfaced to the web layer.
type Capabilities struct {
	Formats    []string `json:"formats"`
	Operations []string `json:"operations"`
	Languages  []string `json:"languages"`
}

func GetCapabilities() Capabilities {
	return Capabilities{
		Formats: ingest.Formats(),
		Operations: []string{
			"character_extraction",
			"speech_attribution",
			"importance_scoring",
			"gender_detection",
			"play_format_detection",
		},
		Languages: []string{"ru", "en"},
	}
}

type Processor struct {
	params config.Params
	store  Store
	// tempDir scopes the per-call temporary file; defaults to the OS
	// temp directory.
	tempDir string
}

func NewProcessor(params config.Params, store Store) *Processor {
	return &Processor{params: params, store: store, tempDir: os.TempDir()}
}

// SetTempDir overrides where per-call temporary files live.
func (p *Processor) SetTempDir(dir string) { p.tempDir = dir }

// Process runs the full pipeline on one uploaded file. The upload is copied
// to a temporary file scoped to this call and removed on every exit path.
// When force is false a cached result for identical content is returned
// without recomputation. Parsing is deterministic, so failures are not
// retried.
func (p *Processor) Process(path, filename string, force bool) (*Result, error) {
	started := time.Now()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	sum := sha256.Sum256(raw)
	contentHash := hex.EncodeToString(sum[:])
	if !force && p.store != nil {
		if cached, ok, err := p.store.Get(contentHash); err == nil && ok {
			cached.Stats.Cached = true
			return cached, nil
		}
	}

	tmp, err := os.CreateTemp(p.tempDir, "personae-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	var logs []RunLog
	addLog := func(level, stage, message, detail string) {
		logs = append(logs, RunLog{
			Time:    time.Now().Format("15:04:05.000"),
			Level:   level,
			Stage:   stage,
			Message: message,
			Detail:  detail,
		})
	}

	runID := uuid.NewString()
	addLog("INFO", "BOOT", "Run started", fmt.Sprintf("id=%s file=%s", runID, filename))

	sc, err := ingest.Parse(tmpPath)
	if err != nil {
		addLog("RISK", "PARSE", "Parse failed", err.Error())
		return nil, err
	}
	if sc.Degraded {
		addLog("RISK", "PARSE", "Degraded mode: legacy parser produced this content", "")
	}
	addLog("INFO", "PARSE", "Document parsed", fmt.Sprintf("elements=%d bytes=%d", len(sc.Elements), len(sc.RawContent)))

	extRes := extract.New(p.params).Run(sc)
	addLog("INFO", "EXTRACT", "Extraction completed",
		fmt.Sprintf("method=%s characters=%d attributed=%d unattributed=%d",
			extRes.Method, len(extRes.Characters), extRes.Attributed, extRes.Unattributed))

	chars := score.Rank(extRes.Characters, p.params)
	for i := range chars {
		chars[i].Gender = gender.Detect(chars[i].Name, chars[i].Description)
	}
	addLog("INFO", "ANNOTATE", "Scoring and gender annotation completed", "")

	res := &Result{
		Metadata:   sc.Metadata,
		Characters: chars,
		Speech:     extRes.Speech,
		Logs:       logs,
		Stats: ExtractionStats{
			RunID:             runID,
			MethodUsed:        extRes.Method,
			CharactersFound:   len(chars),
			AttributedLines:   extRes.Attributed,
			UnattributedLines: extRes.Unattributed,
			ProcessingMillis:  time.Since(started).Milliseconds(),
			Degraded:          sc.Degraded,
		},
	}
	if res.Metadata == nil {
		res.Metadata = map[string]string{}
	}
	res.Metadata["filename"] = filename

	if p.store != nil {
		if err := p.store.Put(contentHash, filename, res); err != nil {
			res.Logs = append(res.Logs, RunLog{
				Time: time.Now().Format("15:04:05.000"), Level: "RISK",
				Stage: "PERSIST", Message: "Result cache write failed", Detail: err.Error(),
			})
		}
	}
	return res, nil
}

// IsFatal reports whether the error is one of the typed per-document
// failures rather than an environmental problem.
func IsFatal(err error) bool {
	return errors.Is(err, ingest.ErrUnsupportedFormat) ||
		errors.Is(err, ingest.ErrCorruptFile) ||
		errors.Is(err, ingest.ErrEncoding)
}
