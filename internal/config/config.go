package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params holds the tunable extraction thresholds. The defaults were tuned
// against the bundled play and prose fixtures; override them from a YAML
// file when a corpus calls for different values.
type Params struct {
	// MinRecurrence is how many times a capitalized mention must recur
	// before it becomes a character candidate.
	MinRecurrence int `yaml:"min_recurrence"`
	// LookBack bounds the search for a preceding speaker when a dialogue
	// line carries no explicit tag, in elements.
	LookBack int `yaml:"look_back"`
	// CastBonus is the fixed importance contribution of cast-list
	// membership.
	CastBonus float64 `yaml:"cast_bonus"`
	// MentionWeight scales the log-normalized mention count.
	MentionWeight float64 `yaml:"mention_weight"`
	// DialogueWeight scales the log-normalized spoken-word count.
	DialogueWeight float64 `yaml:"dialogue_weight"`
	// PlayMinTags is the number of speaker-tag lines that must appear in
	// the probe window before a document counts as play-formatted.
	PlayMinTags int `yaml:"play_min_tags"`
	// PlayProbeWindow is how many leading elements the play heuristic
	// inspects.
	PlayProbeWindow int `yaml:"play_probe_window"`
	// CastScanWindow is how many leading elements the cast-list scan
	// inspects.
	CastScanWindow int `yaml:"cast_scan_window"`
}

func Defaults() Params {
	return Params{
		MinRecurrence:   2,
		LookBack:        5,
		CastBonus:       0.5,
		MentionWeight:   0.3,
		DialogueWeight:  0.2,
		PlayMinTags:     3,
		PlayProbeWindow: 200,
		CastScanWindow:  80,
	}
}

// Load reads params from a YAML file. A missing file is not an error: the
// defaults are returned. Fields absent from the file keep their defaults.
func Load(path string) (Params, error) {
	p := Defaults()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read params: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Defaults(), fmt.Errorf("parse params: %w", err)
	}
	return p.sanitized(), nil
}

// Save writes params as YAML, used to seed the workspace default file.
func Save(path string, p Params) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	return nil
}

func (p Params) sanitized() Params {
	d := Defaults()
	if p.MinRecurrence < 1 {
		p.MinRecurrence = d.MinRecurrence
	}
	if p.LookBack < 1 {
		p.LookBack = d.LookBack
	}
	if p.CastBonus < 0 || p.CastBonus > 1 {
		p.CastBonus = d.CastBonus
	}
	if p.MentionWeight < 0 {
		p.MentionWeight = d.MentionWeight
	}
	if p.DialogueWeight < 0 {
		p.DialogueWeight = d.DialogueWeight
	}
	if p.PlayMinTags < 1 {
		p.PlayMinTags = d.PlayMinTags
	}
	if p.PlayProbeWindow < 1 {
		p.PlayProbeWindow = d.PlayProbeWindow
	}
	if p.CastScanWindow < 1 {
		p.CastScanWindow = d.CastScanWindow
	}
	return p
}
