package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stageline/internal/domain"
)

// Pipeline models stageline.yml: the stage catalog, the transition graph and
// the stage sets the engine reads. One pipeline per workspace; updated
// wholesale or by merge-patch, never piecemeal at runtime.
type Pipeline struct {
	Stages        []domain.Stage      `yaml:"stages" json:"stages"`
	Transitions   map[string][]string `yaml:"transitions" json:"transitions"`
	Terminal      string              `yaml:"terminal" json:"terminal"`
	Locked        []string            `yaml:"locked" json:"locked"`
	Resolved      []string            `yaml:"resolved" json:"resolved"`
	DefaultFilter string              `yaml:"default_filter,omitempty" json:"default_filter,omitempty"`
}

// StageByID returns the catalog entry for a stage id.
func (p *Pipeline) StageByID(id string) (domain.Stage, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Stage{}, false
}

// HasStage reports whether the id is in the catalog.
func (p *Pipeline) HasStage(id string) bool {
	_, ok := p.StageByID(id)
	return ok
}

// CanReach reports whether to is a direct edge of from in the transition graph.
func (p *Pipeline) CanReach(from, to string) bool {
	for _, s := range p.Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsLocked reports whether non-administrators may not move a project out of stage.
func (p *Pipeline) IsLocked(stage string) bool {
	for _, s := range p.Locked {
		if s == stage {
			return true
		}
	}
	return false
}

// IsResolved reports whether the stage counts as completed for risk scoring.
func (p *Pipeline) IsResolved(stage string) bool {
	for _, s := range p.Resolved {
		if s == stage {
			return true
		}
	}
	return false
}

// IsTerminal reports whether stage is the pipeline's terminal stage.
func (p *Pipeline) IsTerminal(stage string) bool {
	return stage == p.Terminal
}

// WIPLimit returns the configured limit for a stage, or nil when uncapped.
func (p *Pipeline) WIPLimit(stage string) *int {
	s, ok := p.StageByID(stage)
	if !ok {
		return nil
	}
	return s.WIPLimit
}

// InitialStage returns the first cataloged stage; new projects start there.
func (p *Pipeline) InitialStage() string {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[0].ID
}

// Validate ensures the pipeline meets required structure.
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline.stages is required")
	}
	seen := map[string]bool{}
	for _, s := range p.Stages {
		if s.ID == "" {
			return fmt.Errorf("pipeline.stages contains empty stage id")
		}
		if seen[s.ID] {
			return fmt.Errorf("pipeline.stages contains duplicate stage %s", s.ID)
		}
		seen[s.ID] = true
		if s.WIPLimit != nil && *s.WIPLimit < 0 {
			return fmt.Errorf("stage %s has negative wip_limit", s.ID)
		}
		if s.DueOffsetDays != nil && *s.DueOffsetDays < 0 {
			return fmt.Errorf("stage %s has negative due_offset_days", s.ID)
		}
	}
	if p.Terminal == "" {
		return fmt.Errorf("pipeline.terminal is required")
	}
	if !seen[p.Terminal] {
		return fmt.Errorf("terminal stage %s not in catalog", p.Terminal)
	}
	if len(p.Transitions[p.Terminal]) > 0 {
		return fmt.Errorf("terminal stage %s must have no outgoing transitions", p.Terminal)
	}
	for from, tos := range p.Transitions {
		if !seen[from] {
			return fmt.Errorf("transition source %s not in catalog", from)
		}
		for _, to := range tos {
			if !seen[to] {
				return fmt.Errorf("transition %s -> %s targets unknown stage", from, to)
			}
			if to == from {
				return fmt.Errorf("transition %s -> %s is a self-loop", from, to)
			}
		}
	}
	for _, s := range p.Locked {
		if !seen[s] {
			return fmt.Errorf("locked stage %s not in catalog", s)
		}
	}
	for _, s := range p.Resolved {
		if !seen[s] {
			return fmt.Errorf("resolved stage %s not in catalog", s)
		}
	}
	return nil
}

// MergePatch applies an RFC 7386 style merge patch to the pipeline's JSON
// form and returns the patched, validated result. Object members are merged
// recursively; arrays and scalars are replaced; explicit nulls delete.
func (p *Pipeline) MergePatch(patch []byte) (*Pipeline, error) {
	base, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var current map[string]any
	if err := json.Unmarshal(base, &current); err != nil {
		return nil, err
	}
	var delta map[string]any
	if err := json.Unmarshal(patch, &delta); err != nil {
		return nil, fmt.Errorf("invalid config patch: %w", err)
	}
	merged := mergeMaps(current, delta)
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var out Pipeline
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid config patch: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func mergeMaps(dst, patch map[string]any) map[string]any {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		pm, pok := v.(map[string]any)
		dm, dok := dst[k].(map[string]any)
		if pok && dok {
			dst[k] = mergeMaps(dm, pm)
			continue
		}
		dst[k] = v
	}
	return dst
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "stageline.yml")
}

// Default returns the default Pipeline for a new workspace.
func Default() *Pipeline {
	var cfg Pipeline
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates a pipeline from raw YAML bytes.
func FromYAML(data []byte) (*Pipeline, error) {
	var cfg Pipeline
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the pipeline back to YAML for export.
func (p *Pipeline) ToYAML() ([]byte, error) {
	return yaml.Marshal(p)
}

const defaultTemplate = `stages:
  - id: draft
    label: Draft
    color: "#9ca3af"
    due_offset_days: 14
  - id: in_progress
    label: In Progress
    color: "#3b82f6"
  - id: submitted
    label: Submitted
    color: "#8b5cf6"
    auto_notify: true
  - id: revision_requested
    label: Revision Requested
    color: "#f59e0b"
    wip_limit: 5
    auto_notify: true
  - id: approved
    label: Approved
    color: "#10b981"
    auto_notify: true
  - id: payout_approved
    label: Payout Approved
    color: "#14b8a6"
  - id: withdrawal_requested
    label: Withdrawal Requested
    color: "#f97316"
  - id: paid
    label: Paid
    color: "#22c55e"

transitions:
  draft: [in_progress, submitted]
  in_progress: [submitted, draft]
  submitted: [approved, revision_requested]
  revision_requested: [in_progress, submitted, approved]
  approved: [payout_approved]
  payout_approved: [withdrawal_requested, paid]
  withdrawal_requested: [paid]
  paid: []

terminal: paid

locked: [withdrawal_requested, paid]

resolved: [approved, payout_approved, withdrawal_requested, paid]
`
