// Package skills maps orchestration phases to agent skill identifiers.
// The mapping is injected configuration, not hard-coded dispatch, so new
// phases can be added without touching the engine's control flow.
package skills

import (
	"fmt"

	"github.com/joss/autopilot/internal/config"
	"github.com/joss/autopilot/internal/domain"
)

// HealSkill names the remediation skill started for failed batches.
const HealSkill = "heal"

// Registry resolves which skill an invocation should run.
type Registry struct {
	byPhase map[domain.Phase]string
	healer  string
}

// New creates a registry with an explicit phase mapping.
func New(byPhase map[domain.Phase]string, healer string) *Registry {
	return &Registry{byPhase: byPhase, healer: healer}
}

// Default builds the standard mapping, honoring AUTOPILOT_SKILL_<PHASE>
// environment overrides.
func Default() *Registry {
	byPhase := make(map[domain.Phase]string)
	for _, p := range []domain.Phase{
		domain.PhaseDesign,
		domain.PhaseAnalyze,
		domain.PhaseImplement,
		domain.PhaseVerify,
		domain.PhaseMerge,
	} {
		byPhase[p] = config.Skill(string(p), string(p))
	}
	return &Registry{
		byPhase: byPhase,
		healer:  config.Skill(HealSkill, HealSkill),
	}
}

// ForPhase returns the skill for a phase.
func (r *Registry) ForPhase(p domain.Phase) (string, error) {
	skill, ok := r.byPhase[p]
	if !ok || skill == "" {
		return "", fmt.Errorf("no skill registered for phase %s", p)
	}
	return skill, nil
}

// Healer returns the remediation skill.
func (r *Registry) Healer() string {
	return r.healer
}
