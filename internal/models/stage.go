package models

import "fmt"

// Stage is the declarative working mode of a project session. It gates
// whether the assistant may call external tools; it does not impose a
// workflow order.
type Stage string

const (
	StageAnalysis       Stage = "analysis"
	StageDesign         Stage = "design"
	StageImplementation Stage = "implementation"
	StageReview         Stage = "review"
)

var allStages = []Stage{StageAnalysis, StageDesign, StageImplementation, StageReview}

// ParseStage validates a raw stage value coming from the UI or the backend.
func ParseStage(raw string) (Stage, error) {
	for _, s := range allStages {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

func (s Stage) Valid() bool {
	_, err := ParseStage(string(s))
	return err == nil
}

// ToolsAllowed reports whether a project session in this stage may issue
// tool-augmented requests. Only the analysis stage unlocks tools.
func (s Stage) ToolsAllowed() bool {
	return s == StageAnalysis
}

// CanTransition reports whether a project session may move between two
// stages. Any stage is reachable from any stage: the stage is a mode
// switch, not a gate, so the only requirement is that both values are real
// stages.
func CanTransition(from, to Stage) bool {
	return from.Valid() && to.Valid()
}

// SessionToolsAllowed derives the tools flag for a session. General
// sessions always have tools; project sessions defer to their stage.
func SessionToolsAllowed(kind SessionKind, stage Stage) bool {
	if kind == SessionGeneral {
		return true
	}
	return stage.ToolsAllowed()
}
