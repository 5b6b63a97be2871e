package models

import "time"

// Default field values applied when a codon is created without them.
const (
	DefaultCodonType = "Condition"
	DefaultOrigin    = "User"
)

// ContextAttribution records who a codon is attributed to.
type ContextAttribution struct {
	UserID  string  `json:"userId"`
	AgentID *string `json:"agentId"`
}

// Agent returns the attributed agent ID, or "" when none is set.
func (a ContextAttribution) Agent() string {
	if a.AgentID == nil {
		return ""
	}
	return *a.AgentID
}

// Codon is one recorded interaction event. At the API boundary it is called a nugget.
type Codon struct {
	ID                 string             `json:"nuggetId"`
	SessionID          string             `json:"sessionId"`
	Content            string             `json:"content"`
	PromptID           string             `json:"promptId"`
	Type               string             `json:"type"`
	Origin             string             `json:"origin"`
	RiskLevel          string             `json:"riskLevel,omitempty"`
	SemanticIndex      []string           `json:"semanticIndex"`
	TemporalCluster    string             `json:"temporalCluster"`
	ContextAttribution ContextAttribution `json:"contextAttribution"`
	RelatedNuggets     []string           `json:"relatedNuggets,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
	Outcome            map[string]any     `json:"outcome,omitempty"`
	OutcomeAt          *time.Time         `json:"outcomeAt,omitempty"`

	// Revision is the strand commit sequence of the codon's latest write.
	// It increases with every append and outcome in the same session.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy so callers never share slices or the outcome map
// with the ledger.
func (c Codon) Clone() Codon {
	out := c
	out.SemanticIndex = append([]string{}, c.SemanticIndex...)
	if c.RelatedNuggets != nil {
		out.RelatedNuggets = append([]string(nil), c.RelatedNuggets...)
	}
	if c.ContextAttribution.AgentID != nil {
		agent := *c.ContextAttribution.AgentID
		out.ContextAttribution.AgentID = &agent
	}
	if c.Outcome != nil {
		out.Outcome = CloneOutcome(c.Outcome)
	}
	if c.OutcomeAt != nil {
		at := *c.OutcomeAt
		out.OutcomeAt = &at
	}
	return out
}

// HasOutcome reports whether an outcome has been attached.
func (c Codon) HasOutcome() bool {
	return c.OutcomeAt != nil
}

// CloneOutcome deep-copies an outcome record. A nil outcome becomes empty.
func CloneOutcome(m map[string]any) map[string]any {
	return cloneMap(m)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
