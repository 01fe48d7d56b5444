// Package model provides capability-based model selection. Callers ask for a
// capability ("analysis", "chat") rather than a model name, and the registry
// resolves it to an ordered chain of configured endpoints with health-aware
// fallback.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityAnalysis is for deck scoring and structured extraction.
	// It should resolve to the strongest available models.
	CapabilityAnalysis Capability = "analysis"

	// CapabilityChat is for free-text coaching turns and quick questions.
	CapabilityChat Capability = "chat"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityAnalysis, CapabilityChat:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
