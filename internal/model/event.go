package model

// GateKind is the kind of human gate.
type GateKind string

const (
	GateKindApproval GateKind = "approval"
	GateKindDecision GateKind = "decision"
)

// ResumeEvent is published when a gate resolves so the owner task can continue.
type ResumeEvent struct {
	TaskID string
	GateID string
	Kind   GateKind
}
