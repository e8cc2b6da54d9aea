package faults

import "fmt"

// IssueKind ...
type IssueKind uint8

const (
	// Communication is a failed send to the node.
	Communication IssueKind = iota
	// Dkg is a DKG message we expect from the node.
	Dkg
	// ElderVoting is a vote we expect from an elder, logged when we vote.
	ElderVoting
	// AeProbeMsg is an answer we expect to a probe.
	AeProbeMsg
	// NetworkKnowledge is a message from the node with outdated knowledge.
	NetworkKnowledge
	// RequestOperation is a data request the node has not answered.
	RequestOperation
)

var issueKinds = []IssueKind{Communication, Dkg, ElderVoting, AeProbeMsg, NetworkKnowledge, RequestOperation}

// Weight is the contribution of one issue of kind k to a node's score.
// Communication failures are frequent and transient; missed votes and
// probe answers are rarer and more telling.
func (k IssueKind) Weight() float64 {
	switch k {
	case Communication:
		return 2.0
	case Dkg:
		return 2.0
	case ElderVoting:
		return 2.5
	case AeProbeMsg:
		return 2.5
	case NetworkKnowledge:
		return 2.0
	case RequestOperation:
		return 1.0
	}
	return 0
}

// String ...
func (k IssueKind) String() string {
	switch k {
	case Communication:
		return "Communication"
	case Dkg:
		return "Dkg"
	case ElderVoting:
		return "ElderVoting"
	case AeProbeMsg:
		return "AeProbeMsg"
	case NetworkKnowledge:
		return "NetworkKnowledge"
	case RequestOperation:
		return "RequestOperation"
	}
	return fmt.Sprintf("IssueKind(%d)", uint8(k))
}
