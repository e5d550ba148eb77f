package paxos

import "fmt"

// RoundId identifies a proposal round. Number is a proposer-local counter,
// ProposerId keeps rounds of different proposers apart.
type RoundId struct {
	Number     int64
	ProposerId int64
}

func (r RoundId) String() string {
	return fmt.Sprintf("<%d, %d>", r.Number, r.ProposerId)
}

// InstanceId names one consensus round. Distinct (Key, Version) pairs are
// independent.
type InstanceId struct {
	Key     string
	Version int64
}

func (i InstanceId) String() string {
	return fmt.Sprintf("%s@%d", i.Key, i.Version)
}

// Value is an opaque payload. A nil or empty Value means no value.
type Value []byte

func (v Value) IsNone() bool {
	return len(v) == 0
}

func (v Value) Clone() Value {
	if v.IsNone() {
		return nil
	}
	return append(Value(nil), v...)
}

func (v Value) String() string {
	if v.IsNone() {
		return "None"
	}
	return fmt.Sprintf("%q", []byte(v))
}

// Proposal is what a proposer sends in both phases.
type Proposal struct {
	Instance InstanceId
	Round    RoundId
	Value    Value
}

// Record is the per-instance state of an acceptor.
type Record struct {
	AcceptedRound RoundId
	PromisedRound RoundId
	Value         Value
}

func (r Record) String() string {
	return fmt.Sprintf("{accepted: %v, promised: %v, value: %v}", r.AcceptedRound, r.PromisedRound, r.Value)
}

func (r Record) clone() Record {
	r.Value = r.Value.Clone()
	return r
}

// Messages carried by a consensus.Network.

type PrepareRequest struct {
	Proposal Proposal
}

type AcceptRequest struct {
	Proposal Proposal
}

type RecordResponse struct {
	Record Record
	Err    error
}
