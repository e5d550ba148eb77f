package paxos

import (
	"errors"
	"fmt"
)

var (
	ErrRoundSuperseded       = errors.New("paxos: round superseded")
	ErrRoundAcceptedMismatch = errors.New("paxos: round promised but not accepted")
	ErrQuorumNotReached      = errors.New("paxos: quorum not reached")
	ErrInstanceNotFound      = errors.New("paxos: instance not found")

	ErrNoAcceptors   = errors.New("paxos: no acceptors")
	ErrEmptyValue    = errors.New("paxos: empty value")
	ErrInvalidTarget = errors.New("paxos: invalid target")
	ErrInvalidRound  = errors.New("paxos: invalid round")
)

// SupersededError reports the round that blocked a phase 1.
// A retry has to use a round greater than Promised.
type SupersededError struct {
	Round    RoundId
	Promised RoundId
}

func (e *SupersededError) Error() string {
	return fmt.Sprintf("paxos: round %v superseded by promised round %v", e.Round, e.Promised)
}

func (e *SupersededError) Is(target error) bool {
	return target == ErrRoundSuperseded
}

// QuorumError reports a phase that could not collect enough responses.
type QuorumError struct {
	Phase string
	Need  int
	Got   int
	// Errs holds the call failures, if any, that cost the quorum.
	Errs []error
}

func (e *QuorumError) Error() string {
	msg := fmt.Sprintf("paxos: quorum not reached in %s phase (%d/%d)", e.Phase, e.Got, e.Need)
	if len(e.Errs) > 0 {
		msg += ": " + errors.Join(e.Errs...).Error()
	}
	return msg
}

func (e *QuorumError) Is(target error) bool {
	return target == ErrQuorumNotReached
}

func (e *QuorumError) Unwrap() []error {
	return e.Errs
}
