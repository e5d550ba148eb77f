package paxos

import (
	"context"
	"errors"
	"fmt"
	"log"

	"singledecree/consensus"
)

// AcceptorClient is one remote acceptor as seen by a proposer.
// *Acceptor implements it for in-process use.
type AcceptorClient interface {
	Prepare(ctx context.Context, proposal Proposal) (Record, error)
	Accept(ctx context.Context, proposal Proposal) (Record, error)
}

// Proposer drives single attempts of the two Paxos phases. It holds no
// per-attempt state, so concurrent calls are safe.
type Proposer struct {
	uid       int64
	acceptors []AcceptorClient
	rounds    consensus.UidGenerator
	config    Config
	logger    *log.Logger
}

func NewProposer(uid int64, acceptors []AcceptorClient, rounds consensus.UidGenerator, config Config) *Proposer {
	return &Proposer{
		uid:       uid,
		acceptors: acceptors,
		rounds:    rounds,
		config:    config,
		logger:    config.logger(),
	}
}

func (p *Proposer) ID() int64 {
	return p.uid
}

// Attempt describes one run of both phases.
type Attempt struct {
	Instance InstanceId
	// Round is the round number to use. Zero takes the next number of the
	// proposer.
	Round int64
	Value Value
	// Targets are indexes into the proposer's acceptors. Empty means all of
	// them. Quorums are counted over the targets only.
	Targets []int
}

// Propose runs one attempt for key against every acceptor with a fresh round.
func (p *Proposer) Propose(ctx context.Context, key string, value Value) (Value, error) {
	return p.Run(ctx, Attempt{Instance: InstanceId{Key: key}, Value: value})
}

// Run returns the value chosen by the attempt. It may differ from
// attempt.Value when an earlier value had to be adopted. Failed attempts are
// not retried; a retry needs a new round, which Propose picks above every
// round this proposer has seen rejecting it.
func (p *Proposer) Run(ctx context.Context, attempt Attempt) (Value, error) {
	if attempt.Value.IsNone() {
		return nil, ErrEmptyValue
	}
	if attempt.Round < 0 {
		return nil, fmt.Errorf("%w: %d is negative", ErrInvalidRound, attempt.Round)
	}
	targets, err := p.targets(attempt.Targets)
	if err != nil {
		return nil, err
	}
	proposal := Proposal{
		Instance: attempt.Instance,
		Round:    p.round(attempt.Round),
		Value:    attempt.Value,
	}

	// Prepare
	value, err := p.prepare(ctx, proposal, targets)
	if err != nil {
		var superseded *SupersededError
		if errors.As(err, &superseded) {
			p.rounds.Observe(superseded.Promised.Number)
		}
		p.logger.Printf("Proposer[%d] prepare %v at %v failed: %v", p.uid, proposal.Instance, proposal.Round, err)
		return nil, err
	}
	p.logger.Printf("Proposer[%d] got majority of promises for %v at %v", p.uid, proposal.Instance, proposal.Round)

	// Accept
	proposal.Value = value
	if err := p.accept(ctx, proposal, targets); err != nil {
		p.logger.Printf("Proposer[%d] accept %v at %v failed: %v", p.uid, proposal.Instance, proposal.Round, err)
		return nil, err
	}
	p.logger.Printf("Proposer[%d] chose %v for %v at %v", p.uid, value, proposal.Instance, proposal.Round)
	return value, nil
}

func (p *Proposer) targets(indexes []int) ([]int, error) {
	if len(p.acceptors) == 0 {
		return nil, ErrNoAcceptors
	}
	if len(indexes) == 0 {
		all := make([]int, len(p.acceptors))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make(map[int]bool, len(indexes))
	for _, index := range indexes {
		if index < 0 || index >= len(p.acceptors) {
			return nil, fmt.Errorf("%w: %d out of %d acceptors", ErrInvalidTarget, index, len(p.acceptors))
		}
		// A duplicate would be counted twice towards the quorum.
		if seen[index] {
			return nil, fmt.Errorf("%w: %d listed twice", ErrInvalidTarget, index)
		}
		seen[index] = true
	}
	return indexes, nil
}

func (p *Proposer) round(number int64) RoundId {
	if number == 0 {
		number = p.rounds.Next()
	} else {
		p.rounds.Observe(number)
	}
	return RoundId{Number: number, ProposerId: p.uid}
}

type reply struct {
	index  int
	record Record
	err    error
}

// broadcast issues call against every target concurrently and hands each
// reply to decide until decide reports that the phase is settled. Calls still
// running at that point are cancelled.
func (p *Proposer) broadcast(ctx context.Context, targets []int, call func(context.Context, AcceptorClient) (Record, error), decide func(reply) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Buffered so that late replies never block their goroutine.
	replies := make(chan reply, len(targets))
	for _, index := range targets {
		go func(index int) {
			callCtx := ctx
			if p.config.CallTimeout > 0 {
				var cancelCall context.CancelFunc
				callCtx, cancelCall = context.WithTimeout(ctx, p.config.CallTimeout)
				defer cancelCall()
			}
			record, err := call(callCtx, p.acceptors[index])
			replies <- reply{index: index, record: record, err: err}
		}(index)
	}
	for range targets {
		if decide(<-replies) {
			return
		}
	}
}

// prepare runs phase 1 and returns the value to carry into phase 2.
func (p *Proposer) prepare(ctx context.Context, proposal Proposal, targets []int) (Value, error) {
	majority := QuorumSize(len(targets))
	// The value stays with the proposer until phase 2.
	request := Proposal{Instance: proposal.Instance, Round: proposal.Round}
	promises := make([]Record, 0, len(targets))
	var errs []error
	var rejection error
	p.broadcast(ctx, targets,
		func(ctx context.Context, acceptor AcceptorClient) (Record, error) {
			return acceptor.Prepare(ctx, request)
		},
		func(r reply) bool {
			if r.err != nil {
				errs = append(errs, fmt.Errorf("prepare on acceptor %d: %w", r.index, r.err))
				return len(targets)-len(errs) < majority
			}
			if err := checkPromise(proposal.Round, r.record); err != nil {
				rejection = err
				return true
			}
			promises = append(promises, r.record)
			return len(promises) >= majority
		})
	if rejection != nil {
		return nil, rejection
	}
	if len(promises) < majority {
		return nil, &QuorumError{Phase: "prepare", Need: majority, Got: len(promises), Errs: errs}
	}
	return adopt(proposal.Round, proposal.Value, promises)
}

// accept runs phase 2.
func (p *Proposer) accept(ctx context.Context, proposal Proposal, targets []int) error {
	majority := QuorumSize(len(targets))
	accepted, refused := 0, 0
	var errs []error
	var highest RoundId
	p.broadcast(ctx, targets,
		func(ctx context.Context, acceptor AcceptorClient) (Record, error) {
			return acceptor.Accept(ctx, proposal)
		},
		func(r reply) bool {
			switch {
			case r.err != nil:
				errs = append(errs, fmt.Errorf("accept on acceptor %d: %w", r.index, r.err))
				refused++
			case honours(proposal.Round, r.record):
				accepted++
			default:
				refused++
				if highest.Less(r.record.PromisedRound) {
					highest = r.record.PromisedRound
				}
			}
			return accepted >= majority || len(targets)-refused < majority
		})
	if !highest.IsZero() {
		p.rounds.Observe(highest.Number)
	}
	if accepted < majority {
		return &QuorumError{Phase: "accept", Need: majority, Got: accepted, Errs: errs}
	}
	return nil
}
