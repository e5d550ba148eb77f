package paxos

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// PrepareMode selects how an acceptor treats a Prepare for a known instance.
type PrepareMode uint8

const (
	// SpeculativePrepare stores the round and the value of a Prepare as if it
	// was accepted, which is what deployed acceptors do. Proposers of this
	// package never send a value with Prepare, but a promise still drops the
	// value accepted before it, so agreement only holds without competing
	// proposers.
	SpeculativePrepare PrepareMode = iota
	// ClassicPrepare only raises the promised round.
	ClassicPrepare
)

func (m PrepareMode) String() string {
	switch m {
	case SpeculativePrepare:
		return "speculative"
	case ClassicPrepare:
		return "classic"
	default:
		return fmt.Sprintf("unknown prepare mode: %d", m)
	}
}

type instance struct {
	lock   sync.Mutex
	record Record
}

type Acceptor struct {
	mode   PrepareMode
	logger *log.Logger

	// The map is only locked to find or add an instance.
	// Records are guarded by their own lock.
	instancesLock sync.RWMutex
	instances     map[InstanceId]*instance
}

func NewAcceptor(mode PrepareMode, config Config) *Acceptor {
	return &Acceptor{
		mode:      mode,
		logger:    config.logger(),
		instances: make(map[InstanceId]*instance),
	}
}

// Reset forgets every instance.
func (a *Acceptor) Reset() {
	a.instancesLock.Lock()
	defer a.instancesLock.Unlock()
	a.instances = make(map[InstanceId]*instance)
}

func (a *Acceptor) lookup(id InstanceId) *instance {
	a.instancesLock.RLock()
	defer a.instancesLock.RUnlock()
	return a.instances[id]
}

// lookupOrCreate returns the instance for id, creating it promised to round.
// created tells whether this call created it.
func (a *Acceptor) lookupOrCreate(id InstanceId, round RoundId) (inst *instance, created bool) {
	if inst := a.lookup(id); inst != nil {
		return inst, false
	}
	a.instancesLock.Lock()
	defer a.instancesLock.Unlock()
	if inst, ok := a.instances[id]; ok {
		return inst, false
	}
	inst = &instance{record: Record{PromisedRound: round}}
	a.instances[id] = inst
	return inst, true
}

// Prepare handles phase 1. It returns the record as it was before the call.
func (a *Acceptor) Prepare(ctx context.Context, proposal Proposal) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	inst, created := a.lookupOrCreate(proposal.Instance, proposal.Round)
	if created {
		a.logger.Printf("Acceptor: %v promised %v", proposal.Instance, proposal.Round)
		return Record{}, nil
	}

	inst.lock.Lock()
	defer inst.lock.Unlock()
	old := inst.record
	switch a.mode {
	case SpeculativePrepare:
		// Never lower the promise, see promise monotonicity.
		if Compare(proposal.Round, old.AcceptedRound) > 0 && Compare(proposal.Round, old.PromisedRound) >= 0 {
			inst.record = Record{
				AcceptedRound: proposal.Round,
				PromisedRound: proposal.Round,
				Value:         proposal.Value.Clone(),
			}
			a.logger.Printf("Acceptor: %v promised %v", proposal.Instance, proposal.Round)
		}
	case ClassicPrepare:
		if Compare(proposal.Round, old.PromisedRound) > 0 {
			inst.record.PromisedRound = proposal.Round
			a.logger.Printf("Acceptor: %v promised %v", proposal.Instance, proposal.Round)
		}
	}
	return old.clone(), nil
}

// Accept handles phase 2. It returns the record as it was before the call;
// the accept was taken if the returned promised round is not above the
// proposal's round.
func (a *Acceptor) Accept(ctx context.Context, proposal Proposal) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	inst := a.lookup(proposal.Instance)
	if inst == nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInstanceNotFound, proposal.Instance)
	}

	inst.lock.Lock()
	defer inst.lock.Unlock()
	old := inst.record
	// Acceptors should not accept when the round is *less* than the promised one.
	if Compare(proposal.Round, old.PromisedRound) >= 0 {
		inst.record = Record{
			AcceptedRound: proposal.Round,
			PromisedRound: proposal.Round,
			Value:         proposal.Value.Clone(),
		}
		a.logger.Printf("Acceptor: %v accepted %v at %v", proposal.Instance, proposal.Value, proposal.Round)
	}
	return old.clone(), nil
}

// Snapshot returns a copy of the record of id.
func (a *Acceptor) Snapshot(id InstanceId) (Record, bool) {
	inst := a.lookup(id)
	if inst == nil {
		return Record{}, false
	}
	inst.lock.Lock()
	defer inst.lock.Unlock()
	return inst.record.clone(), true
}

// Receive serves PrepareRequest and AcceptRequest from a consensus.Network.
func (a *Acceptor) Receive(ctx context.Context, message any) (<-chan any, error) {
	responseChannel := make(chan any, 1)
	switch request := message.(type) {
	case PrepareRequest:
		go func() {
			defer close(responseChannel)
			record, err := a.Prepare(ctx, request.Proposal)
			responseChannel <- RecordResponse{Record: record, Err: err}
		}()
	case AcceptRequest:
		go func() {
			defer close(responseChannel)
			record, err := a.Accept(ctx, request.Proposal)
			responseChannel <- RecordResponse{Record: record, Err: err}
		}()
	default:
		return nil, fmt.Errorf("acceptor cannot handle %T", message)
	}
	return responseChannel, nil
}
