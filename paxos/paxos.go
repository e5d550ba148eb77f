package paxos

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"singledecree/consensus"
)

// Paxos runs acceptors and proposers of one cluster on a shared network.
type Paxos struct {
	ProposerCount int
	AcceptorCount int

	proposers []*Proposer
	acceptors []*Acceptor
	addresses []string

	network consensus.Network
	logger  *log.Logger

	// Chosen values wait in pending until deliver hands them to
	// chosenChannel, so a slow reader never costs a commit.
	pendingLock   sync.Mutex
	pending       []consensus.Chosen
	wake          chan struct{}
	chosenChannel chan consensus.Chosen
}

func NewPaxos(proposerCount int, acceptorCount int, mode PrepareMode, network consensus.Network, config Config) *Paxos {
	uidGenerator := consensus.NewNaiveUidGenerator()

	acceptors := make([]*Acceptor, 0, acceptorCount)
	addresses := make([]string, 0, acceptorCount)
	clients := make([]AcceptorClient, 0, acceptorCount)

	// Create all acceptors.
	for i := 0; i < acceptorCount; i++ {
		address := fmt.Sprintf("acceptor-%d", uidGenerator.Next())
		newAcceptor := NewAcceptor(mode, config)
		acceptors = append(acceptors, newAcceptor)
		addresses = append(addresses, address)
		clients = append(clients, NewNetworkClient(network, address))
		network.Register(address, newAcceptor)
	}

	// Create all proposers. Each one counts its rounds on its own.
	proposers := make([]*Proposer, 0, proposerCount)
	for i := 0; i < proposerCount; i++ {
		proposers = append(proposers, NewProposer(uidGenerator.Next(), clients, consensus.NewNaiveUidGenerator(), config))
	}

	p := &Paxos{
		ProposerCount: proposerCount,
		AcceptorCount: acceptorCount,
		proposers:     proposers,
		acceptors:     acceptors,
		addresses:     addresses,
		network:       network,
		logger:        config.logger(),
		wake:          make(chan struct{}, 1),
		chosenChannel: make(chan consensus.Chosen),
	}
	go p.deliver()
	return p
}

func (p *Paxos) Reset() {
	for _, acceptor := range p.acceptors {
		acceptor.Reset()
	}
}

func (p *Paxos) Proposer(i int) *Proposer {
	return p.proposers[i]
}

func (p *Paxos) Acceptor(i int) *Acceptor {
	return p.acceptors[i]
}

// Address is where acceptor i is registered on the network.
func (p *Paxos) Address(i int) string {
	return p.addresses[i]
}

// Propose retries with randomly chosen proposers until a value is chosen
// for key or ctx is done.
func (p *Paxos) Propose(ctx context.Context, key string, value []byte) ([]byte, error) {
	if len(p.proposers) == 0 {
		return nil, fmt.Errorf("paxos: no proposers")
	}
	for {
		proposer := p.proposers[rand.Intn(len(p.proposers))]
		chosen, err := proposer.Propose(ctx, key, value)
		if err == nil {
			p.commit(consensus.Chosen{Key: key, Value: chosen})
			return chosen, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("paxos: propose %s: %w", key, err)
		}
		p.logger.Printf("Paxos: propose %s failed, now retry: %v", key, err)
		select {
		case <-time.After(time.Duration(rand.Intn(50)) * time.Millisecond):
		case <-ctx.Done():
			return nil, fmt.Errorf("paxos: propose %s: %w", key, ctx.Err())
		}
	}
}

func (p *Paxos) commit(chosen consensus.Chosen) {
	p.pendingLock.Lock()
	p.pending = append(p.pending, chosen)
	p.pendingLock.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// deliver forwards pending commits to chosenChannel in commit order.
func (p *Paxos) deliver() {
	for range p.wake {
		for {
			p.pendingLock.Lock()
			if len(p.pending) == 0 {
				p.pendingLock.Unlock()
				break
			}
			next := p.pending[0]
			p.pending[0] = consensus.Chosen{}
			p.pending = p.pending[1:]
			p.pendingLock.Unlock()
			p.chosenChannel <- next
		}
	}
}

func (p *Paxos) Commit() <-chan consensus.Chosen {
	return p.chosenChannel
}
