package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnreachable      = errors.New("consensus: destination unreachable")
	ErrConnectionClosed = errors.New("consensus: connection closed without response")
)

type Endpoint interface {
	// Receive should return a channel *immediately* to simulate a connection.
	// When `ctx` is done, the connection should be closed.
	Receive(ctx context.Context, message any) (<-chan any, error)
}

type Network interface {
	// Send `message` to destination.
	// The returned channel holds the responses of the destination.
	Send(ctx context.Context, to string, message any) (<-chan any, error)
	Register(address string, endpoint Endpoint)
}

// Call sends `message` and waits for exactly one response of type ResponseT.
func Call[ResponseT any](ctx context.Context, network Network, to string, message any) (ResponseT, error) {
	var zero ResponseT
	responses, err := network.Send(ctx, to, message)
	if err != nil {
		return zero, err
	}
	select {
	case response, ok := <-responses:
		if !ok {
			return zero, ErrConnectionClosed
		}
		typedResponse, ok := response.(ResponseT)
		if !ok {
			return zero, fmt.Errorf("consensus: unexpected response type %T from %s", response, to)
		}
		return typedResponse, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type ReliableNetwork struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func NewReliableNetwork() *ReliableNetwork {
	return &ReliableNetwork{endpoints: make(map[string]Endpoint)}
}

func (n *ReliableNetwork) Send(ctx context.Context, to string, message any) (<-chan any, error) {
	n.mu.RLock()
	destination, ok := n.endpoints[to]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	return destination.Receive(ctx, message)
}

func (n *ReliableNetwork) Register(address string, endpoint Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[address] = endpoint
}

// UnreliableNetwork is a ReliableNetwork whose destinations can be cut off
// or slowed down.
type UnreliableNetwork struct {
	*ReliableNetwork

	faultsLock sync.RWMutex
	isolated   map[string]bool
	delays     map[string]time.Duration
}

func NewUnreliableNetwork() *UnreliableNetwork {
	return &UnreliableNetwork{
		ReliableNetwork: NewReliableNetwork(),
		isolated:        make(map[string]bool),
		delays:          make(map[string]time.Duration),
	}
}

// Isolate makes every message to the given addresses fail.
func (n *UnreliableNetwork) Isolate(addresses ...string) {
	n.faultsLock.Lock()
	defer n.faultsLock.Unlock()
	for _, address := range addresses {
		n.isolated[address] = true
	}
}

// Delay holds every message to address for d before delivering it.
func (n *UnreliableNetwork) Delay(address string, d time.Duration) {
	n.faultsLock.Lock()
	defer n.faultsLock.Unlock()
	n.delays[address] = d
}

// Heal removes all isolations and delays.
func (n *UnreliableNetwork) Heal() {
	n.faultsLock.Lock()
	defer n.faultsLock.Unlock()
	clear(n.isolated)
	clear(n.delays)
}

func (n *UnreliableNetwork) Send(ctx context.Context, to string, message any) (<-chan any, error) {
	n.faultsLock.RLock()
	isolated := n.isolated[to]
	delay := n.delays[to]
	n.faultsLock.RUnlock()
	if isolated {
		return nil, fmt.Errorf("%w: %s is isolated", ErrUnreachable, to)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return n.ReliableNetwork.Send(ctx, to, message)
}
