package statemachine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"

	"singledecree/consensus"
)

// StateMachine keeps the value chosen for every key.
type StateMachine struct {
	Consensus consensus.ConsensusProvider
	Logger    *log.Logger

	lock  sync.RWMutex
	state map[string][]byte
}

func (sm *StateMachine) logger() *log.Logger {
	if sm.Logger == nil {
		return log.Default()
	}
	return sm.Logger
}

// apply records a chosen value. A key never changes once set, so a second,
// different value for it means consensus was broken.
func (sm *StateMachine) apply(chosen consensus.Chosen) error {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	if sm.state == nil {
		sm.state = make(map[string][]byte)
	}
	if current, ok := sm.state[chosen.Key]; ok {
		if !bytes.Equal(current, chosen.Value) {
			return fmt.Errorf("statemachine: key %s chose %q and %q", chosen.Key, current, chosen.Value)
		}
		return nil
	}
	sm.state[chosen.Key] = append([]byte(nil), chosen.Value...)
	sm.logger().Printf("StateMachine gets committed value: <%s, %q>", chosen.Key, chosen.Value)
	return nil
}

func (sm *StateMachine) Get(key string) ([]byte, bool) {
	sm.lock.RLock()
	defer sm.lock.RUnlock()
	value, ok := sm.state[key]
	return value, ok
}

// Propose blocks until a value is chosen for key and applies it.
func (sm *StateMachine) Propose(ctx context.Context, key string, value []byte) ([]byte, error) {
	chosen, err := sm.Consensus.Propose(ctx, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to propose value %q: %w", value, err)
	}
	if err := sm.apply(consensus.Chosen{Key: key, Value: chosen}); err != nil {
		return nil, err
	}
	return chosen, nil
}

// RacePropose proposes all values for key at the same time and returns what
// each proposal ended with, in the order of values.
func (sm *StateMachine) RacePropose(ctx context.Context, key string, values ...[]byte) ([][]byte, error) {
	results := make([][]byte, len(values))
	errs := make([]error, len(values))
	wg := sync.WaitGroup{}
	barrier := make(chan struct{})
	for i, value := range values {
		wg.Add(1)
		go func(i int, newValue []byte) {
			defer wg.Done()
			<-barrier
			results[i], errs[i] = sm.Propose(ctx, key, newValue)
		}(i, value)
	}
	close(barrier)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Run applies commits of the consensus until ctx is done.
func (sm *StateMachine) Run(ctx context.Context) error {
	commits := sm.Consensus.Commit()
	for {
		select {
		case chosen, ok := <-commits:
			if !ok {
				return nil
			}
			if err := sm.apply(chosen); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
