package statemachine

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"singledecree/consensus"
	"singledecree/paxos"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newPaxosStateMachine() *StateMachine {
	config := paxos.Config{CallTimeout: time.Second, Logger: quietLogger()}
	return &StateMachine{
		Consensus: paxos.NewPaxos(5, 3, paxos.ClassicPrepare, consensus.NewReliableNetwork(), config),
		Logger:    quietLogger(),
	}
}

// fakeConsensus chooses whatever it is told to.
type fakeConsensus struct {
	chosen  []byte
	err     error
	commits chan consensus.Chosen
}

func (f *fakeConsensus) Reset() {}

func (f *fakeConsensus) Propose(ctx context.Context, key string, value []byte) ([]byte, error) {
	return f.chosen, f.err
}

func (f *fakeConsensus) Commit() <-chan consensus.Chosen {
	return f.commits
}

func TestPropose(t *testing.T) {
	sm := newPaxosStateMachine()
	ctx := context.Background()
	chosen, err := sm.Propose(ctx, "k", []byte("v"))
	if err != nil || string(chosen) != "v" {
		t.Fatalf("Propose got %q, %v", chosen, err)
	}
	if value, ok := sm.Get("k"); !ok || string(value) != "v" {
		t.Errorf("Get(k) = %q, %v", value, ok)
	}
	if _, ok := sm.Get("other"); ok {
		t.Error("Get(other) found a value")
	}
	chosen, err = sm.Propose(ctx, "k", []byte("w"))
	if err != nil || string(chosen) != "v" {
		t.Errorf("second Propose got %q, %v", chosen, err)
	}
}

func TestRacePropose(t *testing.T) {
	sm := newPaxosStateMachine()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	results, err := sm.RacePropose(ctx, "race", []byte("1"), []byte("2"), []byte("3"), []byte("4"), []byte("5"))
	if err != nil {
		t.Fatal("RacePropose failed:", err)
	}
	value, ok := sm.Get("race")
	if !ok {
		t.Fatal("nothing applied")
	}
	for i, result := range results {
		if string(result) != string(value) {
			t.Errorf("proposal %d got %q, state holds %q", i+1, result, value)
		}
	}
}

func TestRunAppliesCommits(t *testing.T) {
	sm := newPaxosStateMachine()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sm.Run(ctx)
	}()

	// Propose straight on the cluster, the state machine learns it by commit.
	if _, err := sm.Consensus.Propose(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if value, ok := sm.Get("k"); ok {
			if string(value) != "v" {
				t.Errorf("Get(k) = %q, want v", value)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("commit never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunDetectsConflict(t *testing.T) {
	commits := make(chan consensus.Chosen, 2)
	sm := &StateMachine{
		Consensus: &fakeConsensus{commits: commits},
		Logger:    quietLogger(),
	}
	commits <- consensus.Chosen{Key: "k", Value: []byte("a")}
	commits <- consensus.Chosen{Key: "k", Value: []byte("b")}
	if err := sm.Run(context.Background()); err == nil {
		t.Error("Run accepted two values for one key")
	}
	if value, _ := sm.Get("k"); string(value) != "a" {
		t.Errorf("Get(k) = %q, want a", value)
	}
}

func TestRunStopsOnClosedCommits(t *testing.T) {
	commits := make(chan consensus.Chosen)
	close(commits)
	sm := &StateMachine{Consensus: &fakeConsensus{commits: commits}, Logger: quietLogger()}
	if err := sm.Run(context.Background()); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestProposeError(t *testing.T) {
	failure := errors.New("no quorum")
	sm := &StateMachine{Consensus: &fakeConsensus{err: failure}, Logger: quietLogger()}
	if _, err := sm.Propose(context.Background(), "k", []byte("v")); !errors.Is(err, failure) {
		t.Errorf("Propose error = %v, want %v", err, failure)
	}
	if _, ok := sm.Get("k"); ok {
		t.Error("failed proposal was applied")
	}
}
