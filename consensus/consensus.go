package consensus

import "context"

// ConsensusProvider agrees on one value per key.
type ConsensusProvider interface {
	Reset()
	// Propose returns the value chosen for key, which may differ from value.
	Propose(ctx context.Context, key string, value []byte) ([]byte, error)
	Commit() <-chan Chosen
}

// Chosen is a value that a quorum of acceptors accepted for a key.
type Chosen struct {
	Key   string
	Value []byte
}
