package paxos

import "fmt"

// Compare orders rounds by Number, then by ProposerId.
// It returns -1, 0 or +1.
func Compare(a, b RoundId) int {
	switch {
	case a.Number < b.Number:
		return -1
	case a.Number > b.Number:
		return 1
	case a.ProposerId < b.ProposerId:
		return -1
	case a.ProposerId > b.ProposerId:
		return 1
	default:
		return 0
	}
}

func (r RoundId) Less(other RoundId) bool {
	return Compare(r, other) < 0
}

func (r RoundId) IsZero() bool {
	return r == RoundId{}
}

// QuorumSize is the majority of n acceptors.
func QuorumSize(n int) int {
	return n/2 + 1
}

// checkPromise rejects a phase 1 response that forbids going on with round.
func checkPromise(round RoundId, response Record) error {
	if Compare(response.PromisedRound, round) > 0 {
		return &SupersededError{Round: round, Promised: response.PromisedRound}
	}
	if response.PromisedRound == round && Compare(round, response.AcceptedRound) > 0 {
		return fmt.Errorf("%w: %v, accepted %v", ErrRoundAcceptedMismatch, round, response.AcceptedRound)
	}
	return nil
}

// adopt decides the value to carry into phase 2.
// The value accepted at the highest round wins over own. Rounds are totally
// ordered, so the winner does not depend on the order of responses.
func adopt(round RoundId, own Value, responses []Record) (Value, error) {
	var winner *Record
	for i := range responses {
		response := &responses[i]
		if err := checkPromise(round, *response); err != nil {
			return nil, err
		}
		if response.Value.IsNone() {
			continue
		}
		if winner == nil || Compare(response.AcceptedRound, winner.AcceptedRound) > 0 {
			winner = response
		}
	}
	if winner == nil {
		return own, nil
	}
	return winner.Value, nil
}

// honours reports whether an acceptor whose pre-update state was old
// took an Accept at round.
func honours(round RoundId, old Record) bool {
	return Compare(old.PromisedRound, round) <= 0
}
