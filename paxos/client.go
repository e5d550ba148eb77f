package paxos

import (
	"context"

	"singledecree/consensus"
)

// NetworkClient reaches an acceptor registered on a consensus.Network.
type NetworkClient struct {
	network consensus.Network
	address string
}

func NewNetworkClient(network consensus.Network, address string) *NetworkClient {
	return &NetworkClient{network: network, address: address}
}

func (c *NetworkClient) Prepare(ctx context.Context, proposal Proposal) (Record, error) {
	return c.call(ctx, PrepareRequest{Proposal: proposal})
}

func (c *NetworkClient) Accept(ctx context.Context, proposal Proposal) (Record, error) {
	return c.call(ctx, AcceptRequest{Proposal: proposal})
}

func (c *NetworkClient) call(ctx context.Context, request any) (Record, error) {
	response, err := consensus.Call[RecordResponse](ctx, c.network, c.address, request)
	if err != nil {
		return Record{}, err
	}
	return response.Record, response.Err
}

func (c *NetworkClient) String() string {
	return c.address
}
