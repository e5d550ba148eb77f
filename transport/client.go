package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"strings"
	"sync"

	"singledecree/paxos"
)

// Errors an acceptor reports travel as plain strings; these are mapped back.
var remoteErrors = []error{
	paxos.ErrInstanceNotFound,
}

// Client is a paxos.AcceptorClient for an acceptor served by Server.
// It dials lazily and redials after the connection broke.
type Client struct {
	address string

	lock   sync.Mutex
	client *rpc.Client
}

func NewClient(address string) *Client {
	return &Client{address: address}
}

// Clients are the connections of one proposer, in acceptor order.
type Clients []*Client

// NewClients returns one client per address, in order.
func NewClients(addresses []string) Clients {
	clients := make(Clients, len(addresses))
	for i, address := range addresses {
		clients[i] = NewClient(address)
	}
	return clients
}

// Acceptors returns the clients as seen by a paxos.Proposer.
func (cs Clients) Acceptors() []paxos.AcceptorClient {
	acceptors := make([]paxos.AcceptorClient, len(cs))
	for i, client := range cs {
		acceptors[i] = client
	}
	return acceptors
}

// Close closes every client and reports all failures.
func (cs Clients) Close() error {
	var errs []error
	for _, client := range cs {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", client.address, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Prepare(ctx context.Context, proposal paxos.Proposal) (paxos.Record, error) {
	return c.call(ctx, serviceName+".Prepare", proposal)
}

func (c *Client) Accept(ctx context.Context, proposal paxos.Proposal) (paxos.Record, error) {
	return c.call(ctx, serviceName+".Accept", proposal)
}

func (c *Client) String() string {
	return c.address
}

func (c *Client) connect(ctx context.Context) (*rpc.Client, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, err
	}
	c.client = rpc.NewClient(conn)
	return c.client, nil
}

// drop forgets client if it is still the current connection.
func (c *Client) drop(client *rpc.Client) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.client == client {
		c.client = nil
	}
	client.Close()
}

func (c *Client) call(ctx context.Context, method string, proposal paxos.Proposal) (paxos.Record, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return paxos.Record{}, fmt.Errorf("dial %s: %w", c.address, err)
	}
	var reply paxos.Record
	call := client.Go(method, &proposal, &reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
	case <-ctx.Done():
		return paxos.Record{}, fmt.Errorf("%s on %s: %w", method, c.address, ctx.Err())
	}
	if call.Error == nil {
		return reply, nil
	}
	var serverErr rpc.ServerError
	if errors.As(call.Error, &serverErr) {
		return paxos.Record{}, remoteError(c.address, serverErr)
	}
	// Anything else means the connection is unusable.
	c.drop(client)
	return paxos.Record{}, fmt.Errorf("%s on %s: %w", method, c.address, call.Error)
}

func remoteError(address string, serverErr rpc.ServerError) error {
	msg := string(serverErr)
	for _, known := range remoteErrors {
		if strings.HasPrefix(msg, known.Error()) {
			return fmt.Errorf("%w (from %s: %s)", known, address, msg)
		}
	}
	return fmt.Errorf("acceptor %s: %w", address, serverErr)
}

func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
