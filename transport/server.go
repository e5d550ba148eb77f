// Package transport carries Prepare and Accept calls over TCP with net/rpc.
package transport

import (
	"context"
	"log"
	"net"
	"net/rpc"
	"sync"
	"sync/atomic"

	"singledecree/paxos"
)

const serviceName = "Acceptor"

// AcceptorService is the RPC receiver registered by Server.
type AcceptorService struct {
	acceptor *paxos.Acceptor
}

func (s *AcceptorService) Prepare(args *paxos.Proposal, reply *paxos.Record) error {
	record, err := s.acceptor.Prepare(context.Background(), *args)
	if err != nil {
		return err
	}
	*reply = record
	return nil
}

func (s *AcceptorService) Accept(args *paxos.Proposal, reply *paxos.Record) error {
	record, err := s.acceptor.Accept(context.Background(), *args)
	if err != nil {
		return err
	}
	*reply = record
	return nil
}

// Server serves one acceptor on a TCP listener.
type Server struct {
	listener net.Listener
	rpcs     *rpc.Server
	logger   *log.Logger

	dead      atomic.Bool
	connsLock sync.Mutex
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

// Listen starts serving acceptor on address. Use ":0" to pick a free port.
func Listen(address string, acceptor *paxos.Acceptor, config paxos.Config) (*Server, error) {
	rpcs := rpc.NewServer()
	if err := rpcs.RegisterName(serviceName, &AcceptorService{acceptor: acceptor}); err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		listener: l,
		rpcs:     rpcs,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Printf("Acceptor listening on %s", l.Addr())
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// create a thread to accept RPC connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.dead.Load() {
				s.logger.Printf("Acceptor(%s) accept: %v", s.Addr(), err)
			}
			return
		}
		s.connsLock.Lock()
		if s.dead.Load() {
			s.connsLock.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.connsLock.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rpcs.ServeConn(conn)
			s.connsLock.Lock()
			delete(s.conns, conn)
			s.connsLock.Unlock()
		}()
	}
}

// Close stops the listener and drops every open connection, so that
// pending calls fail instead of hanging.
func (s *Server) Close() error {
	if s.dead.Swap(true) {
		return nil
	}
	err := s.listener.Close()
	s.connsLock.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsLock.Unlock()
	s.wg.Wait()
	return err
}
