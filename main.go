package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	c "singledecree/consensus"
	"singledecree/paxos"
	"singledecree/statemachine"
	"singledecree/transport"
)

func main() {
	listen := flag.String("listen", "", "serve an acceptor on this address")
	prepareMode := flag.String("prepare", "classic", "acceptor prepare mode: classic or speculative")
	acceptors := flag.String("acceptors", "", "comma separated acceptor addresses to propose to")
	targets := flag.String("targets", "", "comma separated indexes into -acceptors, default all")
	key := flag.String("key", "", "instance key")
	version := flag.Int64("version", 0, "instance version")
	value := flag.String("value", "", "value to propose")
	id := flag.Int64("id", 1, "proposer identity, unique per proposer")
	round := flag.Int64("round", 0, "round number, 0 picks one")
	timeout := flag.Duration("timeout", time.Second, "timeout of a single call")
	flag.Parse()

	config := paxos.DefaultConfig()
	config.CallTimeout = *timeout

	var err error
	switch {
	case *listen != "":
		err = serve(*listen, *prepareMode, config)
	case *acceptors != "":
		err = propose(strings.Split(*acceptors, ","), *targets, paxos.Attempt{
			Instance: paxos.InstanceId{Key: *key, Version: *version},
			Round:    *round,
			Value:    paxos.Value(*value),
		}, *id, config)
	default:
		demo(config)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func parseMode(mode string) (paxos.PrepareMode, error) {
	switch mode {
	case paxos.SpeculativePrepare.String():
		return paxos.SpeculativePrepare, nil
	case paxos.ClassicPrepare.String():
		return paxos.ClassicPrepare, nil
	default:
		return 0, fmt.Errorf("unknown prepare mode %q", mode)
	}
}

func serve(address string, mode string, config paxos.Config) error {
	prepareMode, err := parseMode(mode)
	if err != nil {
		return err
	}
	server, err := transport.Listen(address, paxos.NewAcceptor(prepareMode, config), config)
	if err != nil {
		return err
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	log.Print("Acceptor exit")
	return server.Close()
}

func propose(addresses []string, targets string, attempt paxos.Attempt, id int64, config paxos.Config) error {
	if targets != "" {
		for _, field := range strings.Split(targets, ",") {
			index, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return fmt.Errorf("bad target %q: %w", field, err)
			}
			attempt.Targets = append(attempt.Targets, index)
		}
	}
	clients := transport.NewClients(addresses)
	defer func() {
		if err := clients.Close(); err != nil {
			config.Logger.Printf("Proposer[%d] %v", id, err)
		}
	}()
	proposer := paxos.NewProposer(id, clients.Acceptors(), c.NewNaiveUidGenerator(), config)
	chosen, err := proposer.Run(context.Background(), attempt)
	if err != nil {
		return err
	}
	fmt.Println(string(chosen))
	return nil
}

func demo(config paxos.Config) {
	network := c.NewReliableNetwork()
	consensus := paxos.NewPaxos(10, 5, paxos.ClassicPrepare, network, config)
	sm := statemachine.StateMachine{
		Consensus: consensus,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		sm.Run(ctx)
	}()

	// Propose some values at the same time.
	// Every proposal reports the same chosen value.
	results, err := sm.RacePropose(ctx, "demo", []byte("1"), []byte("2"), []byte("3"), []byte("4"), []byte("5"))
	if err != nil {
		log.Fatal(err)
	}
	for i, result := range results {
		fmt.Printf("Proposal %d got %s\n", i+1, result)
	}
	fmt.Println("Propose Done")
}
