package consensus

import (
	"context"
	"errors"
	"testing"
	"time"
)

type echoEndpoint struct{}

func (echoEndpoint) Receive(ctx context.Context, message any) (<-chan any, error) {
	responses := make(chan any, 1)
	responses <- message
	close(responses)
	return responses, nil
}

type silentEndpoint struct{}

func (silentEndpoint) Receive(ctx context.Context, message any) (<-chan any, error) {
	responses := make(chan any)
	close(responses)
	return responses, nil
}

type hangingEndpoint struct{}

func (hangingEndpoint) Receive(ctx context.Context, message any) (<-chan any, error) {
	return make(chan any), nil
}

func TestCall(t *testing.T) {
	network := NewReliableNetwork()
	network.Register("echo", echoEndpoint{})
	network.Register("silent", silentEndpoint{})
	network.Register("hanging", hangingEndpoint{})
	ctx := context.Background()

	got, err := Call[string](ctx, network, "echo", "ping")
	if err != nil || got != "ping" {
		t.Errorf("Call(echo) = %q, %v", got, err)
	}
	if _, err := Call[int](ctx, network, "echo", "ping"); err == nil {
		t.Error("Call with a mistyped response should fail")
	}
	if _, err := Call[string](ctx, network, "silent", "ping"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Call(silent) error = %v, want ErrConnectionClosed", err)
	}
	if _, err := Call[string](ctx, network, "nowhere", "ping"); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Call(nowhere) error = %v, want ErrUnreachable", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := Call[string](timeout, network, "hanging", "ping"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call(hanging) error = %v, want DeadlineExceeded", err)
	}
}

func TestUnreliableNetworkIsolate(t *testing.T) {
	network := NewUnreliableNetwork()
	network.Register("a", echoEndpoint{})
	network.Register("b", echoEndpoint{})
	ctx := context.Background()

	network.Isolate("a")
	if _, err := Call[string](ctx, network, "a", "ping"); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Call(a) error = %v, want ErrUnreachable", err)
	}
	if got, err := Call[string](ctx, network, "b", "ping"); err != nil || got != "ping" {
		t.Errorf("Call(b) = %q, %v", got, err)
	}

	network.Heal()
	if got, err := Call[string](ctx, network, "a", "ping"); err != nil || got != "ping" {
		t.Errorf("Call(a) after Heal = %q, %v", got, err)
	}
}

func TestUnreliableNetworkDelay(t *testing.T) {
	network := NewUnreliableNetwork()
	network.Register("a", echoEndpoint{})
	network.Delay("a", 30*time.Millisecond)

	start := time.Now()
	if _, err := Call[string](context.Background(), network, "a", "ping"); err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("delayed call returned after %v", elapsed)
	}

	network.Delay("a", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := Call[string](ctx, network, "a", "ping"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call error = %v, want DeadlineExceeded", err)
	}
}
