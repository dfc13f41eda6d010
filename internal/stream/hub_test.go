package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

func newTestClient(remote string) *Client {
	return &Client{
		conn:   nil, // Not needed for hub tests
		remote: remote,
		send:   make(chan Message, 256),
		logger: zap.NewNop(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("10.0.0.1:1234")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() after register = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after unregister = %d, want 0", hub.ClientCount())
	}

	// Verify channel is closed by attempting to receive.
	_, ok := <-client.send
	if ok {
		t.Error("client.send channel is not closed after unregister")
	}
}

func TestUnregisterTwice(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("10.0.0.1:1234")

	hub.Register(client)
	hub.Unregister(client)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Unregister() panicked: %v", r)
		}
	}()
	hub.Unregister(client)
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())

	client1 := newTestClient("10.0.0.1:1")
	client2 := newTestClient("10.0.0.2:2")
	hub.Register(client1)
	hub.Register(client2)

	msg := MetricMessage(models.MetricSample{DeviceID: "dev-1", Timestamp: time.Now()})
	hub.Broadcast(msg)

	for i, client := range []*Client{client1, client2} {
		select {
		case received := <-client.send:
			if received.Type != MessageMetric {
				t.Errorf("client %d received Type = %v, want %v", i+1, received.Type, MessageMetric)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i+1)
		}
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Broadcast() to empty hub panicked: %v", r)
		}
	}()
	hub.Broadcast(MetricMessage(models.MetricSample{DeviceID: "dev-1"}))
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient("10.0.0.1:1234")
	hub.Register(client)

	for i := 0; i < cap(client.send); i++ {
		client.send <- Message{Type: MessageMetric}
	}

	hub.Broadcast(MetricMessage(models.MetricSample{DeviceID: "dropped"}))

	if len(client.send) != cap(client.send) {
		t.Errorf("send buffer length = %d, want %d (message dropped)", len(client.send), cap(client.send))
	}
}

func TestConcurrentRegisterBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client := newTestClient(fmt.Sprintf("10.0.0.%d:1", id))
			hub.Register(client)

			go func() {
				for range client.send {
					// Discard.
				}
			}()

			time.Sleep(5 * time.Millisecond)
			hub.Unregister(client)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(MetricMessage(models.MetricSample{DeviceID: "dev"}))
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after all unregister = %d, want 0", hub.ClientCount())
	}
}
