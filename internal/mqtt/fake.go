package mqtt

import (
	"context"
	"sync"
)

// FakeMessage is one scripted delivery.
type FakeMessage struct {
	Topic   string
	Payload []byte
}

// FakeSource delivers scripted messages to a Handler for tests. It stands in
// for RealSubscriber and can run under the supervisor.
type FakeSource struct {
	handler *Handler
	store   Recorder
	script  []FakeMessage

	once      sync.Once
	mu        sync.Mutex
	connected bool
	delivered int

	// Ready is closed once Serve has delivered the script.
	Ready chan struct{}
}

// NewFakeSource creates a FakeSource that will deliver script when served.
func NewFakeSource(handler *Handler, store Recorder, script ...FakeMessage) *FakeSource {
	return &FakeSource{
		handler: handler,
		store:   store,
		script:  script,
		Ready:   make(chan struct{}),
	}
}

// String names the service for the supervisor.
func (f *FakeSource) String() string {
	return "fake-source"
}

// Serve marks the source connected, delivers the script and blocks until
// ctx is cancelled. The script is delivered on the first Serve only, so a
// restarted source does not replay it.
func (f *FakeSource) Serve(ctx context.Context) error {
	f.SetConnected(true)
	f.once.Do(func() {
		for _, m := range f.script {
			f.Deliver(m.Topic, m.Payload)
		}
		close(f.Ready)
	})

	<-ctx.Done()
	f.SetConnected(false)
	return nil
}

// Deliver hands one message to the handler.
func (f *FakeSource) Deliver(topic string, payload []byte) {
	f.handler.Handle(topic, payload)
	f.mu.Lock()
	f.delivered++
	f.mu.Unlock()
}

// SetConnected simulates a connection state change.
func (f *FakeSource) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
	f.store.SetMQTTConnected(connected)
}

// IsConnected reports the simulated connection state.
func (f *FakeSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Delivered returns the number of messages handed to the handler.
func (f *FakeSource) Delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}
