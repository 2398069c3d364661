package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opsdesk/deskgate/internal/events"
)

// recordingPublisher captures events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func TestGateway_AdmissionWithoutOwnerFails(t *testing.T) {
	gw := New(Options{})

	ch := &testChannel{}
	_, err := gw.HandleOpen(ch, "")
	if !errors.Is(err, ErrMissingOwner) {
		t.Fatalf("HandleOpen error = %v, want ErrMissingOwner", err)
	}
	if gw.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after rejected admission, want 0", gw.ActiveCount())
	}
}

// End to end: a command with a 50ms deadline and no response rejects with
// ErrCommandTimeout at roughly 50ms, and the connection stays registered
// and active.
func TestGateway_CommandTimeoutLeavesConnectionOpen(t *testing.T) {
	gw := New(Options{})

	ch := &testChannel{}
	if _, err := gw.HandleOpen(ch, "alice"); err != nil {
		t.Fatalf("HandleOpen failed: %v", err)
	}

	start := time.Now()
	_, err := gw.SendCommand(context.Background(), "alice", Command{
		CommandID: "c1",
		Type:      "ping",
		Timeout:   50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("SendCommand error = %v, want ErrCommandTimeout", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("timed out after %v, want ~50ms", elapsed)
	}

	conns := gw.Status("")
	if len(conns) != 1 {
		t.Fatalf("Status lists %d connections, want 1", len(conns))
	}
	if conns[0].Status != StatusActive {
		t.Errorf("connection Status = %q after timeout, want %q", conns[0].Status, StatusActive)
	}
	if ch.closed {
		t.Error("timeout closed the channel; it must stay open")
	}
}

func TestGateway_CommandRoundTrip(t *testing.T) {
	gw := New(Options{})

	ch := &testChannel{}
	conn, err := gw.HandleOpen(ch, "alice")
	if err != nil {
		t.Fatalf("HandleOpen failed: %v", err)
	}

	go func() {
		for ch.sentCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		var env Envelope
		if err := json.Unmarshal(ch.lastSent(), &env); err != nil {
			return
		}
		raw, _ := json.Marshal(Envelope{
			Type:      string(TypeCommandResponse),
			CommandID: env.CommandID,
			Payload:   json.RawMessage(`{"success":true,"data":"pong"}`),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
		gw.HandleMessage(conn.ID, raw, time.Now())
	}()

	// CommandID left empty: the facade assigns one.
	resp, err := gw.SendCommand(context.Background(), "alice", Command{Type: "ping"})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if string(resp.Data) != `"pong"` {
		t.Errorf("Data = %s", resp.Data)
	}
}

func TestGateway_CloseCancelsOnlyOwnedCommands(t *testing.T) {
	gw := New(Options{})

	chA := &testChannel{}
	chB := &testChannel{}
	connA, _ := gw.HandleOpen(chA, "alice")
	gw.HandleOpen(chB, "bob")

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() {
		_, err := gw.SendCommand(context.Background(), "alice", Command{CommandID: "ca", Type: "ping"})
		errA <- err
	}()
	go func() {
		_, err := gw.SendCommand(context.Background(), "bob", Command{CommandID: "cb", Type: "ping"})
		errB <- err
	}()

	waitFor(t, time.Second, func() bool { return gw.PendingCommands() == 2 })

	gw.HandleClose(connA.ID)

	if err := <-errA; !errors.Is(err, ErrConnectionLost) {
		t.Errorf("alice's command error = %v, want ErrConnectionLost", err)
	}
	if gw.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", gw.ActiveCount())
	}
	if gw.PendingCommands() != 1 {
		t.Errorf("PendingCommands = %d, want 1", gw.PendingCommands())
	}

	// Closure is exactly-once; a repeat is a no-op.
	gw.HandleClose(connA.ID)

	raw, _ := json.Marshal(Envelope{
		Type:      string(TypeCommandResponse),
		CommandID: "cb",
		Payload:   json.RawMessage(`{"success":true}`),
	})
	conns := gw.Status("bob")
	gw.HandleMessage(conns[0].ID, raw, time.Now())

	if err := <-errB; err != nil {
		t.Errorf("bob's command error = %v, want nil", err)
	}
}

func TestGateway_MalformedFrameDropped(t *testing.T) {
	gw := New(Options{})
	conn, _ := gw.HandleOpen(&testChannel{}, "alice")

	gw.HandleMessage(conn.ID, []byte(`{not json`), time.Now())
	gw.HandleMessage(conn.ID, []byte(`{"payload":{}}`), time.Now()) // missing type

	if gw.ActiveCount() != 1 {
		t.Errorf("malformed frames affected the registry: ActiveCount = %d", gw.ActiveCount())
	}
}

func TestGateway_PublishesLifecycleAndNotificationEvents(t *testing.T) {
	pub := &recordingPublisher{}
	gw := New(Options{Events: pub})

	conn, _ := gw.HandleOpen(&testChannel{}, "alice")

	raw, _ := json.Marshal(Envelope{
		Type:    string(TypeNotification),
		Payload: json.RawMessage(`{"text":"hello"}`),
	})
	gw.HandleMessage(conn.ID, raw, time.Now())

	gw.HandleClose(conn.ID)

	want := []events.Kind{events.KindConnected, events.KindNotification, events.KindDisconnected}
	got := pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published %v, want %v", got, want)
		}
	}

	pub.mu.Lock()
	notif := pub.events[1]
	pub.mu.Unlock()
	if notif.OwnerID != "alice" || string(notif.Payload) != `{"text":"hello"}` {
		t.Errorf("notification event = %+v", notif)
	}
}

func TestGateway_SendMessageAndBroadcast(t *testing.T) {
	gw := New(Options{})

	first := &testChannel{}
	second := &testChannel{}
	gw.HandleOpen(first, "alice")
	gw.HandleOpen(second, "alice")

	if !gw.SendMessage("alice", Message{Type: "notification", Payload: "hi"}) {
		t.Error("SendMessage returned false")
	}
	if gw.SendMessage("ghost", Message{Type: "notification"}) {
		t.Error("SendMessage returned true for an unknown owner")
	}

	gw.Broadcast(Message{Type: "maintenance"})

	if first.sentCount() != 2 || second.sentCount() != 2 {
		t.Errorf("frame counts = %d/%d, want 2/2", first.sentCount(), second.sentCount())
	}
}
