package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func newTestRouter(t *testing.T) (*Registry, *Correlator, *Router) {
	t.Helper()
	reg := NewRegistry(0, nil)
	corr := NewCorrelator(reg, time.Second, nil)
	return reg, corr, NewRouter(reg, corr, nil)
}

func TestRouter_DispatchesByType(t *testing.T) {
	reg, _, router := newTestRouter(t)
	conn, _ := reg.Admit(&testChannel{}, "alice")

	var mu sync.Mutex
	var got []string
	record := func(name string) Handler {
		return func(c Connection, payload json.RawMessage) {
			mu.Lock()
			got = append(got, name+":"+string(payload))
			mu.Unlock()
			if c.ID != conn.ID {
				t.Errorf("handler got connection %s, want %s", c.ID, conn.ID)
			}
		}
	}
	router.Handle(TypeStatus, record("status"))
	router.Handle(TypeLog, record("log"))

	router.Route(conn.ID, InboundMessage{Type: TypeStatus, Payload: json.RawMessage(`"up"`)})
	router.Route(conn.ID, InboundMessage{Type: TypeLog, Payload: json.RawMessage(`"line"`)})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != `status:"up"` || got[1] != `log:"line"` {
		t.Errorf("dispatched = %v", got)
	}
}

func TestRouter_UnknownConnectionDropped(t *testing.T) {
	_, _, router := newTestRouter(t)

	called := false
	router.Handle(TypeStatus, func(Connection, json.RawMessage) { called = true })

	router.Route("ghost", InboundMessage{Type: TypeStatus})

	if called {
		t.Error("handler ran for a message on an unknown connection")
	}
}

func TestRouter_UnknownTypeDropped(t *testing.T) {
	reg, _, router := newTestRouter(t)
	conn, _ := reg.Admit(&testChannel{}, "alice")

	// Must not panic or call anything.
	router.Route(conn.ID, InboundMessage{Type: MessageType("telemetry")})
}

func TestRouter_TouchesOnEveryMessage(t *testing.T) {
	reg, _, router := newTestRouter(t)
	conn, _ := reg.Admit(&testChannel{}, "alice")

	before, _ := reg.Get(conn.ID)
	time.Sleep(5 * time.Millisecond)

	router.Route(conn.ID, InboundMessage{Type: MessageType("telemetry")})

	after, _ := reg.Get(conn.ID)
	if !after.LastActiveAt.After(before.LastActiveAt) {
		t.Error("routing did not update LastActiveAt")
	}
}

func TestRouter_CommandResponseReachesCorrelator(t *testing.T) {
	reg, corr, router := newTestRouter(t)
	ch := &testChannel{}
	conn, _ := reg.Admit(ch, "alice")

	go func() {
		for ch.sentCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		router.Route(conn.ID, InboundMessage{
			Type:      TypeCommandResponse,
			CommandID: "c1",
			Payload:   json.RawMessage(`{"success":true,"data":{"ok":1}}`),
		})
	}()

	resp, err := corr.Send(context.Background(), "alice", Command{CommandID: "c1", Type: "ping"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp.Data) != `{"ok":1}` {
		t.Errorf("Data = %s", resp.Data)
	}
}

func TestRouter_CommandResponseMalformedPayloadDropped(t *testing.T) {
	reg, _, router := newTestRouter(t)
	conn, _ := reg.Admit(&testChannel{}, "alice")

	// Neither of these may panic or complete anything.
	router.Route(conn.ID, InboundMessage{Type: TypeCommandResponse})
	router.Route(conn.ID, InboundMessage{
		Type:      TypeCommandResponse,
		CommandID: "c1",
		Payload:   json.RawMessage(`{not json`),
	})
}
