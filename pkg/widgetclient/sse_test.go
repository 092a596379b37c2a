package widgetclient

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFrame(t *testing.T, w http.ResponseWriter, event, data string) {
	t.Helper()
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func TestSSESubscriber_DeliversMessageEvents(t *testing.T) {
	received := make(chan Message, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations/conv_a/events" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("user_id"); got != "visitor-1" {
			http.Error(w, "wrong visitor", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")

		writeFrame(t, w, "connected", `{"conversation_id":"conv_a"}`)
		fmt.Fprint(w, ": heartbeat\n\n")
		writeFrame(t, w, "message", `{"id":`) // torn frame, must be dropped
		writeFrame(t, w, "message", `{"id":"msg_1","conversation_id":"conv_a","sender":"support","content":"hi"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub := NewSSESubscriber(srv.URL, zerolog.Nop())
	sub.initialBackoff = time.Hour // this test never reconnects
	cancel := sub.Subscribe("conv_a", "visitor-1", func(m Message) { received <- m })
	defer cancel()

	select {
	case m := <-received:
		if m.ID != "msg_1" || m.Sender != SenderSupport || m.Content != "hi" {
			t.Errorf("message = %+v, want msg_1 from support", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message event delivered")
	}

	// The connected frame, heartbeat, and torn frame were all filtered.
	select {
	case m := <-received:
		t.Errorf("unexpected extra delivery: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSSESubscriber_ReconnectsAfterDisconnect(t *testing.T) {
	received := make(chan Message, 8)
	var connections int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		n := atomic.AddInt32(&connections, 1)
		if n == 1 {
			writeFrame(t, w, "message", `{"id":"msg_1","conversation_id":"conv_a","sender":"support","content":"first"}`)
			return // server drops the stream
		}
		writeFrame(t, w, "message", `{"id":"msg_2","conversation_id":"conv_a","sender":"support","content":"second"}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub := NewSSESubscriber(srv.URL, zerolog.Nop())
	sub.initialBackoff = 20 * time.Millisecond
	cancel := sub.Subscribe("conv_a", "visitor-1", func(m Message) { received <- m })
	defer cancel()

	want := []string{"msg_1", "msg_2"}
	for _, id := range want {
		select {
		case m := <-received:
			if m.ID != id {
				t.Errorf("message id = %q, want %q", m.ID, id)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", id)
		}
	}
	if got := atomic.LoadInt32(&connections); got < 2 {
		t.Errorf("connections = %d, want a reconnect", got)
	}

	// Cancel stops the loop: no further dials.
	cancel()
	time.Sleep(100 * time.Millisecond)
	before := atomic.LoadInt32(&connections)
	time.Sleep(150 * time.Millisecond)
	if after := atomic.LoadInt32(&connections); after != before {
		t.Errorf("connections kept growing after cancel: %d -> %d", before, after)
	}
}
