package live

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/segmentio/kafka-go"
)

func testHub() *Hub {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC) }
	return h
}

func TestBroadcastFiltersByRole(t *testing.T) {
	hub := testHub()
	admin := NewClient("admin", auth.RoleCapabilities(auth.RoleAdmin))
	physio := NewClient("physio", auth.RoleCapabilities(auth.RolePhysiotherapist))
	hub.Register(admin)
	hub.Register(physio)

	if n := hub.Broadcast(Notification{Kind: KindSlotChanged, ResourceID: "s-1"}); n != 1 {
		t.Fatalf("expected slot change to reach only the admin, reached %d", n)
	}
	if len(admin.Send) != 1 || len(physio.Send) != 0 {
		t.Fatalf("unexpected deliveries admin=%d physio=%d", len(admin.Send), len(physio.Send))
	}

	if n := hub.Broadcast(Notification{Kind: KindVisitCompleted, ResourceID: "r-1"}); n != 2 {
		t.Fatalf("expected visit completion to reach both, reached %d", n)
	}
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	hub := testHub()
	c := &Client{ID: "slow", Caps: auth.RoleCapabilities(auth.RoleAdmin), Send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast(Notification{Kind: KindSlotChanged})
	if n := hub.Broadcast(Notification{Kind: KindSlotChanged}); n != 0 {
		t.Fatalf("expected full client to be skipped, sent %d", n)
	}
}

func TestUnregisterTwice(t *testing.T) {
	hub := testHub()
	c := NewClient("c", auth.RoleCapabilities(auth.RoleAdmin))
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
	if _, ok := <-c.Send; ok {
		t.Fatal("expected Send to be closed")
	}
}

func TestTranslate(t *testing.T) {
	got := Translate("booking.registration.created.v1", []byte(`{"registration_id":"r-1","slot_id":"s-1"}`))
	if len(got) != 2 || got[0].Kind != KindRegistrationCreated || got[0].ResourceID != "r-1" || got[1].ResourceID != "s-1" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	got = Translate("clinic.reconciliation.flagged.v1", []byte(`{"id":"i-1"}`))
	if len(got) != 1 || got[0].Kind != KindIncidentRecorded || got[0].ResourceID != "i-1" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if got := Translate("auth.password_reset.requested.v1", nil); got != nil {
		t.Fatalf("expected no notifications, got %+v", got)
	}
}

func TestHandlerBroadcastsConsumedEvents(t *testing.T) {
	hub := testHub()
	c := NewClient("c", auth.RoleCapabilities(auth.RolePhysiotherapist))
	hub.Register(c)

	msg := kafka.Message{
		Topic: "clinic.visit.completed.v1",
		Value: []byte(`{"registration_id":"r-9"}`),
	}
	if err := hub.Handler()(t.Context(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var n Notification
	if err := json.Unmarshal(<-c.Send, &n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Kind != KindVisitCompleted || n.ResourceID != "r-9" || n.At.IsZero() {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestServeWSStreamsNotifications(t *testing.T) {
	hub := testHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	header := http.Header{}
	header.Set(httpx.UserIDHeader, "u-1")
	header.Set(httpx.RoleHeader, string(auth.RoleAdmin))
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(Notification{Kind: KindSlotChanged, ResourceID: "s-1"})
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n Notification
	if err := ws.ReadJSON(&n); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n.Kind != KindSlotChanged || n.ResourceID != "s-1" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestServeWSRequiresIdentity(t *testing.T) {
	hub := testHub()
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clinic/live", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
