package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"abcd":    "ABCD",
		" wxyz ":  "WXYZ",
		"ABCD":    "ABCD",
		"  ":      "",
		"\tqrst ": "QRST",
	}
	for in, want := range cases {
		if got := normalizeCode(in); got != want {
			t.Errorf("normalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewConnIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newConnID()
		if len(id) != 16 {
			t.Fatalf("connection id %q is not 16 hex characters", id)
		}
		if seen[id] {
			t.Fatalf("connection id %q issued twice", id)
		}
		seen[id] = true
	}
}

func TestDispatchCreateAndJoin(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, testQuestions(3))

	host := newFakeConn("conn-host")
	dispatch(cfg, reg, host, ClientMessage{Type: "create_room", Name: "Alice"})

	joined := waitFor[RoomJoinedMessage](t, host, time.Second)

	guest := newFakeConn("conn-guest")
	// The client may send the code in any case.
	dispatch(cfg, reg, guest, ClientMessage{
		Type:     "join_room",
		Name:     "Bob",
		RoomCode: strings.ToLower(joined.RoomCode),
	})

	guestJoined := waitFor[RoomJoinedMessage](t, guest, time.Second)
	if guestJoined.RoomCode != joined.RoomCode {
		t.Fatalf("guest joined %q, want %q", guestJoined.RoomCode, joined.RoomCode)
	}
	if guestJoined.IsHost {
		t.Fatalf("guest marked as host")
	}
}

func TestDispatchUnknownRoom(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, testQuestions(3))

	c := newFakeConn("conn-a")

	dispatch(cfg, reg, c, ClientMessage{Type: "check_room", RoomCode: "ZZZZ"})
	errMsg := waitFor[ErrorMessage](t, c, time.Second)
	if !strings.Contains(errMsg.Message, "not found") {
		t.Fatalf("unexpected check error: %q", errMsg.Message)
	}

	dispatch(cfg, reg, c, ClientMessage{Type: "join_room", Name: "Bob", RoomCode: "ZZZZ"})
	errMsg = waitFor[ErrorMessage](t, c, time.Second)
	if !strings.Contains(errMsg.Message, "not available for joining") {
		t.Fatalf("unexpected join error: %q", errMsg.Message)
	}

	dispatch(cfg, reg, c, ClientMessage{Type: "join_room", Name: "Bob"})
	errMsg = waitFor[ErrorMessage](t, c, time.Second)
	if !strings.Contains(errMsg.Message, "code is missing") {
		t.Fatalf("unexpected missing-code error: %q", errMsg.Message)
	}
}

func TestDispatchRejoinValidation(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, testQuestions(3))

	c := newFakeConn("conn-a")

	dispatch(cfg, reg, c, ClientMessage{Type: "rejoin", RoomCode: "ABCD"})
	failed := waitFor[RejoinFailedMessage](t, c, time.Second)
	if !strings.Contains(failed.Message, "Invalid rejoin data") {
		t.Fatalf("unexpected failure for missing player id: %q", failed.Message)
	}

	dispatch(cfg, reg, c, ClientMessage{Type: "rejoin", RoomCode: "ABCD", PlayerID: "some-id"})
	failed = waitFor[RejoinFailedMessage](t, c, time.Second)
	if !strings.Contains(failed.Message, "does not exist or has expired") {
		t.Fatalf("unexpected failure for unknown room: %q", failed.Message)
	}
}

func TestDispatchRoomlessIntentsDropped(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, testQuestions(3))

	c := newFakeConn("conn-a")

	// None of these may panic or produce a reply for a connection that is
	// not in any room.
	dispatch(cfg, reg, c, ClientMessage{Type: "start_game"})
	dispatch(cfg, reg, c, ClientMessage{Type: "vote", Vote: voteYes})
	dispatch(cfg, reg, c, ClientMessage{Type: "force_results"})
	dispatch(cfg, reg, c, ClientMessage{Type: "next_question"})
	dispatch(cfg, reg, c, ClientMessage{Type: "leave_room"})
	dispatch(cfg, reg, c, ClientMessage{Type: "bogus"})

	expectNone[ErrorMessage](t, c)
}

func TestWritePumpExitsOnDetach(t *testing.T) {
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- sock
	}))
	defer srv.Close()

	clientSide, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	defer clientSide.Close()

	c := newWSClient(<-serverSide)

	pumpDone := make(chan struct{})
	go func() {
		c.writePump()
		close(pumpDone)
	}()

	// The pump delivers queued messages while the connection is live.
	c.send(ErrorMessage{Type: "error", Message: "ping"})
	var msg ErrorMessage
	if err := clientSide.ReadJSON(&msg); err != nil {
		t.Fatalf("reading pumped message: %v", err)
	}
	if msg.Message != "ping" {
		t.Fatalf("pumped message = %q, want ping", msg.Message)
	}

	// Detaching stops the pump rather than leaving it parked forever.
	c.detach()
	c.detach()

	select {
	case <-pumpDone:
	case <-time.After(time.Second):
		t.Fatalf("write pump still running after detach")
	}

	// A room holding this conn through a grace period may still send;
	// that must be a silent drop.
	c.send(ErrorMessage{Type: "error", Message: "late"})
}

func TestDispatchGameFlow(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, testQuestions(2))

	host := newFakeConn("conn-host")
	dispatch(cfg, reg, host, ClientMessage{Type: "create_room", Name: "Alice"})
	joined := waitFor[RoomJoinedMessage](t, host, time.Second)

	guest := newFakeConn("conn-guest")
	dispatch(cfg, reg, guest, ClientMessage{Type: "join_room", Name: "Bob", RoomCode: joined.RoomCode})
	waitFor[RoomJoinedMessage](t, guest, time.Second)

	dispatch(cfg, reg, host, ClientMessage{Type: "start_game"})
	waitFor[NewQuestionMessage](t, guest, time.Second)

	dispatch(cfg, reg, host, ClientMessage{Type: "vote", Vote: voteYes})
	dispatch(cfg, reg, guest, ClientMessage{Type: "vote", Vote: voteNo})

	results := waitFor[ResultsMessage](t, host, time.Second)
	if results.YesVotes != 1 || results.NoVotes != 1 {
		t.Fatalf("tally = %d/%d, want 1/1", results.YesVotes, results.NoVotes)
	}

	dispatch(cfg, reg, host, ClientMessage{Type: "next_question"})
	waitFor[NewQuestionMessage](t, guest, time.Second)

	dispatch(cfg, reg, host, ClientMessage{Type: "force_results"})
	waitFor[ResultsMessage](t, guest, time.Second)

	dispatch(cfg, reg, host, ClientMessage{Type: "next_question"})
	over := waitFor[GameOverMessage](t, guest, time.Second)
	if !strings.Contains(over.Message, "All questions answered") {
		t.Fatalf("unexpected game over reason: %q", over.Message)
	}
}
