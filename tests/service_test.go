package tests

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/service"
	"github.com/taskhive/realtime/src/session"
	"github.com/taskhive/realtime/src/types"
)

type svcRig struct {
	*rig
	svc *service.Service
}

func newSvcRig(t *testing.T) *svcRig {
	t.Helper()
	r := newRig(t)
	logger := zerolog.Nop()
	svc := service.New(r.manager, r.store, r.reg, session.StaticToken("u1:Ada"), logger)
	return &svcRig{rig: r, svc: svc}
}

func (r *svcRig) connectSvc(t *testing.T) *mockConn {
	t.Helper()
	c := newMockConn()
	r.dialer.enqueue(c)
	if err := r.svc.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, r.svc.IsConnected, "connection open")
	return c
}

func TestConnectUsesSessionToken(t *testing.T) {
	r := newSvcRig(t)
	r.connectSvc(t)
	if got := r.dialer.token(); got != "u1:Ada" {
		t.Fatalf("expected session token at dial time, got %q", got)
	}
}

func TestActionsDroppedWhileDisconnected(t *testing.T) {
	r := newSvcRig(t)

	// None of these may panic, queue, or touch the store.
	r.svc.JoinConversation("c1")
	r.svc.LeaveConversation("c1")
	r.svc.SendMessage(types.SendMessage{ConversationID: "c1", Body: "hi"})
	r.svc.StartTyping("c1")
	r.svc.StopTyping("c1")
	r.svc.MarkAsRead("c1", "m1")
	r.svc.MarkConversationAsRead("c1")

	if r.store.ActiveConversation() != "" {
		t.Fatal("join while disconnected must not change the active conversation")
	}
	if r.dialer.dialCount() != 0 {
		t.Fatal("actions must not open a connection")
	}
}

func TestJoinConversationClearsLogAndSendsAction(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	c.push(t, types.KindMessageNew, types.ChatMessage{ID: "m1", ConversationID: "c1", Body: "old"})
	waitFor(t, func() bool { return len(r.svc.Messages()) == 1 }, "message appended")

	r.svc.JoinConversation("c2")

	if got := r.svc.Messages(); len(got) != 0 {
		t.Fatalf("expected empty log immediately after join, got %d entries", len(got))
	}
	kinds := c.writtenKinds()
	if len(kinds) != 1 || kinds[0] != types.KindJoinConversation {
		t.Fatalf("expected join:conversation on the wire, got %v", kinds)
	}
}

func TestJoinThenJoinLeavesLogEmpty(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	r.svc.JoinConversation("c1")
	c.push(t, types.KindHistory, types.HistoryPayload{
		ConversationID: "c1",
		Messages:       []types.ChatMessage{{ID: "m1", ConversationID: "c1", Body: "a"}},
	})
	waitFor(t, func() bool { return len(r.svc.Messages()) == 1 }, "history applied")

	r.svc.JoinConversation("c2")
	if got := r.svc.Messages(); len(got) != 0 {
		t.Fatalf("expected empty log after switching conversations, got %d", len(got))
	}
}

func TestSendMessageWritesAction(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	r.svc.SendMessage(types.SendMessage{ConversationID: "c1", Body: "hello", Kind: types.MessageText})
	r.svc.MarkAsRead("c1", "m9")
	r.svc.MarkConversationAsRead("c1")

	want := []types.Kind{types.KindMessageSend, types.KindMessageRead, types.KindConversationMarkRead}
	got := c.writtenKinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTypingQueries(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	c.push(t, types.KindTypingUpdate, types.TypingStatus{ConversationID: "c1", UserID: "u2", UserName: "Ben", IsTyping: true})
	waitFor(t, func() bool { return len(r.svc.GetTypingUsers("c1")) == 1 }, "typist recorded")

	c.push(t, types.KindTypingUpdate, types.TypingStatus{ConversationID: "c1", UserID: "u2", IsTyping: false})
	waitFor(t, func() bool { return len(r.svc.GetTypingUsers("c1")) == 0 }, "typist removed")
}

func TestPresenceQueries(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	c.push(t, types.KindUserStatus, types.UserStatus{UserID: "u2", Online: true})
	waitFor(t, func() bool { return r.svc.IsUserOnline("u2") }, "user online")

	c.push(t, types.KindUserStatus, types.UserStatus{UserID: "u2", Online: false})
	waitFor(t, func() bool { return !r.svc.IsUserOnline("u2") }, "user offline")
}

func TestRegisterHandlerLastWriterWins(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	var mu sync.Mutex
	var first, second int
	r.svc.RegisterJobUpdatedHandler(func(json.RawMessage) {
		mu.Lock()
		first++
		mu.Unlock()
	})
	r.svc.RegisterJobUpdatedHandler(func(json.RawMessage) {
		mu.Lock()
		second++
		mu.Unlock()
	})

	c.push(t, types.KindJobUpdated, map[string]any{"jobId": "j1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return second == 1
	}, "current handler invoked")

	mu.Lock()
	defer mu.Unlock()
	if first != 0 {
		t.Fatal("replaced handler must never fire")
	}
}

func TestRegistrationSurvivesReconnect(t *testing.T) {
	// Handler lifetime is process-wide, decoupled from the connection.
	r := newSvcRig(t)
	c1 := r.connectSvc(t)

	var mu sync.Mutex
	var fired int
	r.svc.RegisterNotificationNewHandler(func(json.RawMessage) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	c2 := newMockConn()
	r.dialer.enqueue(c2)
	c1.fail(errAny{})
	waitFor(t, func() bool {
		return r.svc.IsConnected() && r.dialer.dialCount() == 2
	}, "reconnected")

	c2.push(t, types.KindNotificationNew, map[string]any{"id": "n1"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, "handler invoked after reconnect")
}

func TestEndToEndMessageFlow(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	r.svc.JoinConversation("c1")
	c.push(t, types.KindMessageNew, types.ChatMessage{ID: "m1", ConversationID: "c1", Body: "hello"})
	waitFor(t, func() bool { return len(r.svc.Messages()) == 1 }, "message at tail of log")

	r.svc.LeaveConversation("c1")
	if len(r.svc.Messages()) != 0 {
		t.Fatal("expected empty log after leave")
	}

	// A late event for the left conversation is still appended: the log
	// reset is the only gate.
	c.push(t, types.KindMessageNew, types.ChatMessage{ID: "m2", ConversationID: "c1", Body: "late"})
	waitFor(t, func() bool { return len(r.svc.Messages()) == 1 }, "late message appended")
}

func TestDisconnectResetsEverything(t *testing.T) {
	r := newSvcRig(t)
	c := r.connectSvc(t)

	var fired bool
	r.svc.RegisterDashboardRefreshHandler(func(json.RawMessage) { fired = true })
	c.push(t, types.KindMessageNew, types.ChatMessage{ID: "m1", ConversationID: "c1", Body: "hello"})
	waitFor(t, func() bool { return len(r.svc.Messages()) == 1 }, "message appended")

	r.svc.Disconnect()

	if r.svc.IsConnected() {
		t.Fatal("expected disconnected")
	}
	if len(r.svc.Messages()) != 0 {
		t.Fatal("expected log cleared on logout")
	}
	r.reg.Dispatch(types.KindDashboardRefresh, nil)
	if fired {
		t.Fatal("expected handlers cleared on logout")
	}
}

type errAny struct{}

func (errAny) Error() string { return "network down" }
