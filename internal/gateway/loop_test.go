package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/lineproto"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

func newTestLoop(state *State, client *fakeClient) *EventLoop {
	d := NewDispatcher(state, client, discardLogger())
	return NewEventLoop(state, d, client, discardLogger())
}

func TestHandlePrivmsgNoRecipient(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG"})

	lines := drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_NORECIPIENT) {
		t.Errorf("lines = %v", lines)
	}
}

func TestHandlePrivmsgNoText(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG", Args: []string{"#general(Acme)"}})

	lines := drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_NOTEXTTOSEND) {
		t.Errorf("lines = %v", lines)
	}
}

func TestHandlePrivmsgToKnownChannel(t *testing.T) {
	client := newFakeClient()
	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	ch := domain.NewChannel("C1", "general", "O1", "Acme")
	state.AddChannel(ch)
	loop := newTestLoop(state, client)
	sess := newTestSession("alice@x")

	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG", Args: []string{"#general(Acme)", "hi there"}})

	if len(client.sentMessages) != 1 || client.sentMessages[0].text != "hi there" {
		t.Errorf("sentMessages = %v", client.sentMessages)
	}
}

func TestHandlePrivmsgCreatesDirectConversation(t *testing.T) {
	client := newFakeClient()
	client.peers["bob"] = wireformat.Peer{AccountID: "A2", Username: "bob"}
	client.newDirectCID = "C9"

	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	state.FlowAccountID = "A1"
	state.Organizations["O1"] = "Acme"
	loop := newTestLoop(state, client)
	sess := newTestSession("alice@x")

	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG", Args: []string{"bob(Acme)", "hi"}})

	if _, ok := state.Channels["C9"]; !ok {
		t.Fatal("direct channel not created")
	}
	if len(client.sentMessages) != 1 {
		t.Fatalf("sentMessages = %v", client.sentMessages)
	}

	client.sentMessages = nil
	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG", Args: []string{"bob(Acme)", "again"}})
	if len(state.Channels) != 1 {
		t.Errorf("a second direct channel was created: %d channels", len(state.Channels))
	}
	if len(client.sentMessages) != 1 {
		t.Fatalf("sentMessages = %v", client.sentMessages)
	}
}

func TestHandlePrivmsgUnknownTargetReplies401(t *testing.T) {
	client := newFakeClient()
	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	loop := newTestLoop(state, client)
	sess := newTestSession("alice@x")

	loop.handlePrivmsg(context.Background(), sess, lineproto.Frame{Command: "PRIVMSG", Args: []string{"nobody(Nowhere)", "hi"}})

	lines := drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_NOSUCHNICK) {
		t.Errorf("lines = %v", lines)
	}
}

func TestHandleWhoisKnownAndUnknown(t *testing.T) {
	client := newFakeClient()
	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	ch := domain.NewChannel("C1", "general", "O1", "Acme")
	ch.AddMember(domain.NewMember("bob@x", "A2", "Acme"))
	state.AddChannel(ch)
	loop := newTestLoop(state, client)
	sess := newTestSession("alice@x")

	loop.handleWhois(sess, lineproto.Frame{Command: "WHOIS", Args: []string{"bob@x(Acme)"}})
	lines := drain(sess)
	if len(lines) != 3 || !strings.Contains(lines[0], lineproto.RPL_WHOISUSER) {
		t.Errorf("lines = %v", lines)
	}

	loop.handleWhois(sess, lineproto.Frame{Command: "WHOIS", Args: []string{"ghost(Acme)"}})
	lines = drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_NOSUCHNICK) {
		t.Errorf("lines = %v", lines)
	}
}

func TestHandleWhoNoArgsSendsNoReply(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handleWho(sess, lineproto.Frame{Command: "WHO"})

	if lines := drain(sess); len(lines) != 0 {
		t.Errorf("expected no reply, got %v", lines)
	}
}

func TestHandleWhoisNoArgsSendsNoReply(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handleWhois(sess, lineproto.Frame{Command: "WHOIS"})

	if lines := drain(sess); len(lines) != 0 {
		t.Errorf("expected no reply, got %v", lines)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handleCommandFrame(context.Background(), sess, lineproto.Frame{Command: "XYZZY"})

	lines := drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_UNKNOWNCOMMAND) {
		t.Errorf("lines = %v", lines)
	}
}

func TestHandlePingNoOrigin(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	loop := newTestLoop(state, newFakeClient())
	sess := newTestSession("alice@x")

	loop.handlePing(sess, lineproto.Frame{Command: "PING"})

	lines := drain(sess)
	if len(lines) != 1 || !strings.Contains(lines[0], lineproto.ERR_NOORIGIN) {
		t.Errorf("lines = %v", lines)
	}
}

func TestKeepaliveDisconnectsOnTimeout(t *testing.T) {
	client := newFakeClient()
	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	loop := newTestLoop(state, client)
	sess := newTestSession("alice@x")
	sess.lastActivity = sess.lastActivity.Add(-200 * time.Second)
	state.Sessions[sess] = struct{}{}

	loop.runKeepalive()

	if sess.state != handlerDisconnected {
		t.Error("expected session to be disconnected on timeout")
	}
	if _, ok := state.Sessions[sess]; ok {
		t.Error("expected session removed from state")
	}
}
