package gateway

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
)

func TestListLinesSortedByRoomName(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	state.AddChannel(domain.NewChannel("C1", "zeta", "O1", "Acme"))
	state.AddChannel(domain.NewChannel("C2", "alpha", "O1", "Acme"))

	lines := listLines(state.Name, "alice@x", state, "")
	if len(lines) != 3 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[0], "#alpha(Acme)") || !strings.Contains(lines[1], "#zeta(Acme)") {
		t.Errorf("expected alpha before zeta, got %v", lines)
	}
}

func TestListLinesFilterByRoomName(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	state.AddChannel(domain.NewChannel("C1", "zeta", "O1", "Acme"))
	state.AddChannel(domain.NewChannel("C2", "alpha", "O1", "Acme"))

	lines := listLines(state.Name, "alice@x", state, "#alpha(Acme),#nope(Acme)")
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[0], "#alpha(Acme)") {
		t.Errorf("lines[0] = %q", lines[0])
	}
}

func TestListLinesIncludesDirectChannels(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	state.FlowAccountID = "A1"
	dc := domain.NewDirectChannel("C9", "O1", "Acme", true)
	dc.AddMember(domain.NewMember("alice@x", "A1", "Acme"))
	dc.AddMember(domain.NewMember("bob@x", "A2", "Acme"))
	state.AddChannel(dc)

	lines := listLines(state.Name, "alice@x", state, "")
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[0], "bob@x(Acme)") {
		t.Errorf("lines[0] = %q, want the direct channel's room name", lines[0])
	}
}

func TestMotdBodyLinesSortedByRoomName(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	state.Organizations["O1"] = "Acme"
	state.AddChannel(domain.NewChannel("C1", "zeta", "O1", "Acme"))
	state.AddChannel(domain.NewChannel("C2", "alpha", "O1", "Acme"))

	lines := motdBodyLines(state)
	idxAlpha, idxZeta := -1, -1
	for i, l := range lines {
		if strings.Contains(l, "#alpha(Acme)") {
			idxAlpha = i
		}
		if strings.Contains(l, "#zeta(Acme)") {
			idxZeta = i
		}
	}
	if idxAlpha < 0 || idxZeta < 0 || idxAlpha > idxZeta {
		t.Errorf("expected alpha before zeta, lines = %v", lines)
	}
}
