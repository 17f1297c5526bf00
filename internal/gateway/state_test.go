package gateway

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

func TestAddChannelCollision(t *testing.T) {
	client := newFakeClient()
	state := NewState("gw.local", false, "alice@x", client, discardLogger())

	c1 := domain.NewChannel("C1", "general", "O1", "Acme")
	state.AddChannel(c1)
	if c1.NameCollides {
		t.Fatal("first channel should not collide")
	}

	c2 := domain.NewChannel("C2", "general", "O1", "Acme")
	state.AddChannel(c2)
	if !c2.NameCollides {
		t.Fatal("second channel with same name should collide")
	}
	if c1.RoomName("") == c2.RoomName("") {
		t.Errorf("room names should differ after collision: %q == %q", c1.RoomName(""), c2.RoomName(""))
	}
}

func TestLoadOrgsAndChannelsResolvesFlowAccountID(t *testing.T) {
	client := newFakeClient()
	client.orgs = []wireformat.Org{{ID: "O1", Name: "Acme"}}
	client.channelsByOrg["O1"] = []wireformat.Channel{{ID: "C1", Name: "general", Purpose: "group"}}
	client.membersByChannel["C1"] = []wireformat.Member{
		{AccountID: "A1", EmailAddress: "alice@x"},
		{AccountID: "A2", EmailAddress: "bob@x"},
	}

	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	if err := state.LoadOrgsAndChannels(context.Background()); err != nil {
		t.Fatalf("LoadOrgsAndChannels() error = %v", err)
	}

	if state.FlowAccountID != "A1" {
		t.Errorf("FlowAccountID = %q, want A1", state.FlowAccountID)
	}
	ch, ok := state.Channels["C1"]
	if !ok {
		t.Fatal("channel C1 not loaded")
	}
	if len(ch.Members) != 2 {
		t.Errorf("len(Members) = %d, want 2", len(ch.Members))
	}
}

func TestCreateDirectChannel(t *testing.T) {
	client := newFakeClient()
	client.newDirectCID = "C9"

	state := NewState("gw.local", false, "alice@x", client, discardLogger())
	state.FlowAccountID = "A1"

	ch, err := state.CreateDirectChannel(context.Background(), "A2", "bob@x", "O1", "Acme")
	if err != nil {
		t.Fatalf("CreateDirectChannel() error = %v", err)
	}
	if !ch.IsDirect() || !ch.CreatedInSession {
		t.Errorf("channel = %+v, want direct+created-in-session", ch)
	}
	if len(ch.Members) != 2 {
		t.Errorf("len(Members) = %d, want 2", len(ch.Members))
	}
	if _, ok := state.Channels["C9"]; !ok {
		t.Error("channel not added to state")
	}
}

func TestGetOrgIDFromName(t *testing.T) {
	state := NewState("gw.local", false, "alice@x", newFakeClient(), discardLogger())
	state.Organizations["O1"] = "Acme"

	oid, ok := state.GetOrgIDFromName("Acme")
	if !ok || oid != "O1" {
		t.Errorf("GetOrgIDFromName() = %q, %v", oid, ok)
	}
	if _, ok := state.GetOrgIDFromName("Nope"); ok {
		t.Error("expected miss")
	}
}
