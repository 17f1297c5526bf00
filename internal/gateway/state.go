// Package gateway holds the three pieces too tightly coupled to live
// apart: the Gateway State singleton, the Notification Dispatcher that
// drives it from backend events, and the Client Session state machine
// that drives it from line-protocol sockets. The Event
// Loop (loop.go) is the single owner of all State mutation — every
// other goroutine in this package only ever sends events to it.
package gateway

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// State is the process-wide singleton: the domain model, the set of
// connected sessions, and the references needed to act on the backend.
// Every field here is mutated exclusively by the Loop goroutine (see
// loop.go) — no internal locking.
type State struct {
	Name           string // line-protocol server name (origin), host name truncated to 63 bytes
	ShowTimestamps bool

	Organizations   map[domain.OrgID]string
	Channels        map[domain.ChannelID]*domain.Channel
	PendingChannels map[domain.ChannelID]domain.PendingChannel
	Sessions        map[*Session]struct{}

	FlowUsername  string
	FlowAccountID domain.AccountID

	Backend backend.Client
	Log     *slog.Logger
}

// NewState constructs an empty Gateway State bound to a backend client.
func NewState(name string, showTimestamps bool, username string, client backend.Client, log *slog.Logger) *State {
	return &State{
		Name:            name,
		ShowTimestamps:  showTimestamps,
		Organizations:   make(map[domain.OrgID]string),
		Channels:        make(map[domain.ChannelID]*domain.Channel),
		PendingChannels: make(map[domain.ChannelID]domain.PendingChannel),
		Sessions:        make(map[*Session]struct{}),
		FlowUsername:    username,
		Backend:         client,
		Log:             log,
	}
}

// AddChannel inserts ch into Channels, first setting NameCollides by
// scanning existing channels for one that already produces the same
// room name. Invariant: ch.OrgID must already exist in
// Organizations. ch.ID is removed from PendingChannels, keeping the two
// maps disjoint.
func (s *State) AddChannel(ch *domain.Channel) {
	candidate := ch.RoomName(s.FlowAccountID)
	for _, existing := range s.Channels {
		if existing.RoomName(s.FlowAccountID) == candidate {
			ch.NameCollides = true
			break
		}
	}
	s.Channels[ch.ID] = ch
	delete(s.PendingChannels, ch.ID)
}

// GetOrgIDFromName does a linear scan for the first organization with
// the given name; ok is false on miss.
func (s *State) GetOrgIDFromName(name string) (domain.OrgID, bool) {
	for id, n := range s.Organizations {
		if n == name {
			return id, true
		}
	}
	return "", false
}

// GetChannelByRoomName does a linear scan over all channels for one
// whose current room name matches.
func (s *State) GetChannelByRoomName(name string) (*domain.Channel, bool) {
	for _, ch := range s.Channels {
		if ch.RoomName(s.FlowAccountID) == name {
			return ch, true
		}
	}
	return nil, false
}

// GetMemberByNickname does a linear scan over all channels' members for
// the first whose rendered nickname matches.
func (s *State) GetMemberByNickname(nick string) (domain.Member, bool) {
	for _, ch := range s.Channels {
		if m, ok := ch.MemberByNickname(nick); ok {
			return m, true
		}
	}
	return domain.Member{}, false
}

// populateMembers enumerates and attaches a channel's members, resolving
// the local FlowAccountID along the way.
func (s *State) populateMembers(ctx context.Context, ch *domain.Channel) error {
	members, err := s.Backend.EnumerateChannelMembers(ctx, string(ch.ID))
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.EmailAddress == "" || m.AccountID == "" {
			continue
		}
		if m.EmailAddress == s.FlowUsername {
			s.FlowAccountID = domain.AccountID(m.AccountID)
		}
		ch.AddMember(domain.NewMember(m.EmailAddress, domain.AccountID(m.AccountID), ch.OrgName))
	}
	return nil
}

func newChannelFromDescriptor(id domain.ChannelID, name, purpose string, oid domain.OrgID, orgName string) *domain.Channel {
	if purpose == wireformat.DirectMessagePurpose {
		return domain.NewDirectChannel(id, oid, orgName, false)
	}
	return domain.NewChannel(id, name, oid, orgName)
}

// LoadOrgsAndChannels is a full reload: clears Channels and
// Organizations, enumerates orgs, then for each org enumerates channels,
// populating members and running collision detection for each.
func (s *State) LoadOrgsAndChannels(ctx context.Context) error {
	s.Organizations = make(map[domain.OrgID]string)
	s.Channels = make(map[domain.ChannelID]*domain.Channel)

	orgs, err := s.Backend.EnumerateOrgs(ctx)
	if err != nil {
		return err
	}
	for _, o := range orgs {
		if o.ID == "" || o.Name == "" {
			continue
		}
		oid := domain.OrgID(o.ID)
		s.Organizations[oid] = o.Name
		if err := s.loadChannelsForOrg(ctx, oid, o.Name); err != nil {
			s.Log.Debug("EnumerateChannels failed", "org", o.ID, "error", err)
		}
	}
	return nil
}

func (s *State) loadChannelsForOrg(ctx context.Context, oid domain.OrgID, orgName string) error {
	channels, err := s.Backend.EnumerateChannels(ctx, string(oid))
	if err != nil {
		return err
	}
	for _, c := range channels {
		if c.ID == "" {
			continue
		}
		ch := newChannelFromDescriptor(domain.ChannelID(c.ID), c.Name, c.Purpose, oid, orgName)
		if err := s.populateMembers(ctx, ch); err != nil {
			s.Log.Debug("EnumerateChannelMembers failed", "channel", c.ID, "error", err)
		}
		s.AddChannel(ch)
	}
	return nil
}

// CreateDirectChannel creates a direct conversation via the backend and
// wires it into the domain model. The returned channel has
// CreatedInSession set.
func (s *State) CreateDirectChannel(ctx context.Context, accountID domain.AccountID, username string, oid domain.OrgID, orgName string) (*domain.Channel, error) {
	cid, err := s.Backend.NewDirectConversation(ctx, string(oid), string(accountID))
	if err != nil {
		return nil, err
	}
	ch := domain.NewDirectChannel(domain.ChannelID(cid), oid, orgName, true)
	ch.AddMember(domain.NewMember(s.FlowUsername, s.FlowAccountID, orgName))
	ch.AddMember(domain.NewMember(username, accountID, orgName))
	s.AddChannel(ch)
	return ch, nil
}
