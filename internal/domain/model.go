package domain

import "fmt"

// OrgID is the opaque backend identifier for an Organization.
type OrgID string

// ChannelID is the opaque backend identifier for a Channel.
type ChannelID string

// AccountID is the opaque backend identifier for a Member.
type AccountID string

// ChannelKind distinguishes a regular, multi-member channel from a
// two-party Direct channel, which follows its own naming rules.
type ChannelKind int

const (
	KindRegular ChannelKind = iota
	KindDirect
)

func (k ChannelKind) String() string {
	if k == KindDirect {
		return "direct"
	}
	return "regular"
}

// Organization is a backend tenant grouping, identified by OrgID.
type Organization struct {
	ID   OrgID
	Name string
}

// Member represents a single backend account as seen from within one
// channel. The same AccountID may appear as independent Member records
// across multiple channels; they are unified only by AccountID.
type Member struct {
	AccountID AccountID
	Username  string
	OrgName   string

	// Display attributes. Initialized empty; the line protocol carries
	// them in JOIN/WHO/WHOIS replies but the backend has no analogue.
	User     string
	Host     string
	RealName string
}

// NewMember constructs a Member with its display fields left empty.
func NewMember(username string, accountID AccountID, orgName string) Member {
	return Member{
		AccountID: accountID,
		Username:  username,
		OrgName:   orgName,
	}
}

// Nickname is this member's line-protocol nickname:
// "<escape(Username)>(<escape(OrgName)>)".
func (m Member) Nickname() string {
	return MemberNickname(m.Username, m.OrgName)
}

// Channel is a backend conversation, regular or direct, mapped onto a
// line-protocol room.
type Channel struct {
	ID      ChannelID
	OrgID   OrgID
	OrgName string
	Name    string
	Kind    ChannelKind

	// Members is keyed by AccountID; per-channel membership, independent
	// of any other channel's record for the same account.
	Members map[AccountID]Member

	// NameCollides is set by the owning Gateway State when a second
	// regular channel produces the same pre-collision room name as one
	// already present. It has no effect on Direct channels, whose
	// "otherwise" naming form always carries the disambiguating suffix.
	NameCollides bool

	// CreatedInSession is true only for Direct channels created via
	// CreateDirectChannel during the current gateway process lifetime.
	CreatedInSession bool
}

// NewChannel constructs a Regular channel.
func NewChannel(id ChannelID, name string, oid OrgID, orgName string) *Channel {
	return &Channel{
		ID:      id,
		OrgID:   oid,
		OrgName: orgName,
		Name:    name,
		Kind:    KindRegular,
		Members: make(map[AccountID]Member),
	}
}

// NewDirectChannel constructs a Direct channel. createdInSession records
// whether the conversation was initiated from this gateway process (as
// opposed to discovered via a backend notification).
func NewDirectChannel(id ChannelID, oid OrgID, orgName string, createdInSession bool) *Channel {
	return &Channel{
		ID:               id,
		OrgID:            oid,
		OrgName:          orgName,
		Kind:             KindDirect,
		Members:          make(map[AccountID]Member),
		CreatedInSession: createdInSession,
	}
}

// IsDirect reports whether this is a Direct (two-party) channel.
func (c *Channel) IsDirect() bool { return c.Kind == KindDirect }

// AddMember inserts or replaces a member record by AccountID.
func (c *Channel) AddMember(m Member) {
	c.Members[m.AccountID] = m
}

// MemberByAccountID looks up a member of this channel by AccountID.
func (c *Channel) MemberByAccountID(id AccountID) (Member, bool) {
	m, ok := c.Members[id]
	return m, ok
}

// MemberByNickname does a linear scan of this channel's members for one
// whose rendered nickname matches nick.
func (c *Channel) MemberByNickname(nick string) (Member, bool) {
	for _, m := range c.Members {
		if m.Nickname() == nick {
			return m, true
		}
	}
	return Member{}, false
}

// OtherDirectMember returns the member of a Direct channel that is not
// localAccountID. Panics if called on a non-Direct channel, a
// programmer error. The member count is not checked: ok is false when
// no member other than localAccountID is present, and with more than
// two members whichever other member is found first is returned.
func (c *Channel) OtherDirectMember(localAccountID AccountID) (Member, bool) {
	if c.Kind != KindDirect {
		panic("domain: OtherDirectMember called on a non-Direct channel")
	}
	for _, m := range c.Members {
		if m.AccountID != localAccountID {
			return m, true
		}
	}
	return Member{}, false
}

// channelSuffix is the first 5 characters of the ChannelID, used to
// disambiguate colliding room names.
func (c *Channel) channelSuffix() string {
	id := string(c.ID)
	if len(id) > 5 {
		id = id[:5]
	}
	return "-" + id
}

// RoomName computes the bit-exact line-protocol room name for this
// channel, per the naming rules:
//
//   - Regular: "#<escape(Name)>(<escape(OrgName)>)", with the channel
//     suffix appended iff NameCollides.
//   - Direct, created in this session: the other member's nickname,
//     used as a private-message target with no "#" prefix.
//   - Direct, not created in this session: "#<other-nick>(<escape(OrgName)>)"
//     with the channel suffix always appended.
//
// localAccountID is required to resolve the "other member" of a Direct
// channel and is ignored for Regular channels.
func (c *Channel) RoomName(localAccountID AccountID) string {
	if c.Kind == KindDirect {
		other, ok := c.OtherDirectMember(localAccountID)
		if !ok {
			return ""
		}
		if c.CreatedInSession {
			return other.Nickname()
		}
		return fmt.Sprintf("#%s(%s)%s", Escape(other.Username), Escape(c.OrgName), c.channelSuffix())
	}
	suffix := ""
	if c.NameCollides {
		suffix = c.channelSuffix()
	}
	return fmt.Sprintf("#%s(%s)%s", Escape(c.Name), Escape(c.OrgName), suffix)
}

// PendingChannel is a tentative ChannelID -> (OrgID, OrgName) binding
// recorded when a channel notification arrives, ahead of the message
// notification that carries the channel's Name and Kind.
type PendingChannel struct {
	ID      ChannelID
	OrgID   OrgID
	OrgName string
}
