package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/lineproto"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/telemetry"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// Dispatcher consumes backend notifications and is the only source of
// backend-driven emissions to clients. Each of its four handlers
// runs to completion before the next notification is processed, since
// both are only ever invoked from the Event Loop goroutine.
type Dispatcher struct {
	state   *State
	backend backend.Client
	log     *slog.Logger
}

// NewDispatcher binds a Dispatcher to the State it mutates and the
// backend it reads from for follow-up enumeration calls.
func NewDispatcher(state *State, client backend.Client, log *slog.Logger) *Dispatcher {
	return &Dispatcher{state: state, backend: client, log: log}
}

// registerCallbacks subscribes all four notification kinds. Each
// handler only forwards the raw payload onto events — it never touches
// State itself, since it runs on the notification-poller goroutine, not
// the Event Loop.
func (d *Dispatcher) registerCallbacks(client backend.Client, events chan<- loopEvent) {
	for _, kind := range []backend.NotificationKind{
		backend.OrgNotification,
		backend.ChannelNotification,
		backend.MessageNotification,
		backend.ChannelMemberNotification,
	} {
		kind := kind
		client.RegisterCallback(kind, func(data []byte) {
			events <- loopEvent{kind: eventNotification, notifKind: kind, notifData: data}
		})
	}
}

func (d *Dispatcher) unregisterCallbacks(client backend.Client) {
	client.UnregisterCallback(backend.OrgNotification)
	client.UnregisterCallback(backend.ChannelNotification)
	client.UnregisterCallback(backend.MessageNotification)
	client.UnregisterCallback(backend.ChannelMemberNotification)
}

// Dispatch routes one already-decoded notification payload to its
// handler. Called exclusively from the Event Loop goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, kind backend.NotificationKind, data []byte) {
	ctx, span := telemetry.StartSpan(ctx, "dispatcher.dispatch", attribute.String("notification.kind", string(kind)))
	defer span.End()

	switch kind {
	case backend.OrgNotification:
		d.handleOrg(ctx, data)
	case backend.ChannelNotification:
		d.handleChannel(data)
	case backend.MessageNotification:
		d.handleMessage(ctx, data)
	case backend.ChannelMemberNotification:
		d.handleChannelMember(ctx, data)
	default:
		d.log.Debug("unknown notification kind", "kind", kind)
	}
}

func (d *Dispatcher) broadcast(line string) {
	for sess := range d.state.Sessions {
		sess.send(line)
	}
}

func (d *Dispatcher) broadcastJoin(ch *domain.Channel) {
	for sess := range d.state.Sessions {
		sess.sendAll(joinLines(ch, d.state.FlowAccountID, sess.nickname, sess.user, sess.host))
	}
}

// handleOrg processes an org notification: upsert each org, then
// enumerate and fully materialize its channels.
func (d *Dispatcher) handleOrg(ctx context.Context, data []byte) {
	var orgs []wireformat.Org
	if err := json.Unmarshal(data, &orgs); err != nil {
		d.log.Debug("org notification: decode", "error", err)
		return
	}
	for _, o := range orgs {
		if o.ID == "" || o.Name == "" {
			d.log.Debug("org notification: missing fields", "org", o)
			continue
		}
		oid := domain.OrgID(o.ID)
		d.state.Organizations[oid] = o.Name

		channels, err := d.backend.EnumerateChannels(ctx, o.ID)
		if err != nil {
			d.log.Debug("EnumerateChannels", "org", o.ID, "error", err)
			continue
		}
		for _, c := range channels {
			if c.ID == "" {
				continue
			}
			if _, exists := d.state.Channels[domain.ChannelID(c.ID)]; exists {
				continue
			}
			ch := newChannelFromDescriptor(domain.ChannelID(c.ID), c.Name, c.Purpose, oid, o.Name)
			if err := d.state.populateMembers(ctx, ch); err != nil {
				d.log.Debug("EnumerateChannelMembers", "channel", c.ID, "error", err)
			}
			d.state.AddChannel(ch)
			d.broadcastJoin(ch)
		}
	}
}

// handleChannel processes a channel notification: record a tentative
// PendingChannel binding, never emitting anything to clients yet.
func (d *Dispatcher) handleChannel(data []byte) {
	var refs []wireformat.ChannelRef
	if err := json.Unmarshal(data, &refs); err != nil {
		d.log.Debug("channel notification: decode", "error", err)
		return
	}
	for _, r := range refs {
		if r.ID == "" || r.OrgID == "" {
			d.log.Debug("channel notification: missing fields", "ref", r)
			continue
		}
		cid := domain.ChannelID(r.ID)
		oid := domain.OrgID(r.OrgID)
		if _, known := d.state.Channels[cid]; known {
			continue
		}
		if _, known := d.state.PendingChannels[cid]; known {
			continue
		}
		orgName, ok := d.state.Organizations[oid]
		if !ok {
			d.log.Debug("channel notification: unknown org", "org", r.OrgID)
			continue
		}
		d.state.PendingChannels[cid] = domain.PendingChannel{ID: cid, OrgID: oid, OrgName: orgName}
		d.log.Debug("channel pending", "channel", r.ID, "org", r.OrgID, "correlation", uuid.NewString())
	}
}

// handleMessage processes a message notification: materializes any
// pending channels named in ChannelMessages, then emits PRIVMSG frames
// for RegularMessages.
func (d *Dispatcher) handleMessage(ctx context.Context, data []byte) {
	var msg wireformat.MessageNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		d.log.Debug("message notification: decode", "error", err)
		return
	}
	for _, cm := range msg.ChannelMessages {
		d.materializeChannel(ctx, cm)
	}
	for _, rm := range msg.RegularMessages {
		d.emitRegularMessage(rm)
	}
}

func (d *Dispatcher) materializeChannel(ctx context.Context, cm wireformat.ChannelDescriptor) {
	if cm.ID == "" {
		d.log.Debug("message notification: missing channel id")
		return
	}
	cid := domain.ChannelID(cm.ID)
	pending, ok := d.state.PendingChannels[cid]
	if !ok {
		// Already materialized (e.g. an in-session NewDirectConversation).
		return
	}
	name, purpose := cm.Name, cm.Purpose
	if name == "" {
		full, err := d.backend.GetChannel(ctx, cm.ID)
		if err != nil {
			d.log.Debug("GetChannel", "channel", cm.ID, "error", err)
		} else {
			name, purpose = full.Name, full.Purpose
		}
	}
	ch := newChannelFromDescriptor(cid, name, purpose, pending.OrgID, pending.OrgName)
	if err := d.state.populateMembers(ctx, ch); err != nil {
		d.log.Debug("EnumerateChannelMembers", "channel", cm.ID, "error", err)
	}
	d.state.AddChannel(ch)
	d.broadcastJoin(ch)
}

func (d *Dispatcher) emitRegularMessage(rm wireformat.RegularMessage) {
	if rm.SenderAccountID == "" || rm.ChannelID == "" {
		d.log.Debug("regular message: missing fields", "message", rm)
		return
	}
	ch, ok := d.state.Channels[domain.ChannelID(rm.ChannelID)]
	if !ok {
		// May arrive ahead of the channel notification; drop rather
		// than fabricate a pending entry from a message alone.
		return
	}
	sender, ok := ch.MemberByAccountID(domain.AccountID(rm.SenderAccountID))
	if !ok {
		d.log.Debug("regular message: unknown sender", "account", rm.SenderAccountID, "channel", rm.ChannelID)
		return
	}
	text := escapeMessageText(rm.Text)
	if d.state.ShowTimestamps {
		text = formatTimestamp(rm.CreationTime) + " " + text
	}
	room := ch.RoomName(d.state.FlowAccountID)
	line := lineproto.Prefixed(sender.Nickname(), sender.User, sender.Host, "PRIVMSG", room+" :"+text)
	d.broadcast(line)
}

// handleChannelMember processes a channel-member-event notification:
// resolve the new member's username and emit a JOIN for it.
func (d *Dispatcher) handleChannelMember(ctx context.Context, data []byte) {
	var events []wireformat.ChannelMemberEvent
	if err := json.Unmarshal(data, &events); err != nil {
		d.log.Debug("channel-member-event: decode", "error", err)
		return
	}
	for _, e := range events {
		if e.ChannelID == "" || e.AccountID == "" {
			d.log.Debug("channel-member-event: missing fields", "event", e)
			continue
		}
		ch, ok := d.state.Channels[domain.ChannelID(e.ChannelID)]
		if !ok {
			continue
		}
		if _, already := ch.MemberByAccountID(domain.AccountID(e.AccountID)); already {
			continue
		}
		username, err := d.resolveUsername(ctx, ch, e.AccountID)
		if err != nil {
			d.log.Debug("channel-member-event: resolve username", "account", e.AccountID, "error", err)
			continue
		}
		member := domain.NewMember(username, domain.AccountID(e.AccountID), ch.OrgName)
		ch.AddMember(member)
		room := ch.RoomName(d.state.FlowAccountID)
		d.broadcast(lineproto.Prefixed(member.Nickname(), member.User, member.Host, "JOIN", ":"+room))
	}
}

// resolveUsername maps an AccountID to a Username. The backend exposes
// no direct reverse lookup, so this re-enumerates the channel's members
// and matches by AccountID.
func (d *Dispatcher) resolveUsername(ctx context.Context, ch *domain.Channel, accountID string) (string, error) {
	members, err := d.backend.EnumerateChannelMembers(ctx, string(ch.ID))
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.AccountID == accountID {
			return m.EmailAddress, nil
		}
	}
	return "", &InvariantViolation{Detail: "account " + accountID + " not found in channel " + string(ch.ID)}
}
