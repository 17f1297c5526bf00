package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/lineproto"
)

type eventKind int

const (
	eventAccept eventKind = iota
	eventData
	eventDisconnect
	eventNotification
)

// loopEvent is the single wire format every goroutine outside the Event
// Loop uses to hand it work. Accept/reader goroutines and the backend
// notification poller all produce these; only the Loop goroutine
// consumes them, which is what keeps State mutation single-threaded
// without any lock.
type loopEvent struct {
	kind    eventKind
	session *Session
	conn    net.Conn
	data    []byte
	reason  string

	notifKind backend.NotificationKind
	notifData []byte
}

// EventLoop is the single-threaded cooperative scheduler: it
// owns every Session's lifecycle and is the only goroutine that ever
// touches State or the Dispatcher.
type EventLoop struct {
	state      *State
	dispatcher *Dispatcher
	client     backend.Client
	log        *slog.Logger

	events  chan loopEvent
	polling bool
	stop    chan struct{}
}

// State returns the loop's Gateway State. Safe to call only after Run
// has returned (or before it has started) — while the loop is running,
// State is owned exclusively by the loop goroutine.
func (l *EventLoop) State() *State {
	return l.state
}

// NewEventLoop wires a loop to its State, Dispatcher, and backend.
func NewEventLoop(state *State, dispatcher *Dispatcher, client backend.Client, log *slog.Logger) *EventLoop {
	return &EventLoop{
		state:      state,
		dispatcher: dispatcher,
		client:     client,
		log:        log,
		events:     make(chan loopEvent, 256),
	}
}

// Run accepts on every listener and serves until ctx is cancelled, then
// tears down every session and terminates the backend.
func (l *EventLoop) Run(ctx context.Context, listeners []net.Listener) {
	for _, ln := range listeners {
		go l.acceptLoop(ctx, ln)
	}

	keepalive := time.NewTicker(10 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case ev := <-l.events:
			l.handleEvent(ctx, ev)
		case <-keepalive.C:
			l.runKeepalive()
		}
	}
}

func (l *EventLoop) acceptLoop(ctx context.Context, ln net.Listener) {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.log.Debug("accept error", "listener", ln.Addr(), "error", err)
			continue
		}
		select {
		case l.events <- loopEvent{kind: eventAccept, conn: conn}:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func (l *EventLoop) handleEvent(ctx context.Context, ev loopEvent) {
	switch ev.kind {
	case eventAccept:
		l.acceptSession(ev.conn)
	case eventData:
		l.handleData(ctx, ev.session, ev.data)
	case eventDisconnect:
		l.disconnect(ev.session, ev.reason)
	case eventNotification:
		l.dispatcher.Dispatch(ctx, ev.notifKind, ev.notifData)
	}
}

func (l *EventLoop) acceptSession(conn net.Conn) {
	sess := newSession(conn)
	l.state.Sessions[sess] = struct{}{}
	go sess.readLoop(l.events)
	go sess.writeLoop()
	l.log.Debug("client connected", "remote", conn.RemoteAddr())
}

func (l *EventLoop) handleData(ctx context.Context, sess *Session, data []byte) {
	if sess.state == handlerDisconnected {
		return
	}
	sess.readBuffer += string(data)
	var lines []string
	lines, sess.readBuffer = lineproto.SplitBuffer(sess.readBuffer)
	for _, line := range lines {
		frame := lineproto.ParseLine(line)
		if frame.Command == "" {
			continue
		}
		sess.lastActivity = time.Now()
		sess.sentPing = false
		l.handleFrame(ctx, sess, frame)
	}
}

func (l *EventLoop) disconnect(sess *Session, reason string) {
	if sess.state == handlerDisconnected {
		return
	}
	sess.state = handlerDisconnected
	if reason != "" {
		sess.send("ERROR :" + reason)
	}
	delete(l.state.Sessions, sess)
	sess.closeWrite()
	sess.conn.Close()
	l.log.Debug("client disconnected", "reason", reason)
	if len(l.state.Sessions) == 0 {
		l.stopNotificationPoll()
	}
}

func (l *EventLoop) runKeepalive() {
	now := time.Now()
	for sess := range l.state.Sessions {
		switch {
		case now.Sub(sess.lastActivity) > 180*time.Second:
			l.disconnect(sess, "ping timeout")
		case !sess.sentPing && sess.state == handlerCommands && now.Sub(sess.lastActivity) > 90*time.Second:
			sess.send(fmt.Sprintf("PING :%s", l.state.Name))
			sess.sentPing = true
		}
	}
}

// startNotificationPoll begins polling the backend only once a client
// is registered. Idempotent.
func (l *EventLoop) startNotificationPoll(ctx context.Context) {
	if l.polling {
		return
	}
	l.polling = true
	l.stop = make(chan struct{})
	l.dispatcher.registerCallbacks(l.client, l.events)
	go l.pollNotifications(ctx, l.stop)
}

func (l *EventLoop) stopNotificationPoll() {
	if !l.polling {
		return
	}
	l.polling = false
	close(l.stop)
	l.dispatcher.unregisterCallbacks(l.client)
}

func (l *EventLoop) pollNotifications(ctx context.Context, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if _, err := l.client.ProcessOneNotification(ctx, 50*time.Millisecond); err != nil {
			l.log.Debug("ProcessOneNotification", "error", err)
		}
	}
}

func (l *EventLoop) shutdown() {
	for sess := range l.state.Sessions {
		l.disconnect(sess, "server shutting down")
	}
	if err := l.client.Terminate(); err != nil {
		l.log.Debug("Terminate", "error", err)
	}
}

// --- Command dispatch ---

func (l *EventLoop) handleFrame(ctx context.Context, sess *Session, frame lineproto.Frame) {
	if sess.state == handlerRegistration {
		l.handleRegistrationFrame(ctx, sess, frame)
		return
	}
	l.handleCommandFrame(ctx, sess, frame)
}

func (l *EventLoop) handleRegistrationFrame(ctx context.Context, sess *Session, frame lineproto.Frame) {
	switch frame.Command {
	case "NICK":
		sess.gotNick = true
	case "USER":
		sess.gotUser = true
	case "QUIT":
		l.disconnect(sess, "quit")
		return
	default:
		return
	}
	if sess.gotNick && sess.gotUser {
		l.completeRegistration(ctx, sess)
	}
}

// completeRegistration runs the registration sequence: a full reload,
// the welcome burst (whose counts and MOTD listing reflect that reload),
// the self-NICK anchor, channel joins, history replay, then the
// transition to Commands. The client-supplied nick/user are
// discarded in favor of the backend identity.
func (l *EventLoop) completeRegistration(ctx context.Context, sess *Session) {
	nick := l.state.FlowUsername
	sess.nickname = nick
	sess.user = nick
	sess.realName = nick

	if err := l.state.LoadOrgsAndChannels(ctx); err != nil {
		l.log.Debug("LoadOrgsAndChannels", "error", err)
	}

	sess.sendAll(welcomeLines(l.state.Name, nick, l.state))
	sess.send(lineproto.Prefixed(nick, sess.user, sess.host, "NICK", ":"+nick))

	for _, ch := range l.state.Channels {
		sess.sendAll(joinLines(ch, l.state.FlowAccountID, nick, sess.user, sess.host))
	}
	for _, ch := range l.state.Channels {
		l.replayHistory(ctx, sess, ch)
	}

	sess.state = handlerCommands
	l.startNotificationPoll(ctx)
}

// replayHistory emits a channel's message history oldest-first; the
// backend yields newest-first.
func (l *EventLoop) replayHistory(ctx context.Context, sess *Session, ch *domain.Channel) {
	msgs, err := l.client.EnumerateMessages(ctx, string(ch.OrgID), string(ch.ID), backend.MessageFilters{})
	if err != nil {
		l.log.Debug("EnumerateMessages", "channel", ch.ID, "error", err)
		return
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreationTime < msgs[j].CreationTime })

	room := ch.RoomName(l.state.FlowAccountID)
	for _, m := range msgs {
		sender, ok := ch.MemberByAccountID(domain.AccountID(m.SenderAccountID))
		if !ok {
			continue
		}
		text := escapeMessageText(m.Text)
		if l.state.ShowTimestamps {
			text = formatTimestamp(m.CreationTime) + " " + text
		}
		sess.send(lineproto.Prefixed(sender.Nickname(), sender.User, sender.Host, "PRIVMSG", room+" :"+text))
	}
}

func (l *EventLoop) handleCommandFrame(ctx context.Context, sess *Session, frame lineproto.Frame) {
	switch frame.Command {
	case "AWAY", "ISON", "JOIN", "NICK", "PART", "TOPIC":
		// No-op: membership and identity are driven exclusively by the backend.
	case "LIST":
		var filter string
		if len(frame.Args) > 0 {
			filter = frame.Args[0]
		}
		sess.sendAll(listLines(l.state.Name, sess.nickname, l.state, filter))
	case "LUSERS":
		sess.send(lusersLine(l.state.Name, sess.nickname, l.state))
	case "MODE":
		l.handleMode(sess, frame)
	case "MOTD":
		sess.sendAll(motdLines(l.state.Name, sess.nickname, l.state))
	case "PING":
		l.handlePing(sess, frame)
	case "PONG":
		// last-activity and sent_ping already cleared in handleData.
	case "QUIT":
		reason := sess.nickname
		if len(frame.Args) > 0 {
			reason = frame.Args[0]
		}
		l.disconnect(sess, reason)
	case "WHO":
		l.handleWho(sess, frame)
	case "WHOIS":
		l.handleWhois(sess, frame)
	case "PRIVMSG", "NOTICE":
		l.handlePrivmsg(ctx, sess, frame)
	default:
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_UNKNOWNCOMMAND, fmt.Sprintf("%s %s :Unknown command", sess.nickname, frame.Command)))
	}
}

func (l *EventLoop) handleMode(sess *Session, frame lineproto.Frame) {
	if len(frame.Args) == 0 {
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NEEDMOREPARAMS, sess.nickname+" MODE :Not enough parameters"))
		return
	}
	sess.send(lineproto.Reply(l.state.Name, lineproto.RPL_CHANNELMODEIS, fmt.Sprintf("%s %s", sess.nickname, frame.Args[0])))
}

func (l *EventLoop) handlePing(sess *Session, frame lineproto.Frame) {
	if len(frame.Args) == 0 {
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NOORIGIN, sess.nickname+" :No origin specified"))
		return
	}
	sess.send(fmt.Sprintf("PONG %s :%s", l.state.Name, frame.Args[0]))
}

// handleWho replies to a WHO command. A bare WHO with no channel
// argument gets no reply at all, not RFC 2812's ERR_NEEDMOREPARAMS.
func (l *EventLoop) handleWho(sess *Session, frame lineproto.Frame) {
	if len(frame.Args) == 0 {
		return
	}
	ch, ok := l.state.GetChannelByRoomName(frame.Args[0])
	if !ok {
		sess.send(lineproto.Reply(l.state.Name, lineproto.RPL_ENDOFWHO, sess.nickname+" "+frame.Args[0]+" :End of /WHO list"))
		return
	}
	sess.sendAll(whoLines(l.state.Name, sess.nickname, l.state, ch))
}

// handleWhois replies to a WHOIS command. A bare WHOIS with no target
// argument gets no reply at all, not RFC 2812's ERR_NEEDMOREPARAMS.
func (l *EventLoop) handleWhois(sess *Session, frame lineproto.Frame) {
	if len(frame.Args) == 0 {
		return
	}
	target := frame.Args[0]
	member, ok := l.state.GetMemberByNickname(target)
	if !ok {
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NOSUCHNICK, sess.nickname+" "+target+" :No such nick/channel"))
		return
	}
	sess.sendAll(whoisLines(l.state.Name, sess.nickname, l.state, member))
}

func (l *EventLoop) handlePrivmsg(ctx context.Context, sess *Session, frame lineproto.Frame) {
	if len(frame.Args) == 0 {
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NORECIPIENT, sess.nickname+" :No recipient given"))
		return
	}
	if len(frame.Args) == 1 {
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NOTEXTTOSEND, sess.nickname+" :No text to send"))
		return
	}
	target, text := frame.Args[0], frame.Args[1]

	if ch, ok := l.state.GetChannelByRoomName(target); ok {
		l.sendToChannel(ctx, ch, text)
		return
	}

	ch, err := l.resolveDirectTarget(ctx, target)
	if err != nil {
		l.log.Debug("resolveDirectTarget", "target", target, "error", err)
		sess.send(lineproto.Reply(l.state.Name, lineproto.ERR_NOSUCHNICK, sess.nickname+" "+target+" :No such nick/channel"))
		return
	}
	l.sendToChannel(ctx, ch, text)
}

func (l *EventLoop) sendToChannel(ctx context.Context, ch *domain.Channel, text string) {
	if _, err := l.client.SendMessage(ctx, string(ch.OrgID), string(ch.ID), text, nil); err != nil {
		l.log.Debug("SendMessage", "channel", ch.ID, "error", err)
	}
}

// resolveDirectTarget implements the PRIVMSG/NOTICE fallback path:
// parse "<user>(<org>)", locate a known member by nickname
// first, otherwise resolve via GetPeer; then create the conversation.
// A second PRIVMSG to the same target resolves through
// GetChannelByRoomName instead (the created channel's own room name
// equals the target), so this path never runs twice for one peer.
func (l *EventLoop) resolveDirectTarget(ctx context.Context, target string) (*domain.Channel, error) {
	username, orgName, ok := domain.ParseNickname(target)
	if !ok {
		return nil, fmt.Errorf("%q is not a valid direct-message target", target)
	}

	var accountID domain.AccountID
	if member, found := l.state.GetMemberByNickname(target); found {
		if member.AccountID == l.state.FlowAccountID {
			return nil, fmt.Errorf("cannot direct-message self")
		}
		accountID = member.AccountID
		username = member.Username
	} else {
		peer, err := l.client.GetPeer(ctx, username)
		if err != nil {
			return nil, err
		}
		accountID = domain.AccountID(peer.AccountID)
		username = peer.Username
	}

	oid, ok := l.state.GetOrgIDFromName(orgName)
	if !ok {
		return nil, fmt.Errorf("unknown org %q", orgName)
	}
	return l.state.CreateDirectChannel(ctx, accountID, username, oid, orgName)
}
