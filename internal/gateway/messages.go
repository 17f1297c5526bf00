package gateway

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/lineproto"
)

// sortedChannels returns state's channels ordered by rendered room name,
// the order both MOTD and LIST present them in.
func sortedChannels(state *State) []*domain.Channel {
	chans := make([]*domain.Channel, 0, len(state.Channels))
	for _, ch := range state.Channels {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool {
		return chans[i].RoomName(state.FlowAccountID) < chans[j].RoomName(state.FlowAccountID)
	})
	return chans
}

// joinLines renders the self-JOIN (using the receiving identity's own
// nick/user/host) followed by one JOIN per other member of ch: self
// first, then the rest.
func joinLines(ch *domain.Channel, localAccountID domain.AccountID, nickname, user, host string) []string {
	room := ch.RoomName(localAccountID)
	lines := []string{lineproto.Prefixed(nickname, user, host, "JOIN", ":"+room)}
	for _, m := range ch.Members {
		if m.AccountID == localAccountID {
			continue
		}
		lines = append(lines, lineproto.Prefixed(m.Nickname(), m.User, m.Host, "JOIN", ":"+room))
	}
	return lines
}

// formatTimestamp renders a backend CreationTime (microseconds since
// epoch) as "[2006-01-02 15:04:05]" in local time, the form a
// show-timestamps client expects prefixed onto message text.
func formatTimestamp(creationTimeMicros int64) string {
	t := time.UnixMicro(creationTimeMicros)
	return t.Local().Format("[2006-01-02 15:04:05]")
}

// escapeMessageText neutralizes embedded newlines, which would
// otherwise be indistinguishable from a frame boundary.
func escapeMessageText(text string) string {
	return strings.ReplaceAll(text, "\n", `\n`)
}

// lusersLine renders the "251" org/channel count reply used both at
// registration and on an explicit LUSERS.
func lusersLine(origin, nick string, state *State) string {
	return lineproto.Reply(origin, lineproto.RPL_LUSERCLIENT,
		fmt.Sprintf("%s :There are %d orgs and %d channels", nick, len(state.Organizations), len(state.Channels)))
}

// motdBodyLines renders the per-org channel listing the MOTD carries:
// each channel's room name and member count, direct channels annotated
// "[direct conversation]". Room names are padded to the widest
// name in their org (by display width, not byte length, so CJK/emoji
// names still line up in a real terminal client).
func motdBodyLines(state *State) []string {
	orgIDs := make([]domain.OrgID, 0, len(state.Organizations))
	for oid := range state.Organizations {
		orgIDs = append(orgIDs, oid)
	}
	sort.Slice(orgIDs, func(i, j int) bool { return state.Organizations[orgIDs[i]] < state.Organizations[orgIDs[j]] })

	lines := []string{"Welcome to the line-protocol gateway."}
	for _, oid := range orgIDs {
		orgName := state.Organizations[oid]
		lines = append(lines, orgName+":")

		var orgChannels []*domain.Channel
		width := 0
		for _, ch := range sortedChannels(state) {
			if ch.OrgID != oid {
				continue
			}
			orgChannels = append(orgChannels, ch)
			if w := runewidth.StringWidth(ch.RoomName(state.FlowAccountID)); w > width {
				width = w
			}
		}

		for _, ch := range orgChannels {
			room := runewidth.FillRight(ch.RoomName(state.FlowAccountID), width)
			entry := fmt.Sprintf("  %s (%d members)", room, len(ch.Members))
			if ch.IsDirect() {
				entry += " [direct conversation]"
			}
			lines = append(lines, entry)
		}
	}
	return lines
}

// motdLines renders a MOTD block (RPL_MOTDSTART...RPL_MOTD.../RPL_ENDOFMOTD).
func motdLines(origin, nick string, state *State) []string {
	lines := []string{lineproto.Reply(origin, lineproto.RPL_MOTDSTART, fmt.Sprintf("%s :- %s Message of the day -", nick, origin))}
	for _, body := range motdBodyLines(state) {
		lines = append(lines, lineproto.Reply(origin, lineproto.RPL_MOTD, nick+" :"+body))
	}
	lines = append(lines, lineproto.Reply(origin, lineproto.RPL_ENDOFMOTD, nick+" :End of /MOTD command"))
	return lines
}

// welcomeLines renders the full registration burst:
// RPL_WELCOME, RPL_YOURHOST, RPL_LUSERCLIENT, then the MOTD block.
func welcomeLines(origin, nick string, state *State) []string {
	lines := []string{
		lineproto.Reply(origin, lineproto.RPL_WELCOME, fmt.Sprintf("%s :Welcome to the line-protocol gateway, %s", nick, nick)),
		lineproto.Reply(origin, lineproto.RPL_YOURHOST, fmt.Sprintf("%s :Your host is %s", nick, origin)),
		lusersLine(origin, nick, state),
	}
	return append(lines, motdLines(origin, nick, state)...)
}

// listLines renders a LIST reply: one RPL_LIST per channel in
// room-name order, then RPL_LISTEND. When filter is non-empty it names
// a comma-separated set of room names to restrict the listing to;
// unknown names are skipped silently rather than producing an error
// reply.
func listLines(origin, nick string, state *State, filter string) []string {
	var want map[string]bool
	if filter != "" {
		want = make(map[string]bool)
		for _, name := range strings.Split(filter, ",") {
			want[name] = true
		}
	}

	var lines []string
	for _, ch := range sortedChannels(state) {
		room := ch.RoomName(state.FlowAccountID)
		if want != nil && !want[room] {
			continue
		}
		lines = append(lines, lineproto.Reply(origin, lineproto.RPL_LIST, fmt.Sprintf("%s %s %d :", nick, room, len(ch.Members))))
	}
	lines = append(lines, lineproto.Reply(origin, lineproto.RPL_LISTEND, nick+" :End of /LIST"))
	return lines
}

// whoLines renders a WHO reply for one channel's members.
func whoLines(origin, nick string, state *State, ch *domain.Channel) []string {
	room := ch.RoomName(state.FlowAccountID)
	var lines []string
	for _, m := range ch.Members {
		lines = append(lines, lineproto.Reply(origin, lineproto.RPL_WHOREPLY,
			fmt.Sprintf("%s %s %s %s %s %s H :0 %s", nick, room, m.Username, m.Host, origin, m.Nickname(), m.RealName)))
	}
	lines = append(lines, lineproto.Reply(origin, lineproto.RPL_ENDOFWHO, nick+" "+room+" :End of /WHO list"))
	return lines
}

// whoisLines renders a WHOIS reply for a single resolved member.
func whoisLines(origin, nick string, state *State, m domain.Member) []string {
	return []string{
		lineproto.Reply(origin, lineproto.RPL_WHOISUSER, fmt.Sprintf("%s %s %s %s * :%s", nick, m.Nickname(), m.Username, m.Host, m.RealName)),
		lineproto.Reply(origin, lineproto.RPL_WHOISSERVER, fmt.Sprintf("%s %s %s :%s", nick, m.Nickname(), origin, origin)),
		lineproto.Reply(origin, lineproto.RPL_ENDOFWHOIS, nick+" "+m.Nickname()+" :End of /WHOIS list"),
	}
}
