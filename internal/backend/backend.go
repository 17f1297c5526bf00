// Package backend is the typed wrapper over the messaging-service RPC
// transport: an external collaborator specified only by its
// contract. Every call either succeeds or returns an *Error; the
// notification subscription is polled rather than blocking, so the
// gateway's event loop stays in control of scheduling.
package backend

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// NotificationKind identifies one of the four notification streams the
// backend can push.
type NotificationKind string

const (
	OrgNotification           NotificationKind = wireformat.KindOrg
	ChannelNotification       NotificationKind = wireformat.KindChannel
	MessageNotification       NotificationKind = wireformat.KindMessage
	ChannelMemberNotification NotificationKind = wireformat.KindChannelMember
)

// MessageFilters narrows an EnumerateMessages call. All zero values
// mean "no filter" (return everything the backend will give us).
type MessageFilters struct {
	Limit int
}

// Client is the contract the gateway depends on. The production
// implementation (HTTPClient) talks JSON-RPC over loopback HTTP; tests
// substitute a fake that implements the same interface.
type Client interface {
	Config(ctx context.Context, host, port, dbDir, schemaDir, attachmentDir string, useTLS bool) error
	StartUp(ctx context.Context, username, serverURI string) error
	EnumerateLocalAccounts(ctx context.Context) ([]wireformat.AccountIdentifier, error)
	EnumerateOrgs(ctx context.Context) ([]wireformat.Org, error)
	EnumerateChannels(ctx context.Context, orgID string) ([]wireformat.Channel, error)
	EnumerateChannelMembers(ctx context.Context, channelID string) ([]wireformat.Member, error)
	EnumerateMessages(ctx context.Context, orgID, channelID string, filters MessageFilters) ([]wireformat.Message, error)
	GetChannel(ctx context.Context, channelID string) (wireformat.Channel, error)
	GetPeer(ctx context.Context, username string) (wireformat.Peer, error)
	SendMessage(ctx context.Context, orgID, channelID, text string, otherData map[string]interface{}) (string, error)
	NewDirectConversation(ctx context.Context, orgID, memberAccountID string) (string, error)

	// RegisterCallback/UnregisterCallback subscribe/unsubscribe a
	// notification kind. Only one handler per kind is kept, matching
	// the backend's own register/unregister contract.
	RegisterCallback(kind NotificationKind, handler func(data []byte))
	UnregisterCallback(kind NotificationKind)

	// ProcessOneNotification blocks for up to timeout waiting for a
	// single notification; if one arrives it is routed to its
	// registered handler (if any) and true is returned. False means
	// the wait timed out with nothing pending.
	ProcessOneNotification(ctx context.Context, timeout time.Duration) (bool, error)

	Terminate() error
}
