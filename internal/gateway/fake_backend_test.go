package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// fakeClient is a scriptable backend.Client used across this package's
// tests. Every method reads from a field the test populates up front,
// except RegisterCallback/UnregisterCallback which behave like the real
// client (one handler per kind, invokable via fire).
type fakeClient struct {
	mu sync.Mutex

	orgs              []wireformat.Org
	channelsByOrg     map[string][]wireformat.Channel
	membersByChannel  map[string][]wireformat.Member
	messagesByChannel map[string][]wireformat.Message
	peers             map[string]wireformat.Peer
	newDirectCID      string

	sendMessageErr error
	sentMessages   []sentMessage

	handlers map[backend.NotificationKind]func(data []byte)
}

type sentMessage struct {
	orgID, channelID, text string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		channelsByOrg:     make(map[string][]wireformat.Channel),
		membersByChannel:  make(map[string][]wireformat.Member),
		messagesByChannel: make(map[string][]wireformat.Message),
		peers:             make(map[string]wireformat.Peer),
		handlers:          make(map[backend.NotificationKind]func(data []byte)),
	}
}

func (f *fakeClient) Config(ctx context.Context, host, port, dbDir, schemaDir, attachmentDir string, useTLS bool) error {
	return nil
}
func (f *fakeClient) StartUp(ctx context.Context, username, serverURI string) error { return nil }
func (f *fakeClient) EnumerateLocalAccounts(ctx context.Context) ([]wireformat.AccountIdentifier, error) {
	return nil, nil
}
func (f *fakeClient) EnumerateOrgs(ctx context.Context) ([]wireformat.Org, error) { return f.orgs, nil }
func (f *fakeClient) EnumerateChannels(ctx context.Context, orgID string) ([]wireformat.Channel, error) {
	return f.channelsByOrg[orgID], nil
}
func (f *fakeClient) EnumerateChannelMembers(ctx context.Context, channelID string) ([]wireformat.Member, error) {
	return f.membersByChannel[channelID], nil
}
func (f *fakeClient) EnumerateMessages(ctx context.Context, orgID, channelID string, filters backend.MessageFilters) ([]wireformat.Message, error) {
	return f.messagesByChannel[channelID], nil
}
func (f *fakeClient) GetChannel(ctx context.Context, channelID string) (wireformat.Channel, error) {
	return wireformat.Channel{}, nil
}
func (f *fakeClient) GetPeer(ctx context.Context, username string) (wireformat.Peer, error) {
	p, ok := f.peers[username]
	if !ok {
		return wireformat.Peer{}, &backend.Error{Op: "GetPeer", Reason: "not found"}
	}
	return p, nil
}
func (f *fakeClient) SendMessage(ctx context.Context, orgID, channelID, text string, otherData map[string]interface{}) (string, error) {
	if f.sendMessageErr != nil {
		return "", f.sendMessageErr
	}
	f.sentMessages = append(f.sentMessages, sentMessage{orgID, channelID, text})
	return "M1", nil
}
func (f *fakeClient) NewDirectConversation(ctx context.Context, orgID, memberAccountID string) (string, error) {
	return f.newDirectCID, nil
}

func (f *fakeClient) RegisterCallback(kind backend.NotificationKind, handler func(data []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = handler
}
func (f *fakeClient) UnregisterCallback(kind backend.NotificationKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, kind)
}
func (f *fakeClient) ProcessOneNotification(ctx context.Context, timeout time.Duration) (bool, error) {
	<-ctx.Done()
	return false, nil
}
func (f *fakeClient) Terminate() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
