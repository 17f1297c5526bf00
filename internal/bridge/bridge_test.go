package bridge

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// accountsClient stubs just the account enumeration; the embedded
// interface panics on anything else, which no test here reaches.
type accountsClient struct {
	backend.Client
	accounts []wireformat.AccountIdentifier
	err      error
}

func (c *accountsClient) EnumerateLocalAccounts(ctx context.Context) ([]wireformat.AccountIdentifier, error) {
	return c.accounts, c.err
}

func TestDefaultLocalUsernamePicksFirstAccount(t *testing.T) {
	client := &accountsClient{accounts: []wireformat.AccountIdentifier{
		{EmailAddress: ""},
		{EmailAddress: "alice@x"},
		{EmailAddress: "bob@x"},
	}}
	got, err := defaultLocalUsername(context.Background(), client)
	if err != nil {
		t.Fatalf("defaultLocalUsername() error = %v", err)
	}
	if got != "alice@x" {
		t.Errorf("defaultLocalUsername() = %q, want alice@x", got)
	}
}

func TestDefaultLocalUsernameNoAccounts(t *testing.T) {
	if _, err := defaultLocalUsername(context.Background(), &accountsClient{}); err == nil {
		t.Error("expected error when the backend has no local accounts")
	}
	failing := &accountsClient{err: &backend.Error{Op: "EnumerateLocalAccounts", Reason: "boom"}}
	if _, err := defaultLocalUsername(context.Background(), failing); err == nil {
		t.Error("expected enumeration error to propagate")
	}
}

func TestGatewayNameTruncatesTo63Bytes(t *testing.T) {
	name := gatewayName()
	if len(name) > maxGatewayNameBytes {
		t.Fatalf("gatewayName() = %d bytes, want <= %d", len(name), maxGatewayNameBytes)
	}
	if name == "" {
		t.Fatal("gatewayName() returned empty string")
	}
}
