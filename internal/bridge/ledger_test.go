package bridge

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/gateway"
)

func TestLedgerRoundTrip(t *testing.T) {
	ledger, err := OpenLedger(":memory:")
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer ledger.Close()

	state := gateway.NewState("gw.local", false, "alice@x", nil, nil)
	ch := domain.NewChannel("C1", "general", "O1", "Acme")
	ch.NameCollides = true
	state.Channels[ch.ID] = ch

	ctx := context.Background()
	if err := ledger.Persist(ctx, state); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	fresh := gateway.NewState("gw.local", false, "alice@x", nil, nil)
	fresh.Channels[ch.ID] = domain.NewChannel("C1", "general", "O1", "Acme")
	if err := ledger.Restore(ctx, fresh); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !fresh.Channels[ch.ID].NameCollides {
		t.Error("expected NameCollides restored from ledger")
	}
}
