package events

import (
	"math/big"
	"testing"

	"yieldredirect/crypto"
)

func TestBufferCollectsInOrder(t *testing.T) {
	var buf Buffer
	account := crypto.ModuleAddress("alice")
	buf.Emit(VaultDeposited{Account: account, Amount: big.NewInt(5), Principal: big.NewInt(5), TotalDeposited: big.NewInt(5)})
	buf.Emit(RewardsClaimed{Account: account, Token: "usdc", Amount: big.NewInt(2)})
	got := buf.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeVaultDeposited || got[1].Type != TypeRewardsClaimed {
		t.Fatalf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].Attributes["token"] != "USDC" {
		t.Fatalf("token not normalised: %s", got[1].Attributes["token"])
	}
	buf.Reset()
	if len(buf.Events()) != 0 {
		t.Fatalf("reset did not clear buffer")
	}
}

func TestWithdrawnEventTypeTracksEmergency(t *testing.T) {
	evt := VaultWithdrawn{Amount: big.NewInt(1), Emergency: true}
	if evt.Event().Type != TypeVaultEmergencyWithdrawn {
		t.Fatalf("unexpected type %s", evt.Event().Type)
	}
	if _, ok := evt.Event().Attributes["fee"]; ok {
		t.Fatalf("zero fee should be omitted")
	}
}
