// Copyright 2025 The neocore Authors
package consensus

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/primitives"
)

type fakeTimer struct{}

func (fakeTimer) Reset(HeightView, time.Duration) {}
func (fakeTimer) Extend(HeightView, time.Duration) {}

type emptyTxSource struct{}

func (emptyTxSource) SelectTransactions(uint32, uint32, int64) []*ledger.Transaction { return nil }

type collectingSink struct {
	blocks []*ledger.Block
}

func (s *collectingSink) AcceptBlock(b *ledger.Block) error {
	s.blocks = append(s.blocks, b)
	return nil
}

// hub wires every node's Broadcaster to deliver synchronously to every
// other node, simulating a fully-connected network with no latency.
type hub struct {
	nodes []*StateMachine
}

type hubLink struct {
	h    *hub
	self int
}

func (l *hubLink) Broadcast(p Payload) {
	for i, n := range l.h.nodes {
		if i == l.self {
			continue
		}
		n.OnMessage(p)
	}
}

func testSettings() Settings {
	return Settings{
		Version:                 0,
		MaxTransactionsPerBlock: 500,
		MaxBlockSize:            2 * 1024 * 1024,
		MaxBlockSysFee:          100_000_000,
		BlockTime:               15 * time.Second,
		MaxAdvancedBlocks:       DefaultMaxAdvancedBlocks,
	}
}

func newCluster(t *testing.T, n int) (*hub, []*StateMachine, []*collectingSink) {
	t.Helper()

	keys := make([]*ecdsa.PrivateKey, n)
	validators := make([]*primitives.ECPoint, n)
	for i := range keys {
		priv, err := ecdsa.GenerateKey(primitives.Secp256r1(), rand.Reader)
		if err != nil {
			t.Fatalf("generate key %d: %v", i, err)
		}
		keys[i] = priv
		validators[i] = &primitives.ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
	}

	h := &hub{}
	sinks := make([]*collectingSink, n)
	nodes := make([]*StateMachine, n)

	clock := func() uint64 { return 1_700_000_000_000 }

	for i := range keys {
		sinks[i] = &collectingSink{}
		sm, err := New(Config{
			Settings:    testSettings(),
			Validators:  validators,
			PrivKey:     keys[i],
			Clock:       clock,
			Broadcaster: &hubLink{h: h, self: i},
			TxSource:    emptyTxSource{},
			BlockSink:   sinks[i],
			Timer:       fakeTimer{},
		})
		if err != nil {
			t.Fatalf("new state machine %d: %v", i, err)
		}
		nodes[i] = sm
	}
	h.nodes = nodes

	for _, sm := range nodes {
		sm.ResetConsensus(0, primitives.Uint256{}, 1)
	}

	return h, nodes, sinks
}

func TestSingleValidatorCommitsBlockWithinOneRound(t *testing.T) {
	_, nodes, sinks := newCluster(t, 1)
	sm := nodes[0]

	sm.OnTimeout(sm.heightView())

	if len(sinks[0].blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(sinks[0].blocks))
	}
	if got := sinks[0].blocks[0].Header.Index; got != 1 {
		t.Errorf("block index = %d, want 1", got)
	}
}

func TestFourValidatorHappyPath(t *testing.T) {
	_, nodes, sinks := newCluster(t, 4)

	primary := nodes[0].primaryIndex
	hv := nodes[primary].heightView()
	nodes[primary].OnTimeout(hv)

	// A single synchronous broadcast pass can leave the slowest validator
	// (the last one the primary's PrepareRequest reaches) short of commits
	// it missed while it had no candidate header yet to verify them
	// against. A second timer firing on a validator that already committed
	// broadcasts a RecoveryMessage instead of a ChangeView, which carries
	// every commit it has seen and lets the straggler catch up — exactly
	// the self-healing a live node gets from its own periodic timeout.
	nodes[primary].OnTimeout(hv)

	for i, s := range sinks {
		if len(s.blocks) != 1 {
			t.Fatalf("node %d: expected 1 block, got %d", i, len(s.blocks))
		}
	}

	want := sinks[0].blocks[0].Header.Hash()
	for i := 1; i < len(sinks); i++ {
		if got := sinks[i].blocks[0].Header.Hash(); got != want {
			t.Errorf("node %d built a different header: %x != %x", i, got, want)
		}
	}

	root := sinks[0].blocks[0].Header.MerkleRoot
	if root != merkleRootOfEmpty() {
		t.Errorf("merkle root for an empty tx set should be the zero root, got %x", root)
	}
}

func merkleRootOfEmpty() primitives.Uint256 { return primitives.Uint256{} }

func TestViewChangeOnSilentPrimary(t *testing.T) {
	_, nodes, _ := newCluster(t, 4)

	primary := nodes[0].primaryIndex
	hv := nodes[0].heightView()

	for i, n := range nodes {
		if i == primary {
			continue // the primary never proposes: simulates a silent speaker
		}
		n.OnTimeout(hv)
	}

	for i, n := range nodes {
		if n.viewNumber != 1 {
			t.Errorf("node %d: view = %d, want 1 after a unanimous backup timeout", i, n.viewNumber)
		}
	}

	wantPrimary := PrimaryIndex(1, 1, 4)
	for i, n := range nodes {
		if n.primaryIndex != wantPrimary {
			t.Errorf("node %d: primary = %d, want %d", i, n.primaryIndex, wantPrimary)
		}
	}
}

func TestRecoveryMessageReflectsRoundState(t *testing.T) {
	_, nodes, _ := newCluster(t, 4)

	primary := nodes[0].primaryIndex
	nodes[primary].OnTimeout(nodes[primary].heightView())

	rec := nodes[primary].newRecoveryMessage("")
	if rec.PrepareRequest == nil {
		t.Fatal("recovery message from a primary that already proposed must carry its PrepareRequest")
	}
	if len(rec.PrepareResponses) != 3 {
		t.Fatalf("expected 3 prepare responses (the 3 backups), got %d", len(rec.PrepareResponses))
	}
	if len(rec.Commits) != 4 {
		t.Fatalf("expected all 4 validators to have committed by the time recovery is asked for, got %d", len(rec.Commits))
	}

	lagging, err := New(Config{
		Settings:    testSettings(),
		Validators:  nodes[0].validators,
		PrivKey:     nil,
		Clock:       func() uint64 { return 1_700_000_000_000 },
		Broadcaster: discardBroadcaster{},
		TxSource:    emptyTxSource{},
		BlockSink:   &collectingSink{},
		Timer:       fakeTimer{},
	})
	if err != nil {
		t.Fatalf("new lagging state machine: %v", err)
	}
	lagging.ResetConsensus(0, primitives.Uint256{}, 1)

	lagging.OnMessage(Payload{RecoveryMessage: rec})

	if lagging.round.PreparedCount() != 4 {
		t.Errorf("lagging watch-only node after recovery: prepared count = %d, want 4", lagging.round.PreparedCount())
	}
}

type discardBroadcaster struct{}

func (discardBroadcaster) Broadcast(Payload) {}
