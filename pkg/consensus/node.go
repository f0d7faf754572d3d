// Copyright 2025 The neocore Authors
package consensus

import (
	"crypto/ecdsa"
	"time"

	"go.uber.org/zap"

	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/metrics"
	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Settings are the protocol knobs the state machine consults; a wiring
// binary derives these from config.ProtocolSettings.
type Settings struct {
	Version                 uint32
	MaxTransactionsPerBlock uint32
	MaxBlockSize            uint32
	MaxBlockSysFee          int64
	BlockTime               time.Duration
	// MaxAdvancedBlocks bounds how far into the future a PrepareRequest's
	// timestamp may sit relative to now.
	MaxAdvancedBlocks uint32
}

// DefaultMaxAdvancedBlocks is the default bound on how far a PrepareRequest
// may advance its timestamp ahead of the local clock.
const DefaultMaxAdvancedBlocks = 8

// Broadcaster sends an outgoing Payload to every other validator.
type Broadcaster interface {
	Broadcast(Payload)
}

// TxSource selects the transaction set a primary proposes, bounded by the
// block-size/sysfee/count policy. Transaction admission and execution are
// out of this package's scope; the state machine only needs the hashes and
// the fee/size totals to respect the policy limits.
type TxSource interface {
	SelectTransactions(maxCount uint32, maxSize uint32, maxSysFee int64) []*ledger.Transaction
}

// BlockSink receives a block once M commits have been collected.
type BlockSink interface {
	AcceptBlock(block *ledger.Block) error
}

// Clock returns the current wall-clock time in Unix milliseconds. Exists as
// a field (not time.Now directly) so tests can drive it deterministically.
type Clock func() uint64

// StateMachine is the dBFT v2 consensus engine for a single validator. It is
// not safe for concurrent use: every entry point (OnMessage, OnTimeout) is
// meant to be driven from one cooperative event loop, single-writer.
type StateMachine struct {
	settings Settings
	privKey  *ecdsa.PrivateKey
	clock    Clock

	broadcaster Broadcaster
	txSource    TxSource
	blockSink   BlockSink
	timer       Timer
	metrics     *metrics.Metrics
	log         *zap.Logger

	validators []*primitives.ECPoint

	viewNumber        byte
	blockIndex        uint32
	primaryIndex      int
	selfIndex         int
	prevHash          primitives.Uint256
	watchOnly         bool
	notValidator      bool
	blockSent         bool
	onRecovering      bool
	receivedBlockIdx  uint32
	receivedUnixMilli uint64

	round  *Round
	header *ledger.Header

	// proposedTxs holds the transaction bodies this node selected as
	// primary, kept around so createBlockIfNeeded can attach them to the
	// finished block. Backup validators never populate this: assembling a
	// block's bodies from PrepareRequest's tx hashes alone is a mempool
	// lookup left to the ledger layer, out of this package's scope.
	proposedTxs []*ledger.Transaction
}

// Config bundles the construction-time dependencies for a StateMachine.
type Config struct {
	Settings    Settings
	Validators  []*primitives.ECPoint
	PrivKey     *ecdsa.PrivateKey // nil for a watch-only (observer) node
	Clock       Clock
	Broadcaster Broadcaster
	TxSource    TxSource
	BlockSink   BlockSink
	Timer       Timer
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// New constructs a StateMachine at height 0, view 0. Callers must follow up
// with ResetConsensus(0) once the chain's current height is known.
func New(cfg Config) (*StateMachine, error) {
	if len(cfg.Validators) == 0 {
		return nil, ErrNoValidators
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sm := &StateMachine{
		settings:    cfg.Settings,
		privKey:     cfg.PrivKey,
		clock:       cfg.Clock,
		broadcaster: cfg.Broadcaster,
		txSource:    cfg.TxSource,
		blockSink:   cfg.BlockSink,
		timer:       cfg.Timer,
		metrics:     cfg.Metrics,
		log:         logger.Named("consensus"),
		validators:  cfg.Validators,
		watchOnly:   cfg.PrivKey == nil,
	}
	return sm, nil
}

// Validators returns the current committee, in the fixed order used for
// primary election and signature-slot indexing.
func (sm *StateMachine) Validators() []*primitives.ECPoint { return sm.validators }

// Height returns the block index the state machine is currently working on.
func (sm *StateMachine) Height() uint32 { return sm.blockIndex }

// View returns the current view number within Height.
func (sm *StateMachine) View() byte { return sm.viewNumber }

func (sm *StateMachine) nrValidators() int { return len(sm.validators) }

func (sm *StateMachine) isPrimary() bool {
	return !sm.notValidator && sm.selfIndex == sm.primaryIndex
}

func (sm *StateMachine) isBackup() bool {
	return !sm.notValidator && sm.selfIndex != sm.primaryIndex
}

func (sm *StateMachine) heightView() HeightView {
	return HeightView{Height: sm.blockIndex, View: sm.viewNumber}
}

func (sm *StateMachine) newMeta() MessageMeta {
	return MessageMeta{BlockIndex: sm.blockIndex, ValidatorIndex: sm.selfIndex, ViewNumber: sm.viewNumber}
}

func (sm *StateMachine) broadcast(p Payload) {
	if sm.broadcaster != nil {
		sm.broadcaster.Broadcast(p)
	}
}
