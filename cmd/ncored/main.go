// Copyright 2025 The neocore Authors
//
// ncored wires storage -> mpt -> ledger -> witness -> consensus into a
// minimal in-process demonstration node: it generates its own validator
// committee, persists a genesis block, then runs dBFT v2 against itself
// (every validator lives in this one process, fully connected, no real
// network) until interrupted. It is not a product CLI: RPC/P2P surfaces,
// wallet formats, and mempool policy stay out of scope.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ironvale-labs/neocore/pkg/config"
	"github.com/ironvale-labs/neocore/pkg/consensus"
	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/ledgerindex"
	"github.com/ironvale-labs/neocore/pkg/metrics"
	"github.com/ironvale-labs/neocore/pkg/mpt"
	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/storage"
	"github.com/ironvale-labs/neocore/pkg/witness"
)

func main() {
	validators := flag.Int("validators", 4, "number of validators in the in-process committee")
	blockTime := flag.Duration("block-time", 3*time.Second, "dBFT block time")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *validators, *blockTime, logger); err != nil {
		logger.Fatal("ncored exited with error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.NodeConfig, n int, blockTime time.Duration, logger *zap.Logger) error {
	protocol := config.DefaultProtocolSettings()
	protocol.ValidatorsCount = uint32(n)
	protocol.MillisecondsPerBlock = uint32(blockTime.Milliseconds())

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	db, err := dbm.NewGoLevelDB("ncored", cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	kv := storage.NewKVStore(db)
	defer kv.Close()

	ledgerStore := ledger.NewLedgerStore(kv, ledger.TraceabilitySettings{
		MaxTraceableBlocks: protocol.MaxTraceableBlocks,
		EchidnaActive:      protocol.EchidnaActive,
	}, nil)

	trie := mpt.NewTrie(storage.MPTAdapter{Store: kv}, nil, true)

	keys := make([]*ecdsa.PrivateKey, n)
	committee := make([]*primitives.ECPoint, n)
	for i := range keys {
		priv, err := ecdsa.GenerateKey(primitives.Secp256r1(), rand.Reader)
		if err != nil {
			return fmt.Errorf("generate validator key %d: %w", i, err)
		}
		keys[i] = priv
		committee[i] = &primitives.ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
	}
	nextConsensus := witness.ConsensusScriptHash(committee)

	idx, genesisErr := ensureGenesis(ledgerStore, nextConsensus)
	if genesisErr != nil {
		return fmt.Errorf("ensure genesis: %w", genesisErr)
	}
	logger.Info("ledger ready", zap.Uint32("height", idx), zap.Int("validators", n))

	var index *ledgerIndexHooks
	if dsn := os.Getenv("LEDGERINDEX_DSN"); dsn != "" {
		index, err = newLedgerIndexHooks(dsn, logger)
		if err != nil {
			logger.Warn("ledger index unavailable, continuing without it", zap.Error(err))
			index = nil
		} else {
			defer index.client.Close()
		}
	}

	driver := &chainDriver{
		ledgerStore: ledgerStore,
		trie:        trie,
		index:       index,
		log:         logger.Named("ledger"),
		metrics:     m,
	}

	settings := consensus.Settings{
		Version:                 0,
		MaxTransactionsPerBlock: protocol.MaxTransactionsPerBlock,
		MaxBlockSize:            protocol.MaxBlockSize,
		MaxBlockSysFee:          protocol.MaxBlockSysFee,
		BlockTime:               blockTime,
		MaxAdvancedBlocks:       consensus.DefaultMaxAdvancedBlocks,
	}

	hub := &broadcastHub{}
	clock := func() uint64 { return uint64(time.Now().UnixMilli()) }

	nodes := make([]*consensus.StateMachine, n)
	timers := make([]*consensus.ViewTimer, n)
	for i := range keys {
		vt := consensus.NewViewTimer()
		timers[i] = vt
		sm, err := consensus.New(consensus.Config{
			Settings:    settings,
			Validators:  committee,
			PrivKey:     keys[i],
			Clock:       clock,
			Broadcaster: &hubLink{hub: hub, self: i},
			TxSource:    emptyTxSource{},
			BlockSink:   driver,
			Timer:       vt,
			Metrics:     m,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("new state machine %d: %w", i, err)
		}
		nodes[i] = sm
	}
	hub.nodes = nodes
	driver.nodes = nodes

	snap := ledgerStore.Snapshot()
	currentHash, err := ledgerStore.CurrentHash(snap)
	if err != nil {
		return fmt.Errorf("read current hash: %w", err)
	}
	currentIdx, err := ledgerStore.CurrentIndex(snap)
	if err != nil {
		return fmt.Errorf("read current index: %w", err)
	}
	for _, node := range nodes {
		node.ResetConsensus(0, currentHash, currentIdx+1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fireCh := make(chan firedTimeout, n*2)
	var fanIn sync.WaitGroup
	for i, vt := range timers {
		fanIn.Add(1)
		go func(i int, vt *consensus.ViewTimer) {
			defer fanIn.Done()
			for {
				select {
				case hv, ok := <-vt.Fired:
					if !ok {
						return
					}
					select {
					case fireCh <- firedTimeout{node: i, hv: hv}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(i, vt)
	}

	fetcher := &consensus.StateMachineStatusFetcher{SM: nodes[0], NumPeers: func() int { return n - 1 }}
	health := consensus.NewConsensusHealthMonitor(consensus.DefaultHealthMonitorConfig(), fetcher)
	health.SetOnStallDetected(func(height uint32, d time.Duration) {
		logger.Warn("consensus stalled", zap.Uint32("height", height), zap.Duration("for", d))
	})
	if err := health.Start(); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	defer health.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("ncored running", zap.Int("validators", n), zap.String("metrics_addr", cfg.MetricsAddr))

	for {
		select {
		case ev := <-fireCh:
			nodes[ev.node].OnTimeout(ev.hv)
		case <-quit:
			logger.Info("shutting down")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			metricsSrv.Shutdown(shutdownCtx)
			shutdownCancel()
			fanIn.Wait()
			return nil
		}
	}
}

// firedTimeout tags a ViewTimer firing with the node it belongs to, so a
// single goroutine can serialize delivery into every StateMachine's
// single-threaded OnTimeout/OnMessage entry points.
type firedTimeout struct {
	node int
	hv   consensus.HeightView
}

// emptyTxSource proposes empty blocks; transaction admission and mempool
// policy are this demo's explicit non-goals.
type emptyTxSource struct{}

func (emptyTxSource) SelectTransactions(uint32, uint32, int64) []*ledger.Transaction { return nil }

// broadcastHub fans a Payload out to every validator but the sender,
// modeling a fully-connected zero-latency network for the in-process demo.
type broadcastHub struct {
	nodes []*consensus.StateMachine
}

type hubLink struct {
	hub  *broadcastHub
	self int
}

func (l *hubLink) Broadcast(p consensus.Payload) {
	for i, n := range l.hub.nodes {
		if i == l.self {
			continue
		}
		n.OnMessage(p)
	}
}

// chainDriver is the BlockSink shared by every in-process validator: since
// they all reach quorum on equivalent blocks, it persists the first one to
// arrive at each height and drives every node's next round.
type chainDriver struct {
	mu          sync.Mutex
	ledgerStore *ledger.LedgerStore
	trie        *mpt.Trie
	index       *ledgerIndexHooks
	nodes       []*consensus.StateMachine
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func (d *chainDriver) AcceptBlock(block *ledger.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := d.ledgerStore.Snapshot()
	current, err := d.ledgerStore.CurrentIndex(snap)
	if err != nil {
		return err
	}
	if block.Header.Index != current+1 {
		// A sibling validator's equivalent block already advanced the
		// chain; this arrival is stale.
		return nil
	}

	if err := d.ledgerStore.Persist(block, nil); err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		if err := d.trie.Put(tx.Hash().Bytes(), tx.Encode()); err != nil {
			return err
		}
	}
	if err := d.trie.Commit(); err != nil {
		return err
	}
	root, _ := d.trie.RootHash()

	d.metrics.BlocksPersistedTotal.Inc()
	d.metrics.TransactionsPersistedTotal.Add(float64(len(block.Transactions)))
	d.metrics.ConsensusHeight.Set(float64(block.Header.Index))
	d.log.Info("block persisted",
		zap.Uint32("height", block.Header.Index),
		zap.Int("transactions", len(block.Transactions)),
		zap.String("state_root", root.String()))

	if d.index != nil {
		d.index.record(block)
	}

	newHash := block.Header.Hash()
	for _, n := range d.nodes {
		n.ResetConsensus(0, newHash, block.Header.Index+1)
	}
	return nil
}

// ensureGenesis persists block 0 if the ledger is empty, returning the
// current height either way.
func ensureGenesis(store *ledger.LedgerStore, nextConsensus primitives.Uint160) (uint32, error) {
	snap := store.Snapshot()
	idx, err := store.CurrentIndex(snap)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, ledger.ErrNoCurrentBlock) {
		return 0, err
	}

	genesis := &ledger.Block{Header: &ledger.Header{
		Version:       0,
		PrevHash:      primitives.Uint256{},
		TimestampMs:   uint64(time.Now().UnixMilli()),
		Index:         0,
		PrimaryIndex:  0,
		NextConsensus: nextConsensus,
	}}
	genesis.Header.MerkleRoot = genesis.ComputeMerkleRoot()
	if err := store.Persist(genesis, nil); err != nil {
		return 0, err
	}
	return 0, nil
}

// ledgerIndexHooks wraps the optional secondary SQL index, feeding it from
// chainDriver.AcceptBlock the way the ledger's own post-persist hook would.
// A write failure here is logged and swallowed: the index is advisory, and
// must never affect the authoritative KV-backed persist above it.
type ledgerIndexHooks struct {
	client *ledgerindex.Client
	blocks *ledgerindex.BlockRepository
	txs    *ledgerindex.TransactionRepository
	log    *zap.Logger
}

func newLedgerIndexHooks(dsn string, logger *zap.Logger) (*ledgerIndexHooks, error) {
	client, err := ledgerindex.NewClient(ledgerindex.DefaultConfig(dsn))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.MigrateUp(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &ledgerIndexHooks{
		client: client,
		blocks: ledgerindex.NewBlockRepository(client),
		txs:    ledgerindex.NewTransactionRepository(client),
		log:    logger.Named("ledgerindex"),
	}, nil
}

func (h *ledgerIndexHooks) record(block *ledger.Block) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.blocks.Insert(ctx, block); err != nil {
		h.log.Warn("index block insert failed", zap.Error(err))
	}
	for _, tx := range block.Transactions {
		if err := h.txs.Insert(ctx, tx, block.Header.Index, ledger.VMStateUnknown); err != nil {
			h.log.Warn("index transaction insert failed", zap.Error(err))
		}
	}
}

var _ consensus.BlockSink = (*chainDriver)(nil)
