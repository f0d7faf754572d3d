// Copyright 2025 The neocore Authors
package ledgerindex

import (
	"context"
	"fmt"

	"github.com/ironvale-labs/neocore/pkg/ledger"
)

// BlockRepository writes block rows into the secondary index.
type BlockRepository struct {
	client *Client
}

// NewBlockRepository constructs a BlockRepository over client.
func NewBlockRepository(client *Client) *BlockRepository {
	return &BlockRepository{client: client}
}

// Insert records a persisted block. Callers should invoke this from the
// ledger's post-persist hook; a failure here must never roll back the
// authoritative KV-backed persist, since this index is advisory.
func (r *BlockRepository) Insert(ctx context.Context, block *ledger.Block) error {
	h := block.Header
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO blocks (block_index, hash, prev_hash, merkle_root, timestamp_ms, primary_index, tx_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (block_index) DO NOTHING`,
		h.Index, h.Hash().Bytes(), h.PrevHash.Bytes(), h.MerkleRoot.Bytes(),
		int64(h.TimestampMs), int16(h.PrimaryIndex), len(block.Transactions),
	)
	if err != nil {
		return fmt.Errorf("ledgerindex: insert block %d: %w", h.Index, err)
	}
	return nil
}

// ByIndex looks up a block's indexed row by height, for query surfaces
// that want range scans the KV layout isn't shaped for.
func (r *BlockRepository) ByIndex(ctx context.Context, index uint32) (hash []byte, txCount int, err error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT hash, tx_count FROM blocks WHERE block_index = $1`, index)
	if err := row.Scan(&hash, &txCount); err != nil {
		return nil, 0, fmt.Errorf("ledgerindex: block %d: %w", index, err)
	}
	return hash, txCount, nil
}

// TransactionRepository writes transaction rows into the secondary index.
type TransactionRepository struct {
	client *Client
}

// NewTransactionRepository constructs a TransactionRepository over client.
func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// Insert records a persisted transaction against its containing block.
func (r *TransactionRepository) Insert(ctx context.Context, tx *ledger.Transaction, blockIndex uint32, vmState ledger.VMState) error {
	hash := tx.Hash()
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO transactions (hash, block_index, sys_fee, net_fee, valid_until, vm_state, signer_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING`,
		hash.Bytes(), blockIndex, tx.SysFee, tx.NetFee, tx.ValidUntil, int16(vmState), len(tx.Signers),
	)
	if err != nil {
		return fmt.Errorf("ledgerindex: insert transaction %s: %w", hash, err)
	}
	return nil
}

// UpdateVMState records a VM execution outcome applied by the ledger's
// post-persist hook, mirroring LedgerStore.PostPersist's VM-state overwrite.
func (r *TransactionRepository) UpdateVMState(ctx context.Context, hash []byte, vmState ledger.VMState) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE transactions SET vm_state = $1 WHERE hash = $2`, int16(vmState), hash)
	if err != nil {
		return fmt.Errorf("ledgerindex: update vm_state: %w", err)
	}
	return nil
}

// ByHash looks up a transaction's indexed block height.
func (r *TransactionRepository) ByHash(ctx context.Context, hash []byte) (blockIndex uint32, err error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT block_index FROM transactions WHERE hash = $1`, hash)
	if err := row.Scan(&blockIndex); err != nil {
		return 0, fmt.Errorf("ledgerindex: transaction lookup: %w", err)
	}
	return blockIndex, nil
}
