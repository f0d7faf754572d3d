// Copyright 2025 The neocore Authors
package consensus

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// ResetConsensus starts a fresh round at viewNumber. With viewNumber == 0 it
// also advances to the next height, reading prevHash/nextIndex from the
// caller (the ledger's current block) — called after every committed block.
func (sm *StateMachine) ResetConsensus(viewNumber byte, prevHash primitives.Uint256, nextIndex uint32) {
	if viewNumber == 0 {
		sm.prevHash = prevHash
		sm.blockIndex = nextIndex
	}

	old := sm.round
	sm.round = NewRound(sm.nrValidators())
	if viewNumber != 0 && old != nil {
		for i, cv := range old.ChangeViews {
			if cv != nil && cv.NewViewNumber >= viewNumber {
				sm.round.ChangeViews[i] = cv
			}
		}
	}

	sm.viewNumber = viewNumber
	sm.selfIndex = -1
	sm.notValidator = true
	sm.primaryIndex = PrimaryIndex(sm.blockIndex, viewNumber, sm.nrValidators())

	if sm.privKey != nil {
		for i, pk := range sm.validators {
			if keyMatchesPoint(sm.privKey, pk) {
				sm.selfIndex = i
				sm.notValidator = false
				break
			}
		}
	}

	sm.header = nil
	sm.blockSent = false
	sm.proposedTxs = nil

	if sm.watchOnly {
		return
	}
	sm.timer.Reset(sm.heightView(), sm.timeoutOnResetting())
}

func (sm *StateMachine) timeoutOnResetting() time.Duration {
	base := sm.settings.BlockTime << uint(min(sm.viewNumber, 62))
	if sm.isPrimary() && !sm.onRecovering {
		// The primary itself gets a shorter deadline: it is the one expected
		// to act first (propose), not to wait.
		base /= 2
	}

	// Measure the deadline from the previous block's arrival, not from
	// whenever this reset happens to run, so cadence doesn't drift by
	// however long block processing took.
	var elapsed time.Duration
	if sm.receivedBlockIdx+1 == sm.blockIndex {
		elapsed = time.Duration(sm.clock()-sm.receivedUnixMilli) * time.Millisecond
	}
	if elapsed >= base {
		return 0
	}
	return base - elapsed
}

// extendTimeout grants at most maxInBlocks blocks' worth of additional
// round time, divided evenly across the honest quorum: the more validators
// it takes to agree, the smaller each one's share of the extension, so a
// round with more honest participants doesn't run needlessly long.
func (sm *StateMachine) extendTimeout(maxInBlocks int64) {
	total := sm.settings.BlockTime * time.Duration(maxInBlocks)
	sm.timer.Extend(sm.heightView(), total/time.Duration(M(sm.nrValidators())))
}

// keyMatchesPoint reports whether priv's public key is pk.
func keyMatchesPoint(priv *ecdsa.PrivateKey, pk *primitives.ECPoint) bool {
	return priv.PublicKey.X.Cmp(pk.X) == 0 && priv.PublicKey.Y.Cmp(pk.Y) == 0
}

func min(a byte, b byte) byte {
	if a < b {
		return a
	}
	return b
}

// OnTimeout is invoked when the Timer fires for hv. Stale firings (the
// height/view has already moved on) are ignored.
func (sm *StateMachine) OnTimeout(hv HeightView) {
	if sm.watchOnly || hv.Height != sm.blockIndex || hv.View != sm.viewNumber {
		return
	}

	sent := sm.round.Prepares[sm.primaryIndex].hasRequest()

	if sm.isPrimary() && !sent {
		sm.sendPrepareRequest()
		if sm.nrValidators() == 1 {
			sm.commitIfNeeded()
		}
		sm.timer.Reset(sm.heightView(), sm.settings.BlockTime<<uint(min(sm.viewNumber, 62)))
		return
	}

	if (sm.isPrimary() && sent) || sm.isBackup() {
		if sm.round.HasCommit(sm.selfIndex) {
			sm.broadcast(Payload{RecoveryMessage: sm.newRecoveryMessage("")})
			return
		}
		sm.tryToChangeView(ChangeViewTimeout)
	}
}

func (sm *StateMachine) sendPrepareRequest() {
	txs := sm.txSource.SelectTransactions(sm.settings.MaxTransactionsPerBlock, sm.settings.MaxBlockSize, sm.settings.MaxBlockSysFee)
	sm.proposedTxs = txs

	hashes := make([]primitives.Uint256, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash())
	}

	var nonceBuf [8]byte
	rand.Read(nonceBuf[:])
	nonce := binary.LittleEndian.Uint64(nonceBuf[:])

	now := sm.clock()
	ts := now
	if ts <= sm.receivedUnixMilli {
		ts = sm.receivedUnixMilli + 1
	}

	req := &PrepareRequest{
		Meta:        sm.newMeta(),
		Version:     sm.settings.Version,
		PrevHash:    sm.prevHash,
		TimestampMs: ts,
		Nonce:       nonce,
		TxHashes:    hashes,
	}
	sm.round.TxHashes = hashes
	sm.round.slot(sm.primaryIndex).Request = req
	sm.header = sm.makeHeader(sm.viewNumber)
	sm.broadcast(Payload{PrepareRequest: req})
}

// OnMessage dispatches an incoming Payload to its handler.
func (sm *StateMachine) OnMessage(p Payload) {
	if sm.metrics != nil {
		sm.metrics.MessagesReceivedTotal.WithLabelValues(messageKind(p)).Inc()
	}

	switch {
	case p.PrepareRequest != nil:
		sm.onPrepareRequest(p.PrepareRequest)
	case p.PrepareResponse != nil:
		sm.onPrepareResponse(p.PrepareResponse)
	case p.ChangeView != nil:
		sm.onChangeView(p.ChangeView)
	case p.Commit != nil:
		sm.onCommit(p.Commit)
	case p.RecoveryRequest != nil:
		sm.onRecoveryRequest(p.RecoveryRequest)
	case p.RecoveryMessage != nil:
		sm.onRecoveryMessage(p.RecoveryMessage)
	}
}

func messageKind(p Payload) string {
	switch {
	case p.PrepareRequest != nil:
		return "PrepareRequest"
	case p.PrepareResponse != nil:
		return "PrepareResponse"
	case p.ChangeView != nil:
		return "ChangeView"
	case p.Commit != nil:
		return "Commit"
	case p.RecoveryRequest != nil:
		return "RecoveryRequest"
	case p.RecoveryMessage != nil:
		return "RecoveryMessage"
	default:
		return "Unknown"
	}
}

// unacceptableOnViewChanging reports whether the local node is already
// asking for a later view than viewNumber, and not yet past the point a
// view change must yield to recovery instead.
func (sm *StateMachine) unacceptableOnViewChanging() bool {
	if sm.notValidator || sm.selfIndex >= len(sm.round.ChangeViews) {
		return false
	}
	cv := sm.round.ChangeViews[sm.selfIndex]
	if cv == nil || cv.NewViewNumber <= sm.viewNumber {
		return false
	}
	committed := sm.round.CommitCount(sm.viewNumber)
	return !(committed > 0 && committed+sm.round.FailedCount() > F(sm.nrValidators()))
}

// --- PrepareRequest -------------------------------------------------------

func (sm *StateMachine) checkPrepareRequest(req *PrepareRequest) bool {
	if sm.round.Prepares[sm.primaryIndex].hasRequest() {
		return false
	}
	if sm.unacceptableOnViewChanging() {
		return false
	}
	if req.Meta.ValidatorIndex != sm.primaryIndex || req.Meta.ViewNumber != sm.viewNumber {
		return false
	}
	if req.Version != sm.settings.Version || req.PrevHash != sm.prevHash {
		return false
	}
	if uint32(len(req.TxHashes)) > sm.settings.MaxTransactionsPerBlock {
		return false
	}
	now := sm.clock()
	maxAdvanced := uint64(sm.settings.MaxAdvancedBlocks) * uint64(sm.settings.BlockTime.Milliseconds())
	if req.TimestampMs <= sm.receivedUnixMilli || req.TimestampMs > now+maxAdvanced {
		return false
	}
	return true
}

func (sm *StateMachine) onPrepareRequest(req *PrepareRequest) {
	if !sm.checkPrepareRequest(req) {
		return
	}

	sm.extendTimeout(2)

	sm.round.slot(sm.primaryIndex).Request = req
	sm.header = sm.makeHeader(req.Meta.ViewNumber)
	if sm.header == nil {
		return
	}

	// Drop any pre-recorded Commit signatures that no longer verify against
	// the now-known header.
	for i, c := range sm.round.Commits {
		if c == nil || c.Meta.ViewNumber != sm.viewNumber {
			continue
		}
		if !sm.verifyCommitSignature(sm.header, i, c.Signature) {
			sm.round.Commits[i] = nil
		}
	}

	if len(req.TxHashes) == 0 {
		sm.responsePrepareIfNeeded()
	}
}

func (sm *StateMachine) responsePrepareIfNeeded() {
	if sm.isPrimary() || sm.watchOnly || sm.notValidator {
		return
	}
	if sm.header == nil {
		return
	}

	sm.extendTimeout(2)

	resp := &PrepareResponse{Meta: sm.newMeta(), PreparationHash: sm.header.Hash()}
	sm.round.slot(sm.selfIndex).Response = resp
	sm.broadcast(Payload{PrepareResponse: resp})

	sm.commitIfNeeded()
}

// --- PrepareResponse -------------------------------------------------------

func (sm *StateMachine) checkPrepareResponse(resp *PrepareResponse) bool {
	if resp.Meta.ViewNumber != sm.viewNumber {
		return false
	}
	v := resp.Meta.ValidatorIndex
	if v < 0 || v >= len(sm.round.Prepares) || sm.round.Prepares[v].hasResponse() {
		return false
	}
	if sm.unacceptableOnViewChanging() {
		return false
	}
	primary := sm.round.Prepares[sm.primaryIndex]
	if primary.hasResponse() {
		return primary.Response.PreparationHash == resp.PreparationHash
	}
	return true
}

func (sm *StateMachine) onPrepareResponse(resp *PrepareResponse) {
	if !sm.checkPrepareResponse(resp) {
		return
	}

	sm.extendTimeout(2)
	sm.round.slot(resp.Meta.ValidatorIndex).Response = resp

	if sm.watchOnly || sm.round.HasCommit(sm.selfIndex) {
		return
	}

	primary := sm.round.Prepares[sm.primaryIndex]
	if primary.hasRequest() || primary.hasResponse() {
		sm.commitIfNeeded()
	}
}

// --- Commit ----------------------------------------------------------------

func (sm *StateMachine) commitIfNeeded() {
	if sm.watchOnly || sm.notValidator {
		return
	}
	if sm.round.PreparedCount() < M(sm.nrValidators()) {
		return
	}
	head := sm.header
	if head == nil {
		return
	}
	sig, err := sm.signHeader(head)
	if err != nil {
		sm.log.Error("sign header for commit", zap.Error(err))
		return
	}

	commit := &Commit{Meta: sm.newMeta(), Signature: sig}
	sm.round.Commits[sm.selfIndex] = commit
	sm.broadcast(Payload{Commit: commit})

	sm.timer.Reset(sm.heightView(), sm.settings.BlockTime<<uint(min(sm.viewNumber, 62)))
	sm.createBlockIfNeeded()
}

func (sm *StateMachine) onCommit(commit *Commit) {
	v := commit.Meta.ValidatorIndex
	if sm.round.HasCommit(v) {
		return
	}
	if commit.Meta.ViewNumber != sm.viewNumber {
		if v >= 0 && v < len(sm.round.Commits) {
			sm.round.Commits[v] = commit
		}
		return
	}

	sm.extendTimeout(4)

	head := sm.tryMakeHeader(commit.Meta.ViewNumber)
	if head == nil {
		return
	}
	if !sm.verifyCommitSignature(head, v, commit.Signature) {
		return
	}
	sm.round.Commits[v] = commit
	sm.createBlockIfNeeded()
}

func (sm *StateMachine) createBlockIfNeeded() {
	if sm.blockSent {
		return
	}
	if sm.round.CommitCount(sm.viewNumber) < M(sm.nrValidators()) {
		return
	}
	head := sm.header
	if head == nil {
		return
	}

	head.Witness = buildMultiSigWitness(sm.round.Commits, sm.validators)
	block := &ledger.Block{Header: head}
	if sm.isPrimary() && len(sm.proposedTxs) == len(sm.round.TxHashes) {
		block.Transactions = sm.proposedTxs
	}

	if err := VerifyBlockInvariants(block, sm.validators); err != nil {
		sm.log.Error("candidate block failed invariant checks", zap.Uint32("height", head.Index), zap.Error(err))
		return
	}

	sm.blockSent = true
	sm.receivedBlockIdx = head.Index
	sm.receivedUnixMilli = sm.clock()

	if sm.metrics != nil {
		sm.metrics.CommitsTotal.Inc()
	}
	if sm.blockSink != nil {
		if err := sm.blockSink.AcceptBlock(block); err != nil {
			sm.log.Error("accept block", zap.Uint32("height", head.Index), zap.Error(err))
		}
	}
}

// --- ChangeView --------------------------------------------------------------

func (sm *StateMachine) checkChangeView(cv *ChangeView) bool {
	if cv.NewViewNumber <= sm.viewNumber {
		sm.onRecoveryRequest(&RecoveryRequest{Meta: cv.Meta, TimestampMs: cv.TimestampMs})
		return false
	}
	if sm.round.HasCommit(sm.selfIndex) {
		sm.broadcast(Payload{RecoveryMessage: sm.newRecoveryMessage("")})
		return false
	}
	v := cv.Meta.ValidatorIndex
	if v < 0 || v >= len(sm.round.ChangeViews) {
		return false
	}
	existing := byte(0)
	if e := sm.round.ChangeViews[v]; e != nil {
		existing = e.NewViewNumber
	}
	return cv.NewViewNumber > existing
}

func (sm *StateMachine) onChangeView(cv *ChangeView) {
	if !sm.checkChangeView(cv) {
		return
	}
	v := cv.Meta.ValidatorIndex
	if v < 0 || v >= len(sm.round.ChangeViews) {
		return
	}
	sm.round.ChangeViews[v] = cv
	sm.changeViewIfNeeded(cv.NewViewNumber)
}

func (sm *StateMachine) changeViewIfNeeded(newView byte) {
	if sm.viewNumber >= newView {
		return
	}
	if sm.round.ChangeViewsAtLeast(newView) < M(sm.nrValidators()) {
		return
	}

	if !sm.watchOnly && !sm.notValidator {
		cur := byte(0)
		if e := sm.round.ChangeViews[sm.selfIndex]; e != nil {
			cur = e.NewViewNumber
		}
		if sm.round.ChangeViews[sm.selfIndex] == nil || cur < newView {
			cv := &ChangeView{Meta: sm.newMeta(), NewViewNumber: newView, TimestampMs: sm.clock(), Reason: ChangeViewChangeAgreement}
			sm.round.ChangeViews[sm.selfIndex] = cv
			sm.broadcast(Payload{ChangeView: cv})
		}
	}

	prev := sm.prevHash
	idx := sm.blockIndex
	sm.ResetConsensus(newView, prev, idx)
	if sm.metrics != nil {
		sm.metrics.ViewChangesTotal.Inc()
	}
}

func (sm *StateMachine) tryToChangeView(reason ChangeViewReason) {
	if sm.watchOnly {
		return
	}
	changed := sm.viewNumber + 1
	sm.timer.Reset(sm.heightView(), sm.settings.BlockTime<<uint(min(changed, 62)))

	// Only bail out to a RecoveryRequest once the round has already made
	// commit progress: a silent primary at the start of a view leaves every
	// validator looking "failed" by FailedCount's definition (nobody has
	// prepared or committed yet), which must not block the very first
	// ChangeView broadcast.
	committed := sm.round.CommitCount(sm.viewNumber)
	if committed > 0 && committed+sm.round.FailedCount() > F(sm.nrValidators()) {
		req := &RecoveryRequest{Meta: sm.newMeta(), TimestampMs: sm.clock(), CorrelationID: uuid.NewString()}
		sm.log.Info("sending recovery request",
			zap.String("correlation_id", req.CorrelationID),
			zap.Uint32("height", req.Meta.BlockIndex),
			zap.Uint8("view", req.Meta.ViewNumber))
		sm.broadcast(Payload{RecoveryRequest: req})
		return
	}

	cv := &ChangeView{Meta: sm.newMeta(), NewViewNumber: changed, TimestampMs: sm.clock(), Reason: reason}
	sm.round.ChangeViews[sm.selfIndex] = cv
	sm.broadcast(Payload{ChangeView: cv})
	sm.changeViewIfNeeded(changed)
}

// --- Recovery ----------------------------------------------------------------

func (sm *StateMachine) onRecoveryRequest(req *RecoveryRequest) {
	if sm.watchOnly {
		return
	}
	if !sm.round.HasCommit(sm.selfIndex) {
		n := sm.nrValidators()
		quota := F(n) + 1
		eligible := false
		for i := 1; i <= quota; i++ {
			if (req.Meta.ValidatorIndex+i)%n == sm.selfIndex {
				eligible = true
				break
			}
		}
		if !eligible {
			return
		}
	}
	rec := sm.newRecoveryMessage(req.CorrelationID)
	sm.log.Info("sending recovery message",
		zap.String("correlation_id", rec.CorrelationID),
		zap.Uint32("height", rec.Meta.BlockIndex),
		zap.Uint8("view", rec.Meta.ViewNumber))
	sm.broadcast(Payload{RecoveryMessage: rec})
}

func (sm *StateMachine) newRecoveryMessage(correlationID string) *RecoveryMessage {
	var prepResponses []*PrepareResponse
	for _, p := range sm.round.Prepares {
		if p.hasResponse() {
			prepResponses = append(prepResponses, p.Response)
		}
	}
	var commits []*Commit
	for _, c := range sm.round.Commits {
		if c != nil {
			commits = append(commits, c)
		}
	}
	var changeViews []*ChangeView
	for _, cv := range sm.round.ChangeViews {
		if cv != nil {
			changeViews = append(changeViews, cv)
		}
	}
	var req *PrepareRequest
	if slot := sm.round.Prepares[sm.primaryIndex]; slot.hasRequest() {
		req = slot.Request
	}

	return &RecoveryMessage{
		Meta:             sm.newMeta(),
		ChangeViews:      changeViews,
		PrepareRequest:   req,
		PrepareResponses: prepResponses,
		Commits:          commits,
		CorrelationID:    correlationID,
	}
}

// onRecoveryMessage reenters ChangeView -> PrepareRequest -> PrepareResponse
// -> Commit handlers in order, gated on the local view so recovery can only
// advance state, never reverse it.
func (sm *StateMachine) onRecoveryMessage(rec *RecoveryMessage) {
	sm.onRecovering = true
	defer func() { sm.onRecovering = false }()

	meta := rec.Meta
	if meta.ViewNumber > sm.viewNumber {
		if sm.round.HasCommit(sm.selfIndex) {
			return
		}
		for _, cv := range rec.ChangeViews {
			sm.OnMessage(Payload{ChangeView: cv})
		}
	}

	if meta.ViewNumber == sm.viewNumber && !sm.round.HasCommit(sm.selfIndex) && !sm.unacceptableOnViewChanging() {
		if !sm.round.HasPreparation(sm.primaryIndex) && rec.PrepareRequest != nil {
			req := *rec.PrepareRequest
			req.Meta = MessageMeta{BlockIndex: meta.BlockIndex, ValidatorIndex: sm.primaryIndex, ViewNumber: meta.ViewNumber}
			sm.OnMessage(Payload{PrepareRequest: &req})
		}
		for _, r := range rec.PrepareResponses {
			sm.OnMessage(Payload{PrepareResponse: r})
		}
	}

	if meta.ViewNumber <= sm.viewNumber {
		for _, c := range rec.Commits {
			sm.OnMessage(Payload{Commit: c})
		}
	}
}
