// Copyright 2025 The neocore Authors
package consensus

import (
	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// MessageMeta is the envelope every dBFT message carries: which height/view
// it belongs to and which validator sent it.
type MessageMeta struct {
	BlockIndex     uint32
	ValidatorIndex int
	ViewNumber     byte
}

// HeightView identifies a (height, view) pair, used to key timers.
type HeightView struct {
	Height uint32
	View   byte
}

// Before reports whether hv happened strictly before o (lower height, or
// same height and lower view).
func (hv HeightView) Before(o HeightView) bool {
	if hv.Height != o.Height {
		return hv.Height < o.Height
	}
	return hv.View < o.View
}

// PrepareRequest is broadcast once per view by the primary; only primaries
// send it.
type PrepareRequest struct {
	Meta        MessageMeta
	Version     uint32
	PrevHash    primitives.Uint256
	TimestampMs uint64
	Nonce       uint64
	TxHashes    []primitives.Uint256
}

// PrepareResponse endorses a PrepareRequest by its hash.
type PrepareResponse struct {
	Meta            MessageMeta
	PreparationHash primitives.Uint256
}

// ChangeViewReason records why a validator asked to move to a new view.
type ChangeViewReason int

const (
	ChangeViewTimeout ChangeViewReason = iota
	ChangeViewTxNotFound
	ChangeViewBlockRejectedByPolicy
	ChangeViewChangeAgreement
)

func (r ChangeViewReason) String() string {
	switch r {
	case ChangeViewTimeout:
		return "Timeout"
	case ChangeViewTxNotFound:
		return "TxNotFound"
	case ChangeViewBlockRejectedByPolicy:
		return "BlockRejectedByPolicy"
	case ChangeViewChangeAgreement:
		return "ChangeAgreement"
	default:
		return "Unknown"
	}
}

// ChangeView asks the network to move to NewViewNumber.
type ChangeView struct {
	Meta          MessageMeta
	NewViewNumber byte
	TimestampMs   uint64
	Reason        ChangeViewReason
}

// Commit carries a 64-byte ECDSA signature over the to-be-produced header.
type Commit struct {
	Meta      MessageMeta
	Signature [primitives.SignatureSize]byte
}

// RecoveryRequest asks the network for a RecoveryMessage reconstructing the
// sender's missing state.
type RecoveryRequest struct {
	Meta        MessageMeta
	TimestampMs uint64

	// CorrelationID ties this request to the RecoveryMessage(s) it
	// provokes in logs and metrics. It is not part of wire identity: two
	// RecoveryRequests are the same message whether or not their
	// correlation IDs match, since that is keyed on Meta alone.
	CorrelationID string
}

// RecoveryMessage is a compact bundle sufficient for the recipient to
// reconstruct the sender's change-views, prepare request/responses, and
// commits.
type RecoveryMessage struct {
	Meta             MessageMeta
	ChangeViews      []*ChangeView
	PrepareRequest   *PrepareRequest // nil if the sender never saw one
	PrepareResponses []*PrepareResponse
	Commits          []*Commit

	// CorrelationID echoes the RecoveryRequest that provoked this message,
	// empty when sent unprompted (e.g. a second timeout on an
	// already-committed node).
	CorrelationID string
}

// Payload is the union of every message the state machine accepts. Exactly
// one field is non-nil.
type Payload struct {
	PrepareRequest  *PrepareRequest
	PrepareResponse *PrepareResponse
	ChangeView      *ChangeView
	Commit          *Commit
	RecoveryRequest *RecoveryRequest
	RecoveryMessage *RecoveryMessage
}

// Meta extracts the MessageMeta common to every payload variant.
func (p Payload) Meta() MessageMeta {
	switch {
	case p.PrepareRequest != nil:
		return p.PrepareRequest.Meta
	case p.PrepareResponse != nil:
		return p.PrepareResponse.Meta
	case p.ChangeView != nil:
		return p.ChangeView.Meta
	case p.Commit != nil:
		return p.Commit.Meta
	case p.RecoveryRequest != nil:
		return p.RecoveryRequest.Meta
	case p.RecoveryMessage != nil:
		return p.RecoveryMessage.Meta
	default:
		return MessageMeta{}
	}
}
