// Copyright 2025 The neocore Authors
package consensus

import "github.com/ironvale-labs/neocore/pkg/primitives"

// PrepareSlot holds what a single validator has contributed toward the
// PrepareRequest/PrepareResponse phase of the current round.
type PrepareSlot struct {
	Request  *PrepareRequest
	Response *PrepareResponse
}

func (s *PrepareSlot) hasRequest() bool  { return s != nil && s.Request != nil }
func (s *PrepareSlot) hasResponse() bool { return s != nil && s.Response != nil }

// Round holds everything collected during one consensus round (one height,
// potentially spanning several views via ChangeView). It is replaced
// wholesale on every ResetConsensus, except for change-views that still
// apply to the new view.
type Round struct {
	Prepares    []*PrepareSlot // indexed by validator index
	Commits     []*Commit      // indexed by validator index
	ChangeViews []*ChangeView  // indexed by validator index

	TxHashes []primitives.Uint256
}

// NewRound allocates a Round sized for n validators.
func NewRound(n int) *Round {
	return &Round{
		Prepares:    make([]*PrepareSlot, n),
		Commits:     make([]*Commit, n),
		ChangeViews: make([]*ChangeView, n),
	}
}

// HasCommit reports whether validator has already sent a Commit this round.
func (r *Round) HasCommit(validator int) bool {
	return validator >= 0 && validator < len(r.Commits) && r.Commits[validator] != nil
}

// CommitCount returns the number of commits recorded at viewNumber.
func (r *Round) CommitCount(viewNumber byte) int {
	n := 0
	for _, c := range r.Commits {
		if c != nil && c.Meta.ViewNumber == viewNumber {
			n++
		}
	}
	return n
}

// PreparedCount returns the number of validators for whom either a
// PrepareRequest or a PrepareResponse has been recorded.
func (r *Round) PreparedCount() int {
	n := 0
	for _, p := range r.Prepares {
		if p.hasRequest() || p.hasResponse() {
			n++
		}
	}
	return n
}

// HasPreparation reports whether validator's slot has a request or response.
func (r *Round) HasPreparation(validator int) bool {
	return validator >= 0 && validator < len(r.Prepares) &&
		(r.Prepares[validator].hasRequest() || r.Prepares[validator].hasResponse())
}

// FailedCount counts validators with neither a commit nor any preparation,
// i.e. those presumed unresponsive this round — used to decide whether a
// view change can still succeed or must fall back to recovery.
func (r *Round) FailedCount() int {
	n := 0
	for i := range r.Prepares {
		if !r.HasCommit(i) && !r.HasPreparation(i) {
			n++
		}
	}
	return n
}

// slot returns (allocating if needed) the PrepareSlot for validator.
func (r *Round) slot(validator int) *PrepareSlot {
	if r.Prepares[validator] == nil {
		r.Prepares[validator] = &PrepareSlot{}
	}
	return r.Prepares[validator]
}

// ChangeViewsAtLeast returns the number of validators whose recorded
// ChangeView asks for targetView or a later view.
func (r *Round) ChangeViewsAtLeast(targetView byte) int {
	n := 0
	for _, cv := range r.ChangeViews {
		if cv != nil && cv.NewViewNumber >= targetView {
			n++
		}
	}
	return n
}
