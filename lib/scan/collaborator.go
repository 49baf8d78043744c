package scan

import "github.com/go-wlan/go-wlan/lib/wlan"

// Handle identifies an outstanding candidate list.
type Handle uint32

// CandidateList is an ordered, read-only sequence of BSS descriptions.
type CandidateList struct {
	handle  Handle
	entries []*BSSDescription
}

// NewCandidateList wraps entries under a handle. The list takes ownership of
// the slice.
func NewCandidateList(handle Handle, entries []*BSSDescription) *CandidateList {
	return &CandidateList{handle: handle, entries: entries}
}

// Handle returns the list handle.
func (l *CandidateList) Handle() Handle { return l.handle }

// Len returns the number of candidates. A nil list has none.
func (l *CandidateList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// At returns the i-th candidate.
func (l *CandidateList) At(i int) *BSSDescription { return l.entries[i] }

// Collaborator is the scan engine as seen by the roam state machine.
type Collaborator interface {
	// GetCandidates returns the scan results matching filter, best first.
	GetCandidates(filter Filter) (*CandidateList, error)
	// ReleaseCandidates returns a list obtained from GetCandidates.
	ReleaseCandidates(list *CandidateList)
	// ShouldRoamTo is the admission callback consulted for every candidate.
	ShouldRoamTo(session wlan.SessionID, bss *BSSDescription) bool
}

// Requester is implemented by collaborators that can run a fresh scan. done is
// called exactly once, possibly from another goroutine.
type Requester interface {
	Scan(session wlan.SessionID, filter Filter, done func(error)) error
}
