package candidate

import (
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// ConcurrencyChecker reports whether joining bss would put session on a
// channel other than the one a concurrent session is fixed to.
type ConcurrencyChecker interface {
	ChannelConflict(session wlan.SessionID, bss *scan.BSSDescription) bool
}

// Admitter is the part of the scan collaborator the walker consults.
type Admitter interface {
	ShouldRoamTo(session wlan.SessionID, bss *scan.BSSDescription) bool
}

// Option configures a Walker.
type Option func(*Walker)

// WithFilter installs a filter evaluated before ShouldRoamTo.
func WithFilter(f Filter) Option { return func(w *Walker) { w.filter = f } }

// WithConcurrency installs the channel conflict check.
func WithConcurrency(c ConcurrencyChecker) Option { return func(w *Walker) { w.conflicts = c } }

// WithStartAt positions the cursor on entry i so that Retry returns it without
// any admission check. Used when the command targets a BSS we already hold.
func WithStartAt(i int) Option { return func(w *Walker) { w.cursor = i } }

// Walker iterates one candidate list for one roam command.
type Walker struct {
	session   wlan.SessionID
	list      *scan.CandidateList
	admit     Admitter
	filter    Filter
	conflicts ConcurrencyChecker

	// cursor is the index of the current candidate, -1 before the first Next.
	cursor           int
	concurrencySkips int
	accepted         int
}

// NewWalker creates a walker over list. admit may be nil, in which case every
// candidate that passes the filters is admissible.
func NewWalker(session wlan.SessionID, list *scan.CandidateList, admit Admitter, opts ...Option) *Walker {
	w := &Walker{session: session, list: list, admit: admit, cursor: -1}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// List returns the list being walked.
func (w *Walker) List() *scan.CandidateList { return w.list }

// Cursor returns the index of the current candidate, or -1.
func (w *Walker) Cursor() int { return w.cursor }

// Current returns the candidate under the cursor, or nil.
func (w *Walker) Current() *scan.BSSDescription {
	if w.cursor < 0 || w.cursor >= w.list.Len() {
		return nil
	}
	return w.list.At(w.cursor)
}

// Exhausted reports whether Next can no longer return a candidate.
func (w *Walker) Exhausted() bool {
	return w.cursor+1 >= w.list.Len()
}

// ConcurrencySkips returns how many candidates were passed over because of a
// channel conflict.
func (w *Walker) ConcurrencySkips() int { return w.concurrencySkips }

// Next advances to the next admissible candidate. When none remains it returns
// wlan.ErrStoppedConcurrency if channel conflicts were the only thing that kept
// this walk from accepting anything, and wlan.ErrNoCandidates otherwise.
func (w *Walker) Next() (*scan.BSSDescription, error) {
	for i := w.cursor + 1; i < w.list.Len(); i++ {
		w.cursor = i
		bss := w.list.At(i)

		if w.conflicts != nil && !bss.ConcurrencyExempt && w.conflicts.ChannelConflict(w.session, bss) {
			w.concurrencySkips++
			w.logSkip(bss, "channel conflict with concurrent session")
			continue
		}
		if w.filter != nil && !w.filter.Accept(bss) {
			w.logSkip(bss, "rejected by filter "+w.filter.Name())
			continue
		}
		if w.admit != nil && !w.admit.ShouldRoamTo(w.session, bss) {
			w.logSkip(bss, "rejected by should_roam_to")
			continue
		}

		w.accepted++
		log.WithFields(logger.Fields{
			"at":      "candidate.Walker.Next",
			"session": w.session.String(),
			"cursor":  i,
			"bssid":   bss.BSSID.String(),
			"ssid":    bss.SSID,
		}).Debug("candidate_accepted")
		return bss, nil
	}

	w.cursor = w.list.Len()
	if w.concurrencySkips > 0 && w.accepted == 0 {
		return nil, oops.Wrapf(wlan.ErrStoppedConcurrency, "%d candidates skipped", w.concurrencySkips)
	}
	return nil, oops.Wrapf(wlan.ErrNoCandidates, "candidate list of %d exhausted", w.list.Len())
}

// Retry returns the current candidate again without advancing the cursor.
// Before the first Next it behaves like Next.
func (w *Walker) Retry() (*scan.BSSDescription, error) {
	if w.cursor < 0 {
		return w.Next()
	}
	if bss := w.Current(); bss != nil {
		return bss, nil
	}
	return nil, oops.Wrapf(wlan.ErrNoCandidates, "no current candidate to retry")
}

func (w *Walker) logSkip(bss *scan.BSSDescription, reason string) {
	log.WithFields(logger.Fields{
		"at":      "candidate.Walker.Next",
		"session": w.session.String(),
		"cursor":  w.cursor,
		"bssid":   bss.BSSID.String(),
		"reason":  reason,
	}).Debug("candidate_skipped")
}
