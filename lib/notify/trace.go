package notify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// traceEncMode encodes notifications with integer keys and deterministic
// ordering, timestamps at nanosecond precision.
var traceEncMode cbor.EncMode

var traceDecMode cbor.DecMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	traceEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	traceDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR decoder mode: %v", err))
	}
}

// EncodeNotification encodes one notification as a CBOR item.
func EncodeNotification(n Notification) ([]byte, error) {
	return traceEncMode.Marshal(n)
}

// DecodeNotification decodes one CBOR item.
func DecodeNotification(data []byte) (Notification, error) {
	var n Notification
	if err := traceDecMode.Unmarshal(data, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// TraceSink appends every notification to a file as a sequence of CBOR items.
// It is safe for concurrent use.
type TraceSink struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	failed  bool
}

// NewTraceSink opens path for appending, creating it with mode 0644.
func NewTraceSink(path string) (*TraceSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, oops.Wrapf(err, "open trace file %s", path)
	}
	return &TraceSink{file: f, encoder: traceEncMode.NewEncoder(f)}, nil
}

// Notify implements Sink. Write errors are logged once and otherwise ignored
// so tracing never disturbs the state machine.
func (s *TraceSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.encoder.Encode(n); err != nil && !s.failed {
		s.failed = true
		log.WithError(err).WithFields(logger.Fields{
			"at":   "notify.TraceSink.Notify",
			"file": s.file.Name(),
		}).Error("trace write failed")
	}
}

// Close closes the trace file. Calling Close more than once is a no-op.
func (s *TraceSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// TraceReader streams notifications back out of a trace file.
type TraceReader struct {
	file    *os.File
	decoder *cbor.Decoder
}

// OpenTrace opens a trace file for reading.
func OpenTrace(path string) (*TraceReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, oops.Wrapf(err, "open trace file %s", path)
	}
	return &TraceReader{file: f, decoder: traceDecMode.NewDecoder(f)}, nil
}

// Next returns the next notification, or io.EOF at the end of the file.
func (r *TraceReader) Next() (Notification, error) {
	var n Notification
	if err := r.decoder.Decode(&n); err != nil {
		if errors.Is(err, io.EOF) {
			return Notification{}, io.EOF
		}
		return Notification{}, oops.Wrapf(err, "decode trace item")
	}
	return n, nil
}

// Close closes the underlying file.
func (r *TraceReader) Close() error {
	return r.file.Close()
}

var _ Sink = (*TraceSink)(nil)
