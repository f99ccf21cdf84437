// Package exporter holds what the Cloud Trace and Cloud Monitoring exporters
// share: result codes, the active/shut-down lifecycle and the batch policy.
package exporter

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"

	"github.com/masa23/cloudexport"
)

// ResultCode is the outcome of an export, flush or shutdown.
type ResultCode int

const (
	Success ResultCode = iota
	Failure
)

func (r ResultCode) String() string {
	if r == Success {
		return "SUCCESS"
	}
	return "FAILURE"
}

// Result maps a nil error to Success and anything else to Failure.
func Result(err error) ResultCode {
	if err != nil {
		return Failure
	}
	return Success
}

var (
	// ErrClosedExporter is returned by calls made after Shutdown.
	ErrClosedExporter = errors.New("exporter is shut down")
	// ErrFlushUnsupported is returned by flushes. Exports are synchronous, so
	// there is never anything buffered.
	ErrFlushUnsupported = errors.New("flush is not supported")
)

// State is the exporter lifecycle: active until the first Close.
type State struct {
	closed atomic.Bool
}

func (s *State) Closed() bool {
	return s.closed.Load()
}

// Close moves to the shut-down state. It reports true only to the first caller.
func (s *State) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

// Translate applies translate to every record according to policy.
// With SkipInvalid, untranslatable records are logged and counted; an error is
// returned only when every record was dropped. With AbortBatch, the first error
// is returned.
func Translate[In, Out any](kind string, records []In, policy cloudexport.BatchPolicy, translate func(In) (Out, error)) ([]Out, int, error) {
	out := make([]Out, 0, len(records))
	dropped := 0
	var lastErr error
	for _, r := range records {
		o, err := translate(r)
		if err != nil {
			if policy == cloudexport.AbortBatch {
				ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("aborting %s batch size=%d err=%+v", kind, len(records), err)))
				return nil, len(records), err
			}
			ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("dropping %s err=%+v", kind, err)))
			dropped++
			lastErr = err
			continue
		}
		out = append(out, o)
	}
	if dropped > 0 {
		ltsvlog.Logger.Info().Fmt("msg", "dropped %d of %d %s records", dropped, len(records), kind).Log()
	}
	if len(out) == 0 && lastErr != nil {
		return nil, dropped, fmt.Errorf("all %d %s records dropped: %w", dropped, kind, lastErr)
	}
	return out, dropped, nil
}
