package asyncio

import (
	"log/slog"
	"time"
)

// InsertFunc is invoked with the counter a record is about to receive, before
// the counter is stored on the record and before the record becomes visible
// to a concurrent waiter. A non-nil error aborts the Append
// that triggered it; the record is not linked into the active list.
type InsertFunc func(apiName string, site AppSite, appVersion string, counter uint64, ts time.Time, userCtx any) error

// CompleteFunc is invoked once per record, after it has been transplanted
// out of the active list (freed on success, moved to failed on FAIL/CANCEL).
// A non-nil error is logged by the caller of Wait but never aborts the
// sweep.
type CompleteFunc func(apiName string, site AppSite, appVersion string, counter uint64, ts time.Time, final Status, userCtx any) error

// EventSet aggregates the active and failed operation lists for one logical
// batch of asynchronous work. It is not safe for concurrent use: every
// public method is expected to run under whatever API-wide guard the
// embedding application already provides (see spec §5 — single-threaded
// cooperative per event set).
type EventSet struct {
	active *EventList
	failed *EventList

	opCounter uint64
	errFlag   bool

	insertFunc   InsertFunc
	completeFunc CompleteFunc
	userCtx      any

	runtime Runtime
	logger  *slog.Logger
}

// Option configures a new EventSet.
type Option func(*EventSet)

// WithInsertFunc installs a hook invoked on every Append, before the record
// is linked; its error makes that Append fail.
func WithInsertFunc(fn InsertFunc) Option {
	return func(es *EventSet) { es.insertFunc = fn }
}

// WithCompleteFunc installs a hook invoked on every record the Wait Engine
// finalizes (success or failure).
func WithCompleteFunc(fn CompleteFunc) Option {
	return func(es *EventSet) { es.completeFunc = fn }
}

// WithUserContext attaches an opaque value passed verbatim to both hooks.
func WithUserContext(ctx any) Option {
	return func(es *EventSet) { es.userCtx = ctx }
}

// WithLogger installs a logger used for non-fatal diagnostics (currently:
// token release failures observed during Close). Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(es *EventSet) { es.logger = logger }
}

// New creates an empty EventSet bound to the given Runtime. It never fails
// except on allocation exhaustion, which in Go manifests as an out-of-memory
// panic rather than a returned error — callers do not need to check for
// ErrAlloc here.
func New(runtime Runtime, opts ...Option) *EventSet {
	es := &EventSet{
		active:  NewEventList(),
		failed:  NewEventList(),
		runtime: runtime,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Append assigns rec.Counter, advances the internal counter, and links rec
// onto the active list. If an InsertFunc is installed it runs first (with
// the assigned counter and a fresh timestamp); a non-nil error from it is
// returned as the Append failure and rec is not linked.
func (es *EventSet) Append(rec *OperationRecord) error {
	counter := es.opCounter
	ts := time.Now()

	if es.insertFunc != nil {
		if err := es.insertFunc(rec.APIName, rec.AppSite, rec.AppVersion, counter, ts, es.userCtx); err != nil {
			return err
		}
	}

	rec.Counter = counter
	rec.Timestamp = ts
	rec.Status = InProgress
	es.opCounter++
	es.active.PushBack(rec)

	return nil
}

// Count returns the number of operations still in progress. Failed records
// are not counted.
func (es *EventSet) Count() int {
	return es.active.Len()
}

// OpCounterPeek returns the counter value the next Append will assign.
// Wrapper libraries use this to pre-correlate a logged API call with the
// counter its insertion is about to receive.
func (es *EventSet) OpCounterPeek() uint64 {
	return es.opCounter
}

// ErrStatus reports whether any record has, at some point, transitioned
// into the failed list and not yet been fully extracted.
func (es *EventSet) ErrStatus() bool {
	return es.errFlag
}

// ErrCount returns the number of records currently in the failed list, or 0
// if ErrStatus is false. It may underreport: operations not yet polled by
// Wait have not been classified.
func (es *EventSet) ErrCount() int {
	if !es.errFlag {
		return 0
	}

	return es.failed.Len()
}

// Close refuses to tear down an EventSet with in-progress operations
// (KindBusy), so tokens and diagnostics are never silently leaked. On
// success it releases every token still held by records in the failed list.
func (es *EventSet) Close() error {
	if es.active.Len() > 0 {
		return newError(KindBusy, nil)
	}

	es.failed.Walk(func(rec *OperationRecord) Disposition {
		es.failed.Remove(rec)

		if err := es.runtime.Release(rec.Token); err != nil {
			es.logger.Warn("asyncio: releasing token during close failed",
				slog.Uint64("counter", rec.Counter),
				slog.String("error", err.Error()),
			)
		}

		return Unlinked
	})

	es.errFlag = false

	return nil
}
