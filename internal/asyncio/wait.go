package asyncio

import (
	"context"
	"log/slog"
	"time"
)

// Unlimited is the sentinel budget meaning "block indefinitely".
const Unlimited = time.Duration(1<<63 - 1)

// Report summarizes the outcome of one Wait call.
type Report struct {
	// NumInProgress is the count of records still IN_PROGRESS at the
	// moment Wait stopped. On fast-fail it reflects the state at that
	// instant and may be stale relative to what a subsequent poll would
	// report.
	NumInProgress int
	// Failed is true if any operation in this EventSet has ever failed
	// (this sweep or a previous one) and diagnostics have not since been
	// fully drained.
	Failed bool
}

// Wait drives progress on the active list until the active list empties, a
// full sweep observes at least one FAIL/CANCEL transition (fast-fail), or
// budget is exhausted and a full sweep made no SUCCEED progress either.
//
// budget <= 0 means poll once without blocking. Wait on an empty active
// list is a no-op returning NumInProgress=0, Failed=es.ErrStatus().
//
// Wait itself returns a non-nil error only when the Runtime reports a
// structural failure (KindCantWait) — per-operation outcomes are never
// surfaced through Wait's return value; inspect ErrStatus/ErrCount/
// DrainErrInfo for those.
func (es *EventSet) Wait(ctx context.Context, budget time.Duration) (Report, error) {
	if budget < 0 {
		budget = 0
	}

	start := time.Now()

	for {
		anyFailed := false
		anySucceeded := false
		var pollErr error

		es.active.Walk(func(rec *OperationRecord) Disposition {
			perRecordBudget := budget - time.Since(start)
			if perRecordBudget < 0 {
				perRecordBudget = 0
			}

			status, err := es.runtime.Poll(ctx, rec.Token, perRecordBudget)
			if err != nil {
				pollErr = err
				return Stop
			}

			switch status {
			case InProgress:
				return Keep

			case Succeed:
				anySucceeded = true
				es.active.Remove(rec)

				if relErr := es.runtime.Release(rec.Token); relErr != nil {
					es.logger.Warn("asyncio: releasing token after success failed",
						slog.Uint64("counter", rec.Counter),
						slog.String("error", relErr.Error()),
					)
				}

				es.fireComplete(rec, Succeed)

				return Unlinked

			case Fail, Cancel:
				anyFailed = true
				rec.Status = status
				es.active.Remove(rec)
				es.failed.PushBack(rec)
				es.errFlag = true

				es.fireComplete(rec, status)

				return Unlinked

			default:
				return Keep
			}
		})

		if pollErr != nil {
			return Report{}, newError(KindCantWait, pollErr)
		}

		if anyFailed {
			break
		}

		if es.active.Len() == 0 {
			break
		}

		remaining := budget - time.Since(start)
		if remaining <= 0 && !anySucceeded {
			break
		}
	}

	return Report{
		NumInProgress: es.active.Len(),
		Failed:        es.errFlag,
	}, nil
}

// fireComplete invokes the installed CompleteFunc, if any, after rec has
// already been transplanted out of the active list. Errors are logged, not
// propagated: a misbehaving hook must never abort the sweep.
func (es *EventSet) fireComplete(rec *OperationRecord, final Status) {
	if es.completeFunc == nil {
		return
	}

	if err := es.completeFunc(rec.APIName, rec.AppSite, rec.AppVersion, rec.Counter, rec.Timestamp, final, es.userCtx); err != nil {
		es.logger.Warn("asyncio: complete callback failed",
			slog.Uint64("counter", rec.Counter),
			slog.String("error", err.Error()),
		)
	}
}
