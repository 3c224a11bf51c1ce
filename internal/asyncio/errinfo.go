package asyncio

import "time"

// ErrInfo is a self-contained diagnostic record for one failed operation,
// copied out of its OperationRecord at extraction time. The caller owns
// every field; there is no separate deallocator in Go — dropping the slice
// is sufficient (see SPEC_FULL.md open-question decisions).
type ErrInfo struct {
	APIName    string
	AppFile    string
	AppFunc    string
	AppLine    uint32
	AppVersion string
	Counter    uint64
	Timestamp  time.Time
	Status     Status
	Stack      DiagnosticStack
}

// DrainErrInfo walks the failed list in insertion order, copying up to max
// entries into the returned slice. Each drained record's token is released
// and the record is freed. errFlag clears only when this call empties the
// failed list completely; a partial drain leaves it set.
//
// It is a usage error to call DrainErrInfo with max <= 0.
func (es *EventSet) DrainErrInfo(max int) ([]ErrInfo, error) {
	if max <= 0 {
		return nil, newError(KindBadValue, nil)
	}

	out := make([]ErrInfo, 0, min(max, es.failed.Len()))
	var firstErr error

	es.failed.Walk(func(rec *OperationRecord) Disposition {
		if len(out) >= max {
			return Stop
		}

		stack, err := es.runtime.SnapshotDiagnostics(rec.Token)
		if err != nil && firstErr == nil {
			firstErr = err
		}

		out = append(out, ErrInfo{
			APIName:    rec.APIName,
			AppFile:    rec.AppSite.File,
			AppFunc:    rec.AppSite.Func,
			AppLine:    uint32(rec.AppSite.Line),
			AppVersion: rec.AppVersion,
			Counter:    rec.Counter,
			Timestamp:  rec.Timestamp,
			Status:     rec.Status,
			Stack:      stack,
		})

		es.failed.Remove(rec)

		if relErr := es.runtime.Release(rec.Token); relErr != nil && firstErr == nil {
			firstErr = relErr
		}

		return Unlinked
	})

	if es.failed.Len() == 0 {
		es.errFlag = false
	}

	if firstErr != nil {
		return out, newError(KindCantGet, firstErr)
	}

	return out, nil
}
