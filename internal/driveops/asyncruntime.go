package driveops

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/onedrive-client/internal/asyncio"
	"github.com/tonimelisma/onedrive-client/internal/driveid"
	"github.com/tonimelisma/onedrive-client/internal/driveops/pushnotify"
)

// asyncToken is the asyncio.Token backing one submitted transfer. It owns
// the channel the launching goroutine closes on completion and the
// diagnostic frames captured if the transfer failed.
type asyncToken struct {
	id string

	mu     sync.Mutex
	done   chan struct{}
	status asyncio.Status
	err    error
	frames []asyncio.Frame
}

func (t *asyncToken) ID() string { return t.id }

func (t *asyncToken) finish(status asyncio.Status, err error) {
	t.mu.Lock()
	t.status = status
	t.err = err
	if status != asyncio.Succeed {
		t.frames = captureFrames()
	}
	t.mu.Unlock()

	close(t.done)
}

func (t *asyncToken) snapshot() (asyncio.Status, error, []asyncio.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status, t.err, t.frames
}

// captureFrames walks the goroutine's call stack at failure time, producing
// the same shape of diagnostic the CLI already logs via slog, but retained
// for later extraction through DrainErrInfo.
func captureFrames() []asyncio.Frame {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return nil
	}

	framesIter := runtime.CallersFrames(pc[:n])
	frames := make([]asyncio.Frame, 0, n)

	for {
		f, more := framesIter.Next()
		frames = append(frames, asyncio.Frame{File: f.File, Func: f.Function, Line: f.Line})
		if !more {
			break
		}
	}

	return frames
}

// AsyncTransferManager issues TransferManager downloads and uploads as
// background goroutines bounded by a weighted semaphore, and implements
// asyncio.Runtime so an asyncio.EventSet can track their completion.
//
// Submission (SubmitDownload/SubmitUpload) returns as soon as a worker slot
// is acquired and the goroutine has been launched; the caller wraps the
// returned Token in an OperationRecord and Appends it onto an EventSet, then
// later Wait on that EventSet to observe progress.
type AsyncTransferManager struct {
	tm        *TransferManager
	sem       *semaphore.Weighted
	logger    *slog.Logger
	pushCache *pushnotify.Cache // nil when push notifications are disabled
}

// NewAsyncTransferManager wraps tm so its transfers can be issued
// asynchronously. maxConcurrent bounds the number of transfers in flight at
// once; values <= 0 default to 4.
func NewAsyncTransferManager(tm *TransferManager, maxConcurrent int, logger *slog.Logger) *AsyncTransferManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &AsyncTransferManager{
		tm:     tm,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger,
	}
}

// WithPushCache attaches a pushnotify.Cache so Poll can short-circuit on a
// server-pushed completion instead of waiting on the goroutine's own done
// channel. Safe to call once, before any Submit call.
func (m *AsyncTransferManager) WithPushCache(cache *pushnotify.Cache) *AsyncTransferManager {
	m.pushCache = cache
	return m
}

// SubmitDownload acquires a worker slot and launches DownloadToFile in a new
// goroutine, returning a Token for the caller to Append onto an EventSet.
// Acquisition itself blocks on ctx — a full worker pool backpressures the
// submitter rather than queuing unboundedly.
func (m *AsyncTransferManager) SubmitDownload(
	ctx context.Context, driveID driveid.ID, itemID, targetPath string, opts DownloadOpts,
) (asyncio.Token, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring transfer slot: %w", err)
	}

	tok := &asyncToken{id: uuid.NewString(), done: make(chan struct{})}

	go func() {
		defer m.sem.Release(1)

		_, err := m.tm.DownloadToFile(ctx, driveID, itemID, targetPath, opts)
		if err != nil {
			m.logger.Warn("async download failed",
				slog.String("item_id", itemID),
				slog.String("target", targetPath),
				slog.String("token", tok.id),
				slog.String("error", err.Error()),
			)
			tok.finish(asyncio.Fail, err)
			return
		}

		tok.finish(asyncio.Succeed, nil)
	}()

	return tok, nil
}

// SubmitUpload acquires a worker slot and launches UploadFile in a new
// goroutine, returning a Token for the caller to Append onto an EventSet.
func (m *AsyncTransferManager) SubmitUpload(
	ctx context.Context, driveID driveid.ID, parentID, name, localPath string, opts UploadOpts,
) (asyncio.Token, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring transfer slot: %w", err)
	}

	tok := &asyncToken{id: uuid.NewString(), done: make(chan struct{})}

	go func() {
		defer m.sem.Release(1)

		_, err := m.tm.UploadFile(ctx, driveID, parentID, name, localPath, opts)
		if err != nil {
			m.logger.Warn("async upload failed",
				slog.String("name", name),
				slog.String("path", localPath),
				slog.String("token", tok.id),
				slog.String("error", err.Error()),
			)
			tok.finish(asyncio.Fail, err)
			return
		}

		tok.finish(asyncio.Succeed, nil)
	}()

	return tok, nil
}

// Poll implements asyncio.Runtime. A zero budget is a non-blocking check; a
// positive budget blocks up to that long, or until ctx is done, for the
// token's goroutine to finish.
func (m *AsyncTransferManager) Poll(ctx context.Context, token asyncio.Token, budget time.Duration) (asyncio.Status, error) {
	tok, ok := token.(*asyncToken)
	if !ok {
		return asyncio.InProgress, fmt.Errorf("asyncruntime: token %T not issued by this runtime", token)
	}

	if m.pushCache != nil {
		if done, failed := m.pushCache.Check(tok.id); done {
			m.pushCache.Forget(tok.id)
			if failed {
				return asyncio.Fail, nil
			}
			return asyncio.Succeed, nil
		}
	}

	if budget <= 0 {
		select {
		case <-tok.done:
			status, _, _ := tok.snapshot()
			return status, nil
		default:
			return asyncio.InProgress, nil
		}
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-tok.done:
		status, _, _ := tok.snapshot()
		return status, nil
	case <-timer.C:
		return asyncio.InProgress, nil
	case <-ctx.Done():
		return asyncio.InProgress, nil
	}
}

// SnapshotDiagnostics implements asyncio.Runtime.
func (m *AsyncTransferManager) SnapshotDiagnostics(token asyncio.Token) (asyncio.DiagnosticStack, error) {
	tok, ok := token.(*asyncToken)
	if !ok {
		return asyncio.DiagnosticStack{}, fmt.Errorf("asyncruntime: token %T not issued by this runtime", token)
	}

	_, err, frames := tok.snapshot()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	return asyncio.DiagnosticStack{Frames: frames, Message: msg}, nil
}

// Release implements asyncio.Runtime. Tokens hold no external resources
// beyond the goroutine's own completion channel, so Release is a no-op; it
// exists to satisfy the interface and keep the asyncio package free of any
// awareness of how a transfer token is produced.
func (m *AsyncTransferManager) Release(token asyncio.Token) error {
	return nil
}
