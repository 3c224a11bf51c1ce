package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-client/internal/asyncio"
	"github.com/tonimelisma/onedrive-client/internal/config"
	"github.com/tonimelisma/onedrive-client/internal/diagstore"
	"github.com/tonimelisma/onedrive-client/internal/driveid"
	"github.com/tonimelisma/onedrive-client/internal/driveops"
	"github.com/tonimelisma/onedrive-client/internal/driveops/pushnotify"
	"github.com/tonimelisma/onedrive-client/internal/graph"
)

// batchJob is one line of a batch manifest: a remote path paired with a
// local path, direction depending on the subcommand.
type batchJob struct {
	remotePath string
	localPath  string
}

// readManifest parses a manifest file: one job per line, fields separated by
// whitespace or a tab, "remote local" for get and "local remote" for put.
// Blank lines and lines starting with # are skipped.
func readManifest(path string) ([]batchJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %q: %w", path, err)
	}
	defer f.Close()

	var jobs []batchJob

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("manifest %q line %d: expected two fields, got %d", path, lineNo, len(fields))
		}

		jobs = append(jobs, batchJob{remotePath: fields[0], localPath: fields[1]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("manifest %q contains no jobs", path)
	}

	return jobs, nil
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run many transfers concurrently, tracked through a shared event set",
		Long: `Batch commands submit a manifest of transfers as asynchronous operations
tracked by a single event set, waiting on all of them with a shared deadline
instead of running one transfer at a time.`,
	}

	cmd.AddCommand(newBatchGetCmd())
	cmd.AddCommand(newBatchPutCmd())
	cmd.AddCommand(newBatchErrorsCmd())

	return cmd
}

func newBatchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <manifest>",
		Short: "Download every file listed in a manifest (\"remote-path local-path\" per line)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0], batchDirectionGet)
		},
	}
}

func newBatchPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <manifest>",
		Short: "Upload every file listed in a manifest (\"local-path remote-path\" per line)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0], batchDirectionPut)
		},
	}
}

type batchDirection int

const (
	batchDirectionGet batchDirection = iota
	batchDirectionPut
)

// batchClientAndDrive mirrors clientAndDrive's token-load-then-discover-drive
// sequence, but reads from the CLIContext's resolved config instead of the
// package-level resolvedCfg so batch commands don't depend on it.
func batchClientAndDrive(ctx context.Context, cc *CLIContext) (*graph.Client, driveid.ID, error) {
	tokenPath := config.DriveTokenPath(cc.Cfg.CanonicalID)
	if tokenPath == "" {
		return nil, driveid.ID{}, fmt.Errorf("cannot determine token path for drive %q", cc.Cfg.CanonicalID)
	}

	ts, err := graph.TokenSourceFromPath(ctx, tokenPath, cc.Logger)
	if err != nil {
		return nil, driveid.ID{}, fmt.Errorf("loading token: %w", err)
	}

	client := newTransferGraphClient(ts, cc.Logger)

	if !cc.Cfg.DriveID.IsZero() {
		return client, cc.Cfg.DriveID, nil
	}

	drives, err := client.Drives(ctx)
	if err != nil {
		return nil, driveid.ID{}, fmt.Errorf("discovering drive: %w", err)
	}

	if len(drives) == 0 {
		return nil, driveid.ID{}, fmt.Errorf("no drives found for this account")
	}

	return client, drives[0].ID, nil
}

func runBatch(ctx context.Context, manifestPath string, dir batchDirection) error {
	cc := mustCLIContext(ctx)

	jobs, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	// readManifest stores fields in get order; put manifests list the local
	// path first.
	if dir == batchDirectionPut {
		for i := range jobs {
			jobs[i].remotePath, jobs[i].localPath = jobs[i].localPath, jobs[i].remotePath
		}
	}

	client, driveID, err := batchClientAndDrive(ctx, cc)
	if err != nil {
		return err
	}

	store := driveops.NewSessionStore(config.DefaultDataDir(), cc.Logger)
	tm := driveops.NewTransferManager(client, client, store, cc.Logger)

	workers := cc.Cfg.BatchConfig.Workers
	asyncMgr := driveops.NewAsyncTransferManager(tm, workers, cc.Logger)

	if cc.Cfg.BatchConfig.PushNotify && cc.Cfg.SyncConfig.Websocket {
		cache := pushnotify.NewCache()

		pushClient, dialErr := pushnotify.DialWithDefaultTimeout(ctx, cc.Cfg.SyncConfig.WebsocketURL, cache, cc.Logger)
		if dialErr != nil {
			cc.Logger.Warn("batch: push notification relay unavailable, falling back to polling",
				slog.String("url", cc.Cfg.SyncConfig.WebsocketURL), slog.String("error", dialErr.Error()))
		} else {
			asyncMgr = asyncMgr.WithPushCache(cache)
			go func() {
				if runErr := pushClient.Run(ctx); runErr != nil {
					cc.Logger.Debug("batch: push relay closed", slog.String("error", runErr.Error()))
				}
			}()
			defer pushClient.Close()
		}
	}

	batchID := uuid.NewString()

	es := asyncio.New(asyncMgr, asyncio.WithLogger(cc.Logger))

	for _, job := range jobs {
		tok, submitErr := submitJob(ctx, client, asyncMgr, driveID, job, dir)
		if submitErr != nil {
			return fmt.Errorf("submitting %q: %w", job.remotePath, submitErr)
		}

		rec := asyncio.NewOperationRecord(batchAPIName(dir), batchAppSite(), version, tok)

		if appendErr := es.Append(rec); appendErr != nil {
			return fmt.Errorf("tracking %q: %w", job.remotePath, appendErr)
		}
	}

	timeout, err := parseBatchTimeout(cc.Cfg.BatchConfig.Timeout)
	if err != nil {
		return fmt.Errorf("batch.timeout: %w", err)
	}

	if err := waitForBatch(ctx, es, timeout, len(jobs)); err != nil {
		return err
	}

	failed := es.ErrStatus()

	if failed {
		infos, drainErr := es.DrainErrInfo(es.ErrCount())
		if drainErr != nil {
			cc.Logger.Warn("batch: partial error drain", slog.String("error", drainErr.Error()))
		}

		if archiveErr := archiveFailures(ctx, batchID, infos, cc.Logger); archiveErr != nil {
			cc.Logger.Warn("batch: could not archive failures", slog.String("error", archiveErr.Error()))
		}

		printBatchFailures(batchID, infos)
	}

	if closeErr := es.Close(); closeErr != nil {
		return fmt.Errorf("closing batch event set: %w", closeErr)
	}

	fmt.Fprintf(os.Stdout, "batch %s: %d job(s) submitted\n", batchID, len(jobs))

	if failed {
		return fmt.Errorf("batch %s completed with failures — see 'onedrive-go batch errors %s'", batchID, batchID)
	}

	return nil
}

func batchAPIName(dir batchDirection) string {
	if dir == batchDirectionPut {
		return "batch.put"
	}

	return "batch.get"
}

// batchAppSite captures the call site one frame up from Append's caller so
// drained diagnostics point at runBatch, not at asyncio internals.
func batchAppSite() asyncio.AppSite {
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		return asyncio.AppSite{File: "unknown", Func: "unknown", Line: 0}
	}

	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}

	return asyncio.AppSite{File: filepath.Base(file), Func: name, Line: line}
}

func submitJob(
	ctx context.Context, client *graph.Client, mgr *driveops.AsyncTransferManager,
	driveID driveid.ID, job batchJob, dir batchDirection,
) (asyncio.Token, error) {
	if dir == batchDirectionPut {
		parentPath, name := splitParentAndName(job.remotePath)

		parentItem, err := resolveItem(ctx, client, driveID, parentPath)
		if err != nil {
			return nil, fmt.Errorf("resolving parent %q: %w", parentPath, err)
		}

		fi, err := os.Stat(job.localPath)
		if err != nil {
			return nil, fmt.Errorf("stating %q: %w", job.localPath, err)
		}

		return mgr.SubmitUpload(ctx, driveID, parentItem.ID, name, job.localPath,
			driveops.UploadOpts{Mtime: fi.ModTime()})
	}

	item, err := resolveItem(ctx, client, driveID, job.remotePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", job.remotePath, err)
	}

	if item.IsFolder {
		return nil, fmt.Errorf("%q is a folder, not a file", job.remotePath)
	}

	return mgr.SubmitDownload(ctx, driveID, item.ID, job.localPath,
		driveops.DownloadOpts{RemoteHash: item.QuickXorHash, RemoteSize: item.Size})
}

// parseBatchTimeout parses the batch.timeout config string. "0" (or empty)
// means unlimited, matching the asyncio.Unlimited sentinel.
func parseBatchTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return asyncio.Unlimited, nil
	}

	return time.ParseDuration(s)
}

// waitForBatch drives the event set's Wait Engine in a loop, printing a
// one-line progress update between sweeps, until the active list drains or
// the overall timeout elapses.
func waitForBatch(ctx context.Context, es *asyncio.EventSet, timeout time.Duration, total int) error {
	deadline := time.Now().Add(timeout)
	useColor := isatty.IsTerminal(os.Stdout.Fd())

	for es.Count() > 0 {
		budget := time.Until(deadline)
		if timeout == asyncio.Unlimited {
			budget = 5 * time.Second
		} else if budget <= 0 {
			return fmt.Errorf("batch timed out after %s with %d job(s) still in progress", timeout, es.Count())
		} else if budget > 5*time.Second {
			budget = 5 * time.Second
		}

		report, err := es.Wait(ctx, budget)
		if err != nil {
			return fmt.Errorf("waiting on batch: %w", err)
		}

		printProgress(report, total, useColor)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return nil
}

func printProgress(report asyncio.Report, total int, useColor bool) {
	done := total - report.NumInProgress

	line := fmt.Sprintf("\r%d/%d complete", done, total)
	if report.Failed {
		line += colorize(" (failures pending)", "31", useColor)
	}

	fmt.Fprint(os.Stderr, line)
}

func colorize(s, ansiCode string, enabled bool) string {
	if !enabled {
		return s
	}

	return "\x1b[" + ansiCode + "m" + s + "\x1b[0m"
}

func archiveFailures(ctx context.Context, batchID string, infos []asyncio.ErrInfo, logger *slog.Logger) error {
	store, err := diagstore.Open(ctx, filepath.Join(config.DefaultDataDir(), "batch-diagnostics.db"), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SaveBatch(ctx, batchID, infos)
}

func printBatchFailures(batchID string, infos []asyncio.ErrInfo) {
	fmt.Fprintf(os.Stderr, "\nbatch %s: %d failure(s)\n", batchID, len(infos))

	for _, info := range infos {
		fmt.Fprintf(os.Stderr, "  [%d] %s at %s:%d (%s)\n", info.Counter, info.APIName, info.AppFile, info.AppLine, info.Status)
	}
}

func newBatchErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors <batch-id>",
		Short: "List archived diagnostics for a previously run batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchErrors(cmd.Context(), args[0])
		},
	}

	cmd.Annotations = map[string]string{skipConfigAnnotation: "true"}

	return cmd
}

func runBatchErrors(ctx context.Context, batchID string) error {
	store, err := diagstore.Open(ctx, filepath.Join(config.DefaultDataDir(), "batch-diagnostics.db"), slog.Default())
	if err != nil {
		return fmt.Errorf("opening diagnostics archive: %w", err)
	}
	defer store.Close()

	records, err := store.ListByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("listing batch %q: %w", batchID, err)
	}

	if len(records) == 0 {
		fmt.Fprintf(os.Stdout, "no archived diagnostics for batch %q\n", batchID)
		return nil
	}

	useColor := isatty.IsTerminal(os.Stdout.Fd())

	headers := []string{"#", "API", "STATUS", "SITE", "MESSAGE"}
	rows := make([][]string, 0, len(records))

	for _, rec := range records {
		status := rec.Status
		if useColor && status == "FAIL" {
			status = colorize(status, "31", true)
		}

		rows = append(rows, []string{
			strconv.FormatUint(rec.OpCounter, 10),
			rec.APIName,
			status,
			fmt.Sprintf("%s:%d", rec.AppFile, rec.AppLine),
			rec.Message,
		})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
