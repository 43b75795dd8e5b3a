package pipeline

import (
	"certgen/config"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Converter drives the external headless document converter. Each
// invocation gets its own profile and output directory so concurrent
// conversions never share converter state, a hard timeout so a hung
// converter is killed instead of blocking the worker, and a post-hoc size
// check so a silently corrupt output is treated as a failure.
type Converter struct {
	Bin      string
	Timeout  time.Duration
	Retries  int
	MinBytes int64
	Backoff  time.Duration // first retry delay, doubled per attempt
	WorkRoot string

	sem *semaphore.Weighted
}

// NewConverter builds a converter from application config. workRoot holds
// the per-invocation scratch directories.
func NewConverter(workRoot string) *Converter {
	cfg := config.AppConfig
	return &Converter{
		Bin:      cfg.ConverterBin,
		Timeout:  time.Duration(cfg.ConverterTimeoutSec) * time.Second,
		Retries:  cfg.ConverterRetries,
		MinBytes: int64(cfg.ConverterMinBytes),
		Backoff:  time.Second,
		WorkRoot: workRoot,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentConversions)),
	}
}

// Convert turns the source document at sourcePath into a PDF and returns
// the produced file's path, directly under WorkRoot. The caller publishes
// it through the artifact store and removes it. Failed attempts are retried
// with exponential backoff up to the configured ceiling; a misconfigured
// ceiling still gets one attempt.
func (cv *Converter) Convert(ctx context.Context, sourcePath string) (string, error) {
	if cv.sem != nil {
		if err := cv.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("%w: %v", ErrConversionProcess, err)
		}
		defer cv.sem.Release(1)
	}

	backoff := cv.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	attempts := cv.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrConversionProcess, ctx.Err())
			}
			backoff *= 2
		}

		out, err := cv.convertOnce(ctx, sourcePath)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return "", lastErr
}

// convertOnce runs a single converter invocation in an isolated work dir.
func (cv *Converter) convertOnce(ctx context.Context, sourcePath string) (string, error) {
	workDir := filepath.Join(cv.WorkRoot, uuid.NewString())
	outDir := filepath.Join(workDir, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionProcess, err)
	}
	defer os.RemoveAll(workDir)

	runCtx, cancel := context.WithTimeout(ctx, cv.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cv.Bin,
		"-env:UserInstallation=file://"+filepath.Join(workDir, "profile"),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		sourcePath,
	)

	// The converter forks helper processes; on timeout the whole process
	// group must die, or orphaned helpers keep the output pipes open and
	// the call never returns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w after %s", ErrConversionTimeout, cv.Timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrConversionProcess, err, strings.TrimSpace(string(output)))
	}

	base := filepath.Base(sourcePath)
	produced := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")

	info, err := os.Stat(produced)
	if err != nil {
		return "", fmt.Errorf("%w: no output produced at %s", ErrConversionProcess, produced)
	}
	if info.Size() < cv.MinBytes {
		return "", fmt.Errorf("%w: output %d bytes, below sanity threshold %d", ErrConversionProcess, info.Size(), cv.MinBytes)
	}

	// Move the result out before the scratch dir goes away; the caller owns
	// the file from here.
	final := filepath.Join(cv.WorkRoot, uuid.NewString()+".pdf")
	if err := os.Rename(produced, final); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionProcess, err)
	}

	return final, nil
}
