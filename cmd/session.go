package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tarm/serial"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/darkhz/btspp/config"
	"github.com/darkhz/btspp/pipe"
	"github.com/darkhz/btspp/spp"
	"github.com/darkhz/btspp/stack"
	"github.com/darkhz/btspp/ui/console"
)

const (
	// pollInterval is how often the pipe is checked for received bytes.
	pollInterval = 50 * time.Millisecond

	// bridgeReadTimeout bounds a single read from the serial port.
	bridgeReadTimeout = 100 * time.Millisecond
)

// sessionLink is a role with an open or opening link.
type sessionLink interface {
	console.Link
	WaitReady(ctx context.Context) error
	Deinit() error
}

// runSession exchanges bytes over the link in the configured mode until ctx
// is done, then closes the link.
func runSession(ctx context.Context, role string, link sessionLink, v config.Values, log *zap.Logger) error {
	var err error

	switch {
	case v.Console:
		err = console.New(link, console.Options{
			Role:        role,
			Theme:       v.Colors,
			Keybindings: v.Kb,
			Logger:      log,
		}).Run(ctx)

	case v.Bridge != "":
		err = bridge(ctx, link, v, log)

	default:
		err = stdio(ctx, link, os.Stdin, os.Stdout, log)
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if link.Ready() {
		if cerr := link.Close(); cerr != nil {
			log.Warn("Cannot close the link", zap.Error(cerr))
		}
	}

	if v.JSON {
		if jerr := writeJSON(os.Stdout, newReport(role, link)); jerr != nil && err == nil {
			err = jerr
		}
	}

	return err
}

// waitReady shows a spinner until the link is ready, ctx is done, or the
// timeout elapses. A zero timeout waits indefinitely.
func waitReady(ctx context.Context, link sessionLink, timeout time.Duration, description string) error {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	defer bar.Finish()

	done := make(chan error, 1)
	go func() {
		done <- link.WaitReady(ctx)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("no connection within %s (state: %s)", timeout, link.StateTitle())
			}

			return err

		case <-ticker.C:
			bar.Describe(description + " (" + link.StateTitle() + ")")
			bar.Add(1)
		}
	}
}

// stdio sends each line read from in over the link, and writes the
// received bytes to out.
func stdio(ctx context.Context, link sessionLink, in io.Reader, out io.Writer, log *zap.Logger) error {
	lines := make(chan string)
	go scanLines(ctx, in, lines)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pumpOut(ctx, link, out)
	})
	g.Go(func() error {
		return pumpLines(ctx, link, lines, log)
	})

	return g.Wait()
}

// bridge moves bytes between the link and a local serial port.
func bridge(ctx context.Context, link sessionLink, v config.Values, log *zap.Logger) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        v.Bridge,
		Baud:        v.Baud,
		ReadTimeout: bridgeReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", v.Bridge, err)
	}
	defer port.Close()

	log.Info("Bridging serial port", zap.String("port", v.Bridge), zap.Int("baud", v.Baud))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pumpOut(ctx, link, port)
	})
	g.Go(func() error {
		return pumpReader(ctx, link, port, log)
	})

	return g.Wait()
}

// pumpOut polls the link for received bytes and writes them to w.
func pumpOut(ctx context.Context, link sessionLink, w io.Writer) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
		}

		count, err := link.Available()
		if err != nil || count == 0 {
			continue
		}

		data, err := link.ReceiveBinary(count)
		if err != nil {
			if errors.Is(err, pipe.ErrNoData) {
				continue
			}

			return err
		}

		if _, err := w.Write(data); err != nil {
			return err
		}
	}
}

// pumpLines sends lines over the link. Lines that cannot be sent are dropped.
// It returns when lines is closed, which leaves the receiving side running.
func pumpLines(ctx context.Context, link sessionLink, lines <-chan string, log *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				log.Debug("Input closed")
				return nil
			}

			if _, err := link.Write([]byte(line + "\n")); err != nil {
				if errors.Is(err, spp.ErrNotReady) {
					log.Warn("Not connected, line dropped", zap.Int("length", len(line)))
					continue
				}

				log.Warn("Cannot send line", zap.Error(err))
			}
		}
	}
}

// pumpReader sends the bytes read from r over the link.
func pumpReader(ctx context.Context, link sessionLink, r io.Reader, log *zap.Logger) error {
	buf := make([]byte, stack.MaxPayload)

	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := link.Write(buf[:n]); werr != nil {
				log.Warn("Bytes from the serial port dropped", zap.Int("count", n), zap.Error(werr))
			}
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}

	return ctx.Err()
}

func scanLines(ctx context.Context, r io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
