// Command sse_load opens many concurrent subscriptions to a truthboard SSE
// stream and reports connection and event counts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	url         string
	connections int
	duration    time.Duration
	rampUp      time.Duration
}

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

func (s *stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("connected", s.connected.Load()),
		zap.Int64("connect_errs", s.connectErrs.Load()),
		zap.Int64("stream_errs", s.streamErrs.Load()),
		zap.Int64("events", s.events.Load()),
	}
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "sse_load",
		Short: "Load test the loading or balance SSE stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			st, err := run(ctx, opts, logger)
			if err != nil {
				return err
			}
			elapsed := max(time.Since(start), time.Millisecond)
			fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f\n",
				st.connected.Load(), st.connectErrs.Load(), st.streamErrs.Load(), st.events.Load(),
				elapsed.Truncate(time.Millisecond), float64(st.events.Load())/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080/loading/stream", "SSE endpoint URL")
	cmd.Flags().IntVar(&opts.connections, "conns", 1000, "number of concurrent connections to open")
	cmd.Flags().DurationVar(&opts.duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	cmd.Flags().DurationVar(&opts.rampUp, "ramp", 0, "spread connection starts across this window")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) (*stats, error) {
	if opts.connections <= 0 {
		return nil, fmt.Errorf("invalid conns: %d", opts.connections)
	}
	if opts.rampUp == 0 && opts.connections > 100 {
		// 1s per 500 connections
		opts.rampUp = max(time.Duration(opts.connections/500)*time.Second, time.Second)
		logger.Info("using default ramp-up", zap.Duration("ramp", opts.rampUp))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     opts.connections + 100,
			MaxIdleConns:        opts.connections + 100,
			MaxIdleConnsPerHost: opts.connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	logger.Info("starting SSE load",
		zap.String("url", opts.url), zap.Int("conns", opts.connections),
		zap.Duration("duration", opts.duration), zap.Duration("ramp", opts.rampUp))

	st := &stats{}
	var wg sync.WaitGroup

	var interval time.Duration
	if opts.rampUp > 0 {
		interval = opts.rampUp / time.Duration(opts.connections)
	}

	go report(ctx, st, logger)

	for i := 0; i < opts.connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, opts.url, st)
		}()
	}

	wg.Wait()
	return st, nil
}

func subscribe(ctx context.Context, client *http.Client, url string, st *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		st.connectErrs.Add(1)
		return
	}

	st.connected.Add(1)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				st.streamErrs.Add(1)
			}
			return
		}
		// one event per "event:" line, heartbeats are comments
		if strings.HasPrefix(line, "event:") {
			st.events.Add(1)
		}
	}
}

func report(ctx context.Context, st *stats, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("status", st.fields()...)
		}
	}
}
