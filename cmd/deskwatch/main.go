package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"deskwatch/internal/api"
	"deskwatch/internal/cfg"
	"deskwatch/internal/clipboard"
	"deskwatch/internal/desk"
	"deskwatch/internal/metrics"
	"deskwatch/internal/poll"
	"deskwatch/internal/storage"
	"deskwatch/internal/tui"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		logLevel = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
		copyWhat = flag.String("copy", "", "Copy one report and exit: snapshot, compact, context, positions, backtest")
		show     = flag.String("show", "", "Print one desk resource as JSON and exit: positions, bots, events, pnl, alerts")
		noTUI    = flag.Bool("no-tui", false, "Run headless and log to stderr")

		btStrategy   = flag.String("strategy", "", "Backtest report title (default: symbols)")
		btSymbols    = flag.String("symbols", "", "Comma-separated backtest symbols")
		btStart      = flag.String("start", "", "Backtest start date (YYYY-MM-DD)")
		btEnd        = flag.String("end", "", "Backtest end date (YYYY-MM-DD)")
		btSide       = flag.String("side", "LONG", "Backtest side: LONG or SHORT")
		btStopLoss   = flag.Float64("stop-loss", 1, "Backtest stop loss percent")
		btTakeProfit = flag.Float64("take-profit", 2, "Backtest take profit percent")
		btSize       = flag.Float64("position-size", 1000, "Backtest position size in dollars")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	headless := *noTUI || *copyWhat != "" || *show != ""
	logFile := setupLogging(c, headless)
	if logFile != nil {
		defer logFile.Close()
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	client := api.NewClient(c.APIURL, c.RESTTimeout)

	if *show != "" {
		os.Exit(showResource(c, client, *show))
	}
	if *copyWhat != "" {
		bt := backtestReport{
			strategy: *btStrategy,
			req: api.BacktestRequest{
				Symbols:       splitSymbols(*btSymbols),
				DateStart:     *btStart,
				DateEnd:       *btEnd,
				StopLossPct:   *btStopLoss,
				TakeProfitPct: *btTakeProfit,
				Side:          *btSide,
				PositionSize:  *btSize,
			},
		}
		os.Exit(copyOnce(c, client, mw, *copyWhat, bt))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.MetricsPort > 0 {
		startMetricsServer(ctx, c)
	}

	store := initializeStorage(c, mw)
	if store != nil {
		defer store.Close()
	}

	manager := desk.NewManager(c.WsURL, desk.NewWSDialer(c.PingInterval), desk.Options{
		ReconnectDelay: c.ReconnectDelay,
		Metrics:        mw,
	})
	defer manager.Teardown()

	var wg sync.WaitGroup
	if store != nil {
		startJournal(ctx, &wg, manager, store)
	}

	refreshers := startRefreshers(ctx, c, client, store, mw)
	defer func() {
		for _, r := range refreshers {
			r.Stop()
		}
	}()

	manager.Connect()

	if headless {
		startEventLogger(ctx, &wg, manager)
		waitForShutdown(ctx, cancel, &wg)
		return
	}

	surface := tui.NewSurface()
	copier := clipboard.NewService(clipboard.Options{
		Capabilities:   clipboard.DetectCapabilities(),
		Native:         clipboard.NewNativeStrategy(),
		Legacy:         clipboard.NewOSC52Strategy(),
		Surface:        savingSurface{next: surface, dir: c.ManualCopyDir},
		SuccessDisplay: c.ClipboardSuccessDisplay,
		FailureDisplay: c.ClipboardFailureDisplay,
		Metrics:        mw,
	})

	events, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	pollers := make([]tui.Poller, 0, len(refreshers))
	for _, r := range refreshers {
		pollers = append(pollers, r)
	}

	model := tui.New(tui.Config{
		Events:  events,
		Manuals: surface.Manuals(),
		Copier:  copier,
		Reports: client,
		Pollers: pollers,
		Cached:  cachedSnapshot(store),
	})

	// Inline rendering keeps the terminal scrollback usable for manual copies.
	if _, err := tea.NewProgram(model).Run(); err != nil {
		log.Error().Err(err).Msg("dashboard exited with error")
	}
	cancel()
	waitForShutdown(ctx, cancel, &wg)
}

// setupLogging logs to stderr when headless and to LOG_FILE under the
// dashboard, which owns the terminal.
func setupLogging(c cfg.Settings, headless bool) *os.File {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if headless {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		// Nowhere safe to write; stay quiet rather than corrupt the dashboard.
		log.Logger = zerolog.Nop()
		return nil
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f
}

// initializeStorage opens the snapshot journal if DATA_PATH is configured
func initializeStorage(c cfg.Settings, mw *metrics.MetricsWrapper) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath, storage.Options{Retention: c.JournalRetention, Metrics: mw})
	if err != nil {
		log.Warn().Err(err).Msg("journal initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// cachedSnapshot loads the last journaled snapshot so the dashboard has
// something to show before the push channel opens.
func cachedSnapshot(store *storage.Store) *desk.Snapshot {
	if store == nil {
		return nil
	}
	rec, err := store.LatestSnapshot()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached snapshot")
		return nil
	}
	if rec == nil || rec.Data == nil {
		return nil
	}
	return &desk.Snapshot{Data: rec.Data, Kind: desk.KindSnapshot, ReceivedAt: rec.ReceivedAt}
}

// startJournal writes every newly applied snapshot to the store.
func startJournal(ctx context.Context, wg *sync.WaitGroup, manager *desk.Manager, store *storage.Store) {
	events, unsubscribe := manager.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()

		var last *desk.Snapshot
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.Snapshot == nil || ev.Snapshot == last {
					continue
				}
				last = ev.Snapshot
				err := store.AppendSnapshot(storage.SnapshotRecord{
					Kind:       ev.Snapshot.Kind.String(),
					ReceivedAt: ev.Snapshot.ReceivedAt,
					Data:       ev.Snapshot.Data,
				})
				if err != nil {
					log.Warn().Err(err).Msg("failed to journal snapshot")
				}
			}
		}
	}()
}

// startEventLogger reports connection changes when running without the dashboard.
func startEventLogger(ctx context.Context, wg *sync.WaitGroup, manager *desk.Manager) {
	events, unsubscribe := manager.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()

		state := desk.State(-1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.State != state {
					state = ev.State
					log.Info().Str("state", state.String()).Msg("push channel state changed")
				}
				if ev.Snapshot != nil {
					pnl, _ := ev.Snapshot.Float("daily_pnl", "daily_pnl")
					log.Debug().Str("kind", ev.Snapshot.Kind.String()).Float64("daily_pnl", pnl).Msg("snapshot applied")
				}
			}
		}
	}()
}

// startRefreshers starts one poller per configured resource.
func startRefreshers(ctx context.Context, c cfg.Settings, client *api.Client, store *storage.Store, mw *metrics.MetricsWrapper) []*poll.Refresher {
	var onUpdate func(poll.Update)
	if store != nil {
		onUpdate = func(u poll.Update) {
			err := store.StorePoll(storage.PollRecord{Resource: u.Resource, FetchedAt: u.FetchedAt, Value: u.Value})
			if err != nil {
				log.Warn().Err(err).Str("resource", u.Resource).Msg("failed to store poll result")
			}
		}
	}

	refreshers := make([]*poll.Refresher, 0, len(c.Resources))
	for _, res := range c.Resources {
		r := poll.New(res.Name, res.Interval, poll.GetJSON(client, res.Path), poll.Options{
			Metrics:  mw,
			OnUpdate: onUpdate,
			Initial:  cachedPoll(store, res.Name),
		})
		r.Start(ctx)
		refreshers = append(refreshers, r)
	}
	log.Info().Int("resources", len(refreshers)).Msg("polling started")
	return refreshers
}

// cachedPoll returns the journaled value of resource so the dashboard shows
// it, aged, until the first fetch lands.
func cachedPoll(store *storage.Store, resource string) *poll.Update {
	if store == nil {
		return nil
	}
	rec, err := store.Poll(resource)
	if err != nil {
		log.Warn().Err(err).Str("resource", resource).Msg("failed to read cached poll result")
		return nil
	}
	if rec == nil {
		return nil
	}
	return &poll.Update{Resource: rec.Resource, Value: rec.Value, FetchedAt: rec.FetchedAt}
}

// copyOnce runs a single clipboard attempt and reports it on stdout.
func copyOnce(c cfg.Settings, client *api.Client, mw *metrics.MetricsWrapper, what string, bt backtestReport) int {
	var get func(ctx context.Context) (string, error)
	switch what {
	case "snapshot":
		get = func(ctx context.Context) (string, error) { return client.CopySnapshot(ctx, false) }
	case "compact":
		get = func(ctx context.Context) (string, error) { return client.CopySnapshot(ctx, true) }
	case "context":
		get = client.CopyClaudeContext
	case "positions":
		get = client.CopyPositions
	case "backtest":
		if len(bt.req.Symbols) == 0 {
			fmt.Fprintln(os.Stderr, "--copy backtest needs --symbols")
			return 2
		}
		get = func(ctx context.Context) (string, error) { return client.BacktestReport(ctx, bt.strategy, bt.req) }
	default:
		fmt.Fprintf(os.Stderr, "unknown report %q (want snapshot, compact, context, positions or backtest)\n", what)
		return 2
	}

	svc := clipboard.NewService(clipboard.Options{
		Capabilities: clipboard.DetectCapabilities(),
		Native:       clipboard.NewNativeStrategy(),
		Legacy:       clipboard.NewOSC52Strategy(),
		Surface:      clipboard.NewWriterSurface(os.Stdout, c.ManualCopyDir),
		Metrics:      mw,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.RESTTimeout+5*time.Second)
	defer cancel()
	res := svc.Copy(ctx, get)

	switch res.Outcome {
	case clipboard.Succeeded:
		fmt.Printf("Copied! (%s)\n", res.Strategy)
		return 0
	case clipboard.ManualSurfaceShown:
		return 0
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", svc.Status().Message, res.Err)
		return 1
	}
}

type backtestReport struct {
	strategy string
	req      api.BacktestRequest
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// showResource prints one desk read endpoint as indented JSON.
func showResource(c cfg.Settings, client *api.Client, name string) int {
	ctx, cancel := context.WithTimeout(context.Background(), c.RESTTimeout)
	defer cancel()

	v, err := client.Resource(ctx, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		if errors.Is(err, api.ErrUnknownResource) {
			return 2
		}
		return 1
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode %s: %v\n", name, err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// savingSurface keeps a file copy of the payload before handing it on.
type savingSurface struct {
	next clipboard.Surface
	dir  string
}

func (s savingSurface) Show(ctx context.Context, m clipboard.Manual) error {
	if s.dir != "" {
		if path, err := clipboard.SaveManual(s.dir, m); err != nil {
			log.Warn().Err(err).Msg("failed to save manual copy")
		} else {
			log.Info().Str("path", path).Msg("manual copy saved")
		}
	}
	return s.next.Show(ctx, m)
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
