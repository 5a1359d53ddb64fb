package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tradecraft-labs/execution-engine/internal/broker"
	bybitbroker "github.com/tradecraft-labs/execution-engine/internal/broker/bybit"
	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/logger"
	"github.com/tradecraft-labs/execution-engine/internal/market"
	"github.com/tradecraft-labs/execution-engine/internal/monitoring"
	"github.com/tradecraft-labs/execution-engine/internal/portfolio"
	"github.com/tradecraft-labs/execution-engine/internal/reporting"
	"github.com/tradecraft-labs/execution-engine/internal/risk"
	"github.com/tradecraft-labs/execution-engine/internal/trace"
	"github.com/tradecraft-labs/execution-engine/internal/twap"
)

// Engine wires the decision pipeline: signals in, risk-gated orders out,
// TWAP execution against the broker.
type Engine struct {
	cfg       *config.Config
	log       *logger.Logger
	riskEng   *risk.Engine
	manager   *portfolio.Manager
	scheduler *twap.Scheduler
	broker    broker.Broker
	store     *trace.Store
	console   *reporting.ConsoleReporter
	excel     *reporting.ExcelReporter
}

func main() {
	signalsPath := flag.String("signals", "", "path to a JSON file with input signals")
	equity := flag.Float64("equity", 0, "account equity; overrides ACCOUNT_EQUITY")
	simPrice := flag.Float64("price", 0, "market price for the simulated broker in dry runs")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	cfg := config.Load()

	nav := *equity
	if nav <= 0 {
		nav = envEquity()
	}
	if nav <= 0 {
		log.Fatal("account equity must be positive (use -equity or ACCOUNT_EQUITY)")
	}

	fileLog, err := logger.New("logs", cfg.Symbol)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLog.Close()

	store, err := trace.New(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open trace store: %v", err)
	}
	defer store.Close()

	engine := newEngine(cfg, nav, *simPrice, fileLog, store)

	startMetricsServer(cfg.Monitoring.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutdown signal received")
		cancel()
	}()

	signals, err := loadSignals(*signalsPath)
	if err != nil {
		log.Fatalf("Failed to load signals: %v", err)
	}

	if err := engine.RunCycle(ctx, nav, signals); err != nil {
		log.Fatalf("Decision cycle failed: %v", err)
	}
}

func newEngine(cfg *config.Config, nav, simPrice float64, fileLog *logger.Logger, store *trace.Store) *Engine {
	riskEng := risk.NewEngine(cfg.Risk, fileLog)
	riskEng.OnNewDay(nav)

	var b broker.Broker
	if cfg.DryRun {
		b = broker.NewSim(simPrice, nil)
		fileLog.Info("dry run: using simulated broker")
	} else {
		client := bybitbroker.New(cfg.Broker)
		fileLog.Info("connected to bybit (%s)", client.Environment())
		b = client
	}

	return &Engine{
		cfg:       cfg,
		log:       fileLog,
		riskEng:   riskEng,
		manager:   portfolio.NewManager(cfg.Portfolio, cfg.Sizing, riskEng, store, fileLog),
		scheduler: twap.NewScheduler(cfg.TWAP, b, store, fileLog, cfg.DryRun),
		broker:    b,
		store:     store,
		console:   reporting.NewConsoleReporter(),
		excel:     reporting.NewExcelReporter(),
	}
}

// RunCycle runs one full decision cycle: aggregate signals, gate them
// through the risk engine, finalize orders, and execute each via TWAP.
func (e *Engine) RunCycle(ctx context.Context, equity float64, signals []portfolio.Signal) error {
	mkt := e.fetchMarketState(ctx)

	e.manager.IngestSignals(signals)
	proposals := e.manager.ProposePositions(equity, mkt)
	decisions := e.manager.ApplyRiskEngine(proposals)

	orders, err := e.manager.FinalizeOrders(equity, signals, proposals, decisions)
	if err != nil {
		// A lost trace never blocks execution, but it must be visible.
		e.log.LogError("audit trace not persisted", err)
		monitoring.RecordError("trace_write")
	}

	monitoring.UpdateCurrentRiskPct(e.riskEng.CurrentRiskPct())
	for _, d := range decisions {
		if !d.Allow {
			monitoring.RecordRiskEvent("risk_vetoed")
		} else if d.Scale < 1.0 {
			monitoring.RecordRiskEvent("risk_scaled")
		}
	}
	for _, o := range orders {
		monitoring.RecordOrder(o.Symbol, string(o.Side))
	}

	traces, terr := e.store.RecentTraces(1)
	if terr == nil && len(traces) > 0 {
		e.console.PrintCycleSummary(traces[0])
	}
	e.console.PrintRiskSummary(e.riskEng.Summary())

	for _, order := range orders {
		summary, err := e.scheduler.Execute(ctx, order, mkt)
		if err != nil {
			return err
		}
		for _, rec := range summary.Slices {
			monitoring.RecordSlice(summary.Symbol, string(rec.Status), rec.Actual)
		}
		e.console.PrintTWAPSummary(summary)

		reportPath := filepath.Join(e.cfg.Store.ReportDir, fmt.Sprintf("twap_%s.xlsx", order.OrderID))
		if err := e.excel.WriteExecutionXLSX(summary, reportPath); err != nil {
			e.log.LogError("execution report export failed", err)
			monitoring.RecordError("report_export")
		}
	}

	return nil
}

// fetchMarketState pre-fetches price and depth once per cycle so every
// component sees the same view.
func (e *Engine) fetchMarketState(ctx context.Context) *market.State {
	mkt := &market.State{}

	price, err := e.broker.GetCurrentPrice(ctx, e.cfg.Symbol)
	if err != nil {
		e.log.Warning("price fetch failed, components fall back to hints: %v", err)
		monitoring.RecordError("price_fetch")
	} else {
		mkt.Price = price
	}

	book, err := e.broker.GetOrderBook(ctx, e.cfg.Symbol)
	if err != nil {
		e.log.Warning("order book fetch failed, depth checks degrade: %v", err)
		monitoring.RecordError("book_fetch")
	} else {
		mkt.OrderBook = book
	}

	return mkt
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	log.Printf("Metrics available at http://localhost%s/metrics", addr)
}

func loadSignals(path string) ([]portfolio.Signal, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var signals []portfolio.Signal
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, fmt.Errorf("invalid signals file %s: %w", path, err)
	}
	return signals, nil
}

func envEquity() float64 {
	val := os.Getenv("ACCOUNT_EQUITY")
	if val == "" {
		return 0
	}
	var nav float64
	if _, err := fmt.Sscanf(val, "%f", &nav); err != nil {
		return 0
	}
	return nav
}
