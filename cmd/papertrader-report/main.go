// cmd/papertrader-report prints the paper account and recent ledger rows
// from the trader's SQLite file, optionally with the latest events from Redis.
//
// Usage:
//
//	go run ./cmd/papertrader-report --db=data/papertrader.db --price=68000 --n=20
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/events"
	"papertrader/internal/logger"
	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	redisstore "papertrader/internal/store/redis"
	sqlitestore "papertrader/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/papertrader.db", "Path to SQLite database")
	price := flag.Float64("price", 0, "Mark price for equity (0 = skip)")
	n := flag.Int("n", 20, "Number of ledger rows to show")
	redisAddr := flag.String("redis", "", "Redis address to read recent events from (optional)")
	symbol := flag.String("symbol", "BTC/USDT", "Symbol whose event stream to read")
	follow := flag.Bool("follow", false, "With -redis, keep printing trade and risk events until interrupted")
	flag.Parse()

	log := logger.Init("papertrader-report", slog.LevelWarn, os.Stderr)

	reader, err := sqlitestore.NewReader(*dbPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := report(ctx, os.Stdout, reader, *price, *n); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}

	if *redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: *redisAddr})
		defer client.Close()
		evs, err := redisstore.RecentEvents(ctx, client, *symbol, int64(*n))
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis events: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nRecent events (%s)\n", redisstore.StreamKey(*symbol))
		for _, ev := range evs {
			printEvent(ev)
		}
		if *follow {
			followEvents(client)
		}
	}
}

func printEvent(ev events.Event) {
	fmt.Printf("%s  %-28s %s\n", ev.Time.Format(time.RFC3339), ev.Name, ev.TraceID)
}

// followEvents streams live events over pub/sub until SIGINT/SIGTERM.
func followEvents(client *goredis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names := []string{
		events.PaperBuy, events.PaperSell,
		events.RiskDayStart, events.RiskPauseOutsideWindow, events.RiskHaltDailyLoss,
		events.LoopError,
	}
	ch := make(chan events.Event, 64)
	errc := make(chan error, 1)
	go func() { errc <- redisstore.Subscribe(ctx, client, names, ch) }()

	fmt.Println("\nFollowing live events (Ctrl+C to stop)")
	for {
		select {
		case ev := <-ch:
			printEvent(ev)
		case err := <-errc:
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
			}
			return
		}
	}
}

// accountReader is the subset of the SQLite reader the report needs.
type accountReader interface {
	LastCandleMarker(ctx context.Context) (int64, bool, error)
	Position(ctx context.Context) (model.Position, error)
	Trades(ctx context.Context, limit int) ([]model.Trade, error)
}

// ledgerScanLimit bounds the full-ledger read used for P&L.
const ledgerScanLimit = 1_000_000

func report(ctx context.Context, w io.Writer, r accountReader, price float64, n int) error {
	pos, err := r.Position(ctx)
	if err != nil {
		return err
	}
	marker, ok, err := r.LastCandleMarker(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Position")
	fmt.Fprintf(w, "  base_qty   %.8f\n", pos.BaseQty)
	fmt.Fprintf(w, "  cash       %.2f\n", pos.Cash)
	fmt.Fprintf(w, "  avg_price  %.2f\n", pos.AvgPrice)
	if price > 0 {
		fmt.Fprintf(w, "  equity     %.2f @ %.2f\n", pos.Equity(price), price)
		fmt.Fprintf(w, "  unrealized %.2f\n", pos.UnrealizedPnL(price))
	}
	if ok {
		fmt.Fprintf(w, "  last candle %s\n", time.UnixMilli(marker).UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "  last candle -")
	}

	all, err := r.Trades(ctx, ledgerScanLimit)
	if err != nil {
		return err
	}
	sum := portfolio.Summarize(oldestFirst(all), price)
	fmt.Fprintln(w, "\nP&L")
	fmt.Fprintf(w, "  realized   %.2f\n", sum.RealizedPnL)
	if price > 0 {
		fmt.Fprintf(w, "  total      %.2f\n", sum.TotalPnL)
	}
	fmt.Fprintf(w, "  fees       %.4f\n", sum.TotalFees)
	fmt.Fprintf(w, "  round trips %d won, %d lost\n", sum.Wins, sum.Losses)

	trades := all
	if len(trades) > n {
		trades = trades[:n]
	}
	fmt.Fprintf(w, "\nTrades (newest first, %d)\n", len(trades))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIDE\tQTY\tPRICE\tFEE\tCASH_AFTER\tBASE_AFTER")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%.8f\t%.2f\t%.4f\t%.2f\t%.8f\n",
			time.UnixMilli(t.TS).UTC().Format(time.RFC3339), t.Side, t.Qty, t.Price, t.Fee, t.CashAfter, t.BaseAfter)
	}
	return tw.Flush()
}

// oldestFirst reverses a newest-first ledger page.
func oldestFirst(trades []model.Trade) []model.Trade {
	out := make([]model.Trade, len(trades))
	for i, t := range trades {
		out[len(trades)-1-i] = t
	}
	return out
}
