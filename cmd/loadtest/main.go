// Команда loadtest гоняет сценарии покупателей против in-memory витрины:
// каталог через оркестратор, локальные корзины, checkout и смену статусов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type loadMode string

const (
	modeBrowse         loadMode = "browse"
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
	modeCheckoutFulfil loadMode = "checkout-fulfil"
)

var loadModes = []loadMode{modeBrowse, modeCheckout, modeCheckoutCancel, modeCheckoutFulfil}

type config struct {
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	products      int
	currency      string
	priceMinor    int64
	customerTag   string
	dedup         bool
	productsTTL   time.Duration
	remoteLatency time.Duration
	outputPath    string
}

// target описывает границу прогона для отчёта.
func (c config) target() string {
	switch {
	case c.duration <= 0:
		return fmt.Sprintf("count:%d", c.total)
	case c.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", c.duration, c.total)
	default:
		return fmt.Sprintf("duration:%s", c.duration)
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg  config
		mode string
	)
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration only an upper bound when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent devices")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-step timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "browse | checkout | checkout-cancel | checkout-fulfil")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 50, "percent of orders cancelled in checkout-cancel mode")
	fs.IntVar(&cfg.products, "products", 20, "products seeded into the remote catalog")
	fs.StringVar(&cfg.currency, "currency", "USD", "order currency")
	fs.Int64Var(&cfg.priceMinor, "price-minor", 1000, "product price in minor units")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.BoolVar(&cfg.dedup, "dedup", true, "share concurrent fetches of the same resource")
	fs.DurationVar(&cfg.productsTTL, "products-ttl", 0, "catalog ttl; 0 refetches on every load")
	fs.DurationVar(&cfg.remoteLatency, "remote-latency", 2*time.Millisecond, "artificial latency of every remote call")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	cfg.mode = loadMode(strings.TrimSpace(mode))
	cfg.currency = strings.TrimSpace(cfg.currency)
	cfg.customerTag = strings.TrimSpace(cfg.customerTag)
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case !knownMode(c.mode):
		return fmt.Errorf("unsupported mode: %s", c.mode)
	case c.duration < 0:
		return errors.New("duration must be >= 0")
	case c.duration == 0 && c.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case c.duration > 0 && c.totalSet && c.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case c.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.timeout <= 0:
		return errors.New("timeout must be > 0")
	case c.products <= 0:
		return errors.New("products must be > 0")
	case c.priceMinor <= 0:
		return errors.New("price-minor must be > 0")
	case c.productsTTL < 0 || c.remoteLatency < 0:
		return errors.New("products-ttl and remote-latency must be >= 0")
	case c.cancelRate < 0 || c.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case c.currency == "":
		return errors.New("currency is required")
	case c.customerTag == "":
		return errors.New("customer-tag is required")
	}
	return nil
}

func knownMode(mode loadMode) bool {
	for _, m := range loadModes {
		if m == mode {
			return true
		}
	}
	return false
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("invalid config: %v", err)
	}
	log.SetLevel(log.WarnLevel)

	result, err := run(context.Background(), cfg, os.Stdout)
	if err != nil {
		fail("%v", err)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run прогоняет сценарии, печатает сводку в out и при необходимости пишет JSON-отчёт.
func run(ctx context.Context, cfg config, out io.Writer) (report, error) {
	h, err := newHarness(ctx, cfg, log.WithField("component", "loadtest"))
	if err != nil {
		return report{}, fmt.Errorf("prepare harness: %w", err)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	rec := newRecorder()

	var wg sync.WaitGroup
	jobs := scenarios(ctx, cfg)
	for i := 0; i < cfg.concurrency; i++ {
		dev := h.newDevice()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(h, dev, cfg, index, runID, rec)
			}
		}()
	}
	wg.Wait()

	result := rec.report(startedAt, time.Since(startedAt))
	result.Remote = h.remoteReport(ctx)

	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

// scenarios выдаёт номера сценариев: cfg.total штук, либо пока не истечёт cfg.duration.
func scenarios(ctx context.Context, cfg config) <-chan int {
	jobs := make(chan int, cfg.concurrency)
	limit := cfg.total
	if cfg.duration > 0 && !cfg.totalSet {
		limit = -1
	}

	go func() {
		defer close(jobs)
		if cfg.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.duration)
			defer cancel()
		}
		for i := 0; limit < 0 || i < limit; i++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	return jobs
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
