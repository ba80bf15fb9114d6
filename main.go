package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/masterries/AutoAnalyse/config"
	"github.com/masterries/AutoAnalyse/internal/scraper"
	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
	"github.com/masterries/AutoAnalyse/services/dashboard"
	"github.com/masterries/AutoAnalyse/services/publisher"
	"github.com/masterries/AutoAnalyse/services/runner"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "autoanalyse",
	Short: "autoanalyse scrapes vehicle listings, tracks price changes and serves market analysis",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load environment variables
		godotenv.Load()

		// Initialize logger first
		logger.Init()

		// Load and validate configuration
		cfg = config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

var (
	scrapeMake    string
	scrapeModel   string
	scrapePages   int
	scrapeDelay   int
	scrapeNoStop  bool
	scrapeNoAdapt bool
	multiFile     string
	statsMake     string
	statsModel    string
	exportMake    string
	exportModel   string
	exportDir     string
	serveAddr     string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a full scrape for one vehicle model",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeMake == "" || scrapeModel == "" {
			return fmt.Errorf("--make and --model are required")
		}
		ctx := signalContext()
		r, st, pub, err := buildRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if pub != nil {
			defer pub.Close()
		}

		result := r.RunModel(ctx, runner.ModelRef{Make: scrapeMake, Model: scrapeModel}, scrapeOptions())
		printResults([]runner.Result{result})
		if result.Status == runner.StatusError {
			return fmt.Errorf("scrape failed: %s", result.Error)
		}
		return nil
	},
}

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "Run scrapes for multiple vehicle models from a CSV file",
	Long:  "Reads make,model pairs from a CSV file (one pair per line) and scrapes them sequentially.",
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := readModelFile(multiFile)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return fmt.Errorf("no models found in %s", multiFile)
		}

		ctx := signalContext()
		r, st, pub, err := buildRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if pub != nil {
			defer pub.Close()
		}

		results := r.RunModels(ctx, refs, scrapeOptions())
		printResults(results)
		for _, result := range results {
			if result.Status == runner.StatusError {
				return fmt.Errorf("one or more scrapes failed")
			}
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List tracked vehicle models with their active listing counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		models, err := st.VehicleModels(ctx)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Println("No vehicle models tracked yet.")
			return nil
		}
		for _, m := range models {
			fmt.Printf("%-15s %-15s %d active listings\n", m.Make, m.Model, m.Count)
			meta, err := st.Meta(ctx, m.Make, m.Model)
			if err == nil && meta != nil {
				fmt.Printf("%-15s %-15s last scraped %s (%s)\n", "", "", meta.LastScrapeDate, meta.Status)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print listing and price change statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Statistics(ctx, statsMake, statsModel)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export listings and price history to CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportMake == "" || exportModel == "" {
			return fmt.Errorf("--make and --model are required")
		}
		ctx := signalContext()
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		dir := exportDir
		if dir == "" {
			dir = cfg.DataDir
		}
		if err := st.ExportCSV(ctx, exportMake, exportModel, dir); err != nil {
			return err
		}
		fmt.Printf("Exported %s %s to %s\n", exportMake, exportModel, dir)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.DashboardAddr
		}
		srv := dashboard.NewServer(addr, dashboard.NewHandlers(st))

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
		logger.Info("Dashboard listening on %s", addr)

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		logger.Info("Shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeMake, "make", "", "vehicle make, e.g. bmw")
	scrapeCmd.Flags().StringVar(&scrapeModel, "model", "", "vehicle model, e.g. 3er-(alle)")
	scrapeCmd.Flags().IntVar(&scrapePages, "pages", 0, "page count, 0 auto-detects")
	scrapeCmd.Flags().IntVar(&scrapeDelay, "delay", 0, "base delay seconds between pages, 0 uses BASE_DELAY_SECONDS")
	scrapeCmd.Flags().BoolVar(&scrapeNoStop, "no-auto-stop", false, "keep paging past pages with no new listings")
	scrapeCmd.Flags().BoolVar(&scrapeNoAdapt, "no-adaptive-delay", false, "disable adaptive delay adjustment")

	multiCmd.Flags().StringVar(&multiFile, "file", "", "CSV file of make,model pairs")
	multiCmd.MarkFlagRequired("file")
	multiCmd.Flags().IntVar(&scrapePages, "pages", 0, "page count, 0 auto-detects")
	multiCmd.Flags().IntVar(&scrapeDelay, "delay", 0, "base delay seconds between pages, 0 uses BASE_DELAY_SECONDS")
	multiCmd.Flags().BoolVar(&scrapeNoStop, "no-auto-stop", false, "keep paging past pages with no new listings")
	multiCmd.Flags().BoolVar(&scrapeNoAdapt, "no-adaptive-delay", false, "disable adaptive delay adjustment")

	statsCmd.Flags().StringVar(&statsMake, "make", "", "restrict statistics to one make")
	statsCmd.Flags().StringVar(&statsModel, "model", "", "restrict statistics to one model")

	exportCmd.Flags().StringVar(&exportMake, "make", "", "vehicle make")
	exportCmd.Flags().StringVar(&exportModel, "model", "", "vehicle model")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory, defaults to DATA_DIR")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, defaults to DASHBOARD_ADDR")

	rootCmd.AddCommand(scrapeCmd, multiCmd, modelsCmd, statsCmd, exportCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Received shutdown signal")
		cancel()
	}()
	return ctx
}

// buildRunner opens the store and fetcher and, when REDIS_ADDR is set, the
// price change publisher.
func buildRunner(ctx context.Context) (*runner.Runner, *store.Store, publisher.Publisher, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}

	var pub publisher.Publisher
	if cfg.RedisAddr != "" {
		pub = publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)
	}

	fetcher := scraper.NewFetcher(cfg.RequestTimeout)
	return runner.New(st, fetcher, pub, cfg), st, pub, nil
}

func scrapeOptions() scraper.Options {
	opts := scraper.Options{
		MaxPages:      scrapePages,
		MaxPagesCap:   cfg.MaxPagesCap,
		BaseDelay:     cfg.BaseDelay,
		StopOnEmpty:   !scrapeNoStop,
		AdaptiveDelay: !scrapeNoAdapt,
	}
	if scrapeDelay > 0 {
		opts.BaseDelay = time.Duration(scrapeDelay) * time.Second
	}
	return opts
}

// readModelFile parses a CSV of make,model pairs. Blank lines and a header
// line of "make,model" are skipped.
func readModelFile(path string) ([]runner.ModelRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var refs []runner.ModelRef
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		carMake := strings.TrimSpace(record[0])
		carModel := strings.TrimSpace(record[1])
		if carMake == "" || carModel == "" {
			continue
		}
		if strings.EqualFold(carMake, "make") && strings.EqualFold(carModel, "model") {
			continue
		}
		refs = append(refs, runner.ModelRef{Make: carMake, Model: carModel})
	}
	return refs, nil
}

func printResults(results []runner.Result) {
	for _, r := range results {
		fmt.Printf("%s %s: %s", r.Make, r.Model, r.Status)
		if r.Status == runner.StatusError {
			fmt.Printf(" (%s)\n", r.Error)
			continue
		}
		fmt.Printf(" pages=%d listings=%d new=%d updated=%d price_changes=%d inactive=%d\n",
			r.PagesScraped, r.TotalListings, r.NewListings, r.UpdatedListings, r.PriceChanges, r.Inactivated)
	}
}
