package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/categorize"
	"nfce/internal/config"
	"nfce/internal/listener"
	"nfce/internal/logger"
	"nfce/internal/pipeline"
	"nfce/internal/server"
	"nfce/internal/storage"
	"nfce/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(logger.Init(cfg.LogLevel))
	defer logger.Sync()
	log := logger.Get()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "ingest":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		rawURL := fs.String("url", "", "receipt url (QR code target)")
		categorizeItems := fs.Bool("categorize", false, "assign a category to every item")
		save := fs.Bool("save", false, "persist the receipt")
		out := fs.String("out", "", "optional xlsx export path")
		asJSON := fs.Bool("json", false, "print the parse result as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*rawURL) == "" {
			must(fmt.Errorf("--url is required"))
		}

		svc := newService(cfg, *categorizeItems, log)
		res, err := svc.Ingest(ctx, *rawURL, pipeline.Options{Categorize: *categorizeItems})
		must(err)
		printResult(res, *asJSON)

		if *save || *out != "" {
			db, err := storage.Open(cfg.DBPath)
			must(err)
			defer db.Close()

			saved, err := db.SaveReceipt(ctx, res)
			must(err)
			fmt.Printf("receipt id=%d created=%t\n", saved.ReceiptID, saved.Created)

			if *out != "" {
				rows, err := db.ExportRows(ctx, []int{saved.ReceiptID})
				must(err)
				must(pipeline.ExportReceiptsToXLSX(rows, *out))
				fmt.Printf("exported %d rows to %s\n", len(rows), *out)
			}
		}
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "saved receipt page (html, txt or pdf)")
		sourceURL := fs.String("url", "", "original receipt url, used for metadata")
		categorizeItems := fs.Bool("categorize", true, "assign a category to every item")
		asJSON := fs.Bool("json", false, "print the parse result as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}

		raw, err := pipeline.ReadDocumentFile(*file)
		must(err)
		svc := newService(cfg, *categorizeItems, log)
		printResult(svc.Parse(raw, *sourceURL, pipeline.Options{Categorize: *categorizeItems}), *asJSON)
	case "categorize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "product description")
		_ = fs.Parse(os.Args[2:])
		names := fs.Args()
		if strings.TrimSpace(*name) != "" {
			names = append([]string{*name}, names...)
		}
		if len(names) == 0 {
			must(fmt.Errorf("--name is required"))
		}

		categorizer := newCategorizer(cfg, log)
		for _, n := range names {
			category, stage := categorizer.Lookup(n)
			fmt.Printf("%s\t%s\t%s\n", n, category, stage)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		ids := fs.String("ids", "", "comma separated receipt ids (default: all)")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		receiptIDs, err := parseIDs(*ids)
		must(err)

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		rows, err := db.ExportRows(ctx, receiptIDs)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for ids=%q", *ids))
		}
		must(pipeline.ExportReceiptsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "prices":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "product description")
		limit := fs.Int("limit", 20, "max points")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		points, err := db.PriceHistory(ctx, *name, *limit)
		must(err)
		for _, p := range points {
			store := ""
			if p.StoreName != nil {
				store = *p.StoreName
			}
			fmt.Printf("%s\t%s\t%.2f\treceipt=%d\n", p.ObservedAt, store, p.UnitPrice, p.ReceiptID)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailListenerFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		cfg.MailListenerProvider = *provider
		cfg.MailListenerLabel = *label
		cfg.MailListenerFetchMax = *max

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		res, err := newListener(cfg, db, log).RunCycle(ctx)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d processed=%d skipped=%d duplicates=%d failed=%d receipts=%d\n",
			*provider, res.Fetched, res.Processed, res.Skipped, res.Duplicates, res.Failed, len(res.ReceiptIDs))
	case "mail:listen":
		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		must(newListener(cfg, db, log).Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])

		seed, err := categorize.SeedFrom(cfg.CategorySeedPath)
		must(err)
		categorizer := categorize.New(log)
		categorizer.BuildAsync(seed)

		svc, err := pipeline.NewServiceFromConfig(cfg, categorizer, log)
		must(err)
		app := server.New(cfg, svc, categorizer, nil, log)

		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = app.ShutdownWithContext(shutdownCtx)
		}()
		log.Info("http server listening", zap.String("addr", *addr))
		must(app.Listen(*addr))
	default:
		usage()
		os.Exit(1)
	}
}

func newCategorizer(cfg config.Config, log *zap.Logger) *categorize.Categorizer {
	seed, err := categorize.SeedFrom(cfg.CategorySeedPath)
	must(err)
	return categorize.NewReady(seed, log)
}

func newService(cfg config.Config, withCategorizer bool, log *zap.Logger) *pipeline.Service {
	var categorizer *categorize.Categorizer
	if withCategorizer {
		categorizer = newCategorizer(cfg, log)
	}
	svc, err := pipeline.NewServiceFromConfig(cfg, categorizer, log)
	must(err)
	return svc
}

func newListener(cfg config.Config, db *storage.DB, log *zap.Logger) *listener.Service {
	svc := newService(cfg, cfg.MailListenerCategorize, log)
	processor := pipeline.NewMailProcessor(svc, db, pipeline.Options{Categorize: cfg.MailListenerCategorize}, log)
	return listener.NewService(cfg, processor, db, log)
}

func printResult(res *internal.ReceiptParseResult, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		must(enc.Encode(res))
		return
	}

	if res.MerchantName != nil {
		fmt.Printf("merchant: %s\n", *res.MerchantName)
	}
	if res.IssuedAt != nil {
		fmt.Printf("issued:   %s\n", res.IssuedAt.Format("02/01/2006 15:04"))
	}
	fmt.Printf("strategy: %s items=%d\n", res.Strategy, len(res.Items))
	for _, item := range res.Items {
		category := ""
		if item.Category != nil {
			category = string(*item.Category)
		}
		unit := ""
		if item.Unit != nil {
			unit = string(*item.Unit)
		}
		fmt.Printf("  %-40s %8.3f %-3s %9.2f  %s\n", item.Name, item.Quantity, unit, util.DisplayUnitPrice(item), category)
	}
	if res.DeclaredGrandTotal != nil {
		fmt.Printf("declared total: %.2f\n", *res.DeclaredGrandTotal)
	}
	fmt.Printf("purchase total: %.2f\n", util.PurchaseTotal(res.Items))
}

func parseIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid receipt id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func usage() {
	fmt.Println("usage: nfce <command>")
	fmt.Println("commands:")
	fmt.Println("  ingest --url=... [--categorize] [--save] [--out=./out/receipt.xlsx] [--json]")
	fmt.Println("  parse --file=page.html [--url=...] [--categorize=true] [--json]")
	fmt.Println("  categorize --name=\"ARROZ TIO JOAO 5KG\" [more names...]")
	fmt.Println("  export:xlsx --out=./out/receipts.xlsx [--ids=1,2]")
	fmt.Println("  prices --name=\"ARROZ TIO JOAO 5KG\" [--limit=20]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=20")
	fmt.Println("  mail:listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
