// Command fetchall fetches every catalog series once, writes all exports
// and the market tables, then exits. Exit status is 1 if any series failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"macrodash/config"
	"macrodash/internal/app"
	"macrodash/internal/logger"
	"macrodash/internal/market"
)

func main() {
	country := flag.String("country", "", "only fetch this country")
	skipMarket := flag.Bool("skip-market", false, "skip the GSE and bank tables")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.Load()
	logger.Init("fetchall", logger.ParseLevel(cfg.LogLevel))

	p, err := app.Build(cfg, prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("[fetchall] %v", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	countries := p.Catalog.Countries()
	if *country != "" {
		countries = []string{*country}
	}

	failed := 0
	for _, c := range countries {
		fmt.Printf("Fetching %s series...\n", c)
		panels, err := p.Dashboard.Panels(ctx, c)
		if err != nil {
			fmt.Printf("  %v\n", err)
			failed++
			continue
		}
		for _, pn := range panels {
			switch {
			case pn.Error != "":
				failed++
				fmt.Printf("  %-14s %-18s FAILED: %s\n", pn.Indicator, pn.SeriesID, pn.Error)
			case pn.Empty:
				fmt.Printf("  %-14s %-18s no data\n", pn.Indicator, pn.SeriesID)
			default:
				fmt.Printf("  %-14s %-18s %d points, latest %s = %g\n",
					pn.Indicator, pn.SeriesID, pn.Series.Len(),
					pn.Latest.Date.Format("2006-01-02"), pn.Latest.Value)
			}
		}
	}

	if !*skipMarket && cfg.ExportDir != "" {
		if p.GSE != nil {
			fmt.Println("Fetching GSE data...")
			if snap, err := p.GSE.Snapshot(ctx); err != nil {
				fmt.Printf("  Error fetching GSE data: %v\n", err)
			} else {
				fmt.Printf("  %d stocks\n", len(snap.Stocks))
			}
		}
		fmt.Println("Writing bank data...")
		if err := market.WriteBanks(cfg.ExportDir); err != nil {
			fmt.Printf("  Error writing bank data: %v\n", err)
		}
	}

	fmt.Println("Data fetching complete!")
	if failed > 0 {
		p.Close()
		os.Exit(1)
	}
}
