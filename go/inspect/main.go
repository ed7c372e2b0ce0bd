package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/kr/pretty"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const maxReserved = 5

func main() {
	url := flag.String("url", crawler.DefaultURL, "rental page to inspect")
	dump := flag.Bool("dump", false, "pretty print every parsed apartment")
	flag.Parse()

	fetcher := crawler.NewFetcher(crawler.FetcherConfig{URL: *url, Timeout: 30 * time.Second}, nil)
	raw, err := fetcher.Fetch(context.Background())
	if err != nil {
		log.Fatalf("fetch %s fail: %v", *url, err)
	}
	snapshot, err := crawler.ParsePage(raw)
	if err != nil {
		log.Fatalf("parse page fail: %v", err)
	}

	if *dump {
		pretty.Print(snapshot)
		fmt.Println()
	}

	printSummary(os.Stdout, snapshot)
}

func printSummary(w io.Writer, snapshot crawler.Snapshot) {
	counts := snapshot.Counts()
	fmt.Fprintf(w, "Total apartments: %d\n", len(snapshot))
	if len(snapshot) == 0 {
		fmt.Fprintln(w, "No apartments found! The page structure may have changed.")
		return
	}
	for _, status := range crawler.Statuses {
		fmt.Fprintf(w, "  %-9s %d\n", status, counts[status])
	}

	fmt.Fprintln(w, "\nFree apartments:")
	for _, apt := range snapshot.WithStatus(crawler.StatusFree) {
		fmt.Fprintf(w, "  %s | %s | %s | %s\n", apt.Name, apt.Type, orNA(apt.Size), orNA(apt.Total))
	}

	fmt.Fprintln(w, "\nReserved apartments:")
	for i, apt := range snapshot.WithStatus(crawler.StatusReserved) {
		if i == maxReserved {
			fmt.Fprintf(w, "  ... and %d more\n", counts[crawler.StatusReserved]-maxReserved)
			break
		}
		fmt.Fprintf(w, "  %s | %s | %s | %s\n", apt.Name, apt.Type, orNA(apt.Size), orNA(apt.Total))
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
