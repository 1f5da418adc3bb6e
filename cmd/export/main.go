package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/export"
	"github.com/ablyler/dvc-resale-data/internal/storage"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/rofr.db"), "path to sqlite database")
	format := flag.String("format", "csv", "output format: csv or json")
	out := flag.String("o", "", "output file (default stdout)")
	flag.Parse()

	store, err := storage.NewSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	entries, err := store.ListEntries(context.Background())
	if err != nil {
		log.Fatalf("load records: %v", err)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Fatalf("close output: %v", err)
			}
		}()
		w = f
	}

	switch *format {
	case "csv":
		err = export.WriteCSV(w, entries)
	case "json":
		err = export.WriteJSON(w, entries, time.Now())
	default:
		log.Fatalf("unknown format: %s", *format)
	}
	if err != nil {
		log.Fatalf("write %s: %v", *format, err)
	}

	fmt.Fprintf(os.Stderr, "exported %d records\n", len(entries))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
