// Command ingest loads one or more documents into a case from the command
// line, without going through the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/brunobiangulo/legalrag"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	caseID := flag.String("case", "", "Case id to ingest into")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *caseID == "" {
		slog.Error("missing required -case flag")
		os.Exit(1)
	}
	paths := flag.Args()
	if len(paths) == 0 {
		slog.Error("no files given; usage: ingest -case <id> file1.pdf file2.docx ...")
		os.Exit(1)
	}

	cfg := legalrag.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		err = json.NewDecoder(f).Decode(&cfg)
		f.Close()
		if err != nil {
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
	}

	engine, err := legalrag.New(cfg, nil)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	failed := 0
	for _, path := range paths {
		dst, err := engine.PreparePath(*caseID, filepathBase(path))
		if err != nil {
			slog.Error("preparing path", "file", path, "error", err)
			failed++
			continue
		}
		if err := copyFile(path, dst); err != nil {
			slog.Error("copying file into case", "file", path, "error", err)
			failed++
			continue
		}
		doc, err := engine.Ingest(ctx, *caseID, dst)
		if err != nil {
			slog.Error("ingest failed", "file", path, "error", err)
			failed++
			continue
		}
		slog.Info("ingested", "file", doc.FileName, "chunks", doc.ChunkCount, "ocr_applied", doc.OCRApplied)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
