package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/assemble"
	"github.com/Lllllllleong/documentprovenance/internal/cas"
	"github.com/Lllllllleong/documentprovenance/internal/extract"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/Lllllllleong/documentprovenance/internal/persistence"
	"github.com/Lllllllleong/documentprovenance/internal/services"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "provctl",
		Usage: "Inspect and run the document provenance pipeline locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "Ingest a local file through the full pipeline",
				ArgsUsage: "<file>",
				Action:    processCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Object key, <prefix>/<organizationId>/<fileId>",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "document-id",
						Usage:    "Document identifier carried in the object metadata",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "filename",
						Usage: "Original filename (defaults to the base name of <file>)",
					},
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "Content type (guessed from the extension when empty)",
					},
					&cli.StringFlag{
						Name:     "tika-url",
						Usage:    "Tika server base URL",
						EnvVars:  []string{"TIKA_URL"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "ipfs-url",
						Usage:   "Kubo API address; an in-memory store is used when empty",
						EnvVars: []string{"IPFS_URL"},
					},
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory; in-memory when empty",
					},
					&cli.StringFlag{
						Name:  "asset-base-url",
						Usage: "Base URL used to build the document fileUrl",
						Value: "https://assets.priorartarchive.org",
					},
					&cli.StringFlag{
						Name:  "join-policy",
						Usage: "fail-fast or wait-all",
						Value: string(services.JoinFailFast),
					},
					&cli.StringFlag{
						Name:  "document-timing",
						Usage: "eager or deferred",
						Value: string(services.DocumentEager),
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Timeout for each external client",
						Value: 60 * time.Second,
					},
				},
			},
			{
				Name:      "address",
				Usage:     "Print the content address of a file",
				ArgsUsage: "<file>",
				Action:    addressCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "structured",
						Usage: "Treat the file as a JSON object and address its dag-cbor encoding",
					},
				},
			},
			{
				Name:      "assemble",
				Usage:     "Print the canonical provenance record for a JSON record and its address",
				ArgsUsage: "<record.json>",
				Action:    assembleCommand,
			},
			{
				Name:      "assertions",
				Usage:     "List the assertions recorded for a document",
				ArgsUsage: "<documentId>",
				Action:    assertionsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:    "database-url",
						Usage:   "Postgres connection string",
						EnvVars: []string{"DATABASE_URL"},
					},
				},
			},
		},
	}
}

func processCommand(c *cli.Context) error {
	ctx := context.Background()

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("a file to process is required")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	fileName := c.String("filename")
	if fileName == "" {
		fileName = filepath.Base(path)
	}
	contentType := c.String("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	joinPolicy, err := services.ParseJoinPolicy(c.String("join-policy"))
	if err != nil {
		return err
	}
	timing, err := services.ParseDocumentTiming(c.String("document-timing"))
	if err != nil {
		return err
	}

	var contentStore cas.Store = cas.NewMemoryStore()
	if ipfsURL := c.String("ipfs-url"); ipfsURL != "" {
		contentStore, err = cas.NewKuboStore(ipfsURL, c.Duration("timeout"))
		if err != nil {
			return err
		}
	}
	extractor, err := extract.NewTikaClient(c.String("tika-url"), c.Duration("timeout"))
	if err != nil {
		return err
	}
	dbPath := c.String("db")
	store, err := persistence.OpenBadgerStore(dbPath, dbPath == "")
	if err != nil {
		return err
	}
	defer store.Close()

	ingestor, err := services.NewIngestor(services.IngestDeps{
		CAS:       contentStore,
		Extractor: extractor,
		Store:     store,
	}, services.IngestConfig{
		AssetBaseURL:   c.String("asset-base-url"),
		JoinPolicy:     joinPolicy,
		DocumentTiming: timing,
	})
	if err != nil {
		return err
	}

	event := models.ObjectEvent{
		EventTime: time.Now().UTC().Format(assemble.TimeLayout),
		Bucket:    "local",
		Key:       c.String("key"),
		Size:      int64(len(body)),
	}
	obj := &models.StoredObject{
		Body:          body,
		ContentLength: int64(len(body)),
		ContentType:   contentType,
		Metadata: map[string]string{
			notification.DocumentIDKey:       c.String("document-id"),
			notification.OriginalFilenameKey: fileName,
		},
	}
	res, err := ingestor.ProcessObject(ctx, event, obj)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, res)
}

func addressCommand(c *cli.Context) error {
	data, err := readInput(c.Args().First())
	if err != nil {
		return err
	}

	var addr cas.Address
	if c.Bool("structured") {
		meta, perr := extract.ParseMetadata(data)
		if perr != nil {
			return perr
		}
		encoded, eerr := cas.EncodeStructured(meta)
		if eerr != nil {
			return eerr
		}
		addr, err = cas.StructuredAddress(encoded)
	} else {
		if len(data) > cas.MaxRawBlockSize {
			slog.Warn("Input exceeds the raw block limit; a Kubo store will assign a UnixFS address instead.", "bytes", len(data))
		}
		addr, err = cas.RawAddress(data)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, addr)
	return nil
}

func assembleCommand(c *cli.Context) error {
	data, err := readInput(c.Args().First())
	if err != nil {
		return err
	}
	var rec models.ProvenanceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to parse provenance record: %w", err)
	}
	canonical, err := assemble.Assemble(rec)
	if err != nil {
		return err
	}
	addr, err := cas.RawAddress(canonical)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(canonical))
	fmt.Fprintln(c.App.Writer, addr)
	return nil
}

func assertionsCommand(c *cli.Context) error {
	ctx := context.Background()

	documentID := c.Args().First()
	if documentID == "" {
		return fmt.Errorf("a document id is required")
	}

	var (
		store persistence.Store
		err   error
	)
	switch {
	case c.String("database-url") != "":
		store, err = persistence.OpenPostgresStore(c.String("database-url"))
	case c.String("db") != "":
		store, err = persistence.OpenBadgerStore(c.String("db"), false)
	default:
		return fmt.Errorf("either --db or --database-url is required")
	}
	if err != nil {
		return err
	}
	defer store.Close()

	assertions, err := store.ListAssertions(ctx, documentID)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, assertions)
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
