// Package main imports saved liked-posts responses into the store.
//
// Each file holds one raw response body of the liked posts endpoint, as
// captured with curl. Pages go through the same normalization and
// reconciliation as a live sync, so the tool is handy for seeding a local
// database without feed credentials. Stop the server first; both hold
// locks on the store and the search index.
//
// Usage:
//
//	go run ./cmd/seed --user 2244994945 page1.json page2.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/normalize"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/search"
	"github.com/likeshelf/likeshelf-server/internal/store"
	"github.com/likeshelf/likeshelf-server/internal/store/badgerstore"
	"github.com/likeshelf/likeshelf-server/internal/store/sqlite"
)

var userID = flag.String("user", "", "Owner of the imported items")

func main() {
	flag.Parse()

	if *userID == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: seed --user <id> <response.json>...")
		os.Exit(2)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}).WithUser(*userID)

	s, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer s.Close()

	ctx := context.Background()
	engine := reconcile.New(s, log.Logger)

	seeded, err := engine.EnsureDefaults(ctx, *userID)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed default categories")
	}
	if seeded {
		fmt.Printf("Seeded default categories for %s\n", *userID)
	}

	var index *search.SearchIndex
	if cfg.Search.Enabled {
		index, err = search.NewSearchIndex(search.Options{
			DataPath: filepath.Join(cfg.Data.BasePath, "search"),
			Logger:   log.Logger,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to open search index")
		}
		defer index.Close()
	}

	var inserted, updated, skipped int
	for _, path := range flag.Args() {
		body, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).Fatal("Failed to read response file", "file", path)
		}

		page, err := feed.DecodePage(body)
		if err != nil {
			log.WithError(err).Fatal("Failed to parse response file", "file", path)
		}

		norm := normalize.Page(page, time.Now().UTC(), log.WithField("file", filepath.Base(path)).Logger)

		endWrite := func() {}
		if index != nil {
			if endWrite, err = index.BeginWrite(); err != nil {
				log.WithError(err).Fatal("Failed to mark search index write")
			}
		}

		res, err := engine.Reconcile(ctx, *userID, norm.Items)
		if err != nil {
			log.WithError(err).Fatal("Failed to import page", "file", path)
		}

		if index != nil {
			if err := index.IndexItems(res.Items); err != nil {
				log.WithError(err).Fatal("Failed to index page", "file", path)
			}
		}
		endWrite()

		fmt.Printf("%s: %d new, %d updated, %d skipped\n",
			filepath.Base(path), res.Inserted, res.Updated, len(norm.Skipped)+res.Dropped)
		inserted += res.Inserted
		updated += res.Updated
		skipped += len(norm.Skipped) + res.Dropped
	}

	total, err := s.CountItems(ctx, *userID)
	if err != nil {
		log.WithError(err).Fatal("Failed to count items")
	}

	fmt.Printf("\nDone: %d new, %d updated, %d skipped; %s now has %d items\n",
		inserted, updated, skipped, *userID, total)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == config.BackendBadger {
		return badgerstore.Open(filepath.Join(cfg.Data.BasePath, "db"), logger.Discard())
	}
	return sqlite.Open(filepath.Join(cfg.Data.BasePath, "likes.db"), logger.Discard())
}
