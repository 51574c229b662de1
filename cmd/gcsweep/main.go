// Command gcsweep reconciles the object-store cold tier against the
// vector-store hot tier: any document-UUID prefix in the bucket with no
// matching document row is orphaned — left behind by a pipeline crash
// between OBJECTSTORE_WRITE and VECTORSTORE_COMMIT (§4.13) — and is
// reclaimed once it has aged past a grace period. It never touches the
// vector store; only reads from it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
)

func run(ctx context.Context, grace time.Duration, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("gcsweep: %w", err)
	}
	if cfg.GCSBucketName == "" {
		return fmt.Errorf("gcsweep: GCS_BUCKET_NAME is not configured")
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("gcsweep: db pool: %w", err)
	}
	defer pool.Close()
	vectorStore := repository.NewVectorStore(pool)

	storage, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return fmt.Errorf("gcsweep: storage adapter: %w", err)
	}
	defer storage.Close()

	known, err := vectorStore.AllUUIDs(ctx)
	if err != nil {
		return fmt.Errorf("gcsweep: %w", err)
	}

	prefixes, err := storage.ListTopLevelPrefixes(ctx, cfg.GCSBucketName)
	if err != nil {
		return fmt.Errorf("gcsweep: %w", err)
	}

	var reclaimed, skipped int
	for _, uuid := range prefixes {
		if known[uuid] {
			continue
		}

		updated, err := storage.ObjectUpdated(ctx, cfg.GCSBucketName, uuid+"/original")
		if err != nil {
			slog.Warn("gcsweep: could not determine age, skipping", "uuid", uuid, "error", err)
			skipped++
			continue
		}
		if time.Since(updated) < grace {
			slog.Info("gcsweep: orphan within grace period, skipping", "uuid", uuid, "age", time.Since(updated))
			skipped++
			continue
		}

		if dryRun {
			slog.Info("gcsweep: would reclaim orphaned prefix", "uuid", uuid, "age", time.Since(updated))
			reclaimed++
			continue
		}

		if err := storage.DeletePrefix(ctx, cfg.GCSBucketName, uuid+"/"); err != nil {
			slog.Warn("gcsweep: failed to reclaim prefix", "uuid", uuid, "error", err)
			continue
		}
		slog.Info("gcsweep: reclaimed orphaned prefix", "uuid", uuid, "age", time.Since(updated))
		reclaimed++
	}

	slog.Info("gcsweep: run complete", "scanned", len(prefixes), "reclaimed", reclaimed, "skipped", skipped, "dry_run", dryRun)
	return nil
}

func main() {
	grace := flag.Duration("grace", 24*time.Hour, "minimum age of an orphaned prefix before it is reclaimed")
	dryRun := flag.Bool("dry-run", false, "log what would be reclaimed without deleting anything")
	flag.Parse()

	if err := run(context.Background(), *grace, *dryRun); err != nil {
		log.Fatal(err)
	}
}
