// Command snapvault-backup is the maintenance CLI for a snapvault data
// directory: inspect the snapshot store, verify integrity, prune old
// snapshots, run a recovery dry-run, and watch backup events live.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrypster/snapvault/internal/config"
	"github.com/scrypster/snapvault/internal/lease"
	"github.com/scrypster/snapvault/internal/notify"
	"github.com/scrypster/snapvault/internal/recovery"
	"github.com/scrypster/snapvault/internal/store/postgres"
	"github.com/scrypster/snapvault/internal/store/sqlite"
	"github.com/scrypster/snapvault/pkg/types"
	"github.com/scrypster/snapvault/pkg/vault"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	dataPath   = flag.String("data", "", "Path to data directory (overrides config)")
	backupFile = flag.String("backup", "", "Create a snapshot from a workspace state JSON file and exit")
	listCmd    = flag.Bool("list", false, "List all snapshots and exit")
	verifyCmd  = flag.Bool("verify", false, "Verify all snapshot checksums and exit")
	pruneCmd   = flag.Bool("prune", false, "Prune old snapshots and exit")
	keep       = flag.Int("keep", 0, "Snapshots to keep when pruning (overrides config)")
	recoverCmd = flag.Bool("recover", false, "Run the recovery cascade and report the result")
	healthCmd  = flag.Bool("health", false, "Check store health and exit")
	watchCmd   = flag.Bool("watch", false, "Watch backup events until interrupted")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataPath != "" {
		cfg.Storage.DataPath = *dataPath
	}

	if *watchCmd {
		handleWatch(cfg)
		return
	}

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	switch {
	case *backupFile != "":
		handleBackup(ctx, cfg, backend, *backupFile)
	case *listCmd:
		handleList(ctx, backend)
	case *verifyCmd:
		handleVerify(ctx, backend)
	case *pruneCmd:
		handlePrune(ctx, cfg, backend)
	case *recoverCmd:
		handleRecover(ctx, backend)
	case *healthCmd:
		handleHealth(ctx, backend)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFromFile(*configPath)
	}
	return config.LoadConfig()
}

func openBackend(cfg *config.Config) (vault.Backend, error) {
	clock := clockwork.NewRealClock()
	if cfg.Storage.Engine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN, clock)
	}
	return sqlite.New(cfg.Storage.DataPath+"/snapvault.db", clock)
}

func handleBackup(ctx context.Context, cfg *config.Config, backend vault.Backend, path string) {
	payload, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read workspace state: %v", err)
	}
	// Refuse to store a payload recovery would later reject.
	if _, err := types.DecodeWorkspaceState(payload); err != nil {
		log.Fatalf("Invalid workspace state: %v", err)
	}

	keeper := lease.New(backend, cfg.Backup.LeaseTTL)
	if err := keeper.Acquire(ctx); err != nil {
		log.Fatalf("Cannot back up: %v", err)
	}
	defer func() {
		if err := keeper.Release(ctx); err != nil {
			log.Printf("Warning: failed to release lease: %v", err)
		}
	}()

	snap, err := backend.Create(ctx, payload)
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}

	log.Printf("Backup completed successfully:")
	log.Printf("  Snapshot: %s", snap.ID)
	log.Printf("  Version: %d", snap.Version)
	log.Printf("  Size: %.2f KB", float64(len(snap.Payload))/1024)
}

func handleList(ctx context.Context, backend vault.Backend) {
	snapshots, err := backend.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}

	if len(snapshots) == 0 {
		fmt.Println("No snapshots found")
		return
	}

	fmt.Printf("Found %d snapshot(s):\n\n", len(snapshots))
	for i, snap := range snapshots {
		fmt.Printf("%d. %s\n", i+1, snap.ID)
		fmt.Printf("   Version: %d\n", snap.Version)
		fmt.Printf("   Size: %.2f KB\n", float64(len(snap.Payload))/1024)
		fmt.Printf("   Created: %s (%s ago)\n",
			snap.CreatedAt.Format(time.RFC3339),
			time.Since(snap.CreatedAt).Round(time.Second))
		fmt.Println()
	}
}

func handleVerify(ctx context.Context, backend vault.Backend) {
	snapshots, err := backend.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}

	bad := 0
	for _, snap := range snapshots {
		if err := recovery.Verify(snap); err != nil {
			bad++
			fmt.Printf("CORRUPT: %s (version %d): %v\n", snap.ID, snap.Version, err)
		}
	}

	fmt.Printf("Checked %d snapshot(s), %d corrupt\n", len(snapshots), bad)
	if bad > 0 {
		os.Exit(1)
	}
}

func handlePrune(ctx context.Context, cfg *config.Config, backend vault.Backend) {
	// Pruning writes to the stream, so it takes the writer lease; a
	// running application instance makes the CLI back off instead of
	// racing it.
	keeper := lease.New(backend, cfg.Backup.LeaseTTL)
	if err := keeper.Acquire(ctx); err != nil {
		log.Fatalf("Cannot prune: %v", err)
	}
	defer func() {
		if err := keeper.Release(ctx); err != nil {
			log.Printf("Warning: failed to release lease: %v", err)
		}
	}()

	maxCount := cfg.Backup.MaxSnapshots
	if *keep > 0 {
		maxCount = *keep
	}

	deleted, err := backend.Prune(ctx, maxCount)
	if err != nil {
		log.Fatalf("Prune failed: %v", err)
	}
	fmt.Printf("Pruned %d snapshot(s), keeping the %d newest\n", deleted, maxCount)
}

func handleRecover(ctx context.Context, backend vault.Backend) {
	result, err := recovery.NewEngine(backend).Recover(ctx)
	if err != nil {
		log.Fatalf("Recovery failed: %v", err)
	}
	if result == nil {
		fmt.Println("Store is empty, nothing to recover")
		return
	}

	fmt.Printf("Recovered snapshot %s (version %d)\n", result.Snapshot.ID, result.Snapshot.Version)
	fmt.Printf("  Files: %d\n", len(result.State.Files))
	fmt.Printf("  Active file: %s\n", result.State.ActiveFileID)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped %d newer corrupt snapshot(s)\n", result.Skipped)
	}
}

func handleHealth(ctx context.Context, backend vault.Backend) {
	snapshots, err := backend.List(ctx)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}

	var usage int64
	for _, snap := range snapshots {
		usage += int64(len(snap.Payload))
	}

	fmt.Printf("Total Snapshots: %d\n", len(snapshots))
	fmt.Printf("Store Size: %.2f MB\n", float64(usage)/(1024*1024))

	owner, err := backend.LeaseOwner(ctx)
	if err != nil {
		log.Fatalf("Failed to read lease: %v", err)
	}
	if owner != "" {
		fmt.Printf("Writer Lease: held by %s\n", owner)
	} else {
		fmt.Println("Writer Lease: free")
	}

	if len(snapshots) > 0 {
		fmt.Printf("Last Backup: %s (%s ago)\n",
			snapshots[0].CreatedAt.Format(time.RFC3339),
			time.Since(snapshots[0].CreatedAt).Round(time.Second))
	} else {
		fmt.Println("Last Backup: Never")
	}
}

func handleWatch(cfg *config.Config) {
	stamp := func(evt notify.Event) string {
		return time.Unix(0, evt.Time).Format(time.RFC3339)
	}
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, notify.Handlers{
		BackupCompleted: func(evt notify.Event) {
			fmt.Printf("%s  backup completed  snapshot=%s version=%d\n", stamp(evt), evt.SnapshotID, evt.Version)
		},
		BackupFailed: func(evt notify.Event) {
			fmt.Printf("%s  backup FAILED  %s\n", stamp(evt), evt.Detail)
		},
		RecoveryPerformed: func(evt notify.Event) {
			fmt.Printf("%s  recovery performed  snapshot=%s version=%d\n", stamp(evt), evt.SnapshotID, evt.Version)
		},
	})

	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start event watcher: %v", err)
	}
	defer watcher.Stop()

	log.Println("Watching backup events, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Stopped")
}
