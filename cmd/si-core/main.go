// Command si-core is the core data-plane process: it wires the Layered
// Hybrid Cache, Action Scheduler, and Rebaser client singletons together
// over a shared message bus and blocks until signalled to shut down
// (spec §5, §6). It is deliberately thin — an external collaborator (an
// API/web front-end, out of scope per spec.md §1's non-goals) owns
// request routing; this binary only owns process lifecycle and the
// shared subsystem instances that routing layer would depend on.
//
// Startup sequencing follows coordinator/coordinator.go's
// construct-then-connect-then-serve shape: build every subsystem, start
// its background task under the shared tasktracker.Tracker, then block on
// an OS signal before running the bounded-grace-period shutdown from
// spec §5.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/bus/redisstreams"
	"eve.evalgo.org/internal/config"
	"eve.evalgo.org/internal/lhc"
	"eve.evalgo.org/internal/lhc/cacheupdater"
	"eve.evalgo.org/internal/lhc/disktier"
	"eve.evalgo.org/internal/lhc/durable"
	"eve.evalgo.org/internal/lhc/memtier"
	"eve.evalgo.org/internal/lhc/persister"
	"eve.evalgo.org/internal/logging"
	"eve.evalgo.org/internal/rebaser"
	"eve.evalgo.org/internal/scheduler"
	"eve.evalgo.org/internal/tasktracker"
	"eve.evalgo.org/internal/wsg"
	"eve.evalgo.org/internal/wsg/neo4jexport"
	"eve.evalgo.org/version"
)

const (
	serviceName = "si-core"

	// averageEntryBytes approximates an LHC entry's size so the memory
	// tier's item-count capacity can be derived from the byte budget
	// spec §6's memory_bytes option actually configures.
	averageEntryBytes = 4096
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "si-core: "+err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	logCfg, err := config.LoadLoggingConfig(args)
	if err != nil {
		return fmt.Errorf("parse cli flags: %w", err)
	}
	log := logging.New(logCfg, serviceName, version.GetModuleVersion())

	instanceID := uuid.NewString()
	log = log.WithField("instance_id", instanceID)

	cacheCfg, err := config.LoadLayerCacheConfig("SI_CORE", 0)
	if err != nil {
		return fmt.Errorf("load layer cache config: %w", err)
	}
	rebaserCfg := config.LoadRebaserConfig("SI_CORE")
	schedulerCfg := config.LoadSchedulerConfig("SI_CORE")

	transport, err := redisstreams.New(context.Background(), redisstreams.Config{
		RedisURL:     os.Getenv("SI_CORE_REDIS_URL"),
		ConsumerName: instanceID,
	})
	if err != nil {
		return fmt.Errorf("connect message bus: %w", err)
	}
	defer transport.Close()

	cache, err := buildCache(cacheCfg, transport, instanceID, log)
	if err != nil {
		return fmt.Errorf("build layered hybrid cache: %w", err)
	}

	sched := scheduler.New(transport, log.WithField("subsystem", "scheduler"))
	// Starts empty: the request-routing layer (out of scope per spec.md
	// §1) publishes the real workspace snapshot and its DVG as changes land.
	sched.SetWSG(wsg.New())
	rebaserClient := rebaser.NewClient(transport, rebaser.JSONCodec{})
	_ = rebaserClient // held for the as-yet-unbuilt request-routing layer to use

	if uri := os.Getenv("SI_CORE_NEO4J_URI"); uri != "" {
		graphMirror, err := neo4jexport.New(context.Background(), uri,
			os.Getenv("SI_CORE_NEO4J_USERNAME"), os.Getenv("SI_CORE_NEO4J_PASSWORD"))
		if err != nil {
			return fmt.Errorf("connect neo4j graph mirror: %w", err)
		}
		if err := graphMirror.MirrorSnapshot(context.Background(), sched.WSG()); err != nil {
			return fmt.Errorf("mirror initial snapshot: %w", err)
		}
		defer graphMirror.Close(context.Background())
	} else {
		log.Warn("SI_CORE_NEO4J_URI unset, running without a graph-explorer mirror")
	}

	log.WithFields(map[string]interface{}{
		"rebaser_subject_prefix":    rebaserCfg.SubjectPrefix,
		"scheduler_dispatch_workers": schedulerCfg.DispatchWorkers,
	}).Info("si-core starting")

	tracker := tasktracker.New()
	tracker.Go(func(ctx context.Context) {
		sched.Run(ctx, 500*time.Millisecond)
	})
	if cache.persist != nil {
		tracker.Go(cache.persist.Run)
	}

	waitForSignal(log)

	log.Info("shutdown requested, draining tasks")
	if ok := tracker.Shutdown(cacheCfg.GracefulShutdownTimeout); !ok {
		log.Error("graceful shutdown timed out, aborting")
		os.Exit(1)
	}
	cache.Close()
	log.Info("si-core stopped")
	return nil
}

// buildCache assembles the Layered Hybrid Cache's tiers from cacheCfg.
// The durable tier is optional: if SI_CORE_POSTGRES_DSN is unset, the
// cache runs memory+disk only, which is sufficient for a single-instance
// development deployment (spec §6 durable persistence is a deployment
// concern, not a hard startup dependency).
func buildCache(cacheCfg config.LayerCacheConfig, transport bus.Transport, instanceID string, log *logrus.Entry) (*cacheHandle, error) {
	capacity := int(cacheCfg.MemoryBytes / averageEntryBytes)
	if capacity < 1 {
		capacity = 1
	}
	mem, err := memtier.New(capacity, float64(cacheCfg.DiskAdmissionRateLimit), int(cacheCfg.DiskAdmissionRateLimit))
	if err != nil {
		return nil, fmt.Errorf("open memory tier: %w", err)
	}

	disk, err := disktier.Open(cacheCfg.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("open disk tier: %w", err)
	}

	var durableTier *durable.Tier
	var persist *persister.Persister
	if dsn := os.Getenv("SI_CORE_POSTGRES_DSN"); dsn != "" {
		durableTier, err = durable.Open(dsn)
		if err != nil {
			disk.Close()
			return nil, fmt.Errorf("open durable tier: %w", err)
		}
		persist = persister.New(durableTier, 1024, 5*time.Minute)
	} else {
		log.Warn("SI_CORE_POSTGRES_DSN unset, running without a durable tier")
	}

	var durableStore lhc.DurableStore
	if durableTier != nil {
		durableStore = durableTier
	}

	cache := lhc.New(mem, disk, durableStore, persist, transport, instanceID)
	updater := cacheupdater.New(transport, mem, instanceID)
	_ = updater // subscribed per (workspace, change set, db) by the request-routing layer, not globally here

	return &cacheHandle{Cache: cache, disk: disk, durable: durableTier, persist: persist}, nil
}

type cacheHandle struct {
	*lhc.Cache
	disk    *disktier.Tier
	durable *durable.Tier
	persist *persister.Persister
}

func (h *cacheHandle) Close() {
	h.disk.Close()
	if h.durable != nil {
		h.durable.Close()
	}
}

func waitForSignal(log *logrus.Entry) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("received shutdown signal")
}
