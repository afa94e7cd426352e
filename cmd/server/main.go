package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"voxelmind.ai/internal/observerproto"
	"voxelmind.ai/internal/persistence/archive"
	"voxelmind.ai/internal/persistence/indexdb"
	persistlog "voxelmind.ai/internal/persistence/log"
	"voxelmind.ai/internal/persistence/snapshot"
	"voxelmind.ai/internal/sim/engine"
	"voxelmind.ai/internal/sim/nav"
	"voxelmind.ai/internal/sim/tuning"
	"voxelmind.ai/internal/transport/observer"
)

type serverFlags struct {
	addr       string
	worldID    string
	dataDir    string
	tuningPath string
	snapPath   string
	loadLatest bool
	disableDB  bool
	watch      bool
	pathEvery  uint64
	keepSnaps  int
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f serverFlags
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run the mob simulation and its debug endpoints",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(f.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, f, logger.Named("server"))
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "127.0.0.1:8080", "http listen address")
	fl.StringVar(&f.worldID, "world", "world_1", "world id")
	fl.StringVar(&f.dataDir, "data", "./data", "runtime data directory")
	fl.StringVar(&f.tuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	fl.StringVar(&f.snapPath, "snapshot", "", "snapshot to resume from (optional)")
	fl.BoolVar(&f.loadLatest, "load-latest-snapshot", true, "resume from the newest snapshot in the data dir when --snapshot is empty")
	fl.BoolVar(&f.disableDB, "disable-db", false, "disable the sqlite incident/snapshot index")
	fl.BoolVar(&f.watch, "watch-tuning", true, "reload tuning.yaml when it changes")
	fl.Uint64Var(&f.pathEvery, "path-log-every", 20, "log path debug snapshots every N ticks (0 disables the log)")
	fl.IntVar(&f.keepSnaps, "keep-snapshots", 24, "rolling snapshots to keep; day-boundary snapshots are archived separately (0 keeps all)")
	fl.BoolVar(&f.debug, "debug", false, "development logging at debug level")
	return cmd
}

func buildLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func run(ctx context.Context, f serverFlags, logger *zap.Logger) error {
	worldDir := filepath.Join(f.dataDir, "worlds", f.worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}

	tune, err := tuning.Load(f.tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("tuning not found; using defaults", zap.String("path", f.tuningPath))
		tune, err = tuning.Parse(nil)
	}
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	// Read-model index (does not affect the simulation).
	var idx *indexdb.SQLiteIndex
	if !f.disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "nav.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if digest, err := idx.RecordTuning(tune); err == nil {
			logger.Info("tuning recorded", zap.String("digest", digest))
		}
	}

	obs := observer.NewServer(logger.Named("observer"))
	defer obs.Close()
	sinks := nav.MultiSink{obs}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	if f.pathEvery > 0 {
		pathLog := persistlog.NewPathLogger(filepath.Join(worldDir, "logs"), f.pathEvery)
		defer pathLog.Close()
		sinks = append(sinks, pathLog)
	}

	eng, err := engine.New(engine.Config{
		WorldID: f.worldID,
		Tuning:  tune,
		Sink:    sinks,
		Log:     logger.Named("engine"),
		OnTick:  obs.PublishTick,
	})
	if err != nil {
		return err
	}

	snapshotToLoad := strings.TrimSpace(f.snapPath)
	if snapshotToLoad == "" && f.loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != f.worldID {
			return fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", f.worldID, snap.Header.WorldID)
		}
		if err := eng.Restore(snap); err != nil {
			return err
		}
		logger.Info("resumed", zap.String("snapshot", filepath.Base(snapshotToLoad)), zap.Uint64("tick", snap.Header.Tick))
	} else if err := eng.Populate(); err != nil {
		return err
	}

	obs.BootstrapFn = func() observerproto.BootstrapResponse {
		c, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		st, err := eng.State(c)
		if err != nil {
			logger.Warn("bootstrap state unavailable", zap.Error(err))
		}
		return st
	}

	writeSnap := func(snap snapshot.SnapshotV1) {
		path := snapshot.PathFor(filepath.Join(worldDir, "snapshots"), snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Error("snapshot write", zap.Error(err))
			return
		}
		logger.Info("snapshot written", zap.Uint64("tick", snap.Header.Tick), zap.Int("mobs", len(snap.Mobs)))
		idx.RecordSnapshot(path, snap)
		if day, dst, ok, err := archive.ArchiveDaySnapshot(worldDir, path, snap); err != nil {
			logger.Warn("day archive", zap.Error(err))
		} else if ok {
			logger.Info("day archived", zap.Int("day", day), zap.String("path", dst))
		}
		if removed, err := archive.PruneSnapshots(filepath.Dir(path), f.keepSnaps); err != nil {
			logger.Warn("prune snapshots", zap.Error(err))
		} else if len(removed) > 0 {
			logger.Debug("snapshots pruned", zap.Int("removed", len(removed)))
		}
	}

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           newMux(eng, obs),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})
	eg.Go(func() error {
		defer close(loopDone)
		err := eng.Run(egCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		for {
			select {
			case <-loopDone:
				return nil
			case snap := <-eng.Snapshots():
				writeSnap(snap)
			}
		}
	})
	if f.watch {
		eg.Go(func() error {
			return tuning.Watch(egCtx, f.tuningPath, logger.Named("tuning"), func(t tuning.Tuning) {
				eng.ApplyTuning(t)
				if _, err := idx.RecordTuning(t); err != nil {
					logger.Warn("record tuning", zap.Error(err))
				}
			})
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(c)
	})
	eg.Go(func() error {
		logger.Info("listening", zap.String("addr", f.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()

	// The loop has stopped, so the engine can be read directly.
	for drained := false; !drained; {
		select {
		case snap := <-eng.Snapshots():
			writeSnap(snap)
		default:
			drained = true
		}
	}
	if snap, serr := eng.Snapshot(); serr != nil {
		logger.Error("final snapshot", zap.Error(serr))
	} else {
		writeSnap(snap)
	}
	if idx != nil {
		fc, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = idx.Flush(fc)
		cancel()
	}
	return err
}

func newMux(eng *engine.Engine, obs *observer.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := eng.State(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(st)
	})
	mux.HandleFunc("/debug/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := eng.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})
	mux.HandleFunc("/debug/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/debug/v1/observer/ws", obs.WSHandler())
	return mux
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
