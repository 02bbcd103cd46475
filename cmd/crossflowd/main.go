// Command crossflowd runs the adaptive intersection controller: four
// detection producers feeding a shared aggregator, the phase controller,
// SQLite persistence, and the HTTP status API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/greenwave-data/crossflow/internal/api"
	"github.com/greenwave-data/crossflow/internal/config"
	"github.com/greenwave-data/crossflow/internal/pipeline"
	"github.com/greenwave-data/crossflow/internal/source"
	"github.com/greenwave-data/crossflow/internal/store"
	"github.com/greenwave-data/crossflow/internal/timeutil"
	"github.com/greenwave-data/crossflow/internal/traffic"
	"github.com/greenwave-data/crossflow/internal/vision"
)

var (
	configPath    = flag.String("config", "", "path to JSON tuning file (defaults apply when empty)")
	dbPath        = flag.String("db", "crossflow.db", "path to SQLite database (empty disables persistence)")
	listenAddr    = flag.String("listen", ":8080", "HTTP listen address")
	migrationsDir = flag.String("migrations", "", "path to migrations directory (auto-detected when empty)")
)

// trafficProfiles gives each approach its own arrival pattern so the
// synthetic intersection behaves like a real one: offset peaks, uneven
// demand.
var trafficProfiles = map[traffic.Direction]struct {
	base, amplitude, frequency, phase float64
}{
	traffic.North: {2, 3, 0.2, 0},
	traffic.South: {3, 2, 0.2, 1},
	traffic.East:  {4, 1, 0.15, 0},
	traffic.West:  {2, 2, 0.15, 2},
}

func main() {
	flag.Parse()

	// .env is optional; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Printf("[crossflowd] loaded environment from .env")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[crossflowd] configuration error: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("[crossflowd] %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Empty()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	var db *store.DB
	if *dbPath != "" {
		var err error
		db, err = store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		dir := *migrationsDir
		if dir == "" {
			dir, err = store.FindMigrationsDir()
			if err != nil {
				return err
			}
		}
		if err := db.MigrateUp(dir); err != nil {
			return err
		}
		log.Printf("[crossflowd] database ready at %s", *dbPath)
	} else {
		log.Printf("[crossflowd] persistence disabled")
	}

	agg := traffic.NewAggregator()

	onChange := func(ev traffic.SignalChangeEvent) {
		if db == nil {
			return
		}
		if err := db.LogSignalChange(ev); err != nil {
			log.Printf("[crossflowd] failed to persist signal change %s: %v", ev.ID, err)
		}
	}
	ctrl, err := traffic.NewPhaseController(agg, clock, traffic.TimingParams{
		MinGreen:            cfg.GetMinGreenTime(),
		MaxGreen:            cfg.GetMaxGreenTime(),
		BaseGreen:           cfg.GetBaseGreenTime(),
		ExtensionPerVehicle: cfg.GetExtensionPerVehicle(),
		PairAggregate:       cfg.GetPairAggregate(),
	}, onChange)
	if err != nil {
		return err
	}

	detectors := make(map[traffic.Direction]*vision.Detector, len(traffic.Directions))
	var producers []*pipeline.Producer
	for i, d := range traffic.Directions {
		det, err := vision.NewDetector(cfg)
		if err != nil {
			return fmt.Errorf("detector for %s: %w", d, err)
		}
		detectors[d] = det

		profile := trafficProfiles[d]
		src := source.NewSyntheticSource(
			cfg.GetCameraWidth(), cfg.GetCameraHeight(),
			profile.base, profile.amplitude, profile.frequency, profile.phase,
			int64(i+1), clock,
		)
		p, err := pipeline.NewProducer(d, src, det, agg, db, clock)
		if err != nil {
			return err
		}
		producers = append(producers, p)
	}

	frameInterval := time.Second / time.Duration(cfg.GetCameraFPS())
	rt := pipeline.NewRuntime(producers, ctrl, db, clock, frameInterval, cfg.GetControllerTick())
	rt.Start(ctx)

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: api.LoggingMiddleware(api.NewServer(agg, ctrl, detectors, db, cfg).ServeMux()),
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Printf("[crossflowd] HTTP API listening on %s", *listenAddr)
		httpErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("[crossflowd] shutting down")
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			rt.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[crossflowd] http shutdown: %v", err)
	}
	rt.Wait()
	return nil
}
