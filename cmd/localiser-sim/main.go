// Command localiser-sim runs the particle filter localiser against a
// simulated robot driving around a walled room, and reports how closely the
// estimate tracks ground truth.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/localiser/internal/config"
	"github.com/banshee-data/localiser/internal/db"
	"github.com/banshee-data/localiser/internal/localiser/controller"
	"github.com/banshee-data/localiser/internal/localiser/monitor"
	"github.com/banshee-data/localiser/internal/localiser/particles"
	"github.com/banshee-data/localiser/internal/localiser/sim"
	"github.com/banshee-data/localiser/internal/monitoring"
	"github.com/banshee-data/localiser/internal/version"
)

// Options holds the command-line configuration.
type Options struct {
	ConfigFile    string
	Particles     int
	Steps         int
	Seed          uint64
	SimSeed       uint64
	PlotDir       string
	DBPath        string
	ParticleEvery int
	Listen        string
	Hold          bool
	Verbose       bool
	ShowVersion   bool
}

func parseFlags() Options {
	opts := Options{}

	flag.StringVar(&opts.ConfigFile, "config", "", "Path to tuning JSON (defaults are used when empty)")
	flag.IntVar(&opts.Particles, "particles", 0, "Override the number of particles")
	flag.IntVar(&opts.Steps, "steps", sim.DefaultConfig().Steps, "Number of simulated steps")
	flag.Uint64Var(&opts.Seed, "seed", 0, "Filter seed (0 uses the tuning file, then a random seed)")
	flag.Uint64Var(&opts.SimSeed, "sim-seed", sim.DefaultConfig().Seed, "Simulator seed")
	flag.StringVar(&opts.PlotDir, "plot-dir", "", "Write a particle cloud PNG into this directory")
	flag.StringVar(&opts.DBPath, "db", "", "Record the run into this SQLite database")
	flag.IntVar(&opts.ParticleEvery, "particle-every", 10, "Store the full particle set every N steps (0 disables)")
	flag.StringVar(&opts.Listen, "listen", "", "Serve markers and the debug scatter on this address")
	flag.BoolVar(&opts.Hold, "hold", false, "Keep serving after the run until interrupted")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&opts.ShowVersion, "version", false, "Print version and exit")

	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if opts.ShowVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.Verbose = opts.Verbose

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("localiser-sim: %v", err)
	}
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, opts Options) error {
	tuning, err := loadTuning(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Particles > 0 {
		tuning.NumParticles = &opts.Particles
	}

	seed := opts.Seed
	if seed == 0 {
		seed = tuning.GetSeed()
	}
	if seed == 0 {
		seed = rand.Uint64()
	}

	world, err := sim.RoomWorld()
	if err != nil {
		return err
	}
	simCfg := sim.DefaultConfig()
	simCfg.Steps = opts.Steps
	simCfg.Seed = opts.SimSeed
	s, err := sim.New(world, simCfg)
	if err != nil {
		return err
	}
	transforms, err := s.Transforms()
	if err != nil {
		return err
	}

	filterCfg := particles.ConfigFromTuning(tuning)
	filter, err := particles.New(filterCfg, transforms, particles.WithSeed(seed))
	if err != nil {
		return err
	}

	markers := monitor.NewMarkerPublisher("map", monitor.Green.RGBA(1))
	cloud := monitor.NewCloudPlotter(world.Grid, monitor.Green.RGBA(0.6))
	publishers := []controller.Publisher{markers, cloud}

	var store *db.RunStore
	var runRow *db.Run
	if opts.DBPath != "" {
		database, err := db.NewDB(opts.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		cfgJSON, err := json.Marshal(tuning)
		if err != nil {
			return err
		}
		store = db.NewRunStore(database)
		runRow = &db.Run{
			Name:         "room",
			NumParticles: filterCfg.NumParticles,
			Seed:         seed,
			ConfigJSON:   cfgJSON,
		}
		if err := store.InsertRun(runRow); err != nil {
			return err
		}
		publishers = append(publishers, db.NewRecorder(store, runRow.RunID, db.WithParticleEvery(opts.ParticleEvery)))
		log.Printf("Recording run %s to %s", runRow.RunID, opts.DBPath)
	}

	ctrl, err := controller.New(filter, world.Grid, tuning.GetReseedEveryScans(), publishers...)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer func() {
		cancelServe()
		wg.Wait()
	}()
	if opts.Listen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{Address: opts.Listen, Markers: markers, Grid: world.Grid})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(serveCtx); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	if err := ctrl.Configure(world.Start); err != nil {
		return err
	}
	if err := ctrl.Activate(); err != nil {
		return err
	}

	log.Printf("Running %d steps with %d particles (seed %d)", simCfg.Steps, filterCfg.NumParticles, seed)
	started := time.Now()
	res, err := sim.Run(ctx, s, ctrl, transforms, cloud)
	if err != nil {
		return err
	}
	log.Printf("Processed %d steps in %s: mean error %.3f m, final error %.3f m, final yaw error %.3f rad, %d transform failures",
		res.Steps, time.Since(started).Round(time.Millisecond), res.MeanError, res.FinalError, res.FinalYawError, res.TransformFailures)

	if store != nil {
		err := store.FinishRun(runRow.RunID, db.RunSummary{
			FinishedAt:        time.Now(),
			Steps:             res.Steps,
			TransformFailures: res.TransformFailures,
			MeanError:         res.MeanError,
			FinalError:        res.FinalError,
			HasError:          len(res.PositionErrors) > 0,
		})
		if err != nil {
			return err
		}
	}

	if opts.PlotDir != "" {
		path := monitor.PlotPath(opts.PlotDir, "localiser", time.Now())
		if err := cloud.Save(path); err != nil {
			return fmt.Errorf("save plot: %w", err)
		}
		log.Printf("Wrote %s", path)
	}

	if opts.Hold && opts.Listen != "" {
		log.Printf("Holding on %s; press Ctrl-C to exit", opts.Listen)
		<-ctx.Done()
	}
	ctrl.Deactivate()
	return nil
}
