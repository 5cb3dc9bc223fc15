// Command evaluate runs controllers headless on a track and prints a
// fitness leaderboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trackevolve/internal/config"
	"github.com/ukydev/trackevolve/internal/controller"
	"github.com/ukydev/trackevolve/internal/db"
	"github.com/ukydev/trackevolve/internal/episode"
	"github.com/ukydev/trackevolve/internal/sim"
	"github.com/ukydev/trackevolve/internal/telemetry"
	"github.com/ukydev/trackevolve/internal/track"
	"github.com/ukydev/trackevolve/internal/trail"
)

type options struct {
	networks string
	random   int
	hidden   int
	seed     uint64
	demo     bool
	episodes int
	top      int
	trailPNG string
	store    bool
	publish  bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.StringVar(&o.networks, "networks", "", "JSON file with one network or an array of networks")
	fs.IntVar(&o.random, "random", 0, "add this many randomly initialised networks")
	fs.IntVar(&o.hidden, "hidden", 8, "hidden layer width for -random")
	fs.Uint64Var(&o.seed, "seed", 1, "seed for -random")
	fs.BoolVar(&o.demo, "demo", false, "add scripted slew drivers")
	fs.IntVar(&o.episodes, "episodes", 1, "episodes to run, resetting agents between them")
	fs.IntVar(&o.top, "top", 10, "leaderboard length")
	fs.StringVar(&o.trailPNG, "trail", "", "write vehicle trails of the last episode to this PNG")
	fs.BoolVar(&o.store, "store", false, "store episodes in MongoDB")
	fs.BoolVar(&o.publish, "mqtt", false, "publish telemetry to MQTT_BROKER")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.networks == "" && o.random <= 0 && !o.demo {
		return o, fmt.Errorf("nothing to run: give -networks, -random or -demo")
	}
	if o.episodes <= 0 {
		return o, fmt.Errorf("-episodes must be positive, got %d", o.episodes)
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.SetupLogging(); err != nil {
		log.WithError(err).Fatal("Invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		log.WithError(err).Fatal("Evaluation failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	s, err := cfg.Simulation()
	if err != nil {
		return err
	}
	mask, _, err := track.Load(cfg.TrackImage, cfg.Border)
	if err != nil {
		return err
	}
	tr, err := sim.NewTrack(mask, s.Law, s.Options...)
	if err != nil {
		return err
	}

	ctrls, err := buildControllers(opts, len(s.Spec.SensorAngles), cfg.FPS)
	if err != nil {
		return err
	}
	agents, err := episode.Spawn(s.Spec, s.Start, ctrls)
	if err != nil {
		return err
	}

	var observers []episode.Observer
	var rec *trail.Recorder
	if opts.trailPNG != "" {
		rec = trail.NewRecorder(2)
		observers = append(observers, rec)
	}
	if opts.publish {
		if cfg.MQTTBroker == "" {
			return fmt.Errorf("-mqtt needs MQTT_BROKER")
		}
		pub, err := telemetry.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return err
		}
		defer pub.Close()
		observers = append(observers, telemetry.NewObserver(pub, cfg.MQTTTopicPrefix, cfg.MQTTFrameEvery,
			telemetry.WithDenominator(cfg.InputDenominator)))
	}

	var episodes db.EpisodeCollection
	if opts.store {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		database := client.Database(cfg.MongoDB)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			return err
		}
		episodes = &db.MongoEpisodeCollection{Collection: database.Collection(db.EpisodesCollectionName)}
	}

	runner := episode.NewRunner(tr, cfg.EpisodeOptions(), observers...)
	trackName := filepath.Base(cfg.TrackImage)
	for i := 0; i < opts.episodes; i++ {
		if i > 0 {
			for _, a := range agents {
				a.Reset()
			}
			if rec != nil {
				rec.Reset()
			}
		}
		res, err := runner.Run(ctx, uuid.New(), agents)
		if err != nil {
			return err
		}
		if err := printLeaderboard(out, i+1, res, opts.top); err != nil {
			return err
		}
		if episodes != nil {
			doc := res.Document(trackName, "evaluate", runner.Options().MaxFrames, s.Drift != nil)
			if err := episodes.InsertEpisode(ctx, doc); err != nil {
				return fmt.Errorf("store episode %s: %w", doc.ID, err)
			}
			log.WithField("episode_id", doc.ID).Info("Stored episode")
		}
	}

	if rec != nil {
		title := fmt.Sprintf("%s, %d agents", trackName, len(agents))
		if err := rec.WritePNG(opts.trailPNG, mask, title); err != nil {
			return err
		}
		log.WithField("path", opts.trailPNG).Info("Wrote trails")
	}
	return nil
}

// buildControllers assembles the population: file networks first, then
// random networks, then demo drivers.
func buildControllers(opts options, inputs, fps int) ([]controller.Controller, error) {
	var ctrls []controller.Controller
	if opts.networks != "" {
		nets, err := controller.LoadFeedForward(opts.networks, inputs)
		if err != nil {
			return nil, err
		}
		for _, n := range nets {
			ctrls = append(ctrls, n)
		}
	}
	if opts.random > 0 {
		rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
		for i := 0; i < opts.random; i++ {
			n, err := controller.RandomFeedForward(rng, 1, inputs, opts.hidden, 2)
			if err != nil {
				return nil, err
			}
			ctrls = append(ctrls, n)
		}
	}
	if opts.demo {
		ctrls = append(ctrls, demoDrivers(fps)...)
	}
	return ctrls, nil
}

// demoDrivers are keyboard-style scripts: straight, weave, and a hard
// left that ends in the wall.
func demoDrivers(fps int) []controller.Controller {
	sec := func(s float64) int { return int(s * float64(fps)) }
	return []controller.Controller{
		controller.NewSlew(2, fps, controller.Segment{Frames: sec(10), Accel: 1}),
		controller.NewSlew(2, fps,
			controller.Segment{Frames: sec(1), Accel: 1},
			controller.Segment{Frames: sec(1), Steer: 0.6, Accel: 0.6},
			controller.Segment{Frames: sec(1), Steer: -0.6, Accel: 0.6},
			controller.Segment{Frames: sec(1), Steer: 0.6, Accel: 0.6},
			controller.Segment{Frames: sec(6), Accel: 1},
		),
		controller.NewSlew(2, fps, controller.Segment{Frames: sec(20), Steer: 1, Accel: 1}),
	}
}

func printLeaderboard(out io.Writer, n int, res *episode.Result, top int) error {
	s := episode.Summarize(res)
	fmt.Fprintf(out, "episode %d (%s): %d frames, %s, %d/%d alive, mean %.2f sd %.2f\n",
		n, res.EpisodeID, res.Frames, res.Reason, s.Survivors, s.Agents, s.Mean, s.StdDev)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tAGENT\tFITNESS\tREWARD\tDISTANCE\tFRAMES\tALIVE")
	for i, a := range res.Top(top) {
		fmt.Fprintf(w, "%d\t%d\t%.2f\t%.3f\t%.1f\t%d\t%t\n",
			i+1, a.ID, a.Fitness, a.Reward, a.Distance, a.Frames, a.Alive)
	}
	return w.Flush()
}
