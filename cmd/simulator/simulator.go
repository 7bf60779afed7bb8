// Command simulator generates noisy measurements of synthetic targets. By
// default it streams them to the tracker over gRPC; -udp sends datagrams
// instead and -files writes CSV scenario files without any network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/tracker/internal/network"
	"github.com/banshee-data/tracker/internal/rpc"
	"github.com/banshee-data/tracker/internal/simulator"
	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/version"
)

var (
	trackerAddr = flag.String("tracker", "localhost:50051", "Tracker gRPC address")
	udpAddr     = flag.String("udp", "", "Send measurement datagrams to this UDP address instead of gRPC")
	interval    = flag.Duration("interval", 2*time.Second, "Time between measurement groups")
	retry       = flag.Duration("retry", 5*time.Second, "Wait after a failed send")
	duration    = flag.Duration("duration", 120*time.Second, "Total run time (0 runs until interrupted)")
	numTargets  = flag.Int("targets", 1, "Number of simulated targets")
	sigma       = flag.Float64("sigma", simulator.DefaultSigma, "Measurement noise standard deviation")
	seed        = flag.Uint64("seed", 0, "Random seed (0 picks one)")
	record      = flag.String("record", "", "Also write every sent sample to this CSV file")

	filesMode   = flag.Bool("files", false, "Write CSV scenario files instead of streaming")
	fileBase    = flag.String("f", "track", "Scenario file base name (-files)")
	fileCount   = flag.Int("n", 1, "Number of scenario files (-files)")
	fileSeconds = flag.Float64("t", 120, "Simulated seconds per scenario file (-files)")
	fileDir     = flag.String("dir", ".", "Directory for scenario files (-files)")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

// newSendFunc returns the delivery path chosen by the flags and a closer for
// its connection.
func newSendFunc(grpcAddr, udp string) (simulator.SendFunc, func() error, error) {
	if udp != "" {
		sender, err := network.NewSender(udp)
		if err != nil {
			return nil, nil, err
		}
		return sender.Send, sender.Close, nil
	}

	conn, err := rpc.Dial(grpcAddr)
	if err != nil {
		return nil, nil, err
	}
	client := rpc.NewTrackerClient(conn)
	send := func(ctx context.Context, group track.MeasurementGroup) error {
		_, err := client.ProcessMeasurement(ctx, group)
		return err
	}
	return send, conn.Close, nil
}

// newTargets draws n random targets starting at time zero.
func newTargets(n int, seed uint64) []simulator.Target {
	rng := rand.New(rand.NewPCG(seed, seed))
	targets := make([]simulator.Target, n)
	for i := range targets {
		targets[i] = simulator.RandomTarget(rng, 0)
	}
	return targets
}

func runFiles() error {
	cfg := simulator.DefaultScenarioConfig()
	cfg.Dir = *fileDir
	cfg.BaseName = *fileBase
	cfg.Tracks = *fileCount
	cfg.Duration = *fileSeconds
	cfg.Interval = interval.Seconds()
	cfg.Seed = *seed
	paths, err := simulator.WriteScenarioFiles(cfg)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Printf("wrote %s", p)
	}
	return nil
}

func runStream(ctx context.Context) error {
	send, closeConn, err := newSendFunc(*trackerAddr, *udpAddr)
	if err != nil {
		return err
	}
	defer closeConn()

	sim := simulator.New(newTargets(*numTargets, *seed), simulator.WithSigma(*sigma), simulator.WithSeed(*seed+1))
	for i, tg := range sim.Targets() {
		log.Printf("target %d: start=%+v velocity=%+v", i, tg.Start, tg.Velocity)
	}

	cfg := simulator.DefaultStreamConfig()
	cfg.Interval = *interval
	cfg.RetryDelay = *retry
	cfg.Duration = *duration
	if *record != "" {
		w, err := simulator.CreateCSV(*record)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("failed to close %s: %v", *record, err)
			}
		}()
		cfg.Record = w
	}

	stats, err := sim.Stream(ctx, send, cfg)
	log.Printf("simulation finished: sent=%d failed=%d", stats.Sent, stats.Failed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("simulator"))
		return
	}
	log.Print(version.String("simulator"))

	if *seed == 0 {
		*seed = rand.Uint64()
	}
	log.Printf("seed %d", *seed)

	if *filesMode {
		if err := runFiles(); err != nil {
			log.Fatalf("failed to write scenario files: %v", err)
		}
		return
	}

	if *numTargets < 1 {
		fmt.Fprintln(os.Stderr, "-targets must be at least 1")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runStream(ctx); err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
}
