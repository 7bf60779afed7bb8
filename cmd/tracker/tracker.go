// Command tracker serves the Tracker gRPC service. Measurement groups arrive
// over gRPC and optionally from a serial port, a UDP socket or a packet
// capture; every resulting track group is forwarded to a track consumer
// and, with -db, stored locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/tracker/internal/api"
	"github.com/banshee-data/tracker/internal/config"
	"github.com/banshee-data/tracker/internal/db"
	"github.com/banshee-data/tracker/internal/httputil"
	"github.com/banshee-data/tracker/internal/network"
	"github.com/banshee-data/tracker/internal/rpc"
	"github.com/banshee-data/tracker/internal/serialmux"
	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/version"
)

var (
	listen       = flag.String("listen", ":50051", "gRPC listen address")
	httpListen   = flag.String("http", ":8080", "HTTP admin listen address (empty disables)")
	configFile   = flag.String("config", "", "Path to tracker JSON config (defaults apply when empty)")
	filterType   = flag.String("filter", "", "Override filter type: kft or ivt")
	consumerAddr = flag.String("consumer", "localhost:50052", "Track consumer address (empty disables forwarding)")
	dbFile       = flag.String("db", "", "Path to sqlite database for local track storage (empty disables)")
	serialPort   = flag.String("serial", "", "Serial port to read measurements from (empty disables)")
	udpListen    = flag.String("udp", "", "UDP address to receive measurement datagrams on (empty disables)")
	udpRcvBuf    = flag.Int("udp-rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	pcapFile     = flag.String("pcap", "", "Replay measurement datagrams from a pcap file at startup")
	pcapIface    = flag.String("iface", "", "Capture measurement datagrams live from an interface (needs -tags=pcap)")
	pcapPort     = flag.Int("pcap-port", 50053, "UDP destination port to select from -pcap or -iface (0 for any)")
	verbose      = flag.Bool("v", false, "Enable diagnostic track logging")
	traceLog     = flag.Bool("trace", false, "Enable per-measurement filter tracing")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads path (or the built-in defaults when empty) and applies the
// -filter override.
func loadConfig(path, filter string) (*config.TrackerConfig, error) {
	cfg := config.EmptyTrackerConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTrackerConfig(path); err != nil {
			return nil, err
		}
	}
	if filter != "" {
		cfg.SetFilterType(filter)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogging(verbose, trace bool) {
	var diag, tr io.Writer
	if verbose || trace {
		diag = os.Stdout
	}
	if trace {
		tr = os.Stdout
	}
	track.SetLogWriters(os.Stderr, diag, tr)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("tracker"))
		return
	}
	log.Print(version.String("tracker"))
	setupLogging(*verbose, *traceLog)

	cfg, err := loadConfig(*configFile, *filterType)
	if errors.Is(err, track.ErrUnknownFilterType) {
		log.Fatalf("configuration error: %v", err)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	manager, err := track.NewManager(cfg.ManagerConfig(track.NewIDCounter()))
	if err != nil {
		log.Fatalf("failed to create track manager: %v", err)
	}
	log.Printf("using %s estimator", manager.FilterType())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []rpc.TrackSink
	if *consumerAddr != "" {
		conn, err := rpc.Dial(*consumerAddr)
		if err != nil {
			log.Fatalf("failed to connect to consumer: %v", err)
		}
		defer conn.Close()
		sinks = append(sinks, rpc.NewTrackConsumerClient(conn))
		log.Printf("forwarding tracks to %s", *consumerAddr)
	}

	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		store, err := database.StartSession(ctx, string(manager.FilterType()), "tracker", nil)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("storing tracks under session %s", store.Session().ID)
		sinks = append(sinks, store)
	}

	service := rpc.NewTrackerService(manager, cfg.GetForwardTimeout(), sinks...)

	adminServer := api.NewServer(manager, database)
	adminServer.SetForwarder(service)
	adminServer.SetConfig(cfg)
	mux := adminServer.ServeMux()
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach database admin routes: %v", err)
		}
	}

	var wg sync.WaitGroup

	// gRPC server
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv := rpc.NewServer()
		rpc.RegisterTrackerServer(srv, service)
		if err := rpc.ListenAndServe(ctx, srv, *listen); err != nil {
			log.Printf("gRPC server error: %v", err)
			stop()
		}
	}()

	if *serialPort != "" {
		serialMux, err := serialmux.NewRealSerialMux(*serialPort, cfg.GetSerialOptions())
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		defer serialMux.Close()
		serialMux.AttachAdminRoutes(mux)

		ingester := serialmux.NewIngester(service)
		adminServer.AddIngestStats("serial", func() any { return ingester.Stats() })
		id, lines := serialMux.Subscribe()

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serialMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer serialMux.Unsubscribe(id)
			if err := ingester.Run(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial ingest error: %v", err)
			}
			log.Printf("serial ingest stopped: %+v", ingester.Stats())
		}()
	}

	if *udpListen != "" {
		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:   *udpListen,
			RcvBuf:    *udpRcvBuf,
			Processor: service,
		})
		adminServer.AddIngestStats("udp", func() any { return listener.Stats() })
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener error: %v", err)
			}
		}()
	}

	if *pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := network.ReplayPCAPFile(ctx, *pcapFile, *pcapPort, service)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("PCAP replay error: %v", err)
			}
			log.Printf("PCAP replay: %+v", stats)
		}()
	}

	if *pcapIface != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := network.CaptureLive(ctx, *pcapIface, *pcapPort, service)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("live capture error: %v", err)
			}
			log.Printf("live capture: %+v", stats)
		}()
	}

	// HTTP server goroutine
	if *httpListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httputil.ListenAndServe(ctx, *httpListen, api.LoggingMiddleware(mux)); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Printf("tracker stopped: %+v", manager.Stats())
}
