// Command trackconsumer serves the TrackConsumer gRPC service and writes every
// received track group to a track file and, with -db, to sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/tracker/internal/api"
	"github.com/banshee-data/tracker/internal/db"
	"github.com/banshee-data/tracker/internal/httputil"
	"github.com/banshee-data/tracker/internal/rpc"
	"github.com/banshee-data/tracker/internal/trackfile"
	"github.com/banshee-data/tracker/internal/version"
)

var (
	listen      = flag.String("listen", ":50052", "gRPC listen address")
	outFile     = flag.String("o", "tracks.txt", "Track file to write (empty disables)")
	dbFile      = flag.String("db", "", "Path to sqlite database for track storage (empty disables)")
	httpListen  = flag.String("http", "", "HTTP debug listen address, requires -db (empty disables)")
	source      = flag.String("source", "tracker", "Source label recorded with the database session")
	filterLabel = flag.String("filter", "kft", "Filter type label recorded with the database session")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// openSinks builds the sinks selected by the flags. The returned closer
// releases everything that was opened.
func openSinks(ctx context.Context, out string, database *db.DB, filter, source string) ([]rpc.TrackSink, func() error, error) {
	var sinks []rpc.TrackSink
	closeAll := func() error { return nil }

	if out != "" {
		w, err := trackfile.Create(out)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, w)
		closeAll = w.Close
		log.Printf("writing tracks to %s", out)
	}

	if database != nil {
		store, err := database.StartSession(ctx, filter, source, nil)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to start session: %w", err)
		}
		sinks = append(sinks, store)
		log.Printf("storing tracks under session %s", store.Session().ID)
	}
	return sinks, closeAll, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trackconsumer"))
		return
	}
	log.Print(version.String("trackconsumer"))

	if *outFile == "" && *dbFile == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: set -o and/or -db")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if *dbFile != "" {
		var err error
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	sinks, closeSinks, err := openSinks(ctx, *outFile, database, *filterLabel, *source)
	if err != nil {
		log.Fatalf("failed to open sinks: %v", err)
	}
	defer func() {
		if err := closeSinks(); err != nil {
			log.Printf("failed to close track file: %v", err)
		}
	}()

	service := rpc.NewConsumerService(sinks...)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv := rpc.NewServer()
		rpc.RegisterTrackConsumerServer(srv, service)
		if err := rpc.ListenAndServe(ctx, srv, *listen); err != nil {
			log.Printf("gRPC server error: %v", err)
			stop()
		}
	}()

	if *httpListen != "" && database != nil {
		mux := http.NewServeMux()
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach database admin routes: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httputil.ListenAndServe(ctx, *httpListen, api.LoggingMiddleware(mux)); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Printf("track consumer stopped after %d groups", service.Received())
}
