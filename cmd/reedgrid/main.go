package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/reedgrid/internal/api"
	"github.com/banshee-data/reedgrid/internal/config"
	"github.com/banshee-data/reedgrid/internal/db"
	"github.com/banshee-data/reedgrid/internal/feed"
	"github.com/banshee-data/reedgrid/internal/frame"
	"github.com/banshee-data/reedgrid/internal/serialmux"
	"github.com/banshee-data/reedgrid/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to JSON config file (config/reedgrid.defaults.json is used when present)")
	port        = flag.String("port", "", "Serial port to use (ignored in dev mode)")
	baud        = flag.Int("baud", 0, "Serial baud rate")
	readTimeout = flag.Duration("read-timeout", 0, "Discard the frame in progress when no line arrives within this duration (0 keeps the configured value)")
	dbPath      = flag.String("db", "", "SQLite database path")
	listen      = flag.String("listen", "", "HTTP listen address")
	devMode     = flag.Bool("dev", false, "Replay a fixture file instead of opening the serial port")
	fixture     = flag.String("fixture", "", "Fixture file replayed in dev mode (built-in sample when empty)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

//go:embed fixture.txt
var sampleFixture []byte

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Resolve(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	s, err := resolveSettings(cfg, explicit)
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting %s", version.String())
	if err := run(ctx, s, serialmux.NewRealSerialPortFactory()); err != nil {
		log.Printf("reedgrid: %v", err)
		stop()
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}

// openSource returns the port frames are read from: the fixture replay in
// dev mode, the serial device otherwise.
func openSource(s settings, ports serialmux.SerialPortFactory) (serialmux.SerialPorter, error) {
	if !s.Dev {
		p, err := ports.Open(s.Port, s.Serial)
		if err != nil {
			if names, lerr := serialmux.PortNames(); lerr == nil {
				log.Printf("available serial ports: %v", names)
			}
			return nil, fmt.Errorf("failed to open serial port %s: %w", s.Port, err)
		}
		log.Printf("opened %s at %s", s.Port, s.Serial)
		return p, nil
	}

	data := sampleFixture
	if s.Fixture != "" {
		var err error
		data, err = os.ReadFile(s.Fixture)
		if err != nil {
			return nil, fmt.Errorf("failed to open fixtures file: %w", err)
		}
	}
	log.Printf("dev mode: replaying %d bytes of fixture every %s per line", len(data), s.ReplayEvery)
	return serialmux.NewFixturePort(data, s.ReplayEvery), nil
}

// run wires the serial source, assembler, feed, store and HTTP server and
// blocks until ctx is done or one of them fails.
func run(ctx context.Context, s settings, ports serialmux.SerialPortFactory) error {
	store, err := db.NewDB(s.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	p, err := openSource(s, ports)
	if err != nil {
		return err
	}

	asm := frame.NewAssembler(
		serialmux.NewLineReader(p),
		frame.WithReadTimeout(s.ReadTimeout),
		frame.WithEventHandler(recordEvents(store)),
	)
	defer asm.Close()

	frames := feed.New(nil)

	handler, err := newHandler(frames, store, asm)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Listen, err)
	}
	log.Printf("HTTP server listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)

	// subscribe before the monitor starts so the first frame is recorded
	_, records := frames.Subscribe()
	g.Go(func() error {
		for rec := range records {
			if err := store.RecordFrame(rec); err != nil {
				log.Printf("failed to record frame: %v", err)
			}
		}
		log.Print("recorder routine terminated")
		return nil
	})

	g.Go(func() error {
		defer frames.Close()
		err := frames.Run(gctx, asm)
		log.Print("monitor routine terminated")
		if ctx.Err() != nil {
			// shutdown was requested; whatever ended the stream is expected
			return nil
		}
		return err
	})

	g.Go(func() error {
		return serve(gctx, ln, handler)
	})

	return g.Wait()
}

// recordEvents persists assembler events to store. Idle read timeouts are
// left to the in-memory counters; a quiet board would otherwise add a row
// every read timeout.
func recordEvents(store *db.DB) frame.EventHandler {
	return func(ev frame.Event) {
		if ev.Idle() {
			return
		}
		if err := store.RecordEvent(ev); err != nil {
			log.Printf("failed to record assembler event: %v", err)
		}
	}
}

// newHandler mounts the API and the debug routes on one mux.
func newHandler(frames *feed.Feed, store *db.DB, stats api.StatsProvider) (http.Handler, error) {
	server := api.NewServer(frames, store, stats)
	mux := server.ServeMux()

	server.AttachAdminRoutes(mux)
	frames.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, fmt.Errorf("failed to attach database routes: %w", err)
	}
	return api.LoggingMiddleware(mux), nil
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	server := &http.Server{Handler: h}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}
