// Command mindwave reads a NeuroSky MindWave headset over its serial link,
// records what it decodes and serves it over HTTP.
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
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mindwave.report/internal/api"
	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/config"
	"github.com/banshee-data/mindwave.report/internal/db"
	"github.com/banshee-data/mindwave.report/internal/headset"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
	"github.com/banshee-data/mindwave.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON config file (defaults are used when empty)")
	devMode     = flag.Bool("dev", false, "Replay a capture instead of opening the serial port")
	fixture     = flag.String("fixture", "", "Capture file replayed in dev mode (synthetic data when empty)")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/rfcomm0", "Serial port of the headset (ignored in dev mode)")
	baud        = flag.Int("baud", serialport.DefaultBaudRate, "Serial baud rate")
	dbPath      = flag.String("db-path", "mindwave.db", "Path to the sqlite database")
	noRecord    = flag.Bool("no-record", false, "Do not persist samples")
	noConnect   = flag.Bool("no-connect", false, "Wait for POST /api/connect instead of connecting at startup")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	verbose     = flag.Bool("verbose", false, "Log rejected frames and blink classifications")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on the command line on top of it.
func loadConfig(fs *flag.FlagSet) (*config.Config, error) {
	cfg := &config.Config{}
	if path := fs.Lookup("config").Value.String(); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "listen":
			cfg.Listen = &v
		case "port":
			cfg.Port = &v
		case "db-path":
			cfg.DBPath = &v
		case "baud":
			b := f.Value.(flag.Getter).Get().(int)
			cfg.BaudRate = &b
		case "no-record":
			record := !f.Value.(flag.Getter).Get().(bool)
			cfg.Record = &record
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func headsetOptions(cfg *config.Config) headset.Options {
	return headset.Options{
		Path:            cfg.GetPort(),
		Port:            cfg.PortOptions(),
		PollTimeout:     cfg.GetPollTimeout(),
		FrameTimeout:    cfg.GetFrameTimeout(),
		ErrorBackoff:    cfg.GetErrorBackoff(),
		BlinkWindow:     cfg.GetBlinkWindow(),
		HistoryCapacity: cfg.GetHistoryCapacity(),
	}
}

// devOpener replays capture, or a synthetic stream, at roughly the rate the
// headset sends full frames.
func devOpener(capture []byte) serialport.PortOpener {
	if len(capture) == 0 {
		capture = thinkgear.NewSyntheticGenerator(time.Now().UnixNano()).Capture(2000)
	}
	return func(path string, opts serialport.PortOptions) (serialport.SerialPorter, error) {
		return serialport.NewReplayPort(capture, 36, time.Second), nil
	}
}

// logBlinks is a subscriber that reports each new blink classification.
func logBlinks() headset.Handler {
	var last uint64
	return func(s thinkgear.Sample, ev *blink.Event) {
		if ev == nil || ev.Type == blink.None || ev.Seq == last {
			return
		}
		last = ev.Seq
		log.Printf("blink: %s (strength=%d raw=%d)", ev.Type, s.BlinkStrength, s.Raw)
	}
}

// recordSessions opens a session row on every connect and closes it once the
// headset has handed the recorder every sample of the session.
func recordSessions(opts *headset.Options, rec *db.Recorder) {
	opts.OnConnect = func(st headset.Status) {
		if err := rec.Begin(st.Path, st.Port, st.ConnectedAt); err != nil {
			log.Printf("failed to start session: %v", err)
		}
	}
	opts.OnDisconnect = func(st headset.Status, stats headset.Stats) {
		if err := rec.End(time.Now()); err != nil {
			log.Printf("failed to end session: %v", err)
		}
		if n := rec.Errors(); n > 0 {
			log.Printf("session on %s lost %d writes", st.Path, n)
		}
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	if *listPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			if p.IsUSB {
				fmt.Printf("%s\tusb %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
			} else {
				fmt.Println(p.Name)
			}
		}
		return
	}

	cfg, err := loadConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.GetListen() == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("mindwave %s", version.String())

	opts := headsetOptions(cfg)
	if *devMode {
		var capture []byte
		if *fixture != "" {
			capture, err = os.ReadFile(*fixture)
			if err != nil {
				log.Fatalf("failed to read fixture: %v", err)
			}
			log.Printf("dev mode: replaying %s", *fixture)
		} else {
			log.Printf("dev mode: replaying synthetic data")
		}
		opts.Opener = devOpener(capture)
	}

	var store *db.DB
	var rec *db.Recorder
	if cfg.GetRecord() {
		store, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		rec = db.NewRecorder(store)
		recordSessions(&opts, rec)
	}

	h := headset.New(opts)
	defer h.Close()
	if rec != nil {
		h.Subscribe(rec.Handle)
	}
	h.Subscribe(logBlinks())

	// Create a wait group for the HTTP server and acquisition routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*noConnect {
		if err := h.Connect(ctx); err != nil {
			// the headset can still be connected later through the API
			log.Printf("failed to connect to headset: %v", err)
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(ctx, h, store)
		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", cfg.GetListen())

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Headset routine: stop acquisition once we are asked to exit
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := h.Disconnect(); err != nil && !errors.Is(err, headset.ErrNotConnected) {
			log.Printf("failed to close headset port: %v", err)
		}
		stats := h.Stats()
		log.Printf("headset routine terminated (frames=%d checksum_errors=%d length_errors=%d)",
			stats.Frames, stats.ChecksumErrors, stats.LengthErrors)
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
