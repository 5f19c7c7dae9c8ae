// Command seriallogger finds a logging device on the serial ports of the
// machine and writes the data records it prints to CSV files, one file per
// source and data path. Operator input is forwarded to the device.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	serial "github.com/luhtfiimanal/go-serial-logger"
	"github.com/luhtfiimanal/go-serial-logger/internal/config"
	"github.com/luhtfiimanal/go-serial-logger/internal/console"
	"github.com/luhtfiimanal/go-serial-logger/internal/csvlog"
	"github.com/luhtfiimanal/go-serial-logger/internal/linemux"
	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
	"github.com/luhtfiimanal/go-serial-logger/internal/recorder"
	"github.com/luhtfiimanal/go-serial-logger/internal/scanner"
	"github.com/luhtfiimanal/go-serial-logger/internal/store"
)

var (
	configPath = flag.String("config", config.DefaultFileName, "Configuration file, created with defaults if missing")
	port       = flag.String("port", "", "Serial port to use instead of scanning")
	baud       = flag.Int("baud", 0, "Baud rate (overrides the configuration)")
	outDir     = flag.String("out", "", "Directory for CSV output (overrides the configuration)")
	dbPath     = flag.String("db", "", "SQLite file mirroring every record")
	listen     = flag.String("listen", "", "Debug HTTP listen address, e.g. localhost:8080")
	driver     = flag.String("driver", "", "Serial driver: auto, native or portable")
)

var errNoDevice = errors.New("no device connected")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Normalize(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var db *store.Store
	if cfg.Store.SQLitePath != "" {
		db, err = store.Open(cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
	}

	hub := linemux.NewHub()
	defer hub.Close()

	rec := recorder.New(recorder.Options{
		Out:        os.Stdout,
		Prefix:     cfg.Output.RecordPrefix,
		CSV:        csvlog.New(cfg.Output.Dir),
		Store:      db,
		Hub:        hub,
		ShowWrites: cfg.Output.ShowWrites,
	})
	monitoring.SetLogger(monitoring.WriterLogger(rec))

	var current atomic.Pointer[serial.SerialReader]
	send := func(command string) error {
		r := current.Load()
		if r == nil {
			return errNoDevice
		}
		_, err := r.WriteString(command)
		return err
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Debug.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, cfg.Debug.Listen, hub, db, send)
		}()
	}

	cons := console.New(os.Stdin, historyPath())
	defer cons.Close()
	input := cons.Lines(func(err error) { log.Printf("console: %v", err) })
	router := &console.Router{Out: rec, ToggleWrites: rec.ToggleWriteLog, Send: send}

	sc := scanner.New(scanner.OptionsFromConfig(cfg))
	for ctx.Err() == nil {
		r, err := sc.Find(ctx)
		if err != nil {
			break
		}
		current.Store(r)
		rec.Printf("Nice! Connected to correct device on %s!\n", r.Device())
		rec.Printf("Type %s at any time to show/hide this app activity.\n", console.ToggleWritesCommand)
		rec.Printf("Anything else is redirected to the device.\n")

		rec.Attach(r)
		input = forward(ctx, r, input, router)

		current.Store(nil)
		if err := r.Close(); err != nil {
			log.Printf("failed to close %s: %v", r.Device(), err)
		}
	}

	stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// forward routes console input until the device stops or ctx is done. It
// returns the input channel, or nil once input has ended.
func forward(ctx context.Context, r *serial.SerialReader, input <-chan string, router *console.Router) <-chan string {
	for {
		select {
		case <-ctx.Done():
			return input
		case <-r.Done():
			log.Printf("lost %s: %v", r.Device(), r.Err())
			return input
		case line, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			if err := router.Handle(line); err != nil {
				log.Printf("failed to send to %s: %v", r.Device(), err)
			}
		}
	}
}

func applyFlags(cfg *config.Config) {
	if *port != "" {
		cfg.Serial.Ports = []string{*port}
	}
	if *baud > 0 {
		cfg.Serial.Baudrate = *baud
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *dbPath != "" {
		cfg.Store.SQLitePath = *dbPath
	}
	if *listen != "" {
		cfg.Debug.Listen = *listen
	}
	if *driver != "" {
		cfg.Serial.Driver = *driver
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".seriallogger_history")
}

func serveDebug(ctx context.Context, addr string, hub *linemux.Hub, db *store.Store, send func(string) error) {
	mux := http.NewServeMux()
	hub.AttachAdminRoutes(mux, linemux.SenderFunc(func(command string) error {
		return send(command + "\n")
	}))
	if db != nil {
		if err := db.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database routes: %v", err)
		}
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
