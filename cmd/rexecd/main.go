// Command rexecd is the server side of rexec: it listens for TCP
// connections, runs the handshake on each, and dispatches incoming
// envelopes to a filesystem/process Handler. CLI frontends are not a core
// concern here; this is deliberately thin, grounded on katzenpost's
// talek/frontend and talek/replica mains (flag-based config path,
// os/signal-driven shutdown).
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelsys/rexec/internal/config"
	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/internal/metrics"
	"github.com/kestrelsys/rexec/internal/statedb"
	"github.com/kestrelsys/rexec/server/dispatch"
	"github.com/kestrelsys/rexec/server/fsservice"
	"github.com/kestrelsys/rexec/server/procreg"
	"github.com/kestrelsys/rexec/server/watchreg"
)

var log = logging.New("rexecd")

func main() {
	var (
		configPath = flag.String("config", "", "path to rexecd.toml (optional; when set, its values replace -listen and -state-db)")
		listenAddr = flag.String("listen", ":7700", "listen address")
		stateDB    = flag.String("state-db", "", "path to the bbolt crash-diagnostics state db (optional)")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		os.Stdout.WriteString(versioninfo.Version + "\n")
		return
	}

	cfg := config.Server{ListenAddress: *listenAddr, StateDBPath: *stateDB}
	if *configPath != "" {
		loaded, err := config.LoadServer(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	var db *statedb.DB
	if cfg.StateDBPath != "" {
		var err error
		db, err = statedb.Open(cfg.StateDBPath)
		if err != nil {
			log.Fatalf("open state db: %v", err)
		}
		defer db.Close()
	}

	procs := procreg.New()
	watches := watchreg.New()
	handler := fsservice.New(procs, watches, db)
	dispatcher := dispatch.New(handler)

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.ListenAddress, err)
	}
	log.Infof("listening on %s", ln.Addr())

	sink := metrics.Default()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
		log.Infof("metrics listening on %s", cfg.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		cancel()
		_ = ln.Close()
	}()

	srv := &server{ln: ln, dispatcher: dispatcher, metrics: sink}
	srv.serve(ctx)
}

type server struct {
	ln         net.Listener
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Sink
}

func (s *server) serve(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Errorf("accept: %v", err)
			return
		}
		go s.handleConn(ctx, conn)
	}
}
