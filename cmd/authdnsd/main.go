// Command authdnsd is the authoritative DNS server's bootstrap entry
// point: load zone files, start the UDP/TCP query loops and the admin
// HTTP surface, and shut down cleanly on SIGINT/SIGTERM. Its flag set
// and startup sequence are grounded on the teacher's root main.go
// (flag.String/.Int/.Bool, a goroutine per listener, signal-driven
// shutdown), adapted from a recursive-caching resolver's flags to this
// server's zone-directory/admin-address/rate-limit flags.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"authdns/internal/admin"
	"authdns/internal/config"
	"authdns/internal/metrics"
	"authdns/internal/notify"
	"authdns/internal/server"
	"authdns/internal/update"
	"authdns/internal/zone"
	"authdns/internal/zonefile"
)

func main() {
	var (
		dir            = flag.String("dir", "", "directory of *.zone files to load at startup")
		address        = flag.String("address", "127.0.0.1", "this server's own address, filtered out of NOTIFY targets")
		udpAddr        = flag.String("udp", ":53", "UDP listen address")
		tcpAddr        = flag.String("tcp", ":53", "TCP listen address")
		adminAddr      = flag.String("admin-addr", ":8053", "admin HTTP listen address (/status, /metrics)")
		configPath     = flag.String("config", "", "optional YAML config file, overlaid on top of flag defaults")
		zoneCreate     = flag.Bool("zone-create", true, "allow UPDATE to implicitly create zones")
		zoneDelete     = flag.Bool("zone-delete", true, "allow UPDATE's zone-delete form")
		rateLimitRPS   = flag.Int("rate-limit-rps", 1000, "rate limit: requests per second per IP")
		rateLimitBurst = flag.Int("rate-limit-burst", 2000, "rate limit: burst size per IP")
	)
	flag.Parse()

	cfg := config.NewConfig()
	if *configPath != "" {
		if err := cfg.LoadYAML(*configPath); err != nil {
			log.Fatalf("authdnsd: loading config %s: %v", *configPath, err)
		}
	}
	if *dir != "" {
		cfg.Dir = *dir
	}
	if *address != "127.0.0.1" {
		cfg.Address = *address
	}
	if *udpAddr != ":53" {
		cfg.UDPAddr = *udpAddr
	}
	if *tcpAddr != ":53" {
		cfg.TCPAddr = *tcpAddr
	}
	if *adminAddr != ":8053" {
		cfg.AdminAddr = *adminAddr
	}
	if !*zoneCreate {
		cfg.ZoneCreate = false
	}
	if !*zoneDelete {
		cfg.ZoneDelete = false
	}
	if *rateLimitRPS != 1000 {
		cfg.RateLimitRPS = *rateLimitRPS
	}
	if *rateLimitBurst != 2000 {
		cfg.RateLimitBurst = *rateLimitBurst
	}

	store := zone.NewStore()
	if cfg.Dir != "" {
		if err := loadZoneDir(store, cfg.Dir); err != nil {
			log.Fatalf("authdnsd: loading zones from %s: %v", cfg.Dir, err)
		}
	}
	log.Printf("authdnsd: loaded %d zone(s) from %s", store.Len(), cfg.Dir)

	m := metrics.New()
	eng := update.NewEngine(store, cfg.ZoneCreate, cfg.ZoneDelete)
	em := notify.NewEmitter(store, net.ParseIP(cfg.Address))
	limiter := server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute)

	srv := server.New(store, eng, em, m, limiter, cfg.UDPAddr, cfg.TCPAddr)

	adminHandler := admin.New(store)
	mux := http.NewServeMux()
	adminHandler.RegisterHandlers(mux)
	adminHTTP := &http.Server{Addr: cfg.AdminAddr, Handler: mux}
	go func() {
		log.Printf("authdnsd: admin HTTP listening on %s", cfg.AdminAddr)
		if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("authdnsd: admin HTTP: %v", err)
		}
	}()

	go func() {
		udpErr, tcpErr := srv.ListenAndServe()
		if udpErr != nil {
			log.Printf("authdnsd: udp listener: %v", udpErr)
		}
		if tcpErr != nil {
			log.Printf("authdnsd: tcp listener: %v", tcpErr)
		}
	}()
	log.Printf("authdnsd: serving udp=%s tcp=%s", cfg.UDPAddr, cfg.TCPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("authdnsd: shutting down")
	srv.Shutdown()
	_ = adminHTTP.Close()
}

func loadZoneDir(store *zone.Store, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".zone" {
			continue
		}
		z, err := zonefile.Load(filepath.Join(dir, ent.Name()))
		if err != nil {
			return err
		}
		if err := store.Add(z); err != nil && err != zone.ErrDuplicate {
			return err
		}
	}
	return nil
}
