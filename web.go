/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/partyhost/games"
	"github.com/Seednode/partyhost/room"
	"github.com/Seednode/partyhost/snapshot"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("partyhost v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveRooms lists the occupied rooms of every game, for discovery.
func serveRooms(cfg *Config, managers []*room.Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		listing := []room.Listing{}
		for _, m := range managers {
			listing = append(listing, m.List()...)
		}
		slices.SortFunc(listing, func(a, b room.Listing) int {
			return strings.Compare(a.RoomID, b.RoomID)
		})

		data, err := json.Marshal(listing)
		if err != nil {
			errs <- err

			return
		}

		written, err := writeJSON(cfg, w, data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Room listing (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func roomSettings(cfg *Config, store room.Store) room.Settings {
	return room.Settings{
		Grace:         cfg.gracePeriod,
		IdleTimeout:   cfg.sessionTimeout,
		MaxRooms:      cfg.maxRooms,
		MaxPlayers:    cfg.maxPlayers,
		MaxSpectators: cfg.maxSpectators,
		NewLimiter: func() room.Limiter {
			return room.NewRateLimiter(cfg.actionRate, cfg.actionBurst)
		},
		Store:  store,
		Logger: cfg.logger,
	}
}

// newManagers builds one manager per game. They share a directory, so a room
// code is live in at most one game at a time.
func newManagers(cfg *Config, store room.Store) ([]*room.Manager, error) {
	settings := roomSettings(cfg, store)
	settings.Directory = room.NewDirectory()

	var managers []*room.Manager
	for _, g := range games.All() {
		m, err := room.NewManager(g, settings)
		if err != nil {
			return nil, err
		}
		managers = append(managers, m)
	}

	return managers, nil
}

func newRouter(cfg *Config, managers []*room.Manager, store room.Store, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.logger.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("SERVE: Handler panicked")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, managers, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/rooms", serveRooms(cfg, managers, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
		registerSnapshotHandlers(cfg, store, errs, mux)
	}

	for _, m := range managers {
		registerGame(cfg, m, mux)
	}

	return mux
}

func openStore(ctx context.Context, cfg *Config) (room.Store, func(), error) {
	if cfg.redisURL == "" {
		return nil, func() {}, nil
	}

	store, err := snapshot.DialRedis(ctx, cfg.redisURL, cfg.snapshotTTL)
	if err != nil {
		return nil, nil, err
	}

	logf(cfg, "START: Writing room snapshots to redis (ttl %s)", store.TTL())

	return store, func() { _ = store.Close() }, nil
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: partyhost v%s", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	managers, err := newManagers(cfg, store)
	if err != nil {
		return err
	}

	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			cfg.logger.Debug().Err(err).Msg("SERVE: Failed to write response")
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, managers, store, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	for _, m := range managers {
		wg.Go(func() {
			m.Run(runCtx)
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cfg.logger.Error().Err(err).Msg("SERVE: Listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, m := range managers {
		m.Announce(shutdownCtx, "", "the server is shutting down")
	}

	_ = srv.Shutdown(shutdownCtx)

	// Managers close their rooms once runCtx is done, which also hangs up the
	// hijacked WebSockets that Shutdown does not track.
	stop()
	wg.Wait()

	logf(cfg, "STOP: partyhost v%s", releaseVersion)

	return err
}
