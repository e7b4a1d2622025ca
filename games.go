/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/partyhost/room"
)

const qrSize = 320

// registerGame sets up routes so that:
//   - $path                  → redirects to a new random room
//   - $path/:roomid          → landing page
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerGame(cfg *Config, m *room.Manager, mux *httprouter.Router) {
	path := cfg.prefix + "/" + m.GameKind()

	mux.GET(path, redirectNewRoom(cfg, path, m))
	mux.GET(path+"/:roomid", serveLanding(cfg, m))
	mux.GET(path+"/:roomid/ws", serveWS(cfg, m))
	mux.GET(path+"/:roomid/qr", serveQR(cfg))
}

// redirectNewRoom handles GET /path by picking an unused room code and
// redirecting to /path/:roomid. The room itself is created on first connect.
func redirectNewRoom(cfg *Config, path string, m *room.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		id, err := m.NewRoomID()
		if err != nil {
			http.Error(w, "unable to allocate a room code", http.StatusServiceUnavailable)
			return
		}

		logf(cfg, "GAMES: Allocated room %s/%s for %s", path, id, realIP(r))

		http.Redirect(w, r, path+"/"+id, http.StatusTemporaryRedirect)
	}
}

func serveLanding(cfg *Config, m *room.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		id, err := room.NormalizeRoomID(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		base := cfg.prefix + "/" + m.GameKind() + "/" + id

		var body strings.Builder
		body.WriteString(fmt.Sprintf("<h1>%s</h1>", html.EscapeString(m.GameKind())))
		body.WriteString(fmt.Sprintf("<p>Room code <strong>%s</strong></p>", id))
		body.WriteString(fmt.Sprintf(`<p><img src="%s/qr" alt="QR code for room %s" width="%d" height="%d"></p>`, base, id, qrSize, qrSize))
		body.WriteString(fmt.Sprintf("<p>Connect to <code>%s/ws</code></p>", base))

		written, err := io.WriteString(w, newPage(m.GameKind()+" "+id, body.String()))
		if err != nil {
			return
		}

		logf(cfg, "SERVE: Landing page for %s (%s) to %s in %s",
			base,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveWS attaches a WebSocket to the room named in the path, creating the
// room if it does not exist yet.
func serveWS(cfg *Config, m *room.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rm, err := m.CreateIfAbsent(ps.ByName("roomid"))
		switch {
		case errors.Is(err, room.ErrInvalidRoomID):
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		case errors.Is(err, room.ErrRoomIDInUse):
			http.Error(w, "that room code is in use by another game", http.StatusConflict)
			return
		case errors.Is(err, room.ErrTooManyRooms):
			http.Error(w, "too many rooms are open, try again later", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, "unable to open room", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.logger.Debug().Err(err).Str("room", rm.ID()).Msg("SERVE: WebSocket upgrade failed")
			return
		}

		client := newClient(conn, cfg.logger.With().Str("room", rm.ID()).Str("remote", realIP(r)).Logger())

		if err := rm.Open(r.Context(), client); err != nil {
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Connection %s opened to %s/%s from %s", client.ID(), m.GameKind(), rm.ID(), realIP(r))

		go client.writePump()
		client.readPump(r.Context(), rm)
	}
}

// serveQR generates a PNG QR code for the current room URL using go-qrcode.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := room.NormalizeRoomID(ps.ByName("roomid")); err != nil {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}
