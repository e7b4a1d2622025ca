/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/partyhost/room"
	"github.com/Seednode/partyhost/snapshot"
)

const snapshotTimeout = 3 * time.Second

// snapshotReader is implemented by the stores in package snapshot.
type snapshotReader interface {
	Load(ctx context.Context, roomID string) ([]byte, error)
	Rooms(ctx context.Context) ([]string, error)
}

// registerSnapshotHandlers exposes the stored blobs for debugging. Blobs carry
// hidden game data, so this rides on --profile.
func registerSnapshotHandlers(cfg *Config, store room.Store, errs chan<- error, mux *httprouter.Router) {
	reader, ok := store.(snapshotReader)
	if !ok {
		return
	}

	path := cfg.prefix + "/snapshots"

	mux.GET(path, serveSnapshotList(cfg, reader, errs))
	mux.GET(path+"/:roomid", serveSnapshot(cfg, reader, errs))

	logf(cfg, "START: Registered snapshot handlers under %s/", path)
}

func serveSnapshotList(cfg *Config, reader snapshotReader, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		ids, err := reader.Rooms(ctx)
		if err != nil {
			cfg.logger.Warn().Err(err).Msg("SERVE: Listing snapshots failed")
			http.Error(w, "unable to list snapshots", http.StatusBadGateway)
			return
		}
		if ids == nil {
			ids = []string{}
		}

		data, err := json.Marshal(ids)
		if err != nil {
			errs <- err

			return
		}

		written, err := writeJSON(cfg, w, data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Snapshot listing (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveSnapshot(cfg *Config, reader snapshotReader, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		id, err := room.NormalizeRoomID(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		blob, err := reader.Load(ctx, id)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			http.Error(w, "no snapshot for that room", http.StatusNotFound)
			return
		case err != nil:
			cfg.logger.Warn().Err(err).Str("room", id).Msg("SERVE: Loading snapshot failed")
			http.Error(w, "unable to load snapshot", http.StatusBadGateway)
			return
		}

		written, err := writeJSON(cfg, w, blob)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Snapshot of %s (%s) to %s in %s",
			id,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, data []byte) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(cfg, w)

	return w.Write(data)
}
