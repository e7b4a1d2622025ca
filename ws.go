/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Seednode/partyhost/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	errClientClosed = errors.New("client is closed")
	errSlowClient   = errors.New("client send buffer is full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection to a room. Send never blocks: a client
// that cannot keep up is reported to the room as failed and dropped.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan room.Outbound
	log  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	id := uuid.NewString()

	return &Client{
		id:   id,
		conn: conn,
		send: make(chan room.Outbound, sendBuffer),
		log:  log.With().Str("conn", id).Logger(),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Send(out room.Outbound) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- out:
		return nil
	default:
		return errSlowClient
	}
}

// Close asks the write pump to flush what is queued and hang up.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) readPump(ctx context.Context, r *room.Room) {
	defer func() {
		r.Disconnect(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		msg, err := room.DecodeInbound(data)
		if err != nil {
			c.rejectFrame(err)
			continue
		}

		_, err = r.Handle(ctx, c, msg)
		if errors.Is(err, room.ErrRoomClosed) || ctx.Err() != nil {
			return
		}
	}
}

// rejectFrame answers a frame that never reached the room because it could
// not be decoded.
func (c *Client) rejectFrame(err error) {
	rej, ok := room.AsRejection(err)
	if !ok {
		rej = room.Invalid(room.CodeBadMessage, "malformed message")
	}

	_ = c.Send(room.Outbound{Kind: room.KindActionRejected, Payload: room.ActionRejected{
		Kind:   rej.Kind,
		Code:   rej.Code,
		Reason: rej.Reason,
	}})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case out := <-c.send:
			if err := c.write(out); err != nil {
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever was queued before Close, so the final kicked or
// room-reaped notice reaches the browser, then sends a close frame.
func (c *Client) flush() {
	for {
		select {
		case out := <-c.send:
			if err := c.write(out); err != nil {
				return
			}
		default:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(out room.Outbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(out)
}
