package controllers

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"github.com/valyala/fasthttp"
)

const streamKeepAliveInterval = 25 * time.Second

// HandleDashboardStream opens a server-sent-event stream scoped by the
// optional userId/ownerId query filters. The first frame is a "connected"
// event echoing the resolved filters; afterwards the connection receives
// every matching payment state change until the client disconnects.
//
// Delivery is best-effort and process-local (see realtime.Hub); dashboards
// re-fetch aggregate state on reconnect rather than relying on the stream
// for correctness.
func HandleDashboardStream(c *fiber.Ctx) error {
	userID := uint(c.QueryInt("userId", 0))
	ownerID := uint(c.QueryInt("ownerId", 0))

	hub := streamHub
	conn := hub.Register(userID, ownerID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// Deregistration must also run when the disconnect surfaces as a
		// failed write below, or the registry grows without bound.
		defer hub.Unregister(conn.ID)

		frame, err := realtime.FormatSSE(realtime.EventConnected, realtime.ConnectedPayload{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			OwnerID:      conn.OwnerID,
		})
		if err != nil {
			return
		}
		if !writeFrame(w, frame) {
			return
		}

		keepAlive := time.NewTicker(streamKeepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case evt, ok := <-conn.C:
				if !ok {
					return
				}
				frame, err := realtime.FormatSSE(evt.Name, evt)
				if err != nil {
					continue
				}
				if !writeFrame(w, frame) {
					return
				}
			case <-keepAlive.C:
				if !writeFrame(w, []byte(": keep-alive\n\n")) {
					return
				}
			}
		}
	}))
	return nil
}

func writeFrame(w *bufio.Writer, frame []byte) bool {
	if _, err := w.Write(frame); err != nil {
		return false
	}
	return w.Flush() == nil
}
