package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:spotID", websocket.New(func(c *websocket.Conn) {
		spotID := c.Params("spotID")
		client := hub.Register(spotID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		// closes client.Send, which ends the writer
		hub.Unregister(client)
		<-done
	}))
}
