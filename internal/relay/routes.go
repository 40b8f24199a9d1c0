package relay

import (
	"net/http"

	echo "github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the relay endpoints on the router.
func RegisterRoutes(e *echo.Echo, hub *Hub) {
	e.GET("/health", healthCheck)
	e.GET("/ws", func(c echo.Context) error {
		hub.ServeWS(c.Response(), c.Request())
		return nil
	})
	e.GET("/rooms/new", newRoom_Handler(hub))
	e.GET("/rooms/:id", roomInfo_Handler(hub))
}

func healthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "Signaling server is healthy.")
}

// newRoom_Handler hands out a memorable room ID. The room itself comes to
// life when the first member joins it.
func newRoom_Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := hub.ReserveRoomID(c.Request().Context())
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]string{"roomId": id})
	}
}

func roomInfo_Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		info, ok, err := hub.Room(c.Request().Context(), c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		return c.JSON(http.StatusOK, info)
	}
}
