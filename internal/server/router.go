package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/AvengeMedia/nmmirror/internal/server/models"
	"github.com/AvengeMedia/nmmirror/internal/server/network"
)

func RouteRequest(conn net.Conn, req models.Request) {
	log.Debugf("API request: method=%s id=%v", req.Method, req.ID)

	if strings.HasPrefix(req.Method, "network.") {
		if networkManager == nil {
			models.RespondError(conn, req.ID, "network manager not initialized")
			return
		}
		netReq := network.Request{
			ID:     req.ID,
			Method: req.Method,
			Params: req.Params,
		}
		network.HandleRequest(conn, netReq, networkManager)
		return
	}

	switch req.Method {
	case "ping":
		models.Respond(conn, req.ID, "pong")
	default:
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}
