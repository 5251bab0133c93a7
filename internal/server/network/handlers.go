package network

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/AvengeMedia/nmmirror/internal/server/models"
)

type Request struct {
	ID     interface{}            `json:"id,omitempty"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

func HandleRequest(conn net.Conn, req Request, manager *Manager) {
	switch req.Method {
	case "network.getState":
		handleGetState(conn, req, manager)
	case "network.devices":
		models.Respond(conn, req.ID, manager.Cache().Devices())
	case "network.connections":
		models.Respond(conn, req.ID, manager.Cache().Connections())
	case "network.activeConnections":
		models.Respond(conn, req.ID, manager.Cache().ActiveConnections())
	case "network.activate":
		handleActivate(conn, req, manager)
	case "network.deactivate":
		handleDeactivate(conn, req, manager)
	case "network.checkConnectivity":
		handleCheckConnectivity(conn, req, manager)
	case "network.wireless.set":
		handleSetRadio(conn, req, manager.SetWirelessEnabled)
	case "network.wwan.set":
		handleSetRadio(conn, req, manager.SetWWANEnabled)
	case "network.reconnect":
		handleReconnect(conn, req, manager)
	case "network.subscribe":
		handleSubscribe(conn, req, manager)
	default:
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

type stateResult struct {
	Available   bool         `json:"available"`
	Description string       `json:"description"`
	State       NetworkState `json:"state"`
}

func handleGetState(conn net.Conn, req Request, manager *Manager) {
	state := manager.GetState()
	models.Respond(conn, req.ID, stateResult{
		Available:   manager.Available(),
		Description: state.Connectivity.Description(),
		State:       state,
	})
}

func handleActivate(conn net.Conn, req Request, manager *Manager) {
	uuid, ok := req.Params["uuid"].(string)
	if !ok || uuid == "" {
		models.RespondError(conn, req.ID, "missing or invalid 'uuid' parameter")
		return
	}
	device, _ := req.Params["device"].(string)

	ctx, cancel := manager.OperationContext()
	defer cancel()

	ac, err := manager.ActivateByUUID(ctx, uuid, device)
	if err != nil {
		log.Warnf("handleActivate: %v", err)
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	models.Respond(conn, req.ID, ac)
}

func handleDeactivate(conn net.Conn, req Request, manager *Manager) {
	uuid, ok := req.Params["uuid"].(string)
	if !ok || uuid == "" {
		models.RespondError(conn, req.ID, "missing or invalid 'uuid' parameter")
		return
	}

	ctx, cancel := manager.OperationContext()
	defer cancel()

	if err := manager.DeactivateByUUID(ctx, uuid); err != nil {
		log.Warnf("handleDeactivate: %v", err)
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	models.Respond(conn, req.ID, SuccessResult{Success: true, Message: "deactivating"})
}

func handleCheckConnectivity(conn net.Conn, req Request, manager *Manager) {
	ctx, cancel := manager.OperationContext()
	defer cancel()

	c, err := manager.CheckConnectivity(ctx)
	if err != nil {
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	models.Respond(conn, req.ID, map[string]string{
		"connectivity": c.String(),
		"description":  c.Description(),
	})
}

func handleSetRadio(conn net.Conn, req Request, set func(bool) error) {
	enabled, ok := req.Params["enabled"].(bool)
	if !ok {
		models.RespondError(conn, req.ID, "missing or invalid 'enabled' parameter")
		return
	}

	if err := set(enabled); err != nil {
		models.RespondError(conn, req.ID, err.Error())
		return
	}

	models.Respond(conn, req.ID, map[string]bool{"enabled": enabled})
}

func handleReconnect(conn net.Conn, req Request, manager *Manager) {
	ctx, cancel := manager.OperationContext()
	defer cancel()

	available := manager.Reconnect(ctx)
	models.Respond(conn, req.ID, map[string]bool{"available": available})
}

// handleSubscribe streams events until the client goes away or the manager
// closes the channel. The first message is the current state.
func handleSubscribe(conn net.Conn, req Request, manager *Manager) {
	clientID, events := manager.Subscribe("")
	defer manager.Unsubscribe(clientID)

	encoder := json.NewEncoder(conn)

	initial := stateChanged(manager.GetState())
	if err := encoder.Encode(models.Response[Event]{
		ID:     req.ID,
		Result: &initial,
	}); err != nil {
		return
	}

	for ev := range events {
		if err := encoder.Encode(models.Response[Event]{
			Result: &ev,
		}); err != nil {
			log.Debugf("handleSubscribe: client %s gone: %v", clientID, err)
			return
		}
	}
}
