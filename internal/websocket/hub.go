package websocket

import (
	"encoding/json"
	"sync"
)

// BalanceUpdate is pushed to subscribers of a customer after a committed
// balance change. Observational only; nothing in the engine depends on
// delivery.
type BalanceUpdate struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(customerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[customerID] == nil {
		h.clients[customerID] = make(map[*Client]struct{})
	}
	h.clients[customerID][client] = struct{}{}
}

func (h *Hub) Unregister(customerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[customerID] == nil {
		return
	}
	delete(h.clients[customerID], client)
	if len(h.clients[customerID]) == 0 {
		delete(h.clients, customerID)
	}
}

func (h *Hub) BroadcastBalance(customerID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[customerID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
