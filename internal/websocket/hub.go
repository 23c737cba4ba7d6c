package websocket

import (
	"encoding/json"
	"sync"

	"finflow/internal/metrics"
)

// BalanceUpdate is pushed to a user's connections after a ledger write commits.
type BalanceUpdate struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason"`
}

// Hub fans balance updates out to every connection of the owning user. It
// remembers the last update per account so a client that connects later
// starts from current balances.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	latest  map[string]map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		latest:  make(map[string]map[string][]byte),
	}
}

// Register adds client and queues the remembered balances of userID.
func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	metrics.BalanceSubscribers.Inc()
	for _, payload := range h.latest[userID] {
		h.deliver(client, payload)
	}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID][client]; !ok {
		return
	}
	delete(h.clients[userID], client)
	metrics.BalanceSubscribers.Dec()
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastBalance drops the update for clients whose send buffer is full;
// the remembered balance still replaces the previous one.
func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest[userID] == nil {
		h.latest[userID] = make(map[string][]byte)
	}
	h.latest[userID][update.AccountID] = payload
	for client := range h.clients[userID] {
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.send <- payload:
		metrics.BalancePushes.WithLabelValues("sent").Inc()
	default:
		metrics.BalancePushes.WithLabelValues("dropped").Inc()
	}
}
