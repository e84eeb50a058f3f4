// Package sse fans draft state out to every open editor over Server-Sent Events.
package sse

import (
	"sync"

	"github.com/debemdeboas/dailywrite/internal/draft"
)

type Client struct {
	Msg     chan string
	DraftID draft.ID
}

func NewClient(id draft.ID) *Client {
	return &Client{Msg: make(chan string, 8), DraftID: id}
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[client] {
		delete(s.clients, client)
		close(client.Msg)
	}
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every client watching draftID. Slow clients miss
// messages rather than block the sender.
func (s *SSEClients) Broadcast(draftID draft.ID, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.DraftID == draftID {
			select {
			case client.Msg <- msg:
			default:
			}
		}
	}
}
