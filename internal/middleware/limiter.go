package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/practice-robot/robot-bridge/internal/utils"
)

// ConnectionsLimiter caps the number of simultaneous websocket sessions per client IP.
type ConnectionsLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	max         int
	realIP      *utils.RealIPExtractor
}

func NewConnectionLimiter(max int, extractor *utils.RealIPExtractor) *ConnectionsLimiter {
	return &ConnectionsLimiter{
		connections: map[string]int{},
		max:         max,
		realIP:      extractor,
	}
}

// LeaseConnection takes one slot for the request's client IP and returns the
// function that gives it back. It fails once the IP holds max slots.
func (l *ConnectionsLimiter) LeaseConnection(request *http.Request) (release func(), err error) {
	key := l.realIP.Extract(request)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[key] >= l.max {
		return nil, fmt.Errorf("you have reached the limit of websocket connections: %v max", l.max)
	}
	l.connections[key]++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.connections[key]--
			if l.connections[key] <= 0 {
				delete(l.connections, key)
			}
		})
	}, nil
}

// Active returns the number of leased slots for ip.
func (l *ConnectionsLimiter) Active(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
