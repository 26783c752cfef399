package pterodactyl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const (
	MockIP   = "127.0.0.1"
	MockPort = 25565
)

// Mock synthesizes placeholder servers so the provisioning pipeline runs
// without a live panel.
type Mock struct {
	mu         sync.Mutex
	identities map[string]int64
	nextUserID int64
	now        func() time.Time
}

func NewMock() *Mock {
	return &Mock{
		identities: map[string]int64{},
		now:        time.Now,
	}
}

func (m *Mock) EnsureIdentity(_ context.Context, req IdentityRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(req.Email)
	if id, ok := m.identities[key]; ok {
		return id, nil
	}
	m.nextUserID++
	m.identities[key] = m.nextUserID
	return m.nextUserID, nil
}

func (m *Mock) Allocate(_ context.Context, req AllocateRequest) (*Allocation, error) {
	ip := MockIP
	port := MockPort
	username := fmt.Sprintf("user%d", req.IdentityID)
	m.mu.Lock()
	for email, id := range m.identities {
		if id == req.IdentityID {
			username = Username(email)
			break
		}
	}
	m.mu.Unlock()
	return &Allocation{
		ServerID:   rand.Int64N(10000) + 1,
		Identifier: fmt.Sprintf("mock-%s-%d", username, m.now().UnixMilli()),
		IP:         &ip,
		Port:       &port,
	}, nil
}

func (m *Mock) GetServer(_ context.Context, serverID int64) (*ServerDetails, error) {
	return &ServerDetails{ID: serverID, Status: "mock"}, nil
}

func (m *Mock) Suspend(context.Context, int64) error   { return nil }
func (m *Mock) Unsuspend(context.Context, int64) error { return nil }
func (m *Mock) Delete(context.Context, int64) error    { return nil }

func (m *Mock) ResourceUsage(context.Context, string) (*ResourceUsage, error) {
	return &ResourceUsage{CurrentState: "running"}, nil
}
