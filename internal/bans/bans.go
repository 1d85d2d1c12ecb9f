package bans

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type BanType string

const (
	BanTypeIP   BanType = "ip"
	BanTypeUser BanType = "user"
)

type Ban struct {
	Type      BanType   `json:"type"`
	IP        string    `json:"ip,omitempty"`
	UserID    uint32    `json:"user_id,omitempty"`
	Reason    string    `json:"reason"`
	BannedAt  time.Time `json:"banned_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Permanent bool      `json:"permanent"`
}

func (b *Ban) expired(now time.Time) bool {
	return !b.Permanent && now.After(b.ExpiresAt)
}

// Manager is the persisted deny list. Addresses are checked when a connection is
// accepted and user ids when a join request arrives.
type Manager struct {
	ipBans   map[string]*Ban
	userBans map[uint32]*Ban
	filePath string
	mu       sync.RWMutex
}

func NewManager(filePath string) *Manager {
	return &Manager{
		ipBans:   make(map[string]*Ban),
		userBans: make(map[uint32]*Ban),
		filePath: filePath,
	}
}

// Load replaces the in-memory list with the file contents. A missing file is an
// empty list.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read bans file: %w", err)
	}

	var bans []*Ban
	if err := json.Unmarshal(data, &bans); err != nil {
		return fmt.Errorf("failed to parse bans file: %w", err)
	}

	now := time.Now()
	m.ipBans = make(map[string]*Ban)
	m.userBans = make(map[uint32]*Ban)
	for _, ban := range bans {
		if ban.expired(now) {
			continue
		}

		if ban.Type == "" {
			ban.Type = BanTypeIP
		}

		switch ban.Type {
		case BanTypeIP:
			if ban.IP != "" {
				m.ipBans[ban.IP] = ban
			}
		case BanTypeUser:
			m.userBans[ban.UserID] = ban
		}
	}

	return nil
}

func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveUnlocked()
}

func (m *Manager) IsBanned(ip string) (bool, *Ban) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ban, exists := m.ipBans[ip]
	if !exists || ban.expired(time.Now()) {
		return false, nil
	}
	return true, ban
}

func (m *Manager) IsUserBanned(userID uint32) (bool, *Ban) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ban, exists := m.userBans[userID]
	if !exists || ban.expired(time.Now()) {
		return false, nil
	}
	return true, ban
}

// AddBan bans an address. A zero duration is permanent.
func (m *Manager) AddBan(ip, reason string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ban := newBan(BanTypeIP, reason, duration)
	ban.IP = ip
	m.ipBans[ip] = ban

	return m.saveUnlocked()
}

func (m *Manager) AddUserBan(userID uint32, reason string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ban := newBan(BanTypeUser, reason, duration)
	ban.UserID = userID
	m.userBans[userID] = ban

	return m.saveUnlocked()
}

func newBan(kind BanType, reason string, duration time.Duration) *Ban {
	now := time.Now()
	ban := &Ban{
		Type:      kind,
		Reason:    reason,
		BannedAt:  now,
		Permanent: duration <= 0,
	}
	if duration > 0 {
		ban.ExpiresAt = now.Add(duration)
	}
	return ban
}

func (m *Manager) RemoveBan(ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.ipBans, ip)

	return m.saveUnlocked()
}

func (m *Manager) RemoveUserBan(userID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.userBans, userID)

	return m.saveUnlocked()
}

func (m *Manager) saveUnlocked() error {
	if dir := filepath.Dir(m.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create bans directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(m.collect(false), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bans: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write bans file: %w", err)
	}

	return nil
}

// collect returns the bans in a stable order so the saved file diffs cleanly.
func (m *Manager) collect(activeOnly bool) []*Ban {
	now := time.Now()
	bans := make([]*Ban, 0, len(m.ipBans)+len(m.userBans))
	for _, ban := range m.ipBans {
		if activeOnly && ban.expired(now) {
			continue
		}
		bans = append(bans, ban)
	}
	for _, ban := range m.userBans {
		if activeOnly && ban.expired(now) {
			continue
		}
		bans = append(bans, ban)
	}

	sort.Slice(bans, func(i, j int) bool {
		if bans[i].Type != bans[j].Type {
			return bans[i].Type < bans[j].Type
		}
		if bans[i].IP != bans[j].IP {
			return bans[i].IP < bans[j].IP
		}
		return bans[i].UserID < bans[j].UserID
	})
	return bans
}

func (m *Manager) GetAll() []*Ban {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(true)
}

func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for ip, ban := range m.ipBans {
		if ban.expired(now) {
			delete(m.ipBans, ip)
		}
	}
	for id, ban := range m.userBans {
		if ban.expired(now) {
			delete(m.userBans, id)
		}
	}

	return m.saveUnlocked()
}
