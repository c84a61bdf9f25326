// Package kv holds the small key-value stores used for user preferences:
// recent searches and one-shot flags such as the welcome dedupe marker.
package kv

import (
	"context"
	"sync"
)

// Store is the injected key-value collaborator.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent stores value only when key is unset and reports whether it did.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
}

const (
	recentSearchesKey = "flowin-recent-searches"
	welcomeKeyPrefix  = "flowin-welcome-"
)

// RecentSearchesKey scopes the recent-search list to one user.
func RecentSearchesKey(userID string) string {
	if userID == "" {
		return recentSearchesKey
	}
	return recentSearchesKey + ":" + userID
}

// WelcomeKey marks that the welcome notifications were sent to userID.
func WelcomeKey(userID string) string {
	return welcomeKeyPrefix + userID
}

// DeadlineReminderKey marks that a reminder for taskID due on dueDate was sent.
func DeadlineReminderKey(taskID, dueDate string) string {
	return "flowin-deadline-" + taskID + "-" + dueDate
}

type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
