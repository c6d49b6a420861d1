// Package tenant manages the agency branding that feeds template placeholders
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a tenant is not registered
var ErrNotFound = errors.New("tenant not found")

// Info is the branding data of one agency
type Info struct {
	ID           string    `json:"id"`
	AgencyName   string    `json:"agencyName,omitempty"`
	Logo         string    `json:"logo,omitempty"` // URL, data URI, or raw base64
	ContactPhone string    `json:"contactPhone,omitempty"`
	Address      string    `json:"address,omitempty"`
	Website      string    `json:"website,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Source looks up tenant branding
type Source interface {
	Tenant(ctx context.Context, tenantID string) (*Info, error)
}

// Registry stores tenant branding in a JSON file
type Registry struct {
	filePath string
	data     map[string]*Info
	mu       sync.RWMutex
}

// NewRegistry opens the registry at filePath. A missing file is not an
// error; it is created on first save.
func NewRegistry(filePath string) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*Info),
	}

	if err := r.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load tenant registry: %w", err)
		}
	}

	return r, nil
}

// Tenant returns a copy of the stored branding for tenantID
func (r *Registry) Tenant(ctx context.Context, tenantID string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.data[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	infoCopy := *info
	return &infoCopy, nil
}

// Put creates or replaces a tenant. An empty ID gets a generated one.
func (r *Registry) Put(info Info) (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	info.UpdatedAt = time.Now().UTC()

	stored := info
	r.data[info.ID] = &stored

	if err := r.save(); err != nil {
		return nil, fmt.Errorf("failed to save tenant registry: %w", err)
	}

	return &info, nil
}

// Remove deletes a tenant
func (r *Registry) Remove(tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[tenantID]; !ok {
		return false
	}
	delete(r.data, tenantID)
	// the in-memory copy stays authoritative if the write fails
	_ = r.save()
	return true
}

// All returns copies of every registered tenant
func (r *Registry) All() []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Info, 0, len(r.data))
	for _, v := range r.data {
		infoCopy := *v
		result = append(result, &infoCopy)
	}
	return result
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &r.data)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.filePath, data, 0644)
}
