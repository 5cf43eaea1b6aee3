package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/cache"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Provider returns effective settings per workspace, cached by workspace ID.
type Provider struct {
	store   store.SettingsStore
	cache   cache.Cache
	overlay atomic.Pointer[json.RawMessage]
}

// NewProvider creates a settings provider. cache may be nil.
func NewProvider(s store.SettingsStore, c cache.Cache) *Provider {
	return &Provider{store: s, cache: c}
}

// SetOverlay replaces the process-level defaults layer. Cached entries are
// computed from the old overlay and age out with the cache TTL.
func (p *Provider) SetOverlay(doc json.RawMessage) {
	d := append(json.RawMessage(nil), doc...)
	p.overlay.Store(&d)
}

func (p *Provider) overlayDoc() json.RawMessage {
	if d := p.overlay.Load(); d != nil {
		return *d
	}
	return nil
}

// For returns the normalized effective settings for a workspace.
func (p *Provider) For(ctx context.Context, workspaceID uuid.UUID) (*Settings, error) {
	key := "settings:" + workspaceID.String()
	if p.cache != nil {
		if b, ok := p.cache.Get(ctx, key); ok {
			var s Settings
			if err := json.Unmarshal(b, &s); err == nil {
				return &s, nil
			}
			slog.Warn("settings cache entry unreadable", "workspace_id", workspaceID)
		}
	}

	var stored json.RawMessage
	if p.store != nil {
		var err error
		stored, err = p.store.GetWorkspaceSettings(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("load workspace settings: %w", err)
		}
	}

	s, err := Merge(Defaults(), p.overlayDoc(), stored)
	if err != nil {
		return nil, fmt.Errorf("merge workspace settings: %w", err)
	}
	s.Normalize()

	if p.cache != nil {
		if b, err := json.Marshal(s); err == nil {
			p.cache.Set(ctx, key, b)
		}
	}
	return s, nil
}

// Invalidate drops a workspace's cached settings.
func (p *Provider) Invalidate(ctx context.Context, workspaceID uuid.UUID) {
	if p.cache != nil {
		p.cache.Delete(ctx, "settings:"+workspaceID.String())
	}
}

// Put validates and stores a workspace settings document, then invalidates the cache.
func (p *Provider) Put(ctx context.Context, workspaceID uuid.UUID, doc json.RawMessage) error {
	merged, err := Merge(Defaults(), p.overlayDoc(), doc)
	if err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	if err := p.store.PutWorkspaceSettings(ctx, workspaceID, doc); err != nil {
		return err
	}
	p.Invalidate(ctx, workspaceID)
	return nil
}
