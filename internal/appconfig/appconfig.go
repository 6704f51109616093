// Package appconfig serves the UI text/appearance configuration. Clients
// always see the full config: stored overrides are deep-merged onto the
// built-in defaults at read time, so a partial override never hides keys.
package appconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gudangku/backend/internal/store"
)

// StorageKey is the system_config row holding the override document.
const StorageKey = "ui_config"

// Store is the slice of the repository this package needs.
type Store interface {
	GetSystemConfig(ctx context.Context, key string) (string, error)
	SetSystemConfig(ctx context.Context, key string, value string) error
}

type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// Defaults returns the built-in configuration document. Every key the UI
// reads must appear here so a merge always yields a complete document.
func Defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name":     "GudangKu",
			"tagline":  "Inventory & Sales",
			"language": "id",
		},
		"format": map[string]any{
			"currency":        "IDR",
			"currency_symbol": "Rp",
			"timezone":        "Asia/Jakarta",
			"date_format":     "DD/MM/YYYY",
		},
		"appearance": map[string]any{
			"theme":         "light",
			"primary_color": "#1976d2",
			"compact_mode":  false,
		},
		"receipt": map[string]any{
			"header": "Terima kasih telah berbelanja",
			"footer": "Barang yang sudah dibeli tidak dapat dikembalikan",
		},
		"inventory": map[string]any{
			"low_stock_threshold": 5,
		},
	}
}

// Load returns defaults deep-merged with the stored override. A missing
// override row yields the defaults untouched.
func (s *Service) Load(ctx context.Context) (map[string]any, error) {
	raw, err := s.store.GetSystemConfig(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ui config: %w", err)
	}
	var override map[string]any
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return nil, fmt.Errorf("decode ui config override: %w", err)
	}
	return DeepMerge(Defaults(), override), nil
}

// Save validates and persists the override document. The override is stored
// as-is; merging happens on every Load so defaults can evolve underneath it.
func (s *Service) Save(ctx context.Context, override map[string]any) (map[string]any, error) {
	if override == nil {
		return nil, fmt.Errorf("%w: config body is required", store.ErrInvalidInput)
	}
	raw, err := json.Marshal(override)
	if err != nil {
		return nil, fmt.Errorf("encode ui config override: %w", err)
	}
	if err := s.store.SetSystemConfig(ctx, StorageKey, string(raw)); err != nil {
		return nil, fmt.Errorf("save ui config: %w", err)
	}
	return DeepMerge(Defaults(), override), nil
}

// DeepMerge overlays override onto base, recursing into nested maps. Scalar
// and array values in the override replace the base value wholesale. Neither
// input map is mutated.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = DeepMerge(baseSub, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
