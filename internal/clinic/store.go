package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const settingsKey = "clinic:settings"

// Provider returns the current clinic settings. Callers ask on every turn so edits apply immediately.
type Provider interface {
	Settings(ctx context.Context) (*Settings, error)
}

// StaticProvider serves a fixed, already prepared settings value.
type StaticProvider struct {
	settings *Settings
}

// NewStaticProvider prepares s (or the defaults when nil) and serves copies of it.
func NewStaticProvider(s *Settings) (*StaticProvider, error) {
	if s == nil {
		s = DefaultSettings()
	}
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	return &StaticProvider{settings: s}, nil
}

// Settings returns a copy so callers cannot mutate the shared value.
func (p *StaticProvider) Settings(context.Context) (*Settings, error) {
	return p.settings.Clone(), nil
}

// Store persists settings edited through the admin API in Redis.
// Missing keys fall back to the base settings.
type Store struct {
	redis *redis.Client
	base  *Settings
}

// NewStore creates a new clinic settings store. A nil base uses DefaultSettings.
func NewStore(redisClient *redis.Client, base *Settings) *Store {
	if base == nil {
		base = DefaultSettings()
		base.ApplyDefaults()
	}
	return &Store{redis: redisClient, base: base}
}

// Settings retrieves the clinic settings, returning the base settings if none were saved.
func (s *Store) Settings(ctx context.Context) (*Settings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.base.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	if err := settings.Prepare(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Set validates and saves settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if err := settings.Prepare(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	out.AdminPhones = append([]string(nil), s.AdminPhones...)
	out.AdminEmails = append([]string(nil), s.AdminEmails...)
	out.SlotTimes = append([]string(nil), s.SlotTimes...)
	out.PaymentMethods = append([]string(nil), s.PaymentMethods...)
	out.Services = make([]Service, len(s.Services))
	for i, svc := range s.Services {
		svc.Aliases = append([]string(nil), svc.Aliases...)
		out.Services[i] = svc
	}
	out.FAQ = make([]FAQEntry, len(s.FAQ))
	for i, faq := range s.FAQ {
		faq.Keywords = append([]string(nil), faq.Keywords...)
		out.FAQ[i] = faq
	}
	return &out
}
