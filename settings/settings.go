// Package settings keeps the site settings singleton in memory. The document
// is loaded once at startup and then followed with a binding; readers get an
// immutable snapshot that is replaced wholesale on every change.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/infinityplans/portal/binding"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// Service serves the current site settings.
type Service struct {
	store docstore.Store
	doc   *binding.Doc[records.SiteSettings]
	unsub func()

	mu      sync.RWMutex
	current *records.SiteSettings
	raw     []byte
	subs    map[int]func(*records.SiteSettings)
	nextSub int
}

// New loads the settings document and starts following it. A missing
// document yields empty settings.
func New(ctx context.Context, store docstore.Store, opts ...binding.Option) (*Service, error) {
	s := &Service{
		store: store,
		subs:  make(map[int]func(*records.SiteSettings)),
	}
	snap, err := store.Get(ctx, records.SettingsRef)
	if err != nil {
		return nil, fmt.Errorf("cannot load site settings: %w", err)
	}
	initial := emptySettings()
	if snap.Exists {
		if err := snap.DataTo(initial); err != nil {
			return nil, fmt.Errorf("cannot decode site settings: %w", err)
		}
	}
	s.replace(initial)

	s.doc = binding.NewDoc[records.SiteSettings](store, append([]binding.Option{binding.WithContext(ctx)}, opts...)...)
	s.doc.Bind(records.SettingsRef)
	s.unsub = s.doc.Subscribe(s.onState)
	return s, nil
}

func emptySettings() *records.SiteSettings {
	v, _ := records.New(records.KindSiteSettings)
	return v.(*records.SiteSettings)
}

func (s *Service) onState(st binding.State[*records.SiteSettings]) {
	switch {
	case st.Loading:
	case st.Err != nil:
		log.Warnw("site settings subscription failed, keeping last snapshot", "error", st.Err)
	case st.Data == nil:
		s.replace(emptySettings())
	default:
		s.replace(st.Data)
	}
}

// replace installs settings as the current snapshot and notifies the
// subscribers when the content changed.
func (s *Service) replace(settings *records.SiteSettings) {
	raw, err := json.Marshal(settings)
	if err != nil {
		log.Warnw("cannot encode site settings", "error", err)
		return
	}
	s.mu.Lock()
	if s.raw != nil && bytes.Equal(s.raw, raw) {
		s.mu.Unlock()
		return
	}
	s.current = settings
	s.raw = raw
	subs := make([]func(*records.SiteSettings), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()
	log.Debugw("site settings updated", "heroSlides", len(settings.HeroSlides), "features", len(settings.Features))
	for _, fn := range subs {
		fn(settings)
	}
}

// Current returns the current snapshot. It must not be modified.
func (s *Service) Current() *records.SiteSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn for settings changes.
func (s *Service) Subscribe(fn func(*records.SiteSettings)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Save validates and stores settings, then installs them as the snapshot.
// Stored fields the settings type does not model are kept.
// The store used by the service must allow the write; the API checks the
// admin role before calling it.
func (s *Service) Save(ctx context.Context, settings *records.SiteSettings) error {
	if err := records.Validate(settings); err != nil {
		return err
	}
	current, err := s.store.Get(ctx, records.SettingsRef)
	if err != nil {
		return err
	}
	doc, err := docstore.EncodeOver(current.Data, settings)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, records.SettingsRef, doc); err != nil {
		return err
	}
	// decode from the stored form so the snapshot does not alias the caller
	stored := emptySettings()
	if err := docstore.Decode(doc, stored); err != nil {
		return err
	}
	s.replace(stored)
	return nil
}

// Close stops following the settings document.
func (s *Service) Close() {
	s.unsub()
	s.doc.Close()
}
