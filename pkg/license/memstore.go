package license

import "sync"

// MemoryStore is a map-backed Store. It backs tests and single-process
// deployments that do not need a database file.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]*Record
	bans     map[string]*FingerprintBan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*Record),
		bans:     make(map[string]*FingerprintBan),
	}
}

func (s *MemoryStore) Get(key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.licenses[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[rec.Key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[key]; !ok {
		return ErrNotFound
	}
	delete(s.licenses, key)
	return nil
}

func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.licenses))
	for _, rec := range s.licenses {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *MemoryStore) GetBan(hash string) (*FingerprintBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ban, ok := s.bans[hash]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *ban
	return &clone, nil
}

func (s *MemoryStore) SaveBan(ban *FingerprintBan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *ban
	s.bans[ban.Hash] = &clone
	return nil
}

func (s *MemoryStore) DeleteBan(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bans[hash]; !ok {
		return ErrNotFound
	}
	delete(s.bans, hash)
	return nil
}

func (s *MemoryStore) ListBans() ([]*FingerprintBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FingerprintBan, 0, len(s.bans))
	for _, ban := range s.bans {
		clone := *ban
		out = append(out, &clone)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
