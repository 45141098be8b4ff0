package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// User is a wallet that signed in at least once
type User struct {
	ID             string    `json:"id" binding:"required"`
	WalletAddress  string    `json:"walletAddress" binding:"required"`
	Files          []string  `json:"files"`
	Quotes         []string  `json:"quotes"`
	FilesAvailable int       `json:"filesAvailable"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// File is a pinned upload
type File struct {
	ID        string    `json:"id" binding:"required"`
	Name      string    `json:"name" binding:"required"`
	Size      int64     `json:"size"`
	CID       string    `json:"cid" binding:"required"`
	User      string    `json:"user" binding:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quote is an offer to raise a user's file quota for a price
type Quote struct {
	ID             string
	User           string
	FilesRequested int
	Price          decimal.Decimal
	Hash           string // payment transaction, set once confirmed
	CreatedAt      time.Time
}

// MemoryStore keeps users, files and quotes in memory
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*User // by wallet address
	files  map[string]*File
	quotes map[string]*Quote
	now    func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		files:  make(map[string]*File),
		quotes: make(map[string]*Quote),
		now:    time.Now,
	}
}

// EnsureUser creates the user for address unless it exists
func (s *MemoryStore) EnsureUser(ctx context.Context, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[address]; ok {
		return cloneUser(u), nil
	}
	now := s.now()
	u := &User{
		ID:            uuid.New().String(),
		WalletAddress: address,
		Files:         []string{},
		Quotes:        []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[address] = u
	return cloneUser(u), nil
}

// User returns the user with the wallet address
func (s *MemoryStore) User(ctx context.Context, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// Files lists the user's files in upload order
func (s *MemoryStore) Files(ctx context.Context, address string) ([]File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	files := make([]File, 0, len(u.Files))
	for _, id := range u.Files {
		files = append(files, *s.files[id])
	}
	return files, nil
}

// CreateQuote records a quota increase offer for the user
func (s *MemoryStore) CreateQuote(ctx context.Context, address string, files int, price decimal.Decimal) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	q := &Quote{
		ID:             uuid.New().String(),
		User:           u.ID,
		FilesRequested: files,
		Price:          price,
		CreatedAt:      now,
	}
	s.quotes[q.ID] = q
	u.Quotes = append(u.Quotes, q.ID)
	u.UpdatedAt = now
	cp := *q
	return &cp, nil
}

// Quote returns a quote by id
func (s *MemoryStore) Quote(ctx context.Context, id string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

// ErrQuotePaid is returned when a quote was already settled
var ErrQuotePaid = errors.New("quote already paid")

// SettleQuote marks the quote paid by hash and credits the user's quota
func (s *MemoryStore) SettleQuote(ctx context.Context, address, quoteID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return ErrNotFound
	}
	q, ok := s.quotes[quoteID]
	if !ok || q.User != u.ID {
		return ErrNotFound
	}
	if q.Hash != "" {
		return ErrQuotePaid
	}
	q.Hash = hash
	u.FilesAvailable += q.FilesRequested
	u.UpdatedAt = s.now()
	return nil
}

// ErrNoQuota is returned when the user has no uploads left
var ErrNoQuota = errors.New("no files available")

// ReserveFile takes one upload from the user's quota
func (s *MemoryStore) ReserveFile(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return ErrNotFound
	}
	if u.FilesAvailable <= 0 {
		return ErrNoQuota
	}
	u.FilesAvailable--
	return nil
}

// ReleaseFile gives back an upload reserved by ReserveFile
func (s *MemoryStore) ReleaseFile(ctx context.Context, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[address]; ok {
		u.FilesAvailable++
	}
}

// AddFile stores a pinned file for the user
func (s *MemoryStore) AddFile(ctx context.Context, address, name string, size int64, cid string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	f := &File{
		ID:        uuid.New().String(),
		Name:      name,
		Size:      size,
		CID:       cid,
		User:      u.ID,
		CreatedAt: now,
	}
	s.files[f.ID] = f
	u.Files = append(u.Files, f.ID)
	u.UpdatedAt = now
	cp := *f
	return &cp, nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Files = append([]string{}, u.Files...)
	cp.Quotes = append([]string{}, u.Quotes...)
	return &cp
}
