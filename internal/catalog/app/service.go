package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dwikikusuma/bullion-store/internal/catalog/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Service is the read-only catalog provider. Products are snapshotted from
// the repo by Load so that lookups on the pricing path never block on I/O.
type Service struct {
	repo ProductRepo

	mu       sync.RWMutex
	index    map[string]domain.Product
	products []domain.Product
}

func NewService(repo ProductRepo) *Service {
	return &Service{
		repo:  repo,
		index: make(map[string]domain.Product),
	}
}

func (s *Service) Load(ctx context.Context) error {
	products, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	index := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" || p.Price.Amount < 0 {
			return fmt.Errorf("load catalog: product %q: %w", p.ID, ErrInvalidInput)
		}
		if _, dup := index[p.ID]; dup {
			return fmt.Errorf("load catalog: duplicate product %q: %w", p.ID, ErrInvalidInput)
		}
		index[p.ID] = p
	}

	s.mu.Lock()
	s.index = index
	s.products = products
	s.mu.Unlock()
	return nil
}

// LookupProduct resolves id against the loaded snapshot.
func (s *Service) LookupProduct(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.index[id]
	return p, ok
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, ErrInvalidInput
	}
	p, ok := s.LookupProduct(id)
	if !ok {
		return domain.Product{}, ErrNotFound
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context, inStockOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if inStockOnly && !p.InStock {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
