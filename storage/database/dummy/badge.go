package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/elimuhq/darasa/core/badge"
)

type badgeRepository struct {
	db *badgeTable
}

var _ badge.Repository = (*badgeRepository)(nil) // interface compliance check

func NewBadgeRepository(db *DB) badge.Repository {
	return &badgeRepository{db: db.badge}
}

func (repo *badgeRepository) CheckBadgeNameUniqueness(ctx context.Context, name string, excludedBadges ...badge.Badge) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exclLen := len(excludedBadges)
	if exclLen > 1 {
		sort.Slice(excludedBadges, func(i, j int) bool { return excludedBadges[i].ID < excludedBadges[j].ID })
	}

	for _, b := range repo.db.table {
		if b.Name == name && !isExcludedBadge(*b, excludedBadges, exclLen) {
			return badge.ErrBadgeExists
		}
	}
	return nil
}

func (repo *badgeRepository) CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.Name == b.Name {
			return badge.Badge{}, badge.ErrBadgeExists
		}
	}
	b.ID = uuid.NewString()
	repo.db.table[b.ID] = &b
	return b, nil
}

func (repo *badgeRepository) GetBadgeByID(ctx context.Context, id string) (badge.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.table[id]; ok {
		return *b, nil
	}
	return badge.Badge{}, badge.ErrNotFound
}

func (repo *badgeRepository) QueryBadges(ctx context.Context, activeOnly bool) ([]badge.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	badges := make([]badge.Badge, 0, len(repo.db.table))
	for _, b := range repo.db.table {
		if activeOnly && !b.IsActive {
			continue
		}
		badges = append(badges, *b)
	}
	return badges, nil
}

func (repo *badgeRepository) UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[b.ID]; !ok {
		return badge.Badge{}, badge.ErrNotFound
	}
	repo.db.table[b.ID] = &b
	return b, nil
}

func isExcludedBadge(b badge.Badge, excludedBadges []badge.Badge, n int) bool {
	if n <= 0 {
		return false
	}
	idx := sort.Search(n, func(i int) bool { return excludedBadges[i].ID >= b.ID })
	return idx < n && excludedBadges[idx].ID == b.ID
}
