package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tripServer/backend/internal/entity"
)

var ErrNotMember = errors.New("not a trip member")

type MembershipStore struct{ db *gorm.DB }

func NewMembershipStore(db *gorm.DB) *MembershipStore { return &MembershipStore{db: db} }

// GetRole 返回用户在行程里的角色；不是成员返回 ErrNotMember
func (s *MembershipStore) GetRole(ctx context.Context, tripID, userID uint64) (entity.Role, error) {
	var m entity.TripMember
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotMember
		}
		return 0, err
	}
	return m.Role, nil
}

func (s *MembershipStore) AddMember(ctx context.Context, m *entity.TripMember) error {
	return s.db.WithContext(ctx).Create(m).Error
}
