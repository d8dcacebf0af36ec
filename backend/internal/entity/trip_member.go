package entity

import "time"

// 成员角色，数值越大权限越高
type Role int

const (
	RoleViewer Role = 10
	RoleEditor Role = 20
	RoleOwner  Role = 30
)

// AtLeast 角色层级比较：owner 覆盖 editor，editor 覆盖 viewer
func (r Role) AtLeast(required Role) bool { return r >= required }

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

type TripMember struct {
	TripID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Username  string `gorm:"type:varchar(64)"`
	Role      Role   `gorm:"default:10"`
	CreatedAt time.Time
}
