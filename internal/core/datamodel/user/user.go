package user

// User is the persisted form of a directory user. Timestamps are epoch
// milliseconds and DeletedAt is zero while the user is live.
type User struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Email        string `gorm:"column:email;uniqueIndex;not null" bson:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" bson:"password"`
	FullName     string `gorm:"column:full_name" bson:"fullName"`
	Gender       string `gorm:"column:gender" bson:"gender"`
	Role         string `gorm:"column:role;not null" bson:"role"`
	NodeID       string `gorm:"column:node_id;type:varchar(36);index;not null" bson:"nodeId"`
	CreatedAt    int64  `gorm:"column:created_at;autoCreateTime:false" bson:"createdAt"`
	UpdatedAt    int64  `gorm:"column:updated_at;autoUpdateTime:false" bson:"updatedAt"`
	DeletedAt    int64  `gorm:"column:deleted_at;index;default:0" bson:"deletedAt"`
}

func (User) TableName() string {
	return "users"
}
