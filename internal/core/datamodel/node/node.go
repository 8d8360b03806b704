package node

// Node is the persisted form of a hierarchy node. The same record is used by
// the gorm and mongo repositories; timestamps are epoch milliseconds.
type Node struct {
	ID        string   `gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Name      string   `gorm:"column:name;uniqueIndex;not null" bson:"name"`
	Type      string   `gorm:"column:type;not null" bson:"type"`
	Location  string   `gorm:"column:location" bson:"location"`
	Parent    *string  `gorm:"column:parent;type:varchar(36)" bson:"parent"`
	Ancestors []string `gorm:"column:ancestors;type:text;serializer:json" bson:"ancestors"`
	Children  []string `gorm:"column:children;type:text;serializer:json" bson:"children"`
	CreatedBy string   `gorm:"column:created_by;not null" bson:"createdBy"`
	ManagedBy string   `gorm:"column:managed_by;not null" bson:"managedBy"`
	CreatedAt int64    `gorm:"column:created_at;autoCreateTime:false" bson:"createdAt"`
	UpdatedAt int64    `gorm:"column:updated_at;autoUpdateTime:false" bson:"updatedAt"`
	DeletedAt int64    `gorm:"column:deleted_at;index;default:0" bson:"deletedAt"`
}

func (Node) TableName() string {
	return "nodes"
}
