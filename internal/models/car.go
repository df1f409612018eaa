package models

import "time"

// Car 租车列表中的一条车辆记录
type Car struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Price       float64   `json:"price" db:"price"`
	Description *string   `json:"description" db:"description"`
	Image       *string   `json:"image" db:"image"` // 图片 URL，未上传时为 null
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CarPatch 部分更新，nil 字段保持不变
type CarPatch struct {
	Name        *string
	Price       *float64
	Description *string
	Image       *string
}

// Empty 没有任何需要更新的字段
func (p CarPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Description == nil && p.Image == nil
}
