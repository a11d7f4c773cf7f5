// Package model 定义持久化实体。主键统一为 UUID 字符串列，兼容 postgres 与 mysql。
package model

import (
	"time"

	"github.com/wyfcoding/clusterd/algorithm/ml"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base 公共字段。
type Base struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// BeforeCreate 未指定主键时生成 UUID。
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type User struct {
	Base
	Username string  `gorm:"size:50;uniqueIndex;not null"`
	Password string  `gorm:"size:100;not null"`
	FullName *string `gorm:"size:100"`
	Chats    []Chat  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

type Chat struct {
	Base
	Title       string       `gorm:"size:256;not null"`
	Description *string      `gorm:"type:text"`
	UserID      uuid.UUID    `gorm:"type:varchar(36);index;not null"`
	KmeansData  []KmeansData `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

// FitStatus 后台训练状态。
type FitStatus string

const (
	FitPending FitStatus = "pending"
	FitDone    FitStatus = "done"
	FitFailed  FitStatus = "failed"
)

// Preprocessing 记录一次训练使用的预处理选项。
type Preprocessing struct {
	Normalization  string `json:"normalization"`
	PCA            bool   `json:"pca"`
	PCANComponents int    `json:"pca_n_components,omitempty"`
}

// KmeansData 一次聚类任务，训练结果见 KmeansCentroid。
type KmeansData struct {
	Base
	NClusters     int              `gorm:"not null"`
	Preprocessing Preprocessing    `gorm:"serializer:json;type:text"`
	Description   *string          `gorm:"type:text"`
	ChatID        uuid.UUID        `gorm:"type:varchar(36);index;not null"`
	Status        FitStatus        `gorm:"size:16;not null;default:pending"`
	Error         string           `gorm:"type:text"`
	Centroids     []KmeansCentroid `gorm:"foreignKey:KmeansDataID;constraint:OnDelete:CASCADE"`
}

func (KmeansData) TableName() string { return "kmeans_data" }

// KmeansCentroid 一次训练的结果与可用于预测的模型快照。
type KmeansCentroid struct {
	Base
	Values       [][]float64 `gorm:"serializer:json;type:text;not null"`
	Labels       []int       `gorm:"serializer:json;type:text"`
	Sizes        []int       `gorm:"serializer:json;type:text"`
	Iterations   int
	Converged    bool
	Inertia      float64
	FitTime      float64     `gorm:"not null"` // 秒
	FitAt        time.Time   `gorm:"index"`
	Model        ml.Snapshot `gorm:"serializer:json;type:text"`
	KmeansDataID uuid.UUID   `gorm:"type:varchar(36);index;not null"`
	KmeansData   *KmeansData `gorm:"foreignKey:KmeansDataID"`
}

// All 按依赖顺序列出需要迁移的实体。
func All() []any {
	return []any{&User{}, &Chat{}, &KmeansData{}, &KmeansCentroid{}}
}
