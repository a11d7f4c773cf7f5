// Package repository 在通用 GORM 仓储之上提供按用户隔离的实体访问。
package repository

import (
	"context"

	"github.com/wyfcoding/clusterd/database"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository 用户存取。
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Update(ctx context.Context, u *model.User, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChatRepository 会话存取，所有查询都限定在所属用户内。
type ChatRepository interface {
	Create(ctx context.Context, c *model.Chat) error
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Chat, error)
	List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*model.Chat, error)
	Update(ctx context.Context, c *model.Chat, fields map[string]any) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// KmeansRepository 聚类任务与训练结果存取。
type KmeansRepository interface {
	CreateData(ctx context.Context, d *model.KmeansData) error
	GetData(ctx context.Context, userID, id uuid.UUID) (*model.KmeansData, error)
	ListData(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*model.KmeansData, error)
	DeleteData(ctx context.Context, userID, id uuid.UUID) error
	// CompleteFit 在同一事务中写入训练结果并把任务标记为 done。
	CompleteFit(ctx context.Context, dataID uuid.UUID, c *model.KmeansCentroid) error
	FailFit(ctx context.Context, dataID uuid.UUID, reason string) error
	ListCentroids(ctx context.Context, dataID uuid.UUID, skip, limit int) ([]*model.KmeansCentroid, error)
	LatestCentroid(ctx context.Context, dataID uuid.UUID) (*model.KmeansCentroid, error)
}

type userRepo struct {
	*database.GormRepository[model.User]
}

// NewUserRepository 基于 GORM 的实现。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{database.NewGormRepository[model.User](db, "User")}
}

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.FindOne(ctx, database.Where("id = ?", id))
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.FindOne(ctx, database.Where("username = ?", username))
}

func (r *userRepo) Update(ctx context.Context, u *model.User, fields map[string]any) error {
	return r.Updates(ctx, u, fields)
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.GormRepository.Delete(ctx, database.Where("id = ?", id))
}

type chatRepo struct {
	*database.GormRepository[model.Chat]
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{database.NewGormRepository[model.Chat](db, "Chat")}
}

func (r *chatRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Chat, error) {
	return r.FindOne(ctx, database.Where("id = ? AND user_id = ?", id, userID))
}

func (r *chatRepo) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*model.Chat, error) {
	return r.GormRepository.List(ctx, skip, limit, database.Where("user_id = ?", userID))
}

func (r *chatRepo) Update(ctx context.Context, c *model.Chat, fields map[string]any) error {
	return r.Updates(ctx, c, fields)
}

func (r *chatRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return r.GormRepository.Delete(ctx, database.Where("id = ? AND user_id = ?", id, userID))
}

type kmeansRepo struct {
	db        *database.DB
	data      *database.GormRepository[model.KmeansData]
	centroids *database.GormRepository[model.KmeansCentroid]
}

func NewKmeansRepository(db *database.DB) KmeansRepository {
	return &kmeansRepo{
		db:        db,
		data:      database.NewGormRepository[model.KmeansData](db.DB, "Kmeans_data"),
		centroids: database.NewGormRepository[model.KmeansCentroid](db.DB, "Kmeans_centroid"),
	}
}

// ownedBy 通过会话归属限定用户。
func ownedBy(userID uuid.UUID) database.Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("chat_id IN (?)", db.Session(&gorm.Session{NewDB: true}).
			Model(&model.Chat{}).Select("id").Where("user_id = ?", userID))
	}
}

func (r *kmeansRepo) CreateData(ctx context.Context, d *model.KmeansData) error {
	return r.data.Create(ctx, d)
}

func (r *kmeansRepo) GetData(ctx context.Context, userID, id uuid.UUID) (*model.KmeansData, error) {
	return r.data.FindOne(ctx, database.Where("id = ?", id), ownedBy(userID))
}

func (r *kmeansRepo) ListData(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*model.KmeansData, error) {
	return r.data.List(ctx, skip, limit, ownedBy(userID))
}

func (r *kmeansRepo) DeleteData(ctx context.Context, userID, id uuid.UUID) error {
	return r.data.Delete(ctx, database.Where("id = ?", id), ownedBy(userID))
}

func (r *kmeansRepo) CompleteFit(ctx context.Context, dataID uuid.UUID, c *model.KmeansCentroid) error {
	c.KmeansDataID = dataID
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := database.NewGormRepository[model.KmeansCentroid](tx, "Kmeans_centroid").Create(ctx, c); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&model.KmeansData{}).Where("id = ?", dataID).
			Updates(map[string]any{"status": model.FitDone, "error": ""}).Error
	})
}

func (r *kmeansRepo) FailFit(ctx context.Context, dataID uuid.UUID, reason string) error {
	return r.data.DB(ctx).Model(&model.KmeansData{}).Where("id = ?", dataID).
		Updates(map[string]any{"status": model.FitFailed, "error": reason}).Error
}

func (r *kmeansRepo) ListCentroids(ctx context.Context, dataID uuid.UUID, skip, limit int) ([]*model.KmeansCentroid, error) {
	var out []*model.KmeansCentroid
	err := r.centroids.DB(ctx).Preload("KmeansData").
		Where("kmeans_data_id = ?", dataID).
		Order("fit_at DESC").Offset(skip).Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, xerrors.WrapInternal(err, "failed to list Kmeans_centroid")
	}
	return out, nil
}

func (r *kmeansRepo) LatestCentroid(ctx context.Context, dataID uuid.UUID) (*model.KmeansCentroid, error) {
	return r.centroids.FindOne(ctx, database.Where("kmeans_data_id = ?", dataID), func(db *gorm.DB) *gorm.DB {
		return db.Order("fit_at DESC")
	})
}
