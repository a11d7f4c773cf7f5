package database

import (
	"context"
	"errors"

	"github.com/wyfcoding/clusterd/xerrors"

	"gorm.io/gorm"
)

// Scope 是附加在查询上的 GORM 条件。
type Scope = func(*gorm.DB) *gorm.DB

// Repository 定义了通用的仓储接口。
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Updates(ctx context.Context, entity *T, fields map[string]any) error
	Delete(ctx context.Context, scopes ...Scope) error
	FindOne(ctx context.Context, scopes ...Scope) (*T, error)
	List(ctx context.Context, skip, limit int, scopes ...Scope) ([]*T, error)
}

// GormRepository 是基于 GORM 实现的通用仓储.
type GormRepository[T any] struct {
	db   *gorm.DB
	name string
}

// NewGormRepository 创建泛型仓储，name 用于错误消息。
func NewGormRepository[T any](db *gorm.DB, name string) *GormRepository[T] {
	return &GormRepository[T]{db: db, name: name}
}

// DB 返回绑定 ctx 的 GORM 实例.
func (r *GormRepository[T]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Create 插入实体，唯一约束冲突映射为 AlreadyExists。
func (r *GormRepository[T]) Create(ctx context.Context, entity *T) error {
	return r.translate(r.DB(ctx).Create(entity).Error, "create")
}

// Updates 按字段局部更新，随后重新读取实体。
func (r *GormRepository[T]) Updates(ctx context.Context, entity *T, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.DB(ctx).Model(entity).Updates(fields).Error; err != nil {
		return r.translate(err, "update")
	}
	return r.translate(r.DB(ctx).First(entity).Error, "reload")
}

// Delete 删除满足条件的实体，没有命中时返回 NotFound。
func (r *GormRepository[T]) Delete(ctx context.Context, scopes ...Scope) error {
	var entity T
	res := r.DB(ctx).Scopes(scopes...).Delete(&entity)
	if res.Error != nil {
		return r.translate(res.Error, "delete")
	}
	if res.RowsAffected == 0 {
		return xerrors.NotFound(r.name + " not found")
	}
	return nil
}

// FindOne 查询单个实体.
func (r *GormRepository[T]) FindOne(ctx context.Context, scopes ...Scope) (*T, error) {
	var entity T
	if err := r.DB(ctx).Scopes(scopes...).Take(&entity).Error; err != nil {
		return nil, r.translate(err, "find")
	}
	return &entity, nil
}

// List 按 skip/limit 分页查询，默认按创建时间倒序。
func (r *GormRepository[T]) List(ctx context.Context, skip, limit int, scopes ...Scope) ([]*T, error) {
	var entities []*T
	err := r.DB(ctx).Scopes(scopes...).Order("created_at DESC").Offset(skip).Limit(limit).Find(&entities).Error
	if err != nil {
		return nil, r.translate(err, "list")
	}
	return entities, nil
}

func (r *GormRepository[T]) translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return xerrors.New(xerrors.ErrNotFound, 404, r.name+" not found", op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return xerrors.New(xerrors.ErrAlreadyExists, 409, r.name+" already exists", op, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return xerrors.New(xerrors.ErrNotFound, 404, "referenced entity not found", op, err)
	default:
		return xerrors.WrapInternal(err, "failed to "+op+" "+r.name)
	}
}

// Where 构造等值条件。
func Where(query string, args ...any) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}
