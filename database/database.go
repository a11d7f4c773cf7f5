// Package database 封装 GORM 连接、熔断保护的事务和泛型仓储。
package database

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/clusterd/breaker"
	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/logging"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/xerrors"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

const defaultSlowThreshold = 200 * time.Millisecond

// DB 封装了 GORM 实例.
type DB struct {
	*gorm.DB
	breaker *breaker.Breaker
	logger  *logging.Logger
}

// NewDB 打开数据库连接，注册链路追踪插件并设置连接池。
func NewDB(cfg config.DatabaseConfig, cbCfg config.CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) (*DB, error) {
	var dialer gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialer = mysql.Open(cfg.DSN)
	case "postgres", "":
		dialer = postgres.Open(cfg.DSN)
	default:
		return nil, xerrors.InvalidArg("unsupported database driver").WithDetail("%s", cfg.Driver)
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	gormLogger := logging.NewGormLogger(logger, slow)

	gormDB, err := gorm.Open(dialer, &gorm.Config{
		Logger:         gormLogger.LogMode(cfg.LogLevel),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, xerrors.WrapInternal(err, "failed to open database connection")
	}

	if err := gormDB.Use(tracing.NewPlugin()); err != nil {
		return nil, xerrors.WrapInternal(err, "failed to register gorm otel plugin")
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, xerrors.WrapInternal(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	cb := breaker.NewBreaker(breaker.Settings{
		Name:         "database-" + cfg.Driver,
		Config:       cbCfg,
		IsSuccessful: IsBusinessError,
	}, m)

	logger.Info("database connected", "driver", cfg.Driver)
	return &DB{DB: gormDB, breaker: cb, logger: logger}, nil
}

// IsBusinessError 判断错误是否属于业务结果而非数据库故障，熔断器不把它们计为失败。
func IsBusinessError(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		xerrors.IsType(err, xerrors.ErrNotFound) ||
		xerrors.IsType(err, xerrors.ErrAlreadyExists)
}

// Transaction 在熔断保护下执行事务。
func (db *DB) Transaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	return db.breaker.Execute(func() error {
		return db.DB.WithContext(ctx).Transaction(fc)
	})
}

// Ping 供健康检查使用。
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池。
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
