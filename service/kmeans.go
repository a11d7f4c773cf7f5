package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/clusterd/algorithm/ml"
	"github.com/wyfcoding/clusterd/algorithm/preprocess"
	"github.com/wyfcoding/clusterd/async"
	"github.com/wyfcoding/clusterd/cache"
	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/contextx"
	"github.com/wyfcoding/clusterd/metrics"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/pagination"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/retry"
	"github.com/wyfcoding/clusterd/tracing"
	"github.com/wyfcoding/clusterd/worker"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
)

// Submitter 后台执行训练任务，队列已满时立即返回错误。
type Submitter interface {
	TrySubmit(task worker.Task) error
}

// SnapshotCache 按任务 ID 缓存序列化后的模型快照。
type SnapshotCache interface {
	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
	Delete(key string) error
}

// FitRequest 一次训练请求。X 中的 NaN 表示缺失值。
type FitRequest struct {
	ChatID      uuid.UUID
	Description *string
	Config      ml.Config
	X           [][]float64
}

type KmeansService struct {
	chats   repository.ChatRepository
	repo    repository.KmeansRepository
	pool    Submitter
	cache   SnapshotCache
	limits  atomic.Pointer[config.KmeansConfig]
	timeout time.Duration
	persist retry.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewKmeansService cache 为 nil 时每次预测都从数据库加载快照。
func NewKmeansService(
	chats repository.ChatRepository,
	repo repository.KmeansRepository,
	pool Submitter,
	snapshots SnapshotCache,
	cfg config.KmeansConfig,
	fitTimeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *KmeansService {
	s := &KmeansService{
		chats:   chats,
		repo:    repo,
		pool:    pool,
		cache:   snapshots,
		timeout: fitTimeout,
		persist: retry.DefaultPolicy(),
		metrics: m,
		logger:  logger,
	}
	s.SetLimits(cfg)
	return s
}

// SetLimits 配置热更新时替换默认参数与请求上限。
func (s *KmeansService) SetLimits(cfg config.KmeansConfig) {
	s.limits.Store(&cfg)
}

// Fit 同步完成全部校验并创建 pending 任务，训练本身交给工作池。
func (s *KmeansService) Fit(ctx context.Context, userID uuid.UUID, req FitRequest) (*model.KmeansData, error) {
	cfg, err := s.validate(req)
	if err != nil {
		s.countFit("rejected")
		return nil, err
	}
	if _, err := s.chats.Get(ctx, userID, req.ChatID); err != nil {
		s.countFit("rejected")
		return nil, notFound(err, "Chat not found")
	}

	data := &model.KmeansData{
		NClusters: cfg.NClusters,
		Preprocessing: model.Preprocessing{
			Normalization:  string(cfg.Normalization),
			PCA:            cfg.PCANComponents > 0,
			PCANComponents: cfg.PCANComponents,
		},
		Description: req.Description,
		ChatID:      req.ChatID,
		Status:      model.FitPending,
	}
	if err := s.repo.CreateData(ctx, data); err != nil {
		return nil, notFound(err, "Chat not found")
	}

	dataID, X := data.ID, req.X
	requestID := contextx.GetRequestID(ctx)
	carrier := tracing.InjectContext(ctx)
	err = s.pool.TrySubmit(func(taskCtx context.Context) {
		taskCtx = tracing.ExtractContext(taskCtx, carrier)
		s.runFit(contextx.WithRequestID(taskCtx, requestID), dataID, cfg, X)
	})
	if err != nil {
		s.countFit("rejected")
		reason := "fit queue is full"
		if errors.Is(err, worker.ErrPoolClosed) {
			reason = "service is shutting down"
		}
		if ferr := s.repo.FailFit(contextx.Detach(ctx), dataID, reason); ferr != nil {
			s.logger.ErrorContext(ctx, "failed to mark kmeans fit as failed", "kmeans_data_id", dataID.String(), "error", ferr)
		}
		return nil, xerrors.Unavailable("Fit queue is full, retry later", err).WithContext("kmeans_data_id", dataID.String())
	}

	s.logger.InfoContext(ctx, "kmeans fit scheduled",
		"kmeans_data_id", dataID.String(), "rows", len(X), "n_clusters", cfg.NClusters)
	return data, nil
}

func (s *KmeansService) validate(req FitRequest) (ml.Config, error) {
	limits := s.limits.Load()
	cfg := req.Config
	if cfg.MaxIter == 0 && limits.DefaultMaxIter > 0 {
		cfg.MaxIter = limits.DefaultMaxIter
	}
	if cfg.Tol == 0 && limits.DefaultTol > 0 {
		cfg.Tol = limits.DefaultTol
	}
	cfg = cfg.WithDefaults()

	rows, cols := ml.Shape(req.X)
	if rows == 0 || cols == 0 {
		return cfg, xerrors.DataShape("X must be a non-empty 2D matrix")
	}
	if limits.MaxRows > 0 && rows > limits.MaxRows {
		return cfg, xerrors.DataShape("X has %d rows, limit is %d", rows, limits.MaxRows)
	}
	if limits.MaxCols > 0 && cols > limits.MaxCols {
		return cfg, xerrors.DataShape("X has %d columns, limit is %d", cols, limits.MaxCols)
	}
	cfg, err := cfg.ValidateFor(rows, cols)
	if err != nil {
		return cfg, err
	}
	// 列数不齐、整列缺失、非有限值都在这里暴露。
	raw, err := preprocess.FromRows(req.X)
	if err != nil {
		return cfg, err
	}
	if _, err := preprocess.ColumnMeans(raw); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runFit 在工作池中执行。任何失败都把任务标记为 failed 并记录原因。
func (s *KmeansService) runFit(ctx context.Context, dataID uuid.UUID, cfg ml.Config, X [][]float64) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := s.logger.With("kmeans_data_id", dataID.String())

	ctx, span := tracing.StartSpan(ctx, "kmeans.fit")
	defer span.End()
	tracing.AddTag(ctx, "kmeans_data_id", dataID.String())
	tracing.AddTag(ctx, "kmeans.rows", len(X))
	tracing.AddTag(ctx, "kmeans.n_clusters", cfg.NClusters)

	start := time.Now()
	fitted, err := safeFit(X, cfg)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = xerrors.New(xerrors.ErrDeadlineExceeded, 504, "fit exceeded its time budget", elapsed.String(), ctx.Err())
	}
	if err != nil {
		tracing.SetError(ctx, err)
		s.countFit("failed")
		log.WarnContext(ctx, "kmeans fit failed", "error", err)
		s.markFailed(ctx, log, dataID, err.Error())
		return
	}

	centroid := &model.KmeansCentroid{
		Values:     fitted.Centroids(),
		Labels:     fitted.Labels(),
		Sizes:      fitted.ClusterSizes(),
		Iterations: fitted.Iterations(),
		Converged:  fitted.Converged(),
		Inertia:    fitted.Inertia(),
		FitTime:    elapsed.Seconds(),
		FitAt:      time.Now().UTC(),
		Model:      fitted.Snapshot(),
	}
	err = retry.Do(contextx.Detach(ctx), s.persist, func(ctx context.Context) error {
		return s.repo.CompleteFit(ctx, dataID, centroid)
	}, transient)
	if err != nil {
		tracing.SetError(ctx, err)
		s.countFit("failed")
		log.ErrorContext(ctx, "failed to store kmeans result", "error", err)
		s.markFailed(ctx, log, dataID, "failed to store result")
		return
	}
	s.forget(dataID)

	s.countFit("done")
	tracing.AddTag(ctx, "kmeans.iterations", fitted.Iterations())
	if s.metrics != nil {
		s.metrics.FitDuration.Observe(elapsed.Seconds())
		s.metrics.FitIterations.Observe(float64(fitted.Iterations()))
	}
	log.InfoContext(ctx, "kmeans fit finished",
		"iterations", fitted.Iterations(),
		"converged", fitted.Converged(),
		"inertia", fitted.Inertia(),
		"duration", elapsed)
}

// safeFit 训练中的 panic 转为错误，任务状态仍能落为 failed。
func safeFit(X [][]float64, cfg ml.Config) (m *ml.FittedModel, err error) {
	defer async.Recover(&err)
	return ml.Fit(X, cfg)
}

func (s *KmeansService) markFailed(ctx context.Context, log *slog.Logger, dataID uuid.UUID, reason string) {
	err := retry.Do(contextx.Detach(ctx), s.persist, func(ctx context.Context) error {
		return s.repo.FailFit(ctx, dataID, reason)
	}, transient)
	if err != nil {
		log.ErrorContext(ctx, "failed to mark kmeans fit as failed", "error", err)
	}
}

// transient 任务在训练期间被删除时不再重试。
func transient(err error) bool {
	return !xerrors.IsType(err, xerrors.ErrNotFound)
}

// Predict 使用最新一次训练结果为 X 分配簇标签。
func (s *KmeansService) Predict(ctx context.Context, userID, dataID uuid.UUID, X [][]float64) ([]int, error) {
	data, err := s.repo.GetData(ctx, userID, dataID)
	if err != nil {
		return nil, notFound(err, "Kmeans_data not found")
	}
	if rows, cols := ml.Shape(X); rows == 0 || cols == 0 {
		s.countPredict("rejected")
		return nil, xerrors.DataShape("X must be a non-empty 2D matrix")
	}

	fitted, err := s.loadModel(ctx, data)
	if err != nil {
		s.countPredict("failed")
		return nil, err
	}
	labels, err := fitted.Predict(X)
	if err != nil {
		s.countPredict("rejected")
		return nil, err
	}
	s.countPredict("ok")
	return labels, nil
}

func (s *KmeansService) loadModel(ctx context.Context, data *model.KmeansData) (*ml.FittedModel, error) {
	key := data.ID.String()
	if s.cache != nil {
		raw, err := s.cache.Get(key)
		switch {
		case err == nil:
			var snap ml.Snapshot
			if jerr := json.Unmarshal(raw, &snap); jerr == nil {
				if fitted, rerr := ml.Restore(snap); rerr == nil {
					s.countCache("hit")
					return fitted, nil
				}
			}
			s.forget(data.ID)
		case !errors.Is(err, cache.ErrMiss):
			s.logger.WarnContext(ctx, "snapshot cache read failed", "error", err)
		}
		s.countCache("miss")
	}

	latest, err := s.repo.LatestCentroid(ctx, data.ID)
	if err != nil {
		if xerrors.IsType(err, xerrors.ErrNotFound) {
			nf := xerrors.NotFitted().WithContext("status", string(data.Status))
			if data.Status == model.FitFailed {
				nf = nf.WithDetail("last fit failed: %s", data.Error)
			}
			return nil, nf
		}
		return nil, err
	}
	fitted, err := ml.Restore(latest.Model)
	if err != nil {
		return nil, xerrors.WrapInternal(err, "stored model snapshot is corrupt")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(latest.Model); err == nil {
			if err := s.cache.Set(key, raw); err != nil {
				s.logger.WarnContext(ctx, "snapshot cache write failed", "error", err)
			}
		}
	}
	return fitted, nil
}

// List 当前用户的全部聚类任务，新建的在前。
func (s *KmeansService) List(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]*model.KmeansData, error) {
	page = page.Normalize()
	return s.repo.ListData(ctx, userID, page.Skip, page.Limit)
}

// Get 返回任务本身，用于查看训练状态。
func (s *KmeansService) Get(ctx context.Context, userID, dataID uuid.UUID) (*model.KmeansData, error) {
	data, err := s.repo.GetData(ctx, userID, dataID)
	if err != nil {
		return nil, notFound(err, "Kmeans_data not found")
	}
	return data, nil
}

// Centroids 训练历史，最近的在前。
func (s *KmeansService) Centroids(ctx context.Context, userID, dataID uuid.UUID, page pagination.Page) ([]*model.KmeansCentroid, error) {
	data, err := s.Get(ctx, userID, dataID)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	list, err := s.repo.ListCentroids(ctx, dataID, page.Skip, page.Limit)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if c.KmeansData == nil {
			c.KmeansData = data
		}
	}
	return list, nil
}

func (s *KmeansService) Delete(ctx context.Context, userID, dataID uuid.UUID) error {
	if err := s.repo.DeleteData(ctx, userID, dataID); err != nil {
		return notFound(err, "Kmeans_data not found")
	}
	s.forget(dataID)
	return nil
}

func (s *KmeansService) forget(id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(id.String()); err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("snapshot cache delete failed", "error", err)
	}
}

func (s *KmeansService) countFit(result string) {
	if s.metrics != nil {
		s.metrics.FitsTotal.WithLabelValues(result).Inc()
	}
}

func (s *KmeansService) countPredict(result string) {
	if s.metrics != nil {
		s.metrics.PredictionsTotal.WithLabelValues(result).Inc()
	}
}

func (s *KmeansService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.SnapshotCacheTotal.WithLabelValues(result).Inc()
	}
}
