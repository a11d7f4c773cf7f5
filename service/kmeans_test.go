package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wyfcoding/clusterd/algorithm/ml"
	"github.com/wyfcoding/clusterd/config"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/pagination"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/repository/memrepo"
	"github.com/wyfcoding/clusterd/retry"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blobs = [][]float64{
	{0, 0}, {0, 1}, {1, 0}, {1, 1},
	{10, 10}, {10, 11}, {11, 10}, {11, 11},
}

type kmeansFixture struct {
	st    *memrepo.Store
	svc   *KmeansService
	pool  *inlinePool
	cache *mapCache
	user  uuid.UUID
	chat  uuid.UUID
}

func newKmeansFixture(t *testing.T, limits config.KmeansConfig) *kmeansFixture {
	t.Helper()
	st := memrepo.New()
	f := &kmeansFixture{st: st, pool: &inlinePool{}, cache: newMapCache()}
	f.svc = NewKmeansService(st.Chats(), st.Kmeans(), f.pool, f.cache, limits, time.Minute, nil, discard)
	f.user = seedUser(t, st)
	c, err := NewChatService(st.Chats()).Create(context.Background(), f.user, "chat", nil)
	require.NoError(t, err)
	f.chat = c.ID
	return f
}

func seed(v int64) *int64 { return &v }

func TestFitAndPredict(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{})

	cfg := ml.DefaultConfig(2)
	cfg.RandomState = seed(1)
	data, err := f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: cfg, X: blobs})
	require.NoError(t, err)
	assert.Equal(t, 1, f.pool.submitted)

	stored, err := f.svc.Get(ctx, f.user, data.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FitDone, stored.Status)
	assert.Equal(t, "z-score", stored.Preprocessing.Normalization)
	assert.False(t, stored.Preprocessing.PCA)

	history, err := f.svc.Centroids(ctx, f.user, data.ID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Len(t, history[0].Values, 2)
	assert.NotNil(t, history[0].KmeansData)

	labels, err := f.svc.Predict(ctx, f.user, data.ID, [][]float64{{0.5, 0.5}, {10.5, 10.5}})
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.NotEqual(t, labels[0], labels[1])
	assert.Equal(t, history[0].Labels[0], labels[0])

	// 第二次预测命中快照缓存
	_, err = f.svc.Predict(ctx, f.user, data.ID, [][]float64{{math.NaN(), 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.Predict(ctx, f.user, data.ID, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, xerrors.ErrDataShape)
}

func TestFitValidatesSynchronously(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{MaxRows: 6})

	_, err := f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(2), X: blobs})
	assert.ErrorIs(t, err, xerrors.ErrDataShape, "row cap")

	f.svc.SetLimits(config.KmeansConfig{})
	_, err = f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(1), X: blobs})
	assert.ErrorIs(t, err, xerrors.ErrConfiguration)

	_, err = f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(2),
		X: [][]float64{{math.NaN(), 1}, {math.NaN(), 2}, {math.NaN(), 3}}})
	assert.ErrorIs(t, err, xerrors.ErrDataShape, "all-missing column")

	_, err = f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(2), X: [][]float64{{1, 2}, {3}}})
	assert.ErrorIs(t, err, xerrors.ErrDataShape, "ragged rows")

	_, err = f.svc.Fit(ctx, seedUser(t, f.st), FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(2), X: blobs})
	assert.True(t, xerrors.IsType(err, xerrors.ErrNotFound), "foreign chat")

	assert.Zero(t, f.pool.submitted)
	list, err := f.svc.List(ctx, f.user, pagination.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFitQueueFull(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{})
	f.svc.pool = fullPool{}

	_, err := f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: ml.DefaultConfig(2), X: blobs})
	require.Error(t, err)
	e, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, 503, e.HTTPStatus())

	list, err := f.svc.List(ctx, f.user, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.FitFailed, list[0].Status)
}

func TestPredictBeforeFitCompletes(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{})
	d := &model.KmeansData{NClusters: 2, ChatID: f.chat, Status: model.FitPending}
	require.NoError(t, f.st.Kmeans().CreateData(ctx, d))

	_, err := f.svc.Predict(ctx, f.user, d.ID, blobs)
	assert.ErrorIs(t, err, xerrors.ErrNotFitted)
}

func TestDeleteKmeansData(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{})
	cfg := ml.DefaultConfig(2)
	cfg.RandomState = seed(7)
	data, err := f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: cfg, X: blobs})
	require.NoError(t, err)
	_, err = f.svc.Predict(ctx, f.user, data.ID, blobs)
	require.NoError(t, err)
	require.Contains(t, f.cache.m, data.ID.String())

	err = f.svc.Delete(ctx, seedUser(t, f.st), data.ID)
	assert.True(t, xerrors.IsType(err, xerrors.ErrNotFound))

	require.NoError(t, f.svc.Delete(ctx, f.user, data.ID))
	assert.NotContains(t, f.cache.m, data.ID.String())
	left, err := f.st.Kmeans().ListCentroids(ctx, data.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = f.svc.Predict(ctx, f.user, data.ID, blobs)
	assert.True(t, xerrors.IsType(err, xerrors.ErrNotFound))
}

func TestFitFailureMarksData(t *testing.T) {
	ctx := context.Background()
	f := newKmeansFixture(t, config.KmeansConfig{})
	data := &model.KmeansData{NClusters: 2, ChatID: f.chat, Status: model.FitPending}
	require.NoError(t, f.st.Kmeans().CreateData(ctx, data))

	// 绕过同步校验直接运行，模拟训练阶段失败
	f.svc.runFit(ctx, data.ID, ml.DefaultConfig(2), [][]float64{{1}})

	got, err := f.svc.Get(ctx, f.user, data.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FitFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	_, err = f.svc.Predict(ctx, f.user, data.ID, blobs)
	var xe *xerrors.Error
	require.True(t, errors.As(err, &xe))
	assert.ErrorIs(t, err, xerrors.ErrNotFitted)
	assert.Contains(t, xe.Detail, "last fit failed")
}

// flakyKmeans 前 failures 次 CompleteFit 返回内部错误。
type flakyKmeans struct {
	repository.KmeansRepository
	failures int
	calls    int
}

func (f *flakyKmeans) CompleteFit(ctx context.Context, dataID uuid.UUID, c *model.KmeansCentroid) error {
	f.calls++
	if f.calls <= f.failures {
		return xerrors.Internal("connection reset", errors.New("io"))
	}
	return f.KmeansRepository.CompleteFit(ctx, dataID, c)
}

func TestFitStoreRetried(t *testing.T) {
	ctx := context.Background()
	for name, tc := range map[string]struct {
		failures int
		want     model.FitStatus
	}{
		"recovers": {failures: 2, want: model.FitDone},
		"gives up": {failures: 5, want: model.FitFailed},
	} {
		t.Run(name, func(t *testing.T) {
			f := newKmeansFixture(t, config.KmeansConfig{})
			repo := &flakyKmeans{KmeansRepository: f.st.Kmeans(), failures: tc.failures}
			f.svc = NewKmeansService(f.st.Chats(), repo, f.pool, f.cache, config.KmeansConfig{}, time.Minute, nil, discard)
			f.svc.persist = retry.Policy{Attempts: 3, Initial: time.Millisecond}

			cfg := ml.DefaultConfig(2)
			cfg.RandomState = seed(1)
			data, err := f.svc.Fit(ctx, f.user, FitRequest{ChatID: f.chat, Config: cfg, X: blobs})
			require.NoError(t, err)

			stored, err := f.svc.Get(ctx, f.user, data.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stored.Status)
			assert.Equal(t, min(tc.failures+1, 3), repo.calls)
		})
	}
}
