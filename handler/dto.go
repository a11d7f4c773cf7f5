package handler

import (
	"math"
	"time"

	"github.com/wyfcoding/clusterd/algorithm/ml"
	"github.com/wyfcoding/clusterd/algorithm/preprocess"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
)

// defaultRandomState 未给出 random_state 时使用的种子，显式 null 表示不固定种子。
const defaultRandomState int64 = 1

type credentials struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userUpdateFull struct {
	Username string `json:"username"  binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

type userUpdatePartial struct {
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
}

type userRead struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName *string   `json:"full_name"`
}

func toUserRead(u *model.User) userRead {
	return userRead{ID: u.ID, Username: u.Username, FullName: u.FullName}
}

type chatCreate struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
}

type chatUpdateFull struct {
	Title       string `json:"title"       binding:"required"`
	Description string `json:"description" binding:"required"`
}

type chatUpdatePartial struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type chatRead struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func toChatRead(c *model.Chat) chatRead {
	return chatRead{ID: c.ID, Title: c.Title, Description: c.Description, CreatedAt: c.CreatedAt}
}

type kmeansParams struct {
	NClusters   int             `json:"n_clusters" binding:"required"`
	MaxIter     *int            `json:"max_iter"`
	Tol         *float64        `json:"tol"`
	Init        string          `json:"init"`
	RandomState Optional[int64] `json:"random_state"`
}

type pcaParams struct {
	NComponents *int `json:"n_components"`
	// SVD 分解是确定的，random_state 仅为兼容旧请求而接受。
	RandomState *int64 `json:"random_state"`
}

type fitRequest struct {
	Kmeans        *kmeansParams    `json:"kmeans"  binding:"required"`
	Normalization Optional[string] `json:"normalization"`
	PCA           *pcaParams       `json:"pca"`
	Description   *string          `json:"description"`
	ChatID        uuid.UUID        `json:"chat_id" binding:"required"`
	X             [][]*float64     `json:"X"       binding:"required"`
}

const defaultPCAComponents = 2

// config 把请求转换为聚类参数。缺失字段交给默认值，显式给出的非法值原样保留以便校验报告。
func (r *fitRequest) config() (ml.Config, error) {
	p := r.Kmeans
	cfg := ml.Config{NClusters: p.NClusters, Init: ml.InitStrategy(p.Init)}
	if p.MaxIter != nil {
		if *p.MaxIter <= 0 {
			return cfg, xerrors.Configuration("max_iter must be > 0, got %d", *p.MaxIter)
		}
		cfg.MaxIter = *p.MaxIter
	}
	if p.Tol != nil {
		if *p.Tol <= 0 || *p.Tol >= 1 {
			return cfg, xerrors.Configuration("tol must be in (0, 1), got %g", *p.Tol)
		}
		cfg.Tol = *p.Tol
	}
	switch {
	case !p.RandomState.Set:
		seed := defaultRandomState
		cfg.RandomState = &seed
	case p.RandomState.Value != nil:
		seed := *p.RandomState.Value
		cfg.RandomState = &seed
	}

	switch {
	case !r.Normalization.Set:
		cfg.Normalization = preprocess.ZScore
	case r.Normalization.Value == nil:
		cfg.Normalization = preprocess.None
	default:
		cfg.Normalization = preprocess.Normalization(*r.Normalization.Value)
	}

	if r.PCA != nil {
		cfg.PCANComponents = defaultPCAComponents
		if r.PCA.NComponents != nil {
			if *r.PCA.NComponents <= 0 {
				return cfg, xerrors.Configuration("pca n_components must be >= 1, got %d", *r.PCA.NComponents)
			}
			cfg.PCANComponents = *r.PCA.NComponents
		}
	}
	return cfg, nil
}

type predictRequest struct {
	X [][]*float64 `json:"X" binding:"required"`
}

type predictResponse struct {
	KmeansDataID uuid.UUID `json:"kmeans_data_id"`
	Labels       []int     `json:"labels"`
}

// matrix null 元素转为 NaN，由插补阶段处理。
func matrix(rows [][]*float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = *v
		}
	}
	return out
}

type fitAccepted struct {
	Status       string    `json:"status"`
	KmeansDataID uuid.UUID `json:"kmeans_data_id"`
}

type kmeansDataRead struct {
	ID            uuid.UUID           `json:"id"`
	NClusters     int                 `json:"n_clusters"`
	Preprocessing model.Preprocessing `json:"preprocessing"`
	Description   *string             `json:"description"`
	ChatID        uuid.UUID           `json:"chat_id"`
	Status        model.FitStatus     `json:"status"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toKmeansDataRead(d *model.KmeansData) kmeansDataRead {
	return kmeansDataRead{
		ID:            d.ID,
		NClusters:     d.NClusters,
		Preprocessing: d.Preprocessing,
		Description:   d.Description,
		ChatID:        d.ChatID,
		Status:        d.Status,
		Error:         d.Error,
		CreatedAt:     d.CreatedAt,
	}
}

type kmeansCentroidRead struct {
	ID         uuid.UUID       `json:"id"`
	Values     [][]float64     `json:"values"`
	Sizes      []int           `json:"cluster_sizes"`
	Iterations int             `json:"iterations"`
	Converged  bool            `json:"converged"`
	Inertia    float64         `json:"inertia"`
	FitAt      time.Time       `json:"fit_at"`
	FitTime    float64         `json:"fit_time"`
	KmeansData *kmeansDataRead `json:"kmeans_data,omitempty"`
}

func toCentroidRead(c *model.KmeansCentroid) kmeansCentroidRead {
	out := kmeansCentroidRead{
		ID:         c.ID,
		Values:     c.Values,
		Sizes:      c.Sizes,
		Iterations: c.Iterations,
		Converged:  c.Converged,
		Inertia:    c.Inertia,
		FitAt:      c.FitAt,
		FitTime:    c.FitTime,
	}
	if c.KmeansData != nil {
		d := toKmeansDataRead(c.KmeansData)
		out.KmeansData = &d
	}
	return out
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
