// Package memrepo 提供仓储接口的内存实现，用于测试和不依赖数据库的本地运行。
// 删除用户、会话或任务时按外键关系级联删除。
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
)

// Store 三个仓储共享的内存数据。
type Store struct {
	mu        sync.Mutex
	last      time.Time
	users     map[uuid.UUID]*model.User
	chats     map[uuid.UUID]*model.Chat
	data      map[uuid.UUID]*model.KmeansData
	centroids []*model.KmeansCentroid
}

func New() *Store {
	return &Store{
		users: map[uuid.UUID]*model.User{},
		chats: map[uuid.UUID]*model.Chat{},
		data:  map[uuid.UUID]*model.KmeansData{},
	}
}

func (s *Store) Users() repository.UserRepository { return users{s} }

func (s *Store) Chats() repository.ChatRepository { return chats{s} }

func (s *Store) Kmeans() repository.KmeansRepository { return kmeans{s} }

// stamp 分配主键与严格递增的创建时间，保证倒序列表稳定。
func (s *Store) stamp(b *model.Base) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	b.CreatedAt, b.UpdatedAt = now, now
}

type users struct{ *Store }

func (s users) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Username == u.Username {
			return xerrors.AlreadyExists("User already exists")
		}
	}
	s.stamp(&u.Base)
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s users) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, xerrors.NotFound("User not found")
	}
	cp := *u
	return &cp, nil
}

func (s users) GetByUsername(_ context.Context, name string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, xerrors.NotFound("User not found")
}

func (s users) Update(_ context.Context, u *model.User, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := fields["username"].(string); ok {
		for id, other := range s.users {
			if id != u.ID && other.Username == name {
				return xerrors.AlreadyExists("User already exists")
			}
		}
		u.Username = name
	}
	if full, ok := fields["full_name"].(string); ok {
		u.FullName = &full
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s users) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return xerrors.NotFound("User not found")
	}
	delete(s.users, id)
	for cid, c := range s.chats {
		if c.UserID == id {
			s.deleteChatLocked(cid)
		}
	}
	return nil
}

func (s *Store) deleteChatLocked(id uuid.UUID) {
	delete(s.chats, id)
	for did, d := range s.data {
		if d.ChatID == id {
			s.deleteDataLocked(did)
		}
	}
}

func (s *Store) deleteDataLocked(id uuid.UUID) {
	delete(s.data, id)
	kept := s.centroids[:0]
	for _, c := range s.centroids {
		if c.KmeansDataID != id {
			kept = append(kept, c)
		}
	}
	s.centroids = kept
}

type chats struct{ *Store }

func (s chats) Create(_ context.Context, c *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.UserID]; !ok {
		return xerrors.NotFound("referenced entity not found")
	}
	s.stamp(&c.Base)
	cp := *c
	s.chats[c.ID] = &cp
	return nil
}

func (s chats) Get(_ context.Context, userID, id uuid.UUID) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok || c.UserID != userID {
		return nil, xerrors.NotFound("Chat not found")
	}
	cp := *c
	return &cp, nil
}

func (s chats) List(_ context.Context, userID uuid.UUID, skip, limit int) ([]*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, skip, limit), nil
}

func (s chats) Update(_ context.Context, c *model.Chat, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := fields["title"].(string); ok {
		c.Title = t
	}
	if d, ok := fields["description"].(string); ok {
		c.Description = &d
	}
	cp := *c
	s.chats[c.ID] = &cp
	return nil
}

func (s chats) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok || c.UserID != userID {
		return xerrors.NotFound("Chat not found")
	}
	s.deleteChatLocked(id)
	return nil
}

type kmeans struct{ *Store }

func (s kmeans) owned(userID uuid.UUID, d *model.KmeansData) bool {
	c, ok := s.chats[d.ChatID]
	return ok && c.UserID == userID
}

func (s kmeans) CreateData(_ context.Context, d *model.KmeansData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[d.ChatID]; !ok {
		return xerrors.NotFound("referenced entity not found")
	}
	s.stamp(&d.Base)
	cp := *d
	s.data[d.ID] = &cp
	return nil
}

func (s kmeans) GetData(_ context.Context, userID, id uuid.UUID) (*model.KmeansData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[id]
	if !ok || !s.owned(userID, d) {
		return nil, xerrors.NotFound("Kmeans_data not found")
	}
	cp := *d
	return &cp, nil
}

func (s kmeans) ListData(_ context.Context, userID uuid.UUID, skip, limit int) ([]*model.KmeansData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.KmeansData
	for _, d := range s.data {
		if s.owned(userID, d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, skip, limit), nil
}

func (s kmeans) DeleteData(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[id]
	if !ok || !s.owned(userID, d) {
		return xerrors.NotFound("Kmeans_data not found")
	}
	s.deleteDataLocked(id)
	return nil
}

func (s kmeans) CompleteFit(_ context.Context, dataID uuid.UUID, c *model.KmeansCentroid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[dataID]
	if !ok {
		return xerrors.NotFound("referenced entity not found")
	}
	c.KmeansDataID = dataID
	s.stamp(&c.Base)
	cp := *c
	s.centroids = append(s.centroids, &cp)
	d.Status, d.Error = model.FitDone, ""
	return nil
}

func (s kmeans) FailFit(_ context.Context, dataID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data[dataID]; ok {
		d.Status, d.Error = model.FitFailed, reason
	}
	return nil
}

func (s kmeans) ListCentroids(_ context.Context, dataID uuid.UUID, skip, limit int) ([]*model.KmeansCentroid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.KmeansCentroid
	for i := len(s.centroids) - 1; i >= 0; i-- {
		if s.centroids[i].KmeansDataID == dataID {
			cp := *s.centroids[i]
			out = append(out, &cp)
		}
	}
	return page(out, skip, limit), nil
}

func (s kmeans) LatestCentroid(ctx context.Context, dataID uuid.UUID) (*model.KmeansCentroid, error) {
	list, _ := s.ListCentroids(ctx, dataID, 0, 1)
	if len(list) == 0 {
		return nil, xerrors.NotFound("Kmeans_centroid not found")
	}
	return list[0], nil
}

func page[T any](in []T, skip, limit int) []T {
	if skip >= len(in) {
		return nil
	}
	in = in[skip:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

