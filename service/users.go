// Package service 实现用户、会话与聚类任务的业务逻辑，HTTP 层只做编解码。
package service

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/clusterd/jwt"
	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/security"
	"github.com/wyfcoding/clusterd/validator"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
)

// TokenPair 访问令牌放在响应体，刷新令牌放在 cookie。
type TokenPair struct {
	Access  string
	Refresh string
}

// UserUpdate 局部更新，nil 字段保持不变。
type UserUpdate struct {
	Username *string
	FullName *string
}

type UserService struct {
	users  repository.UserRepository
	tokens *jwt.Manager
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, tokens *jwt.Manager, logger *slog.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, logger: logger}
}

// Signup 创建用户并签发令牌。
func (s *UserService) Signup(ctx context.Context, username, password string) (*model.User, TokenPair, error) {
	if !validator.IsValidUsername(username) {
		return nil, TokenPair{}, xerrors.Unprocessable("Username invalid")
	}
	if !validator.IsValidPassword(password) {
		return nil, TokenPair{}, xerrors.Unprocessable("Password invalid")
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, xerrors.WrapInternal(err, "Error creating user")
	}
	u := &model.User{Username: username, Password: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if xerrors.IsType(err, xerrors.ErrAlreadyExists) {
			return nil, TokenPair{}, xerrors.AlreadyExists("Username already exists")
		}
		return nil, TokenPair{}, err
	}

	pair, err := s.issue(u.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.InfoContext(ctx, "user signed up", "user_id", u.ID.String())
	return u, pair, nil
}

// Login 校验用户名与密码。两种失败返回同一条消息。
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if xerrors.IsType(err, xerrors.ErrNotFound) {
			return nil, TokenPair{}, xerrors.Unauthenticated("Incorrect username or password")
		}
		return nil, TokenPair{}, err
	}
	if !security.CheckPassword(password, u.Password) {
		return nil, TokenPair{}, xerrors.Unauthenticated("Incorrect username or password")
	}
	pair, err := s.issue(u.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh 用刷新令牌换一对新令牌。用户已删除时拒绝。
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, xerrors.Unauthenticated("Refresh token missing")
	}
	id, err := s.tokens.Parse(refreshToken, jwt.Refresh)
	if err != nil {
		return TokenPair{}, xerrors.Unauthenticated("Could not validate credentials").WithDetail("%s", err.Error())
	}
	if _, err := s.users.Get(ctx, id); err != nil {
		if xerrors.IsType(err, xerrors.ErrNotFound) {
			return TokenPair{}, xerrors.Unauthenticated("Could not validate credentials").WithDetail("user no longer exists")
		}
		return TokenPair{}, err
	}
	return s.issue(id)
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "User not found")
	}
	return u, nil
}

// UpdateFull 同时替换用户名与全名。
func (s *UserService) UpdateFull(ctx context.Context, id uuid.UUID, username, fullName string) (*model.User, error) {
	return s.UpdatePartial(ctx, id, UserUpdate{Username: &username, FullName: &fullName})
}

func (s *UserService) UpdatePartial(ctx context.Context, id uuid.UUID, upd UserUpdate) (*model.User, error) {
	fields := map[string]any{}
	if upd.Username != nil {
		if !validator.IsValidUsername(*upd.Username) {
			return nil, xerrors.Unprocessable("Username invalid")
		}
		fields["username"] = *upd.Username
	}
	if upd.FullName != nil {
		if !validator.IsValidFullName(*upd.FullName) {
			return nil, xerrors.Unprocessable("Full name invalid")
		}
		fields["full_name"] = *upd.FullName
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u, fields); err != nil {
		if xerrors.IsType(err, xerrors.ErrAlreadyExists) {
			return nil, xerrors.AlreadyExists("Username already exists")
		}
		return nil, err
	}
	return u, nil
}

// Delete 删除用户，会话与聚类数据由外键级联删除。
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return notFound(err, "User not found")
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String())
	return nil
}

func (s *UserService) issue(id uuid.UUID) (TokenPair, error) {
	access, err := s.tokens.GenerateAccess(id)
	if err != nil {
		return TokenPair{}, xerrors.WrapInternal(err, "failed to sign access token")
	}
	refresh, err := s.tokens.GenerateRefresh(id)
	if err != nil {
		return TokenPair{}, xerrors.WrapInternal(err, "failed to sign refresh token")
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// notFound 统一 NotFound 的对外消息，其他错误原样返回。
func notFound(err error, msg string) error {
	if xerrors.IsType(err, xerrors.ErrNotFound) {
		return xerrors.NotFound(msg)
	}
	return err
}
