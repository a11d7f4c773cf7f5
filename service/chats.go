package service

import (
	"context"

	"github.com/wyfcoding/clusterd/model"
	"github.com/wyfcoding/clusterd/pagination"
	"github.com/wyfcoding/clusterd/repository"
	"github.com/wyfcoding/clusterd/validator"
	"github.com/wyfcoding/clusterd/xerrors"

	"github.com/google/uuid"
)

const maxTitleLen = 256

// ChatUpdate 局部更新，nil 字段保持不变。
type ChatUpdate struct {
	Title       *string
	Description *string
}

type ChatService struct {
	chats repository.ChatRepository
}

func NewChatService(chats repository.ChatRepository) *ChatService {
	return &ChatService{chats: chats}
}

func (s *ChatService) Create(ctx context.Context, userID uuid.UUID, title string, description *string) (*model.Chat, error) {
	if !validator.IsValidLength(title, 1, maxTitleLen) {
		return nil, xerrors.Unprocessable("Title must be 1 to 256 characters")
	}
	c := &model.Chat{Title: title, Description: description, UserID: userID}
	if err := s.chats.Create(ctx, c); err != nil {
		return nil, notFound(err, "User not found")
	}
	return c, nil
}

func (s *ChatService) Get(ctx context.Context, userID, id uuid.UUID) (*model.Chat, error) {
	c, err := s.chats.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, "Chat not found")
	}
	return c, nil
}

// List 新建的在前。
func (s *ChatService) List(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]*model.Chat, error) {
	page = page.Normalize()
	return s.chats.List(ctx, userID, page.Skip, page.Limit)
}

// UpdateFull 标题与描述都必须非空。
func (s *ChatService) UpdateFull(ctx context.Context, userID, id uuid.UUID, title, description string) (*model.Chat, error) {
	if validator.IsEmpty(description) {
		return nil, xerrors.Unprocessable("Description must not be empty")
	}
	return s.UpdatePartial(ctx, userID, id, ChatUpdate{Title: &title, Description: &description})
}

func (s *ChatService) UpdatePartial(ctx context.Context, userID, id uuid.UUID, upd ChatUpdate) (*model.Chat, error) {
	fields := map[string]any{}
	if upd.Title != nil {
		if !validator.IsValidLength(*upd.Title, 1, maxTitleLen) {
			return nil, xerrors.Unprocessable("Title must be 1 to 256 characters")
		}
		fields["title"] = *upd.Title
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}

	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.chats.Update(ctx, c, fields); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChatService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return notFound(s.chats.Delete(ctx, userID, id), "Chat not found")
}
