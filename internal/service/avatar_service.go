package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"

	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/ids"
	"phaze17/dashboard/internal/media"
	"phaze17/dashboard/internal/models"
)

// MaxAvatarBytes caps an avatar upload.
const MaxAvatarBytes = 2 << 20

var (
	ErrEmptyAvatar    = errors.New("empty file")
	ErrAvatarTooLarge = errors.New("avatar exceeds 2 MiB")
	ErrTypeMismatch   = errors.New("declared content type does not match file")
)

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	URL(key string) string
	KeyFromURL(raw string) (string, bool)
}

type avatarUsers interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateAvatar(ctx context.Context, id string, avatarURL string) error
}

type AvatarService struct {
	users    avatarUsers
	store    objectStore
	notifier updateNotifier
	log      zerolog.Logger
}

func NewAvatarService(users avatarUsers, store objectStore, notifier updateNotifier, log zerolog.Logger) *AvatarService {
	return &AvatarService{
		users:    users,
		store:    store,
		notifier: notifier,
		log:      log.With().Str("component", "avatar_service").Logger(),
	}
}

// Upload validates an image, stores it and points the user's avatar_url at
// it. The previous avatar object is removed best effort.
func (s *AvatarService) Upload(ctx context.Context, userID string, file multipart.File, header *multipart.FileHeader) (models.User, error) {
	if file == nil || header == nil {
		return models.User{}, ErrEmptyAvatar
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		return models.User{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return models.User{}, ErrEmptyAvatar
	}
	if len(data) > MaxAvatarBytes {
		return models.User{}, ErrAvatarTooLarge
	}

	head := data
	if len(head) > media.SniffLen {
		head = head[:media.SniffLen]
	}
	kind, err := media.Detect(head)
	if err != nil {
		return models.User{}, err
	}

	declared := media.DeclaredType(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" && declared != kind.MIME {
		return models.User{}, fmt.Errorf("%w: declared %s, actual %s", ErrTypeMismatch, declared, kind.MIME)
	}

	if kind.Format == media.FormatSVG {
		data, err = media.SanitizeSVG(data)
		if err != nil {
			return models.User{}, fmt.Errorf("sanitize svg: %w", err)
		}
	}

	key := AvatarKey(userID, ids.New(), kind.Format)
	if err := s.store.Put(ctx, key, data, kind.MIME); err != nil {
		return models.User{}, err
	}

	url := s.store.URL(key)
	if err := s.users.UpdateAvatar(ctx, userID, url); err != nil {
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("key", key).Msg("remove unreferenced avatar failed")
		}
		return models.User{}, err
	}

	if current.AvatarURL != nil {
		if oldKey, ok := s.store.KeyFromURL(*current.AvatarURL); ok {
			if err := s.store.Remove(ctx, oldKey); err != nil {
				s.log.Warn().Err(err).Str("key", oldKey).Msg("remove previous avatar failed")
			}
		}
	}

	s.notifier.NotifyUserUpdated(ctx, userID)
	s.log.Info().Str("user_id", userID).Str("key", key).Int("bytes", len(data)).Msg("avatar stored")

	current.AvatarURL = &url
	return current, nil
}

func AvatarKey(userID, objectID string, format media.Format) string {
	return path.Join("avatars", userID, objectID+"."+string(format))
}
