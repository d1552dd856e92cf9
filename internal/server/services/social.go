package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/config"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/relationships"
	"github.com/dmitrijs2005/microblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/microblog/internal/server/validation"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
)

// PostParams is the input of CreatePost.
type PostParams struct {
	Content    string
	PictureKey string
}

// Profile is a user with their social counters.
type Profile struct {
	User       *models.User
	Following  int
	Followers  int
	Microposts int
}

// SocialService owns the follow graph, microposts and the feed.
type SocialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	deps

	micropostMaxLength int
	sanitizer          *bluemonday.Policy
}

// NewSocialService constructs a SocialService using repositories and server config.
func NewSocialService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *SocialService {
	return &SocialService{
		db:                 db,
		repomanager:        m,
		deps:               buildDeps(opts),
		micropostMaxLength: cfg.MicropostMaxLength,
		sanitizer:          bluemonday.StrictPolicy(),
	}
}

// Follow adds the edge follower -> followed. Following someone twice keeps a
// single edge; following yourself is a validation error.
func (s *SocialService) Follow(ctx context.Context, followerID, followedID string) error {
	if followerID == followedID {
		return validation.Single("followed_id", validation.MsgSelfFollow)
	}

	created, err := s.repomanager.Relationships(s.db).Follow(ctx, followerID, followedID)
	if err != nil {
		if errors.Is(err, relationships.ErrSelfFollow) {
			return validation.Single("followed_id", validation.MsgSelfFollow)
		}
		return fmt.Errorf("error following user: %w", err)
	}
	if created {
		s.log.Debug(ctx, "followed", "follower_id", followerID, "followed_id", followedID)
	}
	return nil
}

// Unfollow removes the edge. Unfollowing someone not followed is a no-op.
func (s *SocialService) Unfollow(ctx context.Context, followerID, followedID string) error {
	if err := s.repomanager.Relationships(s.db).Unfollow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("error unfollowing user: %w", err)
	}
	return nil
}

// IsFollowing reports whether follower follows followed.
func (s *SocialService) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	ok, err := s.repomanager.Relationships(s.db).Exists(ctx, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("error checking relationship: %w", err)
	}
	return ok, nil
}

// Feed returns the user's posts and the posts of everyone they follow,
// newest first.
func (s *SocialService) Feed(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	posts, err := s.repomanager.Microposts(s.db).Feed(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("error loading feed: %w", err)
	}
	return posts, nil
}

// Following lists the users userID follows.
func (s *SocialService) Following(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	list, err := s.repomanager.Relationships(s.db).Following(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("error listing following: %w", err)
	}
	return list, nil
}

// Followers lists the users following userID.
func (s *SocialService) Followers(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	list, err := s.repomanager.Relationships(s.db).Followers(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("error listing followers: %w", err)
	}
	return list, nil
}

// Profile loads a user with follow and post counts.
func (s *SocialService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	following, followers, err := s.repomanager.Relationships(s.db).Counts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting relationships: %w", err)
	}
	posts, err := s.repomanager.Microposts(s.db).CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting microposts: %w", err)
	}
	return &Profile{User: user, Following: following, Followers: followers, Microposts: posts}, nil
}

// CreatePost stores a micropost. Markup is stripped from the content before
// it is validated. A picture key must come from a presigned upload issued to
// the same user.
func (s *SocialService) CreatePost(ctx context.Context, userID string, params PostParams) (*models.Micropost, error) {
	params.Content = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(params.Content)))

	if err := validation.Run(params,
		func(p PostParams, errs *validation.Errors) {
			if validation.Presence(errs, "content", p.Content) {
				validation.MaxLength(errs, "content", p.Content, s.micropostMaxLength)
			}
		},
		func(p PostParams, errs *validation.Errors) {
			if p.PictureKey != "" && !strings.HasPrefix(p.PictureKey, PictureKeyPrefix(userID)) {
				errs.Add("picture_key", validation.MsgInvalid)
			}
		},
	); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	post := &models.Micropost{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:     userID,
		Content:    params.Content,
		PictureKey: params.PictureKey,
		CreatedAt:  now,
	}

	if err := s.repomanager.Microposts(s.db).Create(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating micropost: %w", err)
	}
	return post, nil
}

// DeletePost removes a micropost. Only its author or an admin may do so.
func (s *SocialService) DeletePost(ctx context.Context, actorID, postID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		posts := s.repomanager.Microposts(tx)

		post, err := posts.GetByID(ctx, postID)
		if err != nil {
			return fmt.Errorf("error loading micropost: %w", err)
		}

		if post.UserID != actorID {
			actor, err := s.repomanager.Users(tx).GetByID(ctx, actorID)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrorUnauthorized
				}
				return fmt.Errorf("error loading user: %w", err)
			}
			if !actor.IsAdmin() {
				return common.ErrorForbidden
			}
		}

		if err := posts.Delete(ctx, postID); err != nil {
			return fmt.Errorf("error deleting micropost: %w", err)
		}
		return nil
	})
}

// GetPost loads one micropost.
func (s *SocialService) GetPost(ctx context.Context, postID string) (*models.Micropost, error) {
	p, err := s.repomanager.Microposts(s.db).GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error loading micropost: %w", err)
	}
	return p, nil
}

// PostsByUser lists a user's microposts, newest first.
func (s *SocialService) PostsByUser(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	posts, err := s.repomanager.Microposts(s.db).ListByUser(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("error listing microposts: %w", err)
	}
	return posts, nil
}
