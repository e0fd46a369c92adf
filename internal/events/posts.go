package events

import (
	"context"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type notifyingPosts struct {
	repository.PostRepository
	n Notifier
}

// WrapPosts returns a PostRepository that notifies n after every successful
// write.
func WrapPosts(posts repository.PostRepository, n Notifier) repository.PostRepository {
	return &notifyingPosts{PostRepository: posts, n: n}
}

func (r *notifyingPosts) Create(ctx context.Context, post *models.Post) (string, error) {
	id, err := r.PostRepository.Create(ctx, post)
	if err == nil {
		r.n.Notify(ctx, post.UserID)
	}
	return id, err
}

func (r *notifyingPosts) UpdateContent(ctx context.Context, post *models.Post) error {
	err := r.PostRepository.UpdateContent(ctx, post)
	if err == nil {
		r.n.Notify(ctx, post.UserID)
	}
	return err
}

func (r *notifyingPosts) CompareAndSwap(ctx context.Context, post *models.Post, expected models.PostStatus) error {
	err := r.PostRepository.CompareAndSwap(ctx, post, expected)
	if err == nil {
		r.n.Notify(ctx, post.UserID)
	}
	return err
}

func (r *notifyingPosts) Claim(ctx context.Context, id string, from models.PostStatus, version int64, staleBefore time.Time) (*models.Post, error) {
	post, err := r.PostRepository.Claim(ctx, id, from, version, staleBefore)
	if err == nil {
		r.n.Notify(ctx, post.UserID)
	}
	return post, err
}

func (r *notifyingPosts) SetPublishResult(ctx context.Context, id string, platform models.Platform, result models.PublishResult) error {
	if err := r.PostRepository.SetPublishResult(ctx, id, platform, result); err != nil {
		return err
	}
	r.notifyOwner(ctx, id)
	return nil
}

func (r *notifyingPosts) Remove(ctx context.Context, id string) error {
	post, err := r.PostRepository.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.PostRepository.Remove(ctx, id); err != nil {
		return err
	}
	r.n.Notify(ctx, post.UserID)
	return nil
}

func (r *notifyingPosts) notifyOwner(ctx context.Context, id string) {
	post, err := r.PostRepository.GetByID(ctx, id)
	if err != nil {
		return
	}
	r.n.Notify(ctx, post.UserID)
}
