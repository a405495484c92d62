package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

var errNotAuthor = fmt.Errorf("%w: review belongs to another user", domain.ErrForbidden)

// Input — данные отзыва от пользователя.
type Input struct {
	ProductID string
	Rating    int
	Comment   string
}

// Invalidator сбрасывает кэш каталога после пересчёта рейтинга.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service управляет отзывами. Каждая запись пересчитывает рейтинг и число отзывов
// товара в той же транзакции.
type Service struct {
	tx      domain.TxManager
	reviews domain.ReviewRepository
	cache   Invalidator
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт сервис отзывов. cache может быть nil.
func NewService(tx domain.TxManager, reviews domain.ReviewRepository, cache Invalidator, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "reviews")
	}
	return &Service{
		tx:      tx,
		reviews: reviews,
		cache:   cache,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListForProduct возвращает отзывы товара, новые первыми.
func (s *Service) ListForProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	return s.reviews.ListByProduct(ctx, productID)
}

// Create оставляет отзыв от имени identity. Повторный отзыв на тот же товар отклоняется с Conflict.
func (s *Service) Create(ctx context.Context, identity domain.Identity, in Input) (domain.Review, error) {
	now := s.now()
	review := domain.Review{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		ProductID: strings.TrimSpace(in.ProductID),
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if review.ProductID == "" {
		return domain.Review{}, domain.ErrProductIDRequired
	}
	if errs := review.Validate(); len(errs) > 0 {
		return domain.Review{}, errors.Join(errs...)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		user, err := tx.GetUser(ctx, identity.UserID)
		if err != nil {
			return err
		}
		review.UserName = user.Name

		if err := lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		if err := tx.InsertReview(ctx, review); err != nil {
			return err
		}
		return recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return domain.Review{}, err
	}

	s.invalidate(ctx)
	s.logger.WithFields(log.Fields{
		"review_id":  review.ID,
		"product_id": review.ProductID,
		"rating":     review.Rating,
	}).Info("review created")
	return review, nil
}

// Update меняет оценку и комментарий. Править отзыв может только его автор.
func (s *Service) Update(ctx context.Context, identity domain.Identity, id string, in Input) (domain.Review, error) {
	var review domain.Review
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.GetReview(ctx, id)
		if err != nil {
			return err
		}
		if current.UserID != identity.UserID {
			return errNotAuthor
		}

		review = current
		review.Rating = in.Rating
		review.Comment = strings.TrimSpace(in.Comment)
		review.UpdatedAt = s.now()
		if errs := review.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		if err := tx.UpdateReview(ctx, review); err != nil {
			return err
		}
		if user, err := tx.GetUser(ctx, review.UserID); err == nil {
			review.UserName = user.Name
		}
		return recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return domain.Review{}, err
	}

	s.invalidate(ctx)
	return review, nil
}

// Delete удаляет отзыв. Автор удаляет свой отзыв, администратор любой.
func (s *Service) Delete(ctx context.Context, identity domain.Identity, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		review, err := tx.GetReview(ctx, id)
		if err != nil {
			return err
		}
		if !identity.CanAccess(review.UserID) {
			return errNotAuthor
		}
		if err := lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		if err := tx.DeleteReview(ctx, id); err != nil {
			return err
		}
		return recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.WithField("review_id", id).Info("review deleted")
	return nil
}

// lockProduct блокирует строку товара, чтобы конкурентные пересчёты рейтинга шли по очереди.
func lockProduct(ctx context.Context, tx domain.Tx, productID string) error {
	locked, err := tx.LockProducts(ctx, []string{productID})
	if err != nil {
		return err
	}
	if _, ok := locked[productID]; !ok {
		return fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
	}
	return nil
}

func recompute(ctx context.Context, tx domain.Tx, productID string) error {
	summary, err := tx.SummarizeReviews(ctx, productID)
	if err != nil {
		return err
	}
	return tx.UpdateRating(ctx, productID, summary.Rating(), summary.Count)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate catalog cache")
	}
}
