package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type userRepositoryInMemory struct {
	store *Store
}

// Create сохраняет пользователя; email сравнивается без учёта регистра.
func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := r.store.emails[key]; taken {
		return domain.ErrEmailTaken
	}
	r.store.users[user.ID] = user
	r.store.emails[key] = user.ID
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	user, ok := r.store.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.emails[emailKey(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.store.users[id], nil
}

func (r *userRepositoryInMemory) Count(_ context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return len(r.store.users), nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
