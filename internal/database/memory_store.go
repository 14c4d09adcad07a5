package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chachabrian/devforum-backend/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps users and OTPs in process memory. It backs the
// "memory" database driver for local runs and the service tests.
// Every operation is serialized on one mutex; a transaction holds it for its
// whole duration and rolls back by restoring a snapshot.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

type memoryData struct {
	users map[string]models.User
	otps  map[string]models.OTP
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memoryData{
			users: make(map[string]models.User),
			otps:  make(map[string]models.OTP),
		},
	}
}

func (s *MemoryStore) Users() UserRepository { return &memoryUsers{s: s} }

func (s *MemoryStore) OTPs() OTPRepository { return &memoryOTPs{s: s} }

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.data.snapshot()
	err := fn(&MemoryStore{mu: s.mu, data: s.data, inTx: true})
	if err != nil {
		s.data.restore(snap)
	}
	return err
}

// lock acquires the store mutex unless the caller already runs inside a
// transaction that holds it.
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (d *memoryData) snapshot() *memoryData {
	cp := &memoryData{
		users: make(map[string]models.User, len(d.users)),
		otps:  make(map[string]models.OTP, len(d.otps)),
	}
	for k, v := range d.users {
		cp.users[k] = v
	}
	for k, v := range d.otps {
		cp.otps[k] = v
	}
	return cp
}

func (d *memoryData) restore(snap *memoryData) {
	d.users = snap.users
	d.otps = snap.otps
}

type memoryUsers struct {
	s *MemoryStore
}

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	defer r.s.lock()()
	d := r.s.data
	for _, u := range d.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.JoinedOn.IsZero() {
		user.JoinedOn = now
	}
	user.UpdatedAt = now
	d.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *memoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.s.lock()()
	d := r.s.data
	for _, u := range d.users {
		if u.Email == email {
			cp := cloneUser(u)
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *memoryUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	defer r.s.lock()()
	d := r.s.data
	u, ok := d.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := cloneUser(u)
	return &cp, nil
}

func (r *memoryUsers) List(_ context.Context) ([]models.User, error) {
	defer r.s.lock()()
	d := r.s.data
	users := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].JoinedOn.After(users[j].JoinedOn)
	})
	return users, nil
}

func (r *memoryUsers) MarkVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) { u.Verified = true })
}

func (r *memoryUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (r *memoryUsers) UpdateProfile(_ context.Context, user *models.User) error {
	return r.update(user.ID, func(u *models.User) {
		u.Name = user.Name
		u.Phone = user.Phone
		u.About = user.About
		u.Tags = append([]string(nil), user.Tags...)
	})
}

func (r *memoryUsers) update(id string, fn func(u *models.User)) error {
	defer r.s.lock()()
	d := r.s.data
	u, ok := d.users[id]
	if !ok {
		return ErrRecordNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	d.users[id] = u
	return nil
}

type memoryOTPs struct {
	s *MemoryStore
}

func (r *memoryOTPs) Create(_ context.Context, otp *models.OTP) error {
	defer r.s.lock()()
	d := r.s.data
	if _, ok := d.users[otp.UserID]; !ok {
		return ErrRecordNotFound
	}
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	now := time.Now()
	otp.CreatedAt = now
	otp.UpdatedAt = now
	stored := *otp
	stored.User = models.User{}
	d.otps[otp.ID] = stored
	return nil
}

func (r *memoryOTPs) FindByID(_ context.Context, id string) (*models.OTP, error) {
	defer r.s.lock()()
	d := r.s.data
	otp, ok := d.otps[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if u, ok := d.users[otp.UserID]; ok {
		otp.User = cloneUser(u)
	}
	return &otp, nil
}

func (r *memoryOTPs) Consume(_ context.Context, id string) error {
	defer r.s.lock()()
	d := r.s.data
	otp, ok := d.otps[id]
	if !ok || otp.Used {
		return ErrNotConsumed
	}
	otp.Used = true
	otp.UpdatedAt = time.Now()
	d.otps[id] = otp
	return nil
}

func cloneUser(u models.User) models.User {
	if u.Tags != nil {
		u.Tags = append([]string(nil), u.Tags...)
	}
	return u
}
