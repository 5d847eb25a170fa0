// Package address manages customer shipping and billing addresses.
package address

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/teacheasy/pkg/validation"
)

// ErrNotFound is returned when an address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a saved customer address. At most one address per user is the
// default.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id" validate:"required"`
	Label      string    `json:"label" validate:"max=50"`
	FullName   string    `json:"full_name" validate:"required,max=100"`
	Phone      string    `json:"phone" validate:"required,min=6,max=20"`
	Email      string    `json:"email" validate:"omitempty,email"`
	Line1      string    `json:"line1" validate:"required,max=200"`
	Line2      string    `json:"line2" validate:"max=200"`
	Division   string    `json:"division" validate:"required"`
	District   string    `json:"district" validate:"required"`
	City       string    `json:"city" validate:"required"`
	PostalCode string    `json:"postal_code" validate:"required,max=10"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot copies the address into the value stored on orders.
func (a *Address) Snapshot() Snapshot {
	return Snapshot{
		Label:      a.Label,
		FullName:   a.FullName,
		Phone:      a.Phone,
		Email:      a.Email,
		Line1:      a.Line1,
		Line2:      a.Line2,
		Division:   a.Division,
		District:   a.District,
		City:       a.City,
		PostalCode: a.PostalCode,
	}
}

// Snapshot is an address frozen at order time. Later edits to the saved
// address do not affect it.
type Snapshot struct {
	Label      string `json:"label,omitempty"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Division   string `json:"division"`
	District   string `json:"district"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// IsZero reports whether the snapshot carries no address.
func (s Snapshot) IsZero() bool {
	return s.FullName == "" && s.Line1 == "" && s.City == ""
}

// Repository defines persistence operations for addresses. Create, Update
// and SetDefault clear the previous default of the same user in the same
// transaction when the saved address is the default.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Address, error)
	Get(ctx context.Context, userID, id string) (*Address, error)
	Count(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, a *Address) error
	Update(ctx context.Context, a *Address) error
	Delete(ctx context.Context, userID, id string) error
	SetDefault(ctx context.Context, userID, id string) error
}

// Service implements the address book.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an address Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns the user's addresses, default first.
func (s *Service) List(ctx context.Context, userID string) ([]Address, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one of the user's addresses.
func (s *Service) Get(ctx context.Context, userID, id string) (*Address, error) {
	return s.repo.Get(ctx, userID, id)
}

// Save creates the address when it has no ID and updates it otherwise.
// The first address of a user always becomes the default, and the default
// flag cannot be cleared by an update.
func (s *Service) Save(ctx context.Context, a *Address) error {
	if err := validation.Struct(a); err != nil {
		return err
	}
	now := s.now()
	a.UpdatedAt = now

	if a.ID == "" {
		n, err := s.repo.Count(ctx, a.UserID)
		if err != nil {
			return errors.Wrap(err, "count addresses")
		}
		if n == 0 {
			a.IsDefault = true
		}
		a.ID = uuid.NewString()
		a.CreatedAt = now
		return s.repo.Create(ctx, a)
	}

	existing, err := s.repo.Get(ctx, a.UserID, a.ID)
	if err != nil {
		return err
	}
	if existing.IsDefault {
		a.IsDefault = true
	}
	a.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, a)
}

// SetDefault marks the address as the user's default.
func (s *Service) SetDefault(ctx context.Context, userID, id string) error {
	return s.repo.SetDefault(ctx, userID, id)
}

// Delete removes an address. When the default is removed the most recently
// updated remaining address is promoted.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	if !existing.IsDefault {
		return nil
	}

	rest, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "list remaining addresses")
	}
	if len(rest) == 0 {
		return nil
	}
	return s.repo.SetDefault(ctx, userID, rest[0].ID)
}
