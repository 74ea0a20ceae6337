package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetchquest/backend/internal/metrics"
	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
	"github.com/fetchquest/backend/internal/session"
)

// DefaultPlatformFee is the flat fee deducted from every earnings credit.
const DefaultPlatformFee = models.Cents(250)

// ErrProfileNotFound is returned by a ProfileStore for an unknown user.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore reads and replaces whole profile documents.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	ReplaceProfile(ctx context.Context, p *models.Profile) error
}

// History stores the earnings history shown to users.
type History interface {
	CreateEntry(ctx context.Context, e *models.CreditEntry) error
	ListByUserID(ctx context.Context, userID string) ([]*models.CreditEntry, error)
}

// Service is the reward ledger of the active user (see session.UserID).
// Mutations with no active user, or no stored profile for it, are silent
// no-ops.
type Service interface {
	AddPoints(ctx context.Context, amount int) error
	CompleteTask(ctx context.Context) error
	RequestTask(ctx context.Context) error
	AddEarnings(ctx context.Context, amount models.Cents, pending bool) error
	SettleReward(ctx context.Context, points int, amount models.Cents) error
	ReleasePending(ctx context.Context, amount models.Cents) error
	AddPaymentMethod(ctx context.Context, method models.PaymentMethod) (*models.PaymentMethod, error)
	RemovePaymentMethod(ctx context.Context, id string) error
	SetDefaultPaymentMethod(ctx context.Context, id string) error
	GetDefaultPaymentMethod(ctx context.Context) (*models.PaymentMethod, error)
	Profile(ctx context.Context) (*models.Profile, error)
	History(ctx context.Context) ([]*models.CreditEntry, error)
}

type service struct {
	store   ProfileStore
	history History
	fee     models.Cents
	log     *slog.Logger
	now     func() time.Time

	// mu serialises read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewService returns a ledger writing through store. history may be nil.
func NewService(store ProfileStore, history History, fee models.Cents, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, history: history, fee: fee, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) AddPoints(ctx context.Context, amount int) error {
	return s.update(ctx, "add_points", func(p *models.Profile) {
		p.Points += amount
	})
}

func (s *service) CompleteTask(ctx context.Context) error {
	return s.update(ctx, "complete_task", func(p *models.Profile) {
		p.TasksCompleted++
	})
}

func (s *service) RequestTask(ctx context.Context) error {
	return s.update(ctx, "request_task", func(p *models.Profile) {
		p.TasksRequested++
	})
}

// AddEarnings credits amount minus the platform fee. Pending credits go to
// PendingEarnings; a confirmed credit moves the same net amount from
// PendingEarnings to Earnings.
func (s *service) AddEarnings(ctx context.Context, amount models.Cents, pending bool) error {
	net := amount - s.fee
	var userID string
	err := s.update(ctx, "add_earnings", func(p *models.Profile) {
		userID = p.ID
		if pending {
			p.PendingEarnings += net
			return
		}
		p.Earnings += net
		p.PendingEarnings -= net
	})
	if err != nil || userID == "" {
		return err
	}
	entryType := models.CreditEntryTaskEarning
	if pending {
		entryType = models.CreditEntryPendingEarning
	}
	s.record(ctx, userID, entryType, net)
	s.record(ctx, userID, models.CreditEntryPlatformFee, s.fee)
	return nil
}

// SettleReward applies an approved quest to its assignee in a single write:
// one more completed task, the quest's points, and the confirmed earnings.
func (s *service) SettleReward(ctx context.Context, points int, amount models.Cents) error {
	net := amount - s.fee
	var userID string
	err := s.update(ctx, "settle_reward", func(p *models.Profile) {
		userID = p.ID
		p.TasksCompleted++
		p.Points += points
		p.Earnings += net
		p.PendingEarnings -= net
	})
	if err != nil || userID == "" {
		return err
	}
	s.record(ctx, userID, models.CreditEntryTaskEarning, net)
	s.record(ctx, userID, models.CreditEntryPlatformFee, s.fee)
	return nil
}

// ReleasePending drops the net pending credit staged for a quest that was
// cancelled before approval.
func (s *service) ReleasePending(ctx context.Context, amount models.Cents) error {
	net := amount - s.fee
	var userID string
	err := s.update(ctx, "release_pending", func(p *models.Profile) {
		userID = p.ID
		p.PendingEarnings -= net
	})
	if err != nil || userID == "" {
		return err
	}
	s.record(ctx, userID, models.CreditEntryPendingRelease, net)
	return nil
}

// AddPaymentMethod appends method. The first method of an empty list is
// always the default; a new method flagged default takes the flag from the
// others.
func (s *service) AddPaymentMethod(ctx context.Context, method models.PaymentMethod) (*models.PaymentMethod, error) {
	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	var added *models.PaymentMethod
	err := s.update(ctx, "add_payment_method", func(p *models.Profile) {
		if len(p.PaymentMethods) == 0 {
			method.IsDefault = true
		} else if method.IsDefault {
			for i := range p.PaymentMethods {
				p.PaymentMethods[i].IsDefault = false
			}
		}
		p.PaymentMethods = append(p.PaymentMethods, method)
		added = &method
	})
	return added, err
}

// RemovePaymentMethod drops the method; if it was the default, the first
// remaining method becomes default.
func (s *service) RemovePaymentMethod(ctx context.Context, id string) error {
	return s.update(ctx, "remove_payment_method", func(p *models.Profile) {
		kept := p.PaymentMethods[:0]
		removedDefault := false
		for _, pm := range p.PaymentMethods {
			if pm.ID == id {
				removedDefault = pm.IsDefault
				continue
			}
			kept = append(kept, pm)
		}
		p.PaymentMethods = kept
		if removedDefault && len(kept) > 0 {
			p.PaymentMethods[0].IsDefault = true
		}
	})
}

// SetDefaultPaymentMethod flags id as the only default. Unknown ids leave the
// list as is.
func (s *service) SetDefaultPaymentMethod(ctx context.Context, id string) error {
	return s.update(ctx, "set_default_payment_method", func(p *models.Profile) {
		if indexOfMethod(p.PaymentMethods, id) < 0 {
			return
		}
		for i := range p.PaymentMethods {
			p.PaymentMethods[i].IsDefault = p.PaymentMethods[i].ID == id
		}
	})
}

func (s *service) GetDefaultPaymentMethod(ctx context.Context) (*models.PaymentMethod, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, pm := range p.PaymentMethods {
		if pm.IsDefault {
			pm := pm
			return &pm, nil
		}
	}
	return nil, nil
}

// Profile returns the active user's profile, or ErrProfileNotFound when
// there is none.
func (s *service) Profile(ctx context.Context) (*models.Profile, error) {
	userID, ok := session.UserID(ctx)
	if !ok {
		return nil, ErrProfileNotFound
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *service) History(ctx context.Context) ([]*models.CreditEntry, error) {
	userID, ok := session.UserID(ctx)
	if !ok || s.history == nil {
		return nil, nil
	}
	return s.history.ListByUserID(ctx, userID)
}

// update is the single read-modify-write path. Level is recomputed from
// points on every write so the pair can never drift.
func (s *service) update(ctx context.Context, op string, mutate func(p *models.Profile)) error {
	userID, ok := session.UserID(ctx)
	if !ok {
		s.log.Debug("ledger no-op without active user", "op", op)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			s.log.Debug("ledger no-op without profile", "op", op, "user_id", userID)
			return nil
		}
		return fmt.Errorf("%s: read profile: %w", op, err)
	}
	next := cur.Clone()
	mutate(next)
	next.Level = rewards.LevelFromPoints(next.Points)
	next.UpdatedAt = s.now()

	if err := s.store.ReplaceProfile(ctx, next); err != nil {
		s.log.Error("ledger write failed", "op", op, "user_id", userID, "error", err)
		return fmt.Errorf("%s: write profile: %w", op, err)
	}
	metrics.LedgerMutation(ctx, op)
	return nil
}

func (s *service) record(ctx context.Context, userID, entryType string, amount models.Cents) {
	if s.history == nil {
		return
	}
	e := &models.CreditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		EntryType: entryType,
		Amount:    amount,
		CreatedAt: s.now(),
	}
	if err := s.history.CreateEntry(ctx, e); err != nil {
		s.log.Warn("credit history write failed", "user_id", userID, "entry_type", entryType, "error", err)
	}
}

func indexOfMethod(methods []models.PaymentMethod, id string) int {
	for i, pm := range methods {
		if pm.ID == id {
			return i
		}
	}
	return -1
}
