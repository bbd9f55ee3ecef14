package balance

import (
	"context"
	"time"

	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	chain chainrpc.TransferClient

	binding repository.Repository[AddressBinding]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Chain chainrpc.TransferClient
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		chain: p.Chain,

		binding: repository.ProvideStore[AddressBinding](p.DB),
	}
}

type BindRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// Bind associates a user with a ledger address, seeding the mirror with
// the address's current balance.
func (s *Service) Bind(ctx context.Context, req *BindRequest) (*AddressBinding, error) {
	if req == nil || req.UserID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if !chainrpc.ValidAddress(req.Address) {
		return nil, errutil.ValidationFailed("address is not a valid ledger address", nil)
	}

	bal, err := s.chain.BalanceOf(ctx, req.Address)
	if err != nil {
		zap.L().Error("failed to fetch balance for bind", zap.String("address", req.Address), zap.Error(err))
		return nil, errutil.BadGateway("failed to fetch ledger balance", err)
	}

	existing, err := s.binding.FindOne(ctx, &AddressBinding{UserID: req.UserID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch address binding", err)
	}

	b := &AddressBinding{
		UserID:      req.UserID,
		Address:     req.Address,
		Balance:     bal,
		RefreshedAt: time.Now(),
	}

	if existing == nil {
		if err := s.binding.Create(ctx, b); err != nil {
			return nil, errutil.Internal("failed to create address binding", err)
		}
		return b, nil
	}

	if err := s.binding.Update(ctx, req.UserID, map[string]any{
		"address":      b.Address,
		"balance":      b.Balance,
		"refreshed_at": b.RefreshedAt,
	}); err != nil {
		return nil, errutil.Internal("failed to update address binding", err)
	}
	return b, nil
}

// Get returns the mirrored binding for a user.
func (s *Service) Get(ctx context.Context, userID string) (*AddressBinding, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	b, err := s.binding.FindOne(ctx, &AddressBinding{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch address binding", err)
	}
	if b == nil {
		return nil, errutil.NotFound("no address bound for user", nil)
	}
	return b, nil
}

// AddressOf resolves a user's ledger address. Returns "" with no error
// when the user has no binding; callers decide how to treat that.
func (s *Service) AddressOf(ctx context.Context, userID string) (string, error) {
	b, err := s.binding.FindOne(ctx, &AddressBinding{UserID: userID})
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", nil
	}
	return b.Address, nil
}

// Refresh re-reads the user's balance from the node and updates the
// mirror.
func (s *Service) Refresh(ctx context.Context, userID string) (*AddressBinding, error) {
	b, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	bal, err := s.chain.BalanceOf(ctx, b.Address)
	if err != nil {
		zap.L().Error("failed to refresh balance", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.BadGateway("failed to fetch ledger balance", err)
	}

	b.Balance = bal
	b.RefreshedAt = time.Now()
	if err := s.binding.Update(ctx, userID, map[string]any{
		"balance":      b.Balance,
		"refreshed_at": b.RefreshedAt,
	}); err != nil {
		return nil, errutil.Internal("failed to update address binding", err)
	}
	return b, nil
}

// RefreshAll re-reads every bound address concurrently. Individual
// failures are logged and skipped so one dead address does not stall
// the rest.
func (s *Service) RefreshAll(ctx context.Context) error {
	bindings, err := s.binding.Find(ctx, &AddressBinding{})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range bindings {
		b := bindings[i]
		g.Go(func() error {
			bal, err := s.chain.BalanceOf(gctx, b.Address)
			if err != nil {
				zap.L().Warn("skipping balance refresh",
					zap.String("user_id", b.UserID),
					zap.String("address", b.Address),
					zap.Error(err),
				)
				return nil
			}
			if err := s.binding.Update(gctx, b.UserID, map[string]any{
				"balance":      bal,
				"refreshed_at": time.Now(),
			}); err != nil {
				zap.L().Error("failed to persist refreshed balance", zap.String("user_id", b.UserID), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
