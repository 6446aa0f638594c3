package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

// statsPageSize bounds each order page while aggregating.
const statsPageSize = 500

// ErrAdminUnavailable indicates a dashboard aggregation dependency failed.
var ErrAdminUnavailable = errors.New("admin: unavailable")

// AdminServiceDeps wires the dependencies required by the admin service.
type AdminServiceDeps struct {
	Orders    repositories.OrderRepository
	Users     repositories.UserRepository
	Providers repositories.ProviderRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type adminService struct {
	orders    repositories.OrderRepository
	users     repositories.UserRepository
	providers repositories.ProviderRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewAdminService constructs an AdminService validating required dependencies.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Orders == nil {
		return nil, errors.New("admin service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("admin service: user repository is required")
	}
	if deps.Providers == nil {
		return nil, errors.New("admin service: provider repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &adminService{
		orders:    deps.Orders,
		users:     deps.Users,
		providers: deps.Providers,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// DashboardStats aggregates order, revenue and account figures, fanning the
// independent reads out concurrently.
func (s *adminService) DashboardStats(ctx context.Context) (DashboardStats, error) {
	if s == nil || s.orders == nil {
		return DashboardStats{}, ErrAdminUnavailable
	}

	stats := DashboardStats{
		OrdersByStatus: make(map[OrderStatus]int),
		GeneratedAt:    s.now(),
	}

	var (
		orders    []Order
		users     []User
		providers []Provider
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		collected, err := s.collectOrders(groupCtx)
		if err != nil {
			return err
		}
		orders = collected
		return nil
	})
	group.Go(func() error {
		listed, err := s.users.List(groupCtx)
		if err != nil {
			return err
		}
		users = listed
		return nil
	})
	group.Go(func() error {
		listed, err := s.providers.List(groupCtx, repositories.ProviderListFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		providers = listed
		return nil
	})
	if err := group.Wait(); err != nil {
		s.logger(ctx, "admin.stats_failed", map[string]any{"error": err.Error()})
		return DashboardStats{}, ErrAdminUnavailable
	}

	stats.TotalOrders = len(orders)
	for _, order := range orders {
		stats.OrdersByStatus[order.Status]++
		switch order.PaymentStatus {
		case domain.PaymentStatusCompleted:
			stats.Revenue += order.GrandTotal
		case domain.PaymentStatusPending, domain.PaymentStatusProcessing:
			stats.PendingRevenue += order.GrandTotal
		}
	}

	stats.TotalUsers = len(users)
	for _, user := range users {
		if user.Active {
			stats.ActiveUsers++
		}
	}
	stats.ActiveProviders = len(providers)

	return stats, nil
}

// collectOrders pages through the full order collection.
func (s *adminService) collectOrders(ctx context.Context) ([]Order, error) {
	var (
		orders []Order
		cursor string
	)
	for {
		page, err := s.orders.List(ctx, repositories.OrderListFilter{
			PageSize:   statsPageSize,
			StartAfter: cursor,
		})
		if err != nil {
			return nil, err
		}
		orders = append(orders, page.Orders...)
		if page.NextCursor == "" {
			return orders, nil
		}
		cursor = page.NextCursor
	}
}
