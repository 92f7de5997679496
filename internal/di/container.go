package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/indo-cafe/api/internal/payments"
	"github.com/indo-cafe/api/internal/platform/config"
	pstorage "github.com/indo-cafe/api/internal/platform/storage"
	"github.com/indo-cafe/api/internal/repositories"
	"github.com/indo-cafe/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Menu     services.MenuService
	Cart     services.CartService
	Orders   services.OrderService
	Users    services.UserService
	Payments services.PaymentService
	System   services.SystemService
}

// Infrastructure carries external clients and publishers that the service layer depends on.
// Every field is optional; services degrade gracefully when a collaborator is absent.
type Infrastructure struct {
	Storage        *pstorage.Client
	PaymentManager *payments.Manager
	OrderEvents    services.OrderEventPublisher
	StockEvents    services.StockEventPublisher
	Build          services.BuildInfo
	Logger         *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Counters:         reg.Counters(),
			Clock:            time.Now,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	menuRepo := reg.Menu()
	if menuRepo == nil {
		return Services{}, errors.New("menu repository is required")
	}

	menuSvc, err := services.NewMenuService(services.MenuServiceDeps{
		Menu:        menuRepo,
		Storage:     infra.Storage,
		ImageBucket: cfg.Storage.MenuImagesBucket,
		Clock:       time.Now,
		StockEvents: infra.StockEvents,
		Logger:      eventLogger(logger.Named("menu")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build menu service: %w", err)
	}
	svc.Menu = menuSvc

	ordersRepo := reg.Orders()
	if ordersRepo == nil {
		return Services{}, errors.New("order repository is required")
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      ordersRepo,
		Menu:        menuRepo,
		UnitOfWork:  reg,
		Clock:       time.Now,
		Events:      infra.OrderEvents,
		StockEvents: infra.StockEvents,
		Logger:      eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if cartsRepo := reg.Carts(); cartsRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Carts:  cartsRepo,
			Menu:   menuRepo,
			Orders: orderSvc,
			Clock:  time.Now,
			Logger: eventLogger(logger.Named("cart")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users:  usersRepo,
			Clock:  time.Now,
			Logger: eventLogger(logger.Named("users")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if infra.PaymentManager != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Manager:       infra.PaymentManager,
			Orders:        orderSvc,
			WebhookSecret: cfg.PSP.StripeWebhookSecret,
			Clock:         time.Now,
			Logger:        eventLogger(logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	return svc, nil
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
