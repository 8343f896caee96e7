package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

// Router picks the gateway serving a payment method.
type Router struct {
	byMethod map[models.PaymentMethod]Gateway
}

// NewRouter maps each gateway to the methods it declares. The first gateway
// declaring a method wins.
func NewRouter(gateways ...GatewayBinding) *Router {
	r := &Router{byMethod: make(map[models.PaymentMethod]Gateway)}
	for _, binding := range gateways {
		for _, method := range binding.Methods {
			m := method.Normalize()
			if _, taken := r.byMethod[m]; !taken {
				r.byMethod[m] = binding.Gateway
			}
		}
	}
	return r
}

// GatewayBinding couples a gateway with the methods it serves.
type GatewayBinding struct {
	Gateway Gateway
	Methods []models.PaymentMethod
}

// NewRouterFromConfig builds HTTP gateways for every configured entry.
func NewRouterFromConfig(cfg config.PaymentConfig, logger *zap.Logger) *Router {
	bindings := make([]GatewayBinding, 0, len(cfg.Gateways))
	for _, gw := range cfg.Gateways {
		methods := make([]models.PaymentMethod, 0, len(gw.Methods))
		for _, m := range gw.Methods {
			methods = append(methods, models.PaymentMethod(m))
		}
		bindings = append(bindings, GatewayBinding{
			Gateway: NewHTTPGateway(gw, cfg.Timeout, logger),
			Methods: methods,
		})
	}
	return NewRouter(bindings...)
}

// CreateCharge forwards req to the gateway serving req.Method.
func (r *Router) CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeRef, error) {
	gw, ok := r.byMethod[req.Method.Normalize()]
	if !ok {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, fmt.Errorf("no gateway configured for method %q", req.Method), "")
	}
	return gw.CreateCharge(ctx, req)
}

// Supports reports whether some gateway serves method.
func (r *Router) Supports(method models.PaymentMethod) bool {
	_, ok := r.byMethod[method.Normalize()]
	return ok
}
