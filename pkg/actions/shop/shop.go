// Package shop provides the product management capability.
package shop

import (
	"context"
	"strconv"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/capability"
	"github.com/parlancehq/parlance/pkg/command"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/storage"
)

// FlagName is the feature flag gating this capability.
const FlagName = "shop"

// PermissionManage guards the shop actions.
const PermissionManage = "shop.manage"

// Config wires the shop actions to their collaborators.
type Config struct {
	Store  *storage.Store
	Logger *logging.Logger
}

// Capability bundles the shop actions behind the given enable predicate.
func Capability(cfg Config, enabled func() (bool, error)) capability.Capability {
	return capability.New(FlagName, enabled, CreateProduct(cfg))
}

// CreateProduct builds the shop.create_product action.
func CreateProduct(cfg Config) action.Action {
	return action.MustNew(action.Definition{
		Name:        "shop.create_product",
		Description: "Create a product with a name, price, and currency",
		Permission:  PermissionManage,
		Schema: action.NewSchema([]action.Field{
			action.StringField("name", "Product name"),
			action.FloatField("price", "Unit price").WithMinimum(0),
			action.EnumField("currency", "Price currency", "USD", "EUR").WithDefault("USD"),
		}, "name", "price"),
		Handler: func(ctx context.Context, payload action.Payload, sink action.Sink) (*action.Result, error) {
			sink.Emit(action.Step{Label: "product", Status: action.StepInProgress})

			product := &storage.Product{
				Name:     payload["name"].(string),
				Price:    payload["price"].(float64),
				Currency: payload["currency"].(string),
			}
			if err := cfg.Store.CreateProduct(product); err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn(logging.CategoryDispatch, "save_product_failed", err.Error(), nil)
				}
				sink.Emit(action.Step{Label: "product", Status: action.StepFailed})
				return action.Fail("could not save product"), nil
			}

			sink.Emit(action.Step{
				Label:  "product",
				Status: action.StepCompleted,
				Data:   map[string]any{"product_id": product.ID},
			})
			return action.Success("product created").
				WithData("product_id", product.ID).
				WithData("name", product.Name).
				WithAction("view", "/products/"+product.ID), nil
		},
	})
}

// Rules returns the pattern rules for the shop actions. The product rule
// resolves "create product named Foo for $10" without a model round trip.
func Rules() []command.Rule {
	return []command.Rule{
		command.MustRule(
			"shop.create_product",
			`(?i)^create product named (\S+) for \$([0-9]+(?:\.[0-9]+)?)$`,
			func(m []string) (action.Payload, error) {
				price, err := strconv.ParseFloat(m[2], 64)
				if err != nil {
					return nil, err
				}
				return action.Payload{"name": m[1], "price": price}, nil
			},
		),
	}
}
