// Package order keeps a read-only, observable view of the orders collection.
package order

import (
	"context"
	"fmt"
	"log"

	"github.com/example/catalog-sync/domain/order"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/projection"
)

// Lister is the part of the record store the controller reads from.
type Lister interface {
	ListAll(ctx context.Context) ([]order.Order, error)
}

// MsgNoOrders is reported when a load succeeds with an empty collection.
const MsgNoOrders = "No orders found."

// Result is the outcome of LoadAllOrders.
type Result struct {
	Success bool
	Message string
	Err     error
}

// Controller owns the order projection and its error slot.
type Controller struct {
	store  Lister
	runner *async.Runner
	orders *projection.List[order.Order]
	errMsg *projection.Value[string]
}

// NewController creates a controller with an empty projection.
func NewController(store Lister, runner *async.Runner) *Controller {
	return &Controller{
		store:  store,
		runner: runner,
		orders: projection.NewList(order.Order.RecordKey),
		errMsg: projection.NewValue(""),
	}
}

// Orders returns the observable order list.
func (c *Controller) Orders() *projection.List[order.Order] {
	return c.orders
}

// Error returns the observable error slot. It is empty after a successful
// load.
func (c *Controller) Error() *projection.Value[string] {
	return c.errMsg
}

// LoadAllOrders replaces the projection with every stored order. A failure
// sets the error slot and keeps previously loaded orders. cb may be nil.
func (c *Controller) LoadAllOrders(cb func(Result)) {
	async.Go(c.runner, c.store.ListAll, func(items []order.Order, err error) {
		if err != nil {
			log.Printf("[order] Load failed: %v", err)
			msg := "Failed to load orders: " + err.Error()
			c.errMsg.Set(msg)
			if cb != nil {
				cb(Result{Message: msg, Err: err})
			}
			return
		}

		c.orders.Replace(items)
		c.errMsg.Set("")
		if cb == nil {
			return
		}
		msg := fmt.Sprintf("Loaded %d orders", len(items))
		if len(items) == 0 {
			msg = MsgNoOrders
		}
		cb(Result{Success: true, Message: msg})
	})
}
