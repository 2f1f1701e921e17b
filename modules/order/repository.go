package order

import (
	"github.com/example/catalog-sync/domain/order"
	"github.com/example/catalog-sync/modules/recordstore"
)

// Collection is the record store collection holding orders.
const Collection = "orders"

// Repository is the typed order facade over the record store.
type Repository struct {
	*recordstore.Client[order.Order]
}

// NewRepository creates an order repository on backend.
func NewRepository(backend recordstore.Backend, opts ...recordstore.ClientOption) (*Repository, error) {
	client, err := recordstore.NewClient[order.Order](backend, Collection, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{Client: client}, nil
}
