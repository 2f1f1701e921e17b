package product

import (
	"github.com/example/catalog-sync/domain/product"
	"github.com/example/catalog-sync/modules/recordstore"
)

// Collection is the record store collection holding products.
const Collection = "products"

// Repository is the typed product facade over the record store.
type Repository struct {
	*recordstore.Client[product.Product]
}

var _ Store = (*Repository)(nil)

// NewRepository creates a product repository on backend.
func NewRepository(backend recordstore.Backend, opts ...recordstore.ClientOption) (*Repository, error) {
	client, err := recordstore.NewClient[product.Product](backend, Collection, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{Client: client}, nil
}
