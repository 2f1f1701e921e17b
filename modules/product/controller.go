// Package product holds the product repository and the controller that keeps
// the observable product list in sync with the record store.
package product

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/example/catalog-sync/domain/product"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/media"
	"github.com/example/catalog-sync/modules/projection"
	"github.com/example/catalog-sync/modules/recordstore"
)

// Store is the record contract the controller needs.
type Store = recordstore.Store[product.Product]

// Result is the one-shot outcome of a controller action.
type Result struct {
	Success bool
	Message string
	// ID is the product the action produced or touched, if any.
	ID string
	// Err is the failure cause; nil on success.
	Err error
}

// Callback receives the Result of an action exactly once, on the runner loop.
type Callback func(Result)

// Stage is the progress of the most recent add pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageUploading
	StageWriting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUploading:
		return "uploading"
	case StageWriting:
		return "writing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithRefreshAfterWrite makes a successful add also trigger a background
// Refresh.
func WithRefreshAfterWrite(enabled bool) Option {
	return func(c *Controller) {
		c.refreshAfterWrite = enabled
	}
}

// Controller owns the product projection. All projection mutations happen in
// completion callbacks on the runner loop.
type Controller struct {
	store             Store
	uploader          media.Uploader
	runner            *async.Runner
	products          *projection.List[product.Product]
	stage             *projection.Value[Stage]
	refreshAfterWrite bool
}

// NewController creates a controller with an empty projection.
func NewController(store Store, uploader media.Uploader, runner *async.Runner, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		uploader: uploader,
		runner:   runner,
		products: projection.NewList(product.Product.RecordKey),
		stage:    projection.NewValue(StageIdle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Products returns the observable product list.
func (c *Controller) Products() *projection.List[product.Product] {
	return c.products
}

// Stage returns the observable add pipeline stage. There is one value per
// controller and every AddProduct writes to it, so with concurrent adds it
// shows whichever add moved last. Per-call outcomes come from the Callback.
func (c *Controller) Stage() *projection.Value[Stage] {
	return c.stage
}

// Refresh reloads every product and replaces the projection. On failure the
// projection is left as it was. cb may be nil.
func (c *Controller) Refresh(cb Callback) {
	async.Go(c.runner, c.store.ListAll, func(items []product.Product, err error) {
		if err != nil {
			log.Printf("[product] Refresh failed: %v", err)
			c.report(cb, Result{Message: "Failed to load products: " + err.Error(), Err: err})
			return
		}
		c.products.Replace(items)
		c.report(cb, Result{Success: true, Message: fmt.Sprintf("Loaded %d products", len(items))})
	})
}

// AddProduct uploads image, then creates the product with the resolved URL.
// Nothing is uploaded without an image and nothing is written when the
// upload fails.
func (c *Controller) AddProduct(draft product.Draft, image media.Blob, cb Callback) {
	if image == nil {
		c.post(cb, Result{Message: MsgMissingImage, Err: ErrMissingImage})
		return
	}
	p := draft.Product("")
	if p.Name == "" {
		c.post(cb, Result{Message: MsgInvalidProduct, Err: ErrInvalidProduct})
		return
	}

	c.stage.Set(StageUploading)
	async.Go(c.runner, func(ctx context.Context) (string, error) {
		return c.uploader.Upload(ctx, image)
	}, func(url string, err error) {
		if err != nil {
			c.stage.Set(StageFailed)
			c.report(cb, uploadFailure(err))
			return
		}

		p.ImageURL = url
		c.stage.Set(StageWriting)
		async.Go(c.runner, func(ctx context.Context) (string, error) {
			return c.store.Create(ctx, p)
		}, func(id string, err error) {
			if err != nil {
				c.stage.Set(StageFailed)
				c.report(cb, Result{Message: "Failed to add product: " + err.Error(), Err: err})
				return
			}
			c.products.Upsert(p.WithRecordKey(id))
			c.stage.Set(StageDone)
			c.report(cb, Result{Success: true, Message: "Product added successfully", ID: id})
			if c.refreshAfterWrite {
				c.Refresh(nil)
			}
		})
	})
}

// UpdateProduct applies patch to the product with the given id. When image
// is not nil it is uploaded first and replaces the image URL; otherwise the
// current image is kept.
func (c *Controller) UpdateProduct(id string, patch product.Patch, image media.Blob, cb Callback) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		c.post(cb, Result{ID: id, Message: MsgInvalidProduct, Err: ErrInvalidProduct})
		return
	}
	base, cached := c.products.Find(id)

	async.Go(c.runner, func(ctx context.Context) (product.Product, error) {
		if !cached {
			var err error
			if base, err = c.store.Get(ctx, id); err != nil {
				return product.Product{}, err
			}
		}
		next := patch.Apply(base)
		if image != nil {
			url, err := c.uploader.Upload(ctx, image)
			if err != nil {
				return product.Product{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
			}
			next.ImageURL = url
		}
		if err := c.store.Update(ctx, id, next); err != nil {
			return product.Product{}, err
		}
		return next.WithRecordKey(id), nil
	}, func(updated product.Product, err error) {
		switch {
		case err == nil:
			c.products.Upsert(updated)
			c.report(cb, Result{Success: true, ID: id, Message: "Product updated successfully"})
		case recordstore.IsNotFound(err):
			c.products.Remove(id)
			c.report(cb, Result{ID: id, Message: "Product not found", Err: err})
		case errors.Is(err, ErrUploadFailed):
			res := uploadFailure(err)
			res.ID = id
			c.report(cb, res)
		default:
			c.report(cb, Result{ID: id, Message: "Failed to update product: " + err.Error(), Err: err})
		}
	})
}

// DeleteProduct deletes the product and then drops exactly that entry from
// the projection. Deleting an unknown id succeeds.
func (c *Controller) DeleteProduct(id string, cb Callback) {
	async.Go(c.runner, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Delete(ctx, id)
	}, func(_ struct{}, err error) {
		if err != nil {
			c.report(cb, Result{ID: id, Message: "Failed to delete product: " + err.Error(), Err: err})
			return
		}
		c.products.Remove(id)
		c.report(cb, Result{Success: true, ID: id, Message: "Product deleted successfully"})
	})
}

// GetProduct loads one product, typically to prefill an edit form. The
// projection entry is used when present.
func (c *Controller) GetProduct(id string, fn func(product.Product, Result)) {
	if p, ok := c.products.Find(id); ok {
		go func() {
			if !c.runner.Post(func() { fn(p, Result{Success: true, ID: id, Message: "Product loaded"}) }) {
				log.Printf("[product] Dispatcher stopped, dropping result for %s", id)
			}
		}()
		return
	}

	async.Go(c.runner, func(ctx context.Context) (product.Product, error) {
		return c.store.Get(ctx, id)
	}, func(p product.Product, err error) {
		switch {
		case err == nil:
			fn(p, Result{Success: true, ID: id, Message: "Product loaded"})
		case recordstore.IsNotFound(err):
			fn(p, Result{ID: id, Message: "Product not found", Err: err})
		default:
			fn(p, Result{ID: id, Message: "Failed to load product: " + err.Error(), Err: err})
		}
	})
}

func uploadFailure(err error) Result {
	if !errors.Is(err, ErrUploadFailed) {
		err = fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	var uploadErr *media.UploadError
	cause := err.Error()
	if errors.As(err, &uploadErr) {
		cause = uploadErr.Err.Error()
	}
	return Result{Message: "Failed to upload image: " + cause, Err: err}
}

// report delivers res; it is called on the runner loop.
func (c *Controller) report(cb Callback, res Result) {
	if cb != nil {
		cb(res)
	}
}

// post delivers res on the runner loop. It may be called from the loop
// itself, so the send happens on its own goroutine.
func (c *Controller) post(cb Callback, res Result) {
	go func() {
		if !c.runner.Post(func() { c.report(cb, res) }) {
			log.Printf("[product] Dispatcher stopped, dropping result: %s", res.Message)
		}
	}()
}
