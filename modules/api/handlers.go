package api

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/catalog-sync/domain/order"
	"github.com/example/catalog-sync/domain/product"
	"github.com/example/catalog-sync/modules/media"
	ordermod "github.com/example/catalog-sync/modules/order"
	productmod "github.com/example/catalog-sync/modules/product"
	"github.com/example/catalog-sync/modules/recordstore"
)

// ActionResponse is the body returned by action endpoints.
type ActionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	ID      string           `json:"id,omitempty"`
	Product *product.Product `json:"product,omitempty"`
}

// OrdersResponse is the body returned by the orders endpoint.
type OrdersResponse struct {
	Orders []order.Order `json:"orders"`
	Count  int           `json:"count"`
	Error  string        `json:"error,omitempty"`
}

// updateRequest is the JSON form of a product update.
type updateRequest struct {
	Name        *string `json:"productName"`
	Price       *string `json:"productPrice"`
	Description *string `json:"productDescription"`
}

// Handlers adapts HTTP and WebSocket requests to controller actions.
type Handlers struct {
	products *productmod.Controller
	orders   *ordermod.Controller
	timeout  time.Duration
}

// NewHandlers creates handlers. timeout bounds how long an action endpoint
// waits for its completion callback.
func NewHandlers(products *productmod.Controller, orders *ordermod.Controller, timeout time.Duration) *Handlers {
	return &Handlers{
		products: products,
		orders:   orders,
		timeout:  timeout,
	}
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"products": h.products.Products().Len(),
		"orders":   h.orders.Orders().Len(),
	})
}

// ListProducts handles GET /api/v1/products with the current projection.
func (h *Handlers) ListProducts(c *fiber.Ctx) error {
	items := h.products.Products().Items()
	return c.JSON(fiber.Map{
		"products": items,
		"count":    len(items),
	})
}

// RefreshProducts handles POST /api/v1/products/refresh.
func (h *Handlers) RefreshProducts(c *fiber.Ctx) error {
	res, err := await(h.timeout, func(done func(productmod.Result)) {
		h.products.Refresh(done)
	})
	if err != nil {
		return err
	}
	return h.respond(c, res, fiber.StatusOK)
}

// CreateProduct handles multipart POST /api/v1/products.
func (h *Handlers) CreateProduct(c *fiber.Ctx) error {
	draft := product.Draft{
		Name:        c.FormValue("name"),
		Price:       c.FormValue("price"),
		Description: c.FormValue("description"),
	}
	image, err := formImage(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := await(h.timeout, func(done func(productmod.Result)) {
		h.products.AddProduct(draft, image, done)
	})
	if err != nil {
		return err
	}
	return h.respond(c, res, fiber.StatusCreated)
}

// GetProduct handles GET /api/v1/products/:id.
func (h *Handlers) GetProduct(c *fiber.Ctx) error {
	id := c.Params("id")

	type loaded struct {
		product product.Product
		result  productmod.Result
	}
	got, err := await(h.timeout, func(done func(loaded)) {
		h.products.GetProduct(id, func(p product.Product, res productmod.Result) {
			done(loaded{p, res})
		})
	})
	if err != nil {
		return err
	}
	if !got.result.Success {
		return h.respond(c, got.result, fiber.StatusOK)
	}
	return c.JSON(got.product)
}

// UpdateProduct handles PUT /api/v1/products/:id as multipart or JSON.
func (h *Handlers) UpdateProduct(c *fiber.Ctx) error {
	id := c.Params("id")

	var (
		patch product.Patch
		image media.Blob
	)
	if c.Is("json") {
		var req updateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		patch = product.Patch{Name: req.Name, Price: req.Price, Description: req.Description}
	} else {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "expected multipart form or JSON body")
		}
		patch = product.Patch{
			Name:        formField(form, "name"),
			Price:       formField(form, "price"),
			Description: formField(form, "description"),
		}
		if image, err = formImage(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	res, err := await(h.timeout, func(done func(productmod.Result)) {
		h.products.UpdateProduct(id, patch, image, done)
	})
	if err != nil {
		return err
	}
	return h.respond(c, res, fiber.StatusOK)
}

// DeleteProduct handles DELETE /api/v1/products/:id.
func (h *Handlers) DeleteProduct(c *fiber.Ctx) error {
	id := c.Params("id")
	res, err := await(h.timeout, func(done func(productmod.Result)) {
		h.products.DeleteProduct(id, done)
	})
	if err != nil {
		return err
	}
	return h.respond(c, res, fiber.StatusOK)
}

// ListOrders handles GET /api/v1/orders.
func (h *Handlers) ListOrders(c *fiber.Ctx) error {
	items := h.orders.Orders().Items()
	return c.JSON(OrdersResponse{
		Orders: items,
		Count:  len(items),
		Error:  h.orders.Error().Get(),
	})
}

// RefreshOrders handles POST /api/v1/orders/refresh.
func (h *Handlers) RefreshOrders(c *fiber.Ctx) error {
	res, err := await(h.timeout, h.orders.LoadAllOrders)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if !res.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(ActionResponse{Success: res.Success, Message: res.Message})
}

// WatchProducts streams the product projection over a WebSocket.
func (h *Handlers) WatchProducts(c *websocket.Conn) {
	updates, cancel := h.products.Products().Subscribe()
	defer cancel()
	stream(c, "products", updates)
}

// WatchOrders streams the order projection over a WebSocket.
func (h *Handlers) WatchOrders(c *websocket.Conn) {
	updates, cancel := h.orders.Orders().Subscribe()
	defer cancel()
	stream(c, "orders", updates)
}

// stream writes every value from updates until the peer goes away.
func stream[T any](c *websocket.Conn, kind string, updates <-chan []T) {
	connID := uuid.New().String()
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			if err := c.WriteJSON(fiber.Map{"type": kind, "items": items, "count": len(items)}); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[api] WebSocket %s write failed: %v", connID, err)
				}
				return
			}
		}
	}
}

// respond maps a controller Result onto an HTTP response.
func (h *Handlers) respond(c *fiber.Ctx, res productmod.Result, okStatus int) error {
	body := ActionResponse{Success: res.Success, Message: res.Message, ID: res.ID}
	if res.Success {
		if res.ID != "" {
			if p, found := h.products.Products().Find(res.ID); found {
				body.Product = &p
			}
		}
		return c.Status(okStatus).JSON(body)
	}
	return c.Status(statusFor(res.Err)).JSON(body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, productmod.ErrMissingImage), errors.Is(err, productmod.ErrInvalidProduct):
		return fiber.StatusBadRequest
	case recordstore.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, productmod.ErrUploadFailed) && media.IsRejected(err):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, recordstore.ErrInvalidKey):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
}

// await starts an action and waits for its one-shot callback. The action is
// not cancelled on timeout; its late result is discarded.
func await[R any](timeout time.Duration, start func(func(R))) (R, error) {
	ch := make(chan R, 1)
	start(func(r R) {
		select {
		case ch <- r:
		default:
		}
	})

	select {
	case r := <-ch:
		return r, nil
	case <-time.After(timeout):
		var zero R
		return zero, fiber.NewError(fiber.StatusGatewayTimeout, "operation timed out")
	}
}

// formImage reads the optional "image" file of a multipart request.
func formImage(c *fiber.Ctx) (media.Blob, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		// No file part.
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("failed to read uploaded image")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.New("failed to read uploaded image")
	}
	return media.NewBytesBlob(fh.Filename, data), nil
}

// formField returns a pointer to the trimmed form value, or nil when the
// field is absent.
func formField(form *multipart.Form, name string) *string {
	values, ok := form.Value[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}
