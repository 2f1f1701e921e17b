package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/catalog-sync/domain/product"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/media"
	"github.com/example/catalog-sync/modules/recordstore"
)

// fakeUploader returns queued URLs or a fixed error and counts calls.
type fakeUploader struct {
	mu    sync.Mutex
	urls  []string
	err   error
	calls atomic.Int32
}

func (f *fakeUploader) Upload(_ context.Context, blob media.Blob) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", &media.UploadError{Name: blob.Name(), Err: f.err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urls) == 0 {
		return "https://host/" + blob.Name(), nil
	}
	url := f.urls[0]
	f.urls = f.urls[1:]
	return url, nil
}

// countingStore wraps a Store, counts calls and can inject failures.
type countingStore struct {
	Store
	creates, updates, deletes, lists atomic.Int32
	failWith                         error
}

func (s *countingStore) Create(ctx context.Context, p product.Product) (string, error) {
	s.creates.Add(1)
	if s.failWith != nil {
		return "", &recordstore.StoreError{Op: "create", Collection: Collection, Err: s.failWith}
	}
	return s.Store.Create(ctx, p)
}

func (s *countingStore) ListAll(ctx context.Context) ([]product.Product, error) {
	s.lists.Add(1)
	if s.failWith != nil {
		return nil, &recordstore.StoreError{Op: "list", Collection: Collection, Err: s.failWith}
	}
	return s.Store.ListAll(ctx)
}

func (s *countingStore) Update(ctx context.Context, id string, p product.Product) error {
	s.updates.Add(1)
	if s.failWith != nil {
		return &recordstore.StoreError{Op: "update", Collection: Collection, Key: id, Err: s.failWith}
	}
	return s.Store.Update(ctx, id, p)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	s.deletes.Add(1)
	if s.failWith != nil {
		return &recordstore.StoreError{Op: "delete", Collection: Collection, Key: id, Err: s.failWith}
	}
	return s.Store.Delete(ctx, id)
}

type fixture struct {
	backend  *recordstore.MemoryBackend
	repo     *Repository
	store    *countingStore
	uploader *fakeUploader
	runner   *async.Runner
	ctrl     *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithRunner(t, async.DefaultConfig(), opts...)
}

func newFixtureWithRunner(t *testing.T, cfg async.Config, opts ...Option) *fixture {
	t.Helper()

	backend := recordstore.NewMemoryBackend()
	n := 0
	repo, err := NewRepository(backend, recordstore.WithKeyGenerator(func() string {
		n++
		return fmt.Sprintf("p%d", n)
	}))
	require.NoError(t, err)

	runner, err := async.NewRunner(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)
	t.Cleanup(func() {
		cancel()
		runner.Wait()
		runner.Release()
	})

	store := &countingStore{Store: repo}
	uploader := &fakeUploader{}
	return &fixture{
		backend:  backend,
		repo:     repo,
		store:    store,
		uploader: uploader,
		runner:   runner,
		ctrl:     NewController(store, uploader, runner, opts...),
	}
}

// await returns a Callback and a function that blocks for its Result.
func await(t *testing.T) (Callback, func() Result) {
	t.Helper()
	ch := make(chan Result, 2)
	return func(r Result) { ch <- r }, func() Result {
		t.Helper()
		select {
		case r := <-ch:
			select {
			case extra := <-ch:
				t.Fatalf("callback invoked twice: %+v", extra)
			case <-time.After(20 * time.Millisecond):
			}
			return r
		case <-time.After(3 * time.Second):
			t.Fatal("callback not invoked")
			return Result{}
		}
	}
}

func (f *fixture) refresh(t *testing.T) Result {
	t.Helper()
	cb, wait := await(t)
	f.ctrl.Refresh(cb)
	return wait()
}

func (f *fixture) seed(t *testing.T, products ...product.Product) []string {
	t.Helper()
	ids := make([]string, 0, len(products))
	for _, p := range products {
		id, err := f.repo.Create(context.Background(), p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestController_RefreshEmptyStore(t *testing.T) {
	f := newFixture(t)

	res := f.refresh(t)

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, f.ctrl.Products().Len())
}

func TestController_RefreshReplacesProjection(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Products().Replace([]product.Product{{ID: "stale", Name: "gone"}})
	ids := f.seed(t, product.Product{Name: "A"}, product.Product{Name: "B"}, product.Product{Name: "C"})

	res := f.refresh(t)
	require.True(t, res.Success, res.Message)

	items := f.ctrl.Products().Items()
	require.Len(t, items, 3)
	seen := map[string]bool{}
	for _, p := range items {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
	for _, id := range ids {
		assert.True(t, seen[id])
	}
	_, stale := f.ctrl.Products().Find("stale")
	assert.False(t, stale)
}

func TestController_RefreshFailureKeepsProjection(t *testing.T) {
	f := newFixture(t)
	f.seed(t, product.Product{Name: "A"})
	require.True(t, f.refresh(t).Success)

	f.store.failWith = errors.New("network down")
	res := f.refresh(t)

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to load products")
	var storeErr *recordstore.StoreError
	assert.ErrorAs(t, res.Err, &storeErr)
	assert.Equal(t, 1, f.ctrl.Products().Len())
}

func TestController_AddProduct(t *testing.T) {
	f := newFixture(t)
	f.uploader.urls = []string{"https://host/img1.png"}

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Pen", Price: "10", Description: "Blue pen"}, media.NewBytesBlob("pen.png", []byte("x")), cb)
	res := wait()

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Product added successfully", res.Message)
	assert.Equal(t, "p1", res.ID)
	assert.Equal(t, StageDone, f.ctrl.Stage().Get())

	want := product.Product{ID: "p1", Name: "Pen", Price: 10, Description: "Blue pen", ImageURL: "https://host/img1.png"}
	local, ok := f.ctrl.Products().Find("p1")
	require.True(t, ok, "created product should be in the projection")
	assert.Equal(t, want, local)

	require.True(t, f.refresh(t).Success)
	assert.Equal(t, []product.Product{want}, f.ctrl.Products().Items())
}

func TestController_AddProductMissingImage(t *testing.T) {
	f := newFixture(t)

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Pen", Price: "10"}, nil, cb)
	res := wait()

	assert.False(t, res.Success)
	assert.Equal(t, MsgMissingImage, res.Message)
	assert.ErrorIs(t, res.Err, ErrMissingImage)
	assert.Zero(t, f.uploader.calls.Load(), "uploader must not be called")
	assert.Zero(t, f.store.creates.Load(), "store must not be called")
	assert.Equal(t, StageIdle, f.ctrl.Stage().Get())
}

func TestController_AddProductInvalidName(t *testing.T) {
	f := newFixture(t)

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "   ", Price: "10"}, media.NewBytesBlob("a.png", []byte("x")), cb)
	res := wait()

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrInvalidProduct)
	assert.Zero(t, f.uploader.calls.Load())
	assert.Zero(t, f.store.creates.Load())
}

func TestController_AddProductUploadFails(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = media.ErrNotImage

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Pen", Price: "10"}, media.NewBytesBlob("a.txt", []byte("x")), cb)
	res := wait()

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Failed to upload image: "), res.Message)
	assert.ErrorIs(t, res.Err, ErrUploadFailed)
	assert.ErrorIs(t, res.Err, media.ErrNotImage)
	var uploadErr *media.UploadError
	assert.ErrorAs(t, res.Err, &uploadErr)
	assert.Zero(t, f.store.creates.Load(), "no record may be written after a failed upload")
	assert.Equal(t, StageFailed, f.ctrl.Stage().Get())
	assert.Equal(t, 0, f.ctrl.Products().Len())
}

func TestController_AddProductCreateFails(t *testing.T) {
	f := newFixture(t)
	f.store.failWith = errors.New("permission denied")

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Pen"}, media.NewBytesBlob("a.png", []byte("x")), cb)
	res := wait()

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Failed to add product: "), res.Message)
	assert.NotErrorIs(t, res.Err, ErrUploadFailed)
	assert.Equal(t, int32(1), f.uploader.calls.Load())
	assert.Equal(t, 0, f.ctrl.Products().Len())
}

func TestController_AddProductRefreshAfterWrite(t *testing.T) {
	f := newFixture(t, WithRefreshAfterWrite(true))

	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Pen"}, media.NewBytesBlob("a.png", []byte("x")), cb)
	require.True(t, wait().Success)

	assert.Eventually(t, func() bool { return f.store.lists.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestController_DeleteProduct(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A"}, product.Product{Name: "B"}, product.Product{Name: "C"})
	require.True(t, f.refresh(t).Success)

	cb, wait := await(t)
	f.ctrl.DeleteProduct(ids[1], cb)
	res := wait()

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Product deleted successfully", res.Message)
	items := f.ctrl.Products().Items()
	require.Len(t, items, 2)
	assert.Equal(t, ids[0], items[0].ID)
	assert.Equal(t, ids[2], items[1].ID)

	_, err := f.repo.Get(context.Background(), ids[1])
	assert.True(t, recordstore.IsNotFound(err))
}

func TestController_DeleteUnknownIDSucceeds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, product.Product{Name: "A"})
	require.True(t, f.refresh(t).Success)

	cb, wait := await(t)
	f.ctrl.DeleteProduct("nope", cb)

	assert.True(t, wait().Success)
	assert.Equal(t, 1, f.ctrl.Products().Len())
}

func TestController_DeleteFailureKeepsProjection(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A"})
	require.True(t, f.refresh(t).Success)
	f.store.failWith = errors.New("timeout")

	cb, wait := await(t)
	f.ctrl.DeleteProduct(ids[0], cb)
	res := wait()

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to delete product")
	assert.Equal(t, 1, f.ctrl.Products().Len())
}

func TestController_ConcurrentDeletes(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A"}, product.Product{Name: "B"}, product.Product{Name: "C"}, product.Product{Name: "D"})
	require.True(t, f.refresh(t).Success)

	cb1, wait1 := await(t)
	cb2, wait2 := await(t)
	f.ctrl.DeleteProduct(ids[0], cb1)
	f.ctrl.DeleteProduct(ids[2], cb2)
	require.True(t, wait1().Success)
	require.True(t, wait2().Success)

	items := f.ctrl.Products().Items()
	require.Len(t, items, 2)
	assert.Equal(t, ids[1], items[0].ID)
	assert.Equal(t, ids[3], items[1].ID)
}

func TestController_UpdateProduct(t *testing.T) {
	name := "Pencil"
	price := "2.5"

	tests := []struct {
		name      string
		cached    bool
		image     media.Blob
		wantImage string
	}{
		{name: "keeps image from projection", cached: true, wantImage: "https://host/old.png"},
		{name: "loads base from store", cached: false, wantImage: "https://host/old.png"},
		{name: "replaces image", cached: true, image: media.NewBytesBlob("new.png", []byte("x")), wantImage: "https://host/new.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, product.Product{Name: "Pen", Price: 10, Description: "Blue pen", ImageURL: "https://host/old.png"})
			if tt.cached {
				require.True(t, f.refresh(t).Success)
			}

			cb, wait := await(t)
			f.ctrl.UpdateProduct(ids[0], product.Patch{Name: &name, Price: &price}, tt.image, cb)
			res := wait()

			require.True(t, res.Success, res.Message)
			assert.Equal(t, "Product updated successfully", res.Message)

			want := product.Product{ID: ids[0], Name: "Pencil", Price: 2.5, Description: "Blue pen", ImageURL: tt.wantImage}
			stored, err := f.repo.Get(context.Background(), ids[0])
			require.NoError(t, err)
			assert.Equal(t, want, stored)

			local, ok := f.ctrl.Products().Find(ids[0])
			require.True(t, ok)
			assert.Equal(t, want, local)
		})
	}
}

func TestController_UpdateMissingProductDropsStaleEntry(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A"})
	require.True(t, f.refresh(t).Success)
	require.NoError(t, f.repo.Delete(context.Background(), ids[0]))

	name := "B"
	cb, wait := await(t)
	f.ctrl.UpdateProduct(ids[0], product.Patch{Name: &name}, nil, cb)
	res := wait()

	assert.False(t, res.Success)
	assert.Equal(t, "Product not found", res.Message)
	assert.True(t, recordstore.IsNotFound(res.Err))
	assert.Equal(t, 0, f.ctrl.Products().Len())
}

func TestController_UpdateUploadFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A", ImageURL: "https://host/old.png"})
	require.True(t, f.refresh(t).Success)
	f.uploader.err = media.ErrTooLarge

	cb, wait := await(t)
	f.ctrl.UpdateProduct(ids[0], product.Patch{}, media.NewBytesBlob("huge.png", []byte("x")), cb)
	res := wait()

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUploadFailed)
	assert.Contains(t, res.Message, "Failed to upload image")
	assert.Zero(t, f.store.updates.Load())
}

func TestController_UpdateRejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	empty := " "

	cb, wait := await(t)
	f.ctrl.UpdateProduct("p1", product.Patch{Name: &empty}, nil, cb)
	res := wait()

	assert.ErrorIs(t, res.Err, ErrInvalidProduct)
	assert.Zero(t, f.store.updates.Load())
}

func TestController_GetProduct(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, product.Product{Name: "A"})

	got := make(chan struct {
		p   product.Product
		res Result
	}, 1)
	f.ctrl.GetProduct(ids[0], func(p product.Product, res Result) {
		got <- struct {
			p   product.Product
			res Result
		}{p, res}
	})

	select {
	case r := <-got:
		require.True(t, r.res.Success, r.res.Message)
		assert.Equal(t, "A", r.p.Name)
		assert.Equal(t, ids[0], r.p.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("GetProduct did not complete")
	}

	missing := make(chan Result, 1)
	f.ctrl.GetProduct("nope", func(_ product.Product, res Result) { missing <- res })
	select {
	case res := <-missing:
		assert.False(t, res.Success)
		assert.Equal(t, "Product not found", res.Message)
	case <-time.After(3 * time.Second):
		t.Fatal("GetProduct did not complete")
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "uploading", StageUploading.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

func TestController_ActionFromFullLoop(t *testing.T) {
	cfg := async.DefaultConfig()
	cfg.QueueSize = 1
	f := newFixtureWithRunner(t, cfg)
	f.ctrl.Products().Upsert(product.Product{ID: "p9", Name: "Cached"})

	addCb, addWait := await(t)
	loaded := make(chan Result, 1)
	require.True(t, f.runner.Post(func() {
		// Fill the queue while the loop is busy running this callback.
		assert.True(t, f.runner.Post(func() {}))
		f.ctrl.AddProduct(product.Draft{Name: "Pen"}, nil, addCb)
		f.ctrl.GetProduct("p9", func(_ product.Product, res Result) { loaded <- res })
	}))

	res := addWait()
	assert.ErrorIs(t, res.Err, ErrMissingImage)
	select {
	case got := <-loaded:
		assert.True(t, got.Success)
	case <-time.After(3 * time.Second):
		t.Fatal("GetProduct callback not invoked")
	}
}

func TestController_StageFollowsLatestAdd(t *testing.T) {
	f := newFixture(t)

	f.uploader.err = media.ErrNotImage
	cb, wait := await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Bad"}, media.NewBytesBlob("a.txt", []byte("x")), cb)
	require.False(t, wait().Success)
	assert.Equal(t, StageFailed, f.ctrl.Stage().Get())

	f.uploader.err = nil
	cb, wait = await(t)
	f.ctrl.AddProduct(product.Draft{Name: "Good"}, media.NewBytesBlob("a.png", []byte("x")), cb)
	require.True(t, wait().Success)
	assert.Equal(t, StageDone, f.ctrl.Stage().Get())
}
