package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byNumber  map[string]*Order
	createErr error
	updateErr error
	stats     []StatusStat
	updates   int
}

func newMockRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{byNumber: make(map[string]*Order)}
	for _, o := range orders {
		m.byNumber[o.Number] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byNumber[o.Number] = o
	return nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	o, ok := m.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.StatusHistory = append([]StatusChange(nil), o.StatusHistory...)
	return &cp, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order, prev Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.byNumber[o.Number]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != prev {
		return ErrConflict
	}
	m.byNumber[o.Number] = o
	m.updates++
	return nil
}

func (m *mockOrderRepo) ListByUser(context.Context, string, Page) ([]Order, int, error) {
	return nil, 0, nil
}

func (m *mockOrderRepo) List(context.Context, ListFilter) ([]Order, int, error) {
	return nil, 0, nil
}

func (m *mockOrderRepo) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, o := range m.byNumber {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) StatsByStatus(context.Context) ([]StatusStat, error) {
	return m.stats, nil
}

type fixedNumbers struct {
	next []string
	err  error
}

func (f *fixedNumbers) Next(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	n := f.next[0]
	f.next = f.next[1:]
	return n, nil
}

type recordingNotifier struct {
	created []string
	changed []string
	err     error
}

func (r *recordingNotifier) OrderCreated(_ context.Context, o *Order) error {
	r.created = append(r.created, o.Number)
	return r.err
}

func (r *recordingNotifier) OrderStatusChanged(_ context.Context, o *Order, from Status) error {
	r.changed = append(r.changed, string(from)+"->"+string(o.Status))
	return r.err
}

// --- Helpers ---

var testNow = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func newTestService(repo Repository, notifier Notifier) *Service {
	svc := NewService(repo, &fixedNumbers{next: []string{"2501150001", "2501150002"}}, notifier, 7)
	svc.now = func() time.Time { return testNow }
	return svc
}

func shipTo() address.Snapshot {
	return address.Snapshot{FullName: "Rahim", Phone: "017", Line1: "Road 1", City: "Dhaka"}
}

func placeRequest() PlaceRequest {
	return PlaceRequest{
		UserID: "u1",
		Items: []Item{{
			ProductID: "p1",
			Snapshot:  product.Snapshot{Name: "Globe", Price: d("250"), Discount: d("50")},
			Quantity:  3,
		}},
		Pricing:         Pricing{Subtotal: d("600"), Total: d("660")},
		ShippingAddress: shipTo(),
		PaymentID:       "2501150001",
		PaymentMethod:   "cash_on_delivery",
	}
}

func storedOrder(status Status) *Order {
	return &Order{
		ID:            "o1",
		Number:        "2501150007",
		UserID:        "u1",
		Status:        status,
		StatusHistory: []StatusChange{{Status: status, UpdatedAt: testNow.Add(-time.Hour)}},
	}
}

// --- Tests ---

func TestPlace(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending order", func(t *testing.T) {
		repo := newMockRepo()
		notifier := &recordingNotifier{}
		svc := newTestService(repo, notifier)

		o, err := svc.Place(ctx, placeRequest())
		require.NoError(t, err)

		assert.Equal(t, "2501150001", o.Number)
		assert.NotEmpty(t, o.ID)
		assert.Equal(t, StatusPending, o.Status)
		require.Len(t, o.StatusHistory, 1)
		assert.Equal(t, StatusPending, o.StatusHistory[0].Status)
		assert.Equal(t, testNow, o.CreatedAt)
		assert.True(t, d("600").Equal(o.Items[0].Total))
		assert.Equal(t, shipTo(), o.BillingAddress, "billing defaults to shipping")
		assert.Equal(t, []string{"2501150001"}, notifier.created)
		assert.Contains(t, repo.byNumber, "2501150001")

		second, err := svc.Place(ctx, placeRequest())
		require.NoError(t, err)
		assert.Equal(t, "2501150002", second.Number)
	})

	t.Run("keeps pre-assigned id", func(t *testing.T) {
		svc := newTestService(newMockRepo(), &recordingNotifier{})
		req := placeRequest()
		req.ID = "fixed-id"

		o, err := svc.Place(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", o.ID)
	})

	t.Run("notifier failure does not fail placement", func(t *testing.T) {
		svc := newTestService(newMockRepo(), &recordingNotifier{err: errors.New("broker down")})
		_, err := svc.Place(ctx, placeRequest())
		require.NoError(t, err)
	})

	tests := []struct {
		name    string
		modify  func(r *PlaceRequest)
		wantErr error
	}{
		{name: "no items", modify: func(r *PlaceRequest) { r.Items = nil }, wantErr: ErrEmptyItems},
		{name: "no shipping address", modify: func(r *PlaceRequest) { r.ShippingAddress = address.Snapshot{} }, wantErr: ErrShippingAddressRequired},
		{name: "no payment", modify: func(r *PlaceRequest) { r.PaymentID = "" }, wantErr: ErrPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := newTestService(repo, &recordingNotifier{})
			req := placeRequest()
			tt.modify(&req)

			_, err := svc.Place(ctx, req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.byNumber)
		})
	}

	t.Run("invalid quantity", func(t *testing.T) {
		svc := newTestService(newMockRepo(), &recordingNotifier{})
		req := placeRequest()
		req.Items[0].Quantity = 0

		_, err := svc.Place(ctx, req)
		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)
		assert.Equal(t, "p1", iqErr.ProductID)
	})

	t.Run("number allocation failure", func(t *testing.T) {
		svc := NewService(newMockRepo(), &fixedNumbers{err: errors.New("db down")}, &recordingNotifier{}, 7)
		_, err := svc.Place(ctx, placeRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "allocate order number")
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("shipping stamps time and tracking", func(t *testing.T) {
		repo := newMockRepo(storedOrder(StatusProcessing))
		notifier := &recordingNotifier{}
		svc := newTestService(repo, notifier)
		eta := testNow.AddDate(0, 0, 3)

		o, err := svc.UpdateStatus(ctx, "2501150007", StatusShipped, UpdateOptions{
			Note:              "Handed to courier",
			TrackingNumber:    "TRK-1",
			EstimatedDelivery: &eta,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusShipped, o.Status)
		require.NotNil(t, o.ShippedAt)
		assert.Equal(t, testNow, *o.ShippedAt)
		assert.Equal(t, "TRK-1", o.TrackingNumber)
		assert.Equal(t, &eta, o.EstimatedDelivery)
		require.Len(t, o.StatusHistory, 2)
		assert.Equal(t, "Handed to courier", o.StatusHistory[1].Note)
		assert.Equal(t, []string{"processing->shipped"}, notifier.changed)
	})

	t.Run("delivery stamps actual date", func(t *testing.T) {
		repo := newMockRepo(storedOrder(StatusShipped))
		svc := newTestService(repo, &recordingNotifier{})

		o, err := svc.UpdateStatus(ctx, "2501150007", StatusDelivered, UpdateOptions{})
		require.NoError(t, err)
		require.NotNil(t, o.ActualDeliveryDate)
		assert.Equal(t, testNow, *o.ActualDeliveryDate)
	})

	t.Run("illegal transition", func(t *testing.T) {
		repo := newMockRepo(storedOrder(StatusDelivered))
		svc := newTestService(repo, &recordingNotifier{})

		_, err := svc.UpdateStatus(ctx, "2501150007", StatusPending, UpdateOptions{})
		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr)
		assert.Equal(t, StatusDelivered, itErr.From)
		assert.Equal(t, StatusPending, itErr.To)
		assert.Zero(t, repo.updates)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := newTestService(newMockRepo(storedOrder(StatusPending)), &recordingNotifier{})
		_, err := svc.UpdateStatus(ctx, "2501150007", "lost", UpdateOptions{})
		require.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := newTestService(newMockRepo(), &recordingNotifier{})
		_, err := svc.UpdateStatus(ctx, "nope", StatusConfirmed, UpdateOptions{})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent change", func(t *testing.T) {
		repo := newMockRepo(storedOrder(StatusPending))
		repo.updateErr = ErrConflict
		svc := newTestService(repo, &recordingNotifier{})
		_, err := svc.UpdateStatus(ctx, "2501150007", StatusConfirmed, UpdateOptions{})
		require.ErrorIs(t, err, ErrConflict)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending order", func(t *testing.T) {
		repo := newMockRepo(storedOrder(StatusPending))
		svc := newTestService(repo, &recordingNotifier{})

		o, err := svc.Cancel(ctx, "u1", "2501150007", "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, "changed my mind", o.CancelReason)
	})

	t.Run("other user", func(t *testing.T) {
		svc := newTestService(newMockRepo(storedOrder(StatusPending)), &recordingNotifier{})
		_, err := svc.Cancel(ctx, "u2", "2501150007", "")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("too late", func(t *testing.T) {
		svc := newTestService(newMockRepo(storedOrder(StatusProcessing)), &recordingNotifier{})
		_, err := svc.Cancel(ctx, "u1", "2501150007", "")
		require.ErrorIs(t, err, ErrCannotCancel)
	})
}

func TestRequestReturn(t *testing.T) {
	ctx := context.Background()

	delivered := func(ago time.Duration) *Order {
		o := storedOrder(StatusDelivered)
		at := testNow.Add(-ago)
		o.ActualDeliveryDate = &at
		return o
	}

	t.Run("within window", func(t *testing.T) {
		repo := newMockRepo(delivered(3 * 24 * time.Hour))
		svc := newTestService(repo, &recordingNotifier{})

		o, err := svc.RequestReturn(ctx, "u1", "2501150007", "damaged")
		require.NoError(t, err)
		assert.True(t, o.ReturnRequested)
		assert.True(t, o.RefundRequested)
		assert.Equal(t, "damaged", o.ReturnReason)
		assert.Equal(t, StatusDelivered, o.Status)

		_, err = svc.RequestReturn(ctx, "u1", "2501150007", "again")
		require.ErrorIs(t, err, ErrReturnAlreadyRequested)
	})

	t.Run("outside window", func(t *testing.T) {
		svc := newTestService(newMockRepo(delivered(8*24*time.Hour)), &recordingNotifier{})
		_, err := svc.RequestReturn(ctx, "u1", "2501150007", "late")
		require.ErrorIs(t, err, ErrCannotReturn)
	})
}

func TestStats(t *testing.T) {
	repo := newMockRepo()
	repo.stats = []StatusStat{
		{Status: StatusDelivered, Count: 3, Revenue: d("3000")},
		{Status: StatusPending, Count: 2, Revenue: d("500")},
		{Status: StatusCancelled, Count: 1, Revenue: d("999")},
	}
	svc := newTestService(repo, &recordingNotifier{})

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, st.TotalOrders)
	assert.True(t, d("3500").Equal(st.TotalRevenue))
	assert.Len(t, st.ByStatus, 3)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newMockRepo(), &recordingNotifier{})
	_, _, err := svc.List(context.Background(), ListFilter{Status: "lost"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
