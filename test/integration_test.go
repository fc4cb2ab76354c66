//go:build integration

package test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcelReig/mitaller/internal/checkout"
	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/gateway"
	"github.com/MarcelReig/mitaller/internal/inventory"
	"github.com/MarcelReig/mitaller/internal/orders"
	"github.com/MarcelReig/mitaller/internal/payments"
)

// fakeGateway stands in for the payment provider. CreateIntent hands out
// sequential intent ids; ParseEvent trusts the payload, since signature
// verification has its own tests against the real implementation.
type fakeGateway struct {
	intents    int
	lastParams gateway.IntentParams
	createErr  error
}

func (f *fakeGateway) CreateIntent(_ context.Context, p gateway.IntentParams) (*gateway.Intent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.intents++
	f.lastParams = p
	id := fmt.Sprintf("pi_test_%d", f.intents)
	return &gateway.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeGateway) ParseEvent(payload []byte, _ string) (*gateway.Event, error) {
	var ev gateway.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type fixtureServices struct {
	db              *sql.DB
	logger          *slog.Logger
	inventoryRepo   *inventory.Repository
	ordersRepo      *orders.Repository
	paymentsRepo    *payments.Repository
	checkoutService *checkout.Service
	ordersService   *orders.Service
	reconciler      *payments.Reconciler
}

func setupFixture(ctx context.Context, t *testing.T) (*PostgresSetup, *fixtureServices) {
	t.Helper()

	pg := SetupPostgres(ctx, t)
	t.Cleanup(pg.Cleanup)

	db := OpenDB(t, pg.ConnStr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inventoryRepo := inventory.NewRepository()
	ordersRepo := orders.NewRepository(db)
	paymentsRepo := payments.NewRepository(db)

	checkoutService, err := checkout.NewService(db, inventoryRepo, logger)
	require.NoError(t, err)

	return pg, &fixtureServices{
		db:              db,
		logger:          logger,
		inventoryRepo:   inventoryRepo,
		ordersRepo:      ordersRepo,
		paymentsRepo:    paymentsRepo,
		checkoutService: checkoutService,
		ordersService:   orders.NewService(db, ordersRepo, inventoryRepo, logger),
		reconciler:      payments.NewReconciler(db, paymentsRepo, logger),
	}
}

func placeOrder(ctx context.Context, t *testing.T, f *fixtureServices, lines []checkout.CartLine) *domain.Order {
	t.Helper()

	order, err := f.checkoutService.PlaceOrder(ctx, checkout.PlaceOrderInput{
		CustomerEmail:      "ana@example.com",
		CustomerName:       "Ana García",
		ShippingAddress:    "Calle Mayor 1",
		ShippingCity:       "Palma",
		ShippingPostalCode: "07001",
		Lines:              lines,
	})
	require.NoError(t, err)
	return order
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	mugID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "18.50", 10)
	bowlID := SeedProduct(ctx, t, f.db, sellerID, "Cuenco esmaltado", "32.00", 4)

	handler := checkout.NewHandler(f.checkoutService, nil, f.logger)

	reqBody := fmt.Sprintf(`{
		"customer_email": "ana@example.com",
		"customer_name": "Ana García",
		"shipping_address": "Calle Mayor 1",
		"shipping_city": "Palma",
		"shipping_postal_code": "07001",
		"items": [
			{"product_id": "%s", "quantity": 2},
			{"product_id": "%s", "quantity": 1}
		]
	}`, mugID, bowlID)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.HandleCreate(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order domain.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))

	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{6}$`, order.OrderNumber)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "España", order.ShippingCountry)
	assert.Equal(t, "69.00", order.TotalAmount.StringFixed(2))
	require.Len(t, order.Items, 2)

	// Items snapshot the product at purchase time.
	assert.Equal(t, "Taza de cerámica", order.Items[0].ProductName)
	assert.Equal(t, "18.50", order.Items[0].ProductPrice.StringFixed(2))
	assert.Equal(t, "37.00", order.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, sellerID, order.Items[0].SellerID)

	assert.Equal(t, 8, ProductStock(ctx, t, f.db, mugID))
	assert.Equal(t, 3, ProductStock(ctx, t, f.db, bowlID))

	fetched, err := f.ordersRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, order.OrderNumber, fetched.OrderNumber)
	assert.Len(t, fetched.Items, 2)
}

func TestCheckoutInsufficientStockIsAtomic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	plentyID := SeedProduct(ctx, t, f.db, sellerID, "Plato llano", "12.00", 50)
	scarceID := SeedProduct(ctx, t, f.db, sellerID, "Jarrón único", "120.00", 1)

	handler := checkout.NewHandler(f.checkoutService, nil, f.logger)

	reqBody := fmt.Sprintf(`{
		"customer_email": "ana@example.com",
		"customer_name": "Ana García",
		"shipping_address": "Calle Mayor 1",
		"shipping_city": "Palma",
		"shipping_postal_code": "07001",
		"items": [
			{"product_id": "%s", "quantity": 3},
			{"product_id": "%s", "quantity": 2}
		]
	}`, plentyID, scarceID)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.HandleCreate(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var errs map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errs))
	assert.Contains(t, errs["quantity"], "insufficient stock")
	assert.Contains(t, errs["quantity"], "available: 1")

	// The first line's decrement must have rolled back with the rest.
	assert.Equal(t, 50, ProductStock(ctx, t, f.db, plentyID))
	assert.Equal(t, 1, ProductStock(ctx, t, f.db, scarceID))

	list, err := f.ordersRepo.List(ctx, orders.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckoutSessionSplitsFee(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "33.33", 10)
	order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 1}})

	gw := &fakeGateway{}
	fees := domain.FeePolicy{Percent: decimal.NewFromInt(10)}
	service := payments.NewService(f.paymentsRepo, f.ordersRepo, gw, fees, f.logger)

	session, err := service.CreateCheckoutSession(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1", session.PaymentIntentID)
	assert.Equal(t, "pi_test_1_secret", session.ClientSecret)

	payment, err := f.paymentsRepo.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)

	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Equal(t, "33.33", payment.Amount.StringFixed(2))
	assert.Equal(t, "3.33", payment.MarketplaceFee.StringFixed(2))
	assert.Equal(t, "30.00", payment.SellerAmount.StringFixed(2))
	assert.Equal(t, "pi_test_1", payment.PaymentIntentID)

	// The gateway saw the same split in cents.
	assert.Equal(t, int64(3333), gw.lastParams.AmountCents)
	assert.Equal(t, int64(333), gw.lastParams.ApplicationFeeCents)
	assert.NotEmpty(t, gw.lastParams.DestinationAccount)

	// Retrying before the payment settles reuses the payment row.
	again, err := service.CreateCheckoutSession(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_2", again.PaymentIntentID)
	assert.Equal(t, payment.ID, again.PaymentID)
}

func TestCheckoutSessionRejections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)

	gw := &fakeGateway{}
	fees := domain.FeePolicy{Percent: decimal.NewFromInt(10)}
	service := payments.NewService(f.paymentsRepo, f.ordersRepo, gw, fees, f.logger)

	t.Run("unknown order", func(t *testing.T) {
		_, err := service.CreateCheckoutSession(ctx, uuid.New())
		assert.ErrorIs(t, err, payments.ErrOrderNotFound)
	})

	t.Run("seller not payable", func(t *testing.T) {
		disabledSeller := SeedSeller(ctx, t, f.db, "Taller cerrado")
		_, err := f.db.ExecContext(ctx,
			`UPDATE sellers SET payments_enabled = FALSE WHERE id = $1`, disabledSeller)
		require.NoError(t, err)
		otherProduct := SeedProduct(ctx, t, f.db, disabledSeller, "Pieza", "10.00", 5)
		order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: otherProduct, Quantity: 1}})

		_, err = service.CreateCheckoutSession(ctx, order.ID)
		assert.ErrorIs(t, err, payments.ErrSellerNotReady)
	})

	t.Run("gateway failure marks payment failed", func(t *testing.T) {
		order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 1}})

		gw.createErr = fmt.Errorf("provider is down")
		defer func() { gw.createErr = nil }()

		_, err := service.CreateCheckoutSession(ctx, order.ID)
		assert.ErrorIs(t, err, payments.ErrGateway)

		payment, err := f.paymentsRepo.GetByOrderID(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, payment)
		assert.Equal(t, domain.PaymentStatusFailed, payment.Status)
		assert.Contains(t, payment.FailureMessage, "provider is down")
	})
}

func TestReconcilerLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)
	order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 2}})

	gw := &fakeGateway{}
	fees := domain.FeePolicy{Percent: decimal.NewFromInt(10)}
	service := payments.NewService(f.paymentsRepo, f.ordersRepo, gw, fees, f.logger)

	session, err := service.CreateCheckoutSession(ctx, order.ID)
	require.NoError(t, err)

	succeeded := &gateway.Event{
		Type:       gateway.EventPaymentSucceeded,
		IntentID:   session.PaymentIntentID,
		ChargeID:   "ch_abc",
		TransferID: "tr_abc",
	}

	event, err := f.reconciler.Apply(ctx, succeeded)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, order.OrderNumber, event.OrderNumber)
	assert.Equal(t, "40.00", event.Amount)

	payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "ch_abc", payment.ChargeID)
	assert.Equal(t, "tr_abc", payment.TransferID)
	require.NotNil(t, payment.PaidAt)
	firstPaidAt := *payment.PaidAt

	updated, err := f.ordersRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, updated.PaymentStatus)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)

	t.Run("repeated delivery is idempotent", func(t *testing.T) {
		event, err := f.reconciler.Apply(ctx, succeeded)
		require.NoError(t, err)
		assert.Nil(t, event)

		payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
		assert.Equal(t, firstPaidAt, *payment.PaidAt)
	})

	t.Run("late failure never downgrades success", func(t *testing.T) {
		event, err := f.reconciler.Apply(ctx, &gateway.Event{
			Type:           gateway.EventPaymentFailed,
			IntentID:       session.PaymentIntentID,
			FailureMessage: "card declined",
		})
		require.NoError(t, err)
		assert.Nil(t, event)

		payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
		assert.Empty(t, payment.FailureMessage)
	})

	t.Run("refund moves success forward", func(t *testing.T) {
		event, err := f.reconciler.Apply(ctx, &gateway.Event{
			Type:     gateway.EventChargeRefunded,
			IntentID: session.PaymentIntentID,
			ChargeID: "ch_abc",
		})
		require.NoError(t, err)
		assert.Nil(t, event)

		payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRefunded, payment.Status)

		updated, err := f.ordersRepo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRefunded, updated.PaymentStatus)
	})

	t.Run("unknown intent is acknowledged and dropped", func(t *testing.T) {
		event, err := f.reconciler.Apply(ctx, &gateway.Event{
			Type:     gateway.EventPaymentSucceeded,
			IntentID: "pi_never_seen",
		})
		require.NoError(t, err)
		assert.Nil(t, event)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)
	order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 1}})

	const webhookSecret = "whsec_integration"
	stripeGW := gateway.NewStripeGateway("sk_test_x", webhookSecret)
	fees := domain.FeePolicy{Percent: decimal.NewFromInt(10)}

	// Sessions are created against the fake; deliveries arrive through the
	// real signature verification.
	fakeGW := &fakeGateway{}
	service := payments.NewService(f.paymentsRepo, f.ordersRepo, fakeGW, fees, f.logger)
	handler := payments.NewHandler(service, f.reconciler, f.paymentsRepo, stripeGW, nil, f.logger)

	session, err := service.CreateCheckoutSession(ctx, order.ID)
	require.NoError(t, err)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_int_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "%s", "latest_charge": {"id": "ch_int"}}}
	}`, session.PaymentIntentID))

	t.Run("missing signature is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(string(payload)))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad signature is rejected without touching state", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", signPayload(payload, "whsec_wrong", time.Now()))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	})

	t.Run("valid delivery settles the payment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", signPayload(payload, webhookSecret, time.Now()))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
		assert.Equal(t, "ch_int", payment.ChargeID)
	})

	t.Run("unhandled event types are acknowledged", func(t *testing.T) {
		other := []byte(`{"id": "evt_int_2", "type": "customer.created", "data": {"object": {}}}`)
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(string(other)))
		req.Header.Set("Stripe-Signature", signPayload(other, webhookSecret, time.Now()))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCancellationRestoresStockOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	mugID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)
	bowlID := SeedProduct(ctx, t, f.db, sellerID, "Cuenco esmaltado", "32.00", 5)
	order := placeOrder(ctx, t, f, []checkout.CartLine{
		{ProductID: mugID, Quantity: 3},
		{ProductID: bowlID, Quantity: 2},
	})
	require.Equal(t, 7, ProductStock(ctx, t, f.db, mugID))
	require.Equal(t, 3, ProductStock(ctx, t, f.db, bowlID))

	handler := orders.NewHandler(f.ordersRepo, f.ordersService, nil, f.logger)

	cancelReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch,
			"/orders/"+order.ID.String()+"/status", strings.NewReader(`{"status": "cancelled"}`))
		req.SetPathValue("id", order.ID.String())
		rec := httptest.NewRecorder()
		handler.HandleUpdateStatus(rec, req)
		return rec
	}

	rec := cancelReq()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 10, ProductStock(ctx, t, f.db, mugID))
	assert.Equal(t, 5, ProductStock(ctx, t, f.db, bowlID))

	// A second cancellation is an invalid transition and must not restore
	// the stock again.
	rec = cancelReq()
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 10, ProductStock(ctx, t, f.db, mugID))
	assert.Equal(t, 5, ProductStock(ctx, t, f.db, bowlID))
}

func TestDeleteItemRestoresStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	mugID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "18.50", 10)
	bowlID := SeedProduct(ctx, t, f.db, sellerID, "Cuenco esmaltado", "32.00", 4)
	order := placeOrder(ctx, t, f, []checkout.CartLine{
		{ProductID: mugID, Quantity: 2},
		{ProductID: bowlID, Quantity: 1},
	})
	require.Equal(t, "69.00", order.TotalAmount.StringFixed(2))
	require.Equal(t, 8, ProductStock(ctx, t, f.db, mugID))

	var mugItemID uuid.UUID
	for _, item := range order.Items {
		if item.ProductID == mugID {
			mugItemID = item.ID
		}
	}
	require.NotEqual(t, uuid.Nil, mugItemID)

	handler := orders.NewHandler(f.ordersRepo, f.ordersService, nil, f.logger)

	deleteReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete,
			"/orders/"+order.ID.String()+"/items/"+mugItemID.String(), nil)
		req.SetPathValue("id", order.ID.String())
		req.SetPathValue("itemId", mugItemID.String())
		rec := httptest.NewRecorder()
		handler.HandleDeleteItem(rec, req)
		return rec
	}

	rec := deleteReq()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	require.Len(t, updated.Items, 1)
	assert.Equal(t, bowlID, updated.Items[0].ProductID)
	// The total is recomputed from the surviving items.
	assert.Equal(t, "32.00", updated.TotalAmount.StringFixed(2))

	assert.Equal(t, 10, ProductStock(ctx, t, f.db, mugID))
	assert.Equal(t, 3, ProductStock(ctx, t, f.db, bowlID))

	// Deleting the same item again must not restore stock twice.
	rec = deleteReq()
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 10, ProductStock(ctx, t, f.db, mugID))
}

func TestSessionRetryCannotClobberSettledPayment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)
	order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 1}})

	gw := &fakeGateway{}
	fees := domain.FeePolicy{Percent: decimal.NewFromInt(10)}
	service := payments.NewService(f.paymentsRepo, f.ordersRepo, gw, fees, f.logger)

	session, err := service.CreateCheckoutSession(ctx, order.ID)
	require.NoError(t, err)

	// The webhook settles the intent after a retrying caller has already
	// read the payment row.
	stale, err := f.paymentsRepo.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)

	_, err = f.reconciler.Apply(ctx, &gateway.Event{
		Type:     gateway.EventPaymentSucceeded,
		IntentID: session.PaymentIntentID,
		ChargeID: "ch_settled",
	})
	require.NoError(t, err)

	// The stale retry must not knock the settled payment back to PENDING.
	err = f.paymentsRepo.Reset(ctx, stale)
	assert.ErrorIs(t, err, payments.ErrAlreadyPaid)

	// Nor may a stale gateway failure downgrade it.
	require.NoError(t, f.paymentsRepo.MarkFailed(ctx, stale.ID, "provider is down"))

	payment, err := f.paymentsRepo.GetByID(ctx, session.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "ch_settled", payment.ChargeID)
	assert.Empty(t, payment.FailureMessage)
	require.NotNil(t, payment.PaidAt)
}

func TestDeleteSellerGuard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, f := setupFixture(ctx, t)

	sellerID := SeedSeller(ctx, t, f.db, "Taller de Marta")
	productID := SeedProduct(ctx, t, f.db, sellerID, "Taza de cerámica", "20.00", 10)
	order := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: productID, Quantity: 1}})

	// Walk the order to delivered.
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered,
	} {
		_, _, err := f.ordersService.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)
	}

	err := f.ordersService.DeleteSeller(ctx, sellerID)
	assert.ErrorIs(t, err, orders.ErrSellerHasCompletedOrders)

	// A seller with only open orders can be removed along with them.
	otherSeller := SeedSeller(ctx, t, f.db, "Taller nuevo")
	otherProduct := SeedProduct(ctx, t, f.db, otherSeller, "Pieza", "15.00", 5)
	openOrder := placeOrder(ctx, t, f, []checkout.CartLine{{ProductID: otherProduct, Quantity: 1}})

	require.NoError(t, f.ordersService.DeleteSeller(ctx, otherSeller))

	gone, err := f.ordersRepo.GetByID(ctx, openOrder.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	seller, err := f.ordersRepo.GetSeller(ctx, otherSeller)
	require.NoError(t, err)
	assert.Nil(t, seller)
}

// signPayload matches the provider's webhook signature scheme.
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", at.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
