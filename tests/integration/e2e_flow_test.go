//go:build integration

// End-to-end API flow tests that verify the complete user journey through
// the commerce system: browsing the catalog, claiming a coupon, placing an
// order and watching the purchase saga settle.
//
// These tests run against the real docker-compose infrastructure. Catalog
// and coupon data is seeded directly in the database because creation is an
// upstream concern with no public endpoint.

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_PurchaseFlow walks the purchase happy path:
// 1. Seed a user with points, a brand, a product and a claimed coupon
// 2. Place an order via API combining the coupon and points
// 3. Get the order via API and check the amount arithmetic
// 4. Wait for the saga to settle and check the matching stock invariant
func TestE2E_PurchaseFlow(t *testing.T) {
	cleanupTables(t)

	const (
		externalUserID = "e2e_buyer"
		initialPoints  = 500
		usedPoints     = 200
		productPrice   = 10000
		initialStock   = 10
		quantity       = 2
		discount       = 1000
		couponCode     = "E2E_WELCOME"
	)

	t.Log("Step 1: Seeding user, product and claimed coupon")
	userID := seedUser(t, externalUserID, initialPoints)
	brandID := seedBrand(t, "E2E Brand")
	productID := seedProduct(t, brandID, "E2E Sneaker", productPrice, initialStock)
	couponID := seedCoupon(t, couponCode, discount, 10)
	grantCoupon(t, userID, couponID)

	t.Log("Step 2: Placing order via API")
	orderResp, err := postJSON(formatURL("/api/orders"), map[string]interface{}{
		"user_id":     externalUserID,
		"items":       []map[string]interface{}{{"product_id": productID, "quantity": quantity}},
		"used_points": usedPoints,
		"coupon_code": couponCode,
		"card_type":   "SAMSUNG",
		"card_no":     "1234-5678-9012-3456",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, orderResp.StatusCode, "Order should be accepted")

	var order map[string]interface{}
	require.NoError(t, readJSONResponse(orderResp, &order))

	orderID, _ := order["id"].(string)
	require.NotEmpty(t, orderID, "Order should have an id")

	const subtotal = productPrice * quantity
	assert.Equal(t, float64(subtotal), order["subtotal"], "Subtotal should be price times quantity")
	assert.Equal(t, float64(discount), order["discount_amount"], "Discount should match the coupon")
	assert.Equal(t, float64(usedPoints), order["used_points"], "Used points should match the request")
	assert.Equal(t, float64(subtotal-discount-usedPoints), order["total_amount"],
		"Total should be subtotal minus discount minus points")

	t.Log("Step 3: Getting order via API")
	getResp, err := getJSON(formatURL("/api/orders/" + orderID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode, "Order should be readable")

	var fetched map[string]interface{}
	require.NoError(t, readJSONResponse(getResp, &fetched))
	assert.Equal(t, orderID, fetched["id"], "Fetched order should match")
	items, ok := fetched["items"].([]interface{})
	require.True(t, ok, "Order should carry its items")
	require.Len(t, items, 1)
	line, _ := items[0].(map[string]interface{})
	assert.Equal(t, float64(productID), line["product_id"])
	assert.Equal(t, "E2E Sneaker", line["product_name"], "Item should snapshot the product name")
	assert.Equal(t, float64(productPrice), line["price"], "Item should snapshot the price")

	t.Log("Step 4: Waiting for the saga to settle")
	status := waitForOrderSettled(t, orderID, 10*time.Second)
	t.Logf("  Order settled as %s", status)

	finalStock := stockFromDB(t, productID)
	switch status {
	case "PENDING", "COMPLETED":
		assert.Equal(t, int64(initialStock-quantity), finalStock,
			"Stock should stay reserved while the order is %s", status)
	case "CANCELED":
		assert.Equal(t, int64(initialStock), finalStock,
			"Canceled order should restore the stock")
	default:
		t.Fatalf("Unexpected order status %q", status)
	}

	// The outbox row for OrderCreated must exist regardless of the outcome
	var outboxCount int64
	err = testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM outbox_events WHERE aggregate_id = $1 AND event_type = 'OrderCreated'",
		orderID).Scan(&outboxCount)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outboxCount, "Order placement should leave exactly one outbox row")

	t.Log("E2E purchase flow completed successfully!")
}

// TestE2E_ClaimFlow walks the coupon claim path:
// 1. Seed a coupon and a user
// 2. Get the coupon via API
// 3. Claim it via API
// 4. Verify the claim shows up in the GET response
func TestE2E_ClaimFlow(t *testing.T) {
	cleanupTables(t)

	const (
		couponCode     = "E2E_CLAIM"
		quantity       = 100
		externalUserID = "e2e_claimer"
	)

	t.Log("Step 1: Seeding coupon and user")
	seedCoupon(t, couponCode, 500, quantity)
	seedUser(t, externalUserID, 0)

	t.Log("Step 2: Getting coupon via API")
	getResp, err := getJSON(formatURL("/api/coupons/" + couponCode))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode, "Should get coupon successfully")

	var couponData map[string]interface{}
	require.NoError(t, readJSONResponse(getResp, &couponData))
	assert.Equal(t, couponCode, couponData["code"], "Coupon code should match")
	assert.Equal(t, "FIXED", couponData["type"])
	assert.Equal(t, float64(quantity), couponData["remaining_quantity"],
		"Remaining quantity should equal total initially")
	assert.Empty(t, couponData["claimed_by"], "No claims initially")

	t.Log("Step 3: Claiming coupon via API")
	claimResp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     externalUserID,
		"coupon_code": couponCode,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, claimResp.StatusCode, "Should claim coupon successfully")
	claimResp.Body.Close()

	t.Log("Step 4: Verifying claim via GET API")
	verifyResp, err := getJSON(formatURL("/api/coupons/" + couponCode))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	require.NoError(t, readJSONResponse(verifyResp, &couponData))
	assert.Equal(t, float64(quantity-1), couponData["remaining_quantity"],
		"Remaining quantity should decrease by 1")
	claimedBy, ok := couponData["claimed_by"].([]interface{})
	require.True(t, ok, "claimed_by should be an array")
	assert.Len(t, claimedBy, 1, "Should have 1 claimer")
	if len(claimedBy) > 0 {
		assert.Equal(t, externalUserID, claimedBy[0], "Claimer should be the test user")
	}

	t.Log("E2E claim flow completed successfully!")
}

// TestE2E_DoubleClaimPrevention verifies a user cannot claim the same coupon
// twice: the second attempt fails with 409 Conflict and the database keeps a
// single holding.
func TestE2E_DoubleClaimPrevention(t *testing.T) {
	cleanupTables(t)

	const (
		couponCode     = "E2E_DOUBLE"
		externalUserID = "e2e_greedy"
	)

	seedCoupon(t, couponCode, 500, 100)
	seedUser(t, externalUserID, 0)

	t.Log("Step 1: First claim attempt")
	claim1Resp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     externalUserID,
		"coupon_code": couponCode,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, claim1Resp.StatusCode, "First claim should succeed")
	claim1Resp.Body.Close()

	t.Log("Step 2: Second claim attempt (should fail)")
	claim2Resp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     externalUserID,
		"coupon_code": couponCode,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, claim2Resp.StatusCode, "Second claim should fail with 409")

	var errBody map[string]interface{}
	require.NoError(t, readJSONResponse(claim2Resp, &errBody))
	assert.Equal(t, "coupon already claimed by user", errBody["error"])

	remaining, claimCount := couponStateFromDB(t, couponCode)
	assert.Equal(t, int64(99), remaining, "Only 1 should be claimed")
	assert.Equal(t, int64(1), claimCount, "Should have only 1 holding")

	t.Log("E2E double claim prevention verified!")
}

// TestE2E_ExhaustedCoupon verifies claiming a fully claimed coupon fails
// with 409 Conflict.
func TestE2E_ExhaustedCoupon(t *testing.T) {
	cleanupTables(t)

	const couponCode = "E2E_EXHAUSTED"

	seedCoupon(t, couponCode, 500, 1)
	seedUser(t, "e2e_winner", 0)
	seedUser(t, "e2e_late", 0)

	t.Log("Step 1: Winner takes the last unit")
	winResp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     "e2e_winner",
		"coupon_code": couponCode,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, winResp.StatusCode)
	winResp.Body.Close()

	t.Log("Step 2: Late claimer hits an exhausted coupon")
	lateResp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     "e2e_late",
		"coupon_code": couponCode,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, lateResp.StatusCode, "Exhausted claim should fail with 409")

	var errBody map[string]interface{}
	require.NoError(t, readJSONResponse(lateResp, &errBody))
	assert.Equal(t, "coupon exhausted", errBody["error"])

	remaining, _ := couponStateFromDB(t, couponCode)
	assert.Equal(t, int64(0), remaining, "Remaining should be exactly 0, never negative")

	t.Log("E2E exhausted coupon handling verified!")
}

// TestE2E_LikeFlow walks the like path:
// 1. Seed a user and a product
// 2. Like the product, then like it again (idempotent no-op)
// 3. Unlike it, then unlike again (idempotent no-op)
func TestE2E_LikeFlow(t *testing.T) {
	cleanupTables(t)

	const externalUserID = "e2e_liker"
	seedUser(t, externalUserID, 0)
	brandID := seedBrand(t, "E2E Brand")
	productID := seedProduct(t, brandID, "E2E Likeable", 1000, 10)
	likesURL := formatURL(fmt.Sprintf("/api/products/%d/likes", productID))

	countLikes := func() int64 {
		var n int64
		err := testPool.QueryRow(context.Background(),
			"SELECT COUNT(*) FROM likes WHERE product_id = $1", productID).Scan(&n)
		require.NoError(t, err)
		return n
	}

	t.Log("Step 1: Liking the product")
	resp, err := userRequest(http.MethodPost, likesURL, externalUserID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Like should succeed")
	resp.Body.Close()
	assert.Equal(t, int64(1), countLikes(), "One like row should exist")

	t.Log("Step 2: Liking again (idempotent)")
	resp, err = userRequest(http.MethodPost, likesURL, externalUserID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Duplicate like should still return 200")
	resp.Body.Close()
	assert.Equal(t, int64(1), countLikes(), "Duplicate like should not add a row")

	t.Log("Step 3: Unliking the product")
	resp, err = userRequest(http.MethodDelete, likesURL, externalUserID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Unlike should succeed")
	resp.Body.Close()
	assert.Equal(t, int64(0), countLikes(), "Like row should be gone")

	t.Log("Step 4: Unliking again (idempotent)")
	resp, err = userRequest(http.MethodDelete, likesURL, externalUserID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Unlike of a missing like should still return 200")
	resp.Body.Close()

	t.Log("E2E like flow completed successfully!")
}

// TestE2E_CatalogFlow verifies catalog listing and detail over HTTP.
func TestE2E_CatalogFlow(t *testing.T) {
	cleanupTables(t)

	brandID := seedBrand(t, "E2E Catalog Brand")
	for i := 0; i < 3; i++ {
		seedProduct(t, brandID, fmt.Sprintf("Catalog Item %d", i), int64(1000*(i+1)), 10)
	}

	t.Log("Step 1: Listing products by brand")
	listResp, err := getJSON(formatURL(fmt.Sprintf("/api/products?brandId=%d", brandID)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var page map[string]interface{}
	require.NoError(t, readJSONResponse(listResp, &page))
	items, ok := page["items"].([]interface{})
	require.True(t, ok, "Listing should carry an items array")
	assert.Len(t, items, 3, "All seeded products should be listed")
	assert.Equal(t, false, page["has_next"], "Single page should have no next")

	t.Log("Step 2: Getting product detail")
	first, _ := items[0].(map[string]interface{})
	productID := int64(first["id"].(float64))
	detailResp, err := getJSON(formatURL(fmt.Sprintf("/api/products/%d", productID)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, detailResp.StatusCode)

	var detail map[string]interface{}
	require.NoError(t, readJSONResponse(detailResp, &detail))
	assert.Equal(t, "E2E Catalog Brand", detail["brand_name"], "Detail should join the brand name")

	t.Log("E2E catalog flow completed successfully!")
}

// TestE2E_RankingEndpoint verifies the ranking page is well-formed even with
// no traffic: an empty page is a valid answer, a malformed date is not.
func TestE2E_RankingEndpoint(t *testing.T) {
	t.Log("Step 1: Getting today's rankings")
	resp, err := getJSON(formatURL("/api/rankings"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Rankings should always answer")

	var page map[string]interface{}
	require.NoError(t, readJSONResponse(resp, &page))
	date, _ := page["date"].(string)
	assert.Regexp(t, `^\d{8}$`, date, "Date should be a YYYYMMDD day")
	_, hasEntries := page["entries"]
	assert.True(t, hasEntries, "Page should carry an entries field")
	source, _ := page["source"].(string)
	assert.Contains(t, []string{"live", "snapshot", "default"}, source,
		"Source should name which rung served the page")

	t.Log("Step 2: Rejecting a malformed date")
	badResp, err := getJSON(formatURL("/api/rankings?date=2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode, "Dashed date should be rejected")
	badResp.Body.Close()

	t.Log("Step 3: Rejecting bad paging")
	badResp, err = getJSON(formatURL("/api/rankings?size=1000"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode, "Oversized page should be rejected")
	badResp.Body.Close()

	t.Log("E2E ranking endpoint verified!")
}

// TestE2E_NotFound verifies 404 handling for every aggregate.
func TestE2E_NotFound(t *testing.T) {
	cleanupTables(t)
	seedUser(t, "e2e_nobody", 0)

	t.Log("Step 1: Getting a non-existent coupon")
	resp, err := getJSON(formatURL("/api/coupons/DOES_NOT_EXIST"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "Should return 404 for non-existent coupon")
	resp.Body.Close()

	t.Log("Step 2: Claiming a non-existent coupon")
	claimResp, err := postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     "e2e_nobody",
		"coupon_code": "DOES_NOT_EXIST",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, claimResp.StatusCode, "Should return 404 for claiming non-existent coupon")
	claimResp.Body.Close()

	t.Log("Step 3: Claiming as a non-existent user")
	claimResp, err = postJSON(formatURL("/api/coupons/claim"), map[string]string{
		"user_id":     "e2e_ghost",
		"coupon_code": "DOES_NOT_EXIST",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, claimResp.StatusCode, "Should return 404 for unknown user")
	claimResp.Body.Close()

	t.Log("Step 4: Getting a non-existent product")
	prodResp, err := getJSON(formatURL("/api/products/999999"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, prodResp.StatusCode, "Should return 404 for non-existent product")
	prodResp.Body.Close()

	t.Log("Step 5: Getting a non-existent order")
	orderResp, err := getJSON(formatURL("/api/orders/00000000-0000-0000-0000-000000000000"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, orderResp.StatusCode, "Should return 404 for non-existent order")
	orderResp.Body.Close()

	t.Log("E2E not-found handling verified!")
}

// TestE2E_Health verifies the health endpoint reports its dependencies. A
// down Redis degrades rankings but never the purchase path, so "degraded"
// still rides on a 200.
func TestE2E_Health(t *testing.T) {
	resp, err := getJSON(formatURL("/health"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Health should be OK with the database up")

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Contains(t, []interface{}{"healthy", "degraded"}, health["status"])

	components, ok := health["components"].(map[string]interface{})
	require.True(t, ok, "Health should report per-component state")
	assert.Equal(t, "up", components["database"], "Database must be up for a 200")
}
