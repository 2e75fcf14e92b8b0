package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pledgekit/PledgeKit/app/models"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/payments/webhook", strings.NewReader(string(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func checkoutCompletedBody(t *testing.T, eventID, contributionID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": payments.EventCheckoutCompleted,
		"data": map[string]interface{}{
			"checkoutId": "cs_1",
			"paymentId":  "pay_1",
			"metadata":   map[string]string{payments.MetadataContributionKey: contributionID},
		},
	})
	require.NoError(t, err)
	return body
}

func seedPendingContribution(repo *memRepo, id string) {
	repo.projects[1] = &models.Project{ID: 1, OwnerID: 42, Title: "Solar Garden"}
	repo.contributions[id] = &models.Contribution{
		ID:            id,
		ProjectID:     1,
		ContributorID: 7,
		AmountCents:   10000,
		Currency:      "EUR",
		Status:        models.ContributionStatusPending,
	}
}

func TestWebhookRejectsMissingSecret(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")
	repo := newMemRepo()
	app, _ := newTestApp(repo)

	body := checkoutCompletedBody(t, "evt_1", "c1")
	status, decoded := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "webhook_secret_unconfigured", decoded["error"])
	assert.Empty(t, repo.events)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)
	repo := newMemRepo()
	seedPendingContribution(repo, "c1")
	app, _ := newTestApp(repo)

	body := checkoutCompletedBody(t, "evt_1", "c1")
	status, decoded := postWebhook(t, app, body, signBody(body, "wrong_secret"))

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", decoded["error"])
	assert.Empty(t, repo.events, "a rejected delivery must leave no ledger entry")
	assert.Equal(t, models.ContributionStatusPending, repo.contributions["c1"].Status)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)
	app, _ := newTestApp(newMemRepo())

	body := []byte(`{"id":"evt_1"}`)
	status, decoded := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", decoded["error"])
}

func TestWebhookAppliesEventAndNotifiesStream(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)
	repo := newMemRepo()
	seedPendingContribution(repo, "c1")
	app, hub := newTestApp(repo)

	owner := hub.Register(0, 42)
	otherOwner := hub.Register(0, 99)

	body := checkoutCompletedBody(t, "evt_1", "c1")
	status, decoded := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, decoded["received"])
	assert.Equal(t, models.ContributionStatusSucceeded, repo.contributions["c1"].Status)
	assert.NotNil(t, repo.events["evt_1"].ProcessedAt)

	select {
	case evt := <-owner.C:
		assert.Equal(t, realtime.EventContributionSucceeded, evt.Name)
		assert.Equal(t, "c1", evt.ContributionID)
		assert.Equal(t, int64(10000), evt.AmountCents)
	default:
		t.Fatal("project owner expected a stream event")
	}
	assert.Len(t, otherOwner.C, 0, "other owners must not see the event")
}

func TestWebhookDuplicateDeliveryIsAcknowledgedOnce(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)
	repo := newMemRepo()
	seedPendingContribution(repo, "c1")
	app, hub := newTestApp(repo)

	owner := hub.Register(0, 42)
	body := checkoutCompletedBody(t, "evt_1", "c1")

	status1, decoded1 := postWebhook(t, app, body, signBody(body, testWebhookSecret))
	status2, decoded2 := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status1)
	assert.Equal(t, fiber.StatusOK, status2)
	assert.Nil(t, decoded1["duplicate"])
	assert.Equal(t, true, decoded2["duplicate"])

	assert.Equal(t, models.ContributionStatusSucceeded, repo.contributions["c1"].Status)
	assert.Len(t, repo.events, 1)
	assert.Len(t, owner.C, 1, "the duplicate must not produce a second stream event")
}

func TestWebhookUnknownEventTypeIsAccepted(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)
	repo := newMemRepo()
	app, _ := newTestApp(repo)

	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_x",
		"type": "payout.created",
		"data": map[string]interface{}{},
	})
	require.NoError(t, err)

	status, decoded := postWebhook(t, app, body, signBody(body, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, decoded["received"])
	assert.NotNil(t, repo.events["evt_x"].ProcessedAt)
}
