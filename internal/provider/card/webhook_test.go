package card

import (
	"testing"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	header := Sign(payload, testSecret, now)
	assert.NoError(t, VerifySignature(payload, header, testSecret, now, DefaultTolerance))
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	now := time.Now()
	header := Sign([]byte(`{"id":"evt_1"}`), testSecret, now)

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := Sign(payload, "whsec_other", now)

	err := VerifySignature(payload, header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureExpiredTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := Sign(payload, testSecret, now.Add(-10*time.Minute))

	err := VerifySignature(payload, header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrBadSignature)

	// A timestamp from the future is rejected just the same.
	header = Sign(payload, testSecret, now.Add(10*time.Minute))
	err = VerifySignature(payload, header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	for _, header := range []string{
		"",
		"t=123",
		"v1=deadbeef",
		"garbage",
		"t=notanumber,v1=deadbeef",
	} {
		err := VerifySignature(payload, header, testSecret, now, DefaultTolerance)
		assert.ErrorIs(t, err, ErrBadSignature, "header %q", header)
	}
}

func TestParseEventSessionCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_abc",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_123",
			"amount_total": 5498,
			"shipping_cost": {"amount_total": 499},
			"metadata": {"order_id": "order-1"}
		}}
	}`)

	env, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "order-1", env.OrderID)
	assert.Equal(t, "evt_abc", env.ExternalID)
	assert.Equal(t, models.ProviderCard, env.Provider)
	assert.Equal(t, int64(5498), env.ReportedTotal)
	assert.True(t, env.AuthoritativeForShipping)
	require.NotNil(t, env.ReportedShipping)
	assert.Equal(t, int64(499), *env.ReportedShipping)
}

func TestParseEventSessionCompletedWithoutShipping(t *testing.T) {
	payload := []byte(`{
		"id": "evt_abc",
		"type": "checkout.session.completed",
		"data": {"object": {
			"amount_total": 4999,
			"metadata": {"order_id": "order-1"}
		}}
	}`)

	env, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.True(t, env.AuthoritativeForShipping)
	assert.Nil(t, env.ReportedShipping)
}

func TestParseEventPaymentSucceeded(t *testing.T) {
	payload := []byte(`{
		"id": "evt_pi",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"amount_total": 5498,
			"shipping_cost": {"amount_total": 499},
			"metadata": {"order_id": "order-1"}
		}}
	}`)

	env, err := ParseEvent(payload)
	require.NoError(t, err)
	// The charge confirmation carries no shipping authority even when the
	// payload reports an amount.
	assert.False(t, env.AuthoritativeForShipping)
	assert.Nil(t, env.ReportedShipping)
	assert.Equal(t, "order-1", env.OrderID)
}

func TestParseEventUnsupportedType(t *testing.T) {
	payload := []byte(`{"id": "evt_x", "type": "invoice.created", "data": {"object": {}}}`)

	_, err := ParseEvent(payload)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParseEventInvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}
