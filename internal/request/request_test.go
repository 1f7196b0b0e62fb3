package request

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_CreateMessageRequest(t *testing.T) {
	ok := CreateMessageRequest{SenderID: "MYCO", Recipient: "+15551234567", Text: "Hello"}
	assert.NoError(t, Validate(ok))

	bad := []CreateMessageRequest{
		{Recipient: "+15551234567", Text: "Hello"},
		{SenderID: "MYCO", Text: "Hello"},
		{SenderID: "MYCO", Recipient: "+15551234567"},
		{SenderID: strings.Repeat("A", 12), Recipient: "+15551234567", Text: "Hello"},
		{SenderID: "MYCO", Recipient: strings.Repeat("1", 16), Text: "Hello"},
	}
	for _, r := range bad {
		assert.Error(t, Validate(r), "%+v", r)
	}
}

func TestValidate_DeliveryReceipt(t *testing.T) {
	assert.NoError(t, Validate(DeliveryReceipt{ProviderReference: "ref", Status: "DELIVERED"}))
	assert.Error(t, Validate(DeliveryReceipt{Status: "DELIVERED"}))
	assert.Error(t, Validate(DeliveryReceipt{ProviderReference: "ref"}))
}

func TestValidate_SchedulerRequest(t *testing.T) {
	assert.NoError(t, Validate(SchedulerRequest{Action: "start"}))
	assert.Error(t, Validate(SchedulerRequest{Action: "pause"}))
}
