package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
)

func newTestMessageService() (*MessageService, *fakeRepo, *fakeQueue) {
	repo := newFakeRepo()
	q := &fakeQueue{}
	return NewMessageService(repo, q, []string{"MYCO", " ACME "}, discardLogger()), repo, q
}

func validInput(key string) SubmitInput {
	return SubmitInput{IdempotencyKey: key, SenderID: "MYCO", Recipient: "+15551234567", Text: "Hello"}
}

func TestSubmit_CreatesAndEnqueues(t *testing.T) {
	svc, repo, q := newTestMessageService()

	msg, created, err := svc.Submit(context.Background(), validInput("send_msg:abc123"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.StatusInitiated, msg.Status)
	assert.Equal(t, "abc123", msg.ClientMessageID)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, []uuid.UUID{msg.ID}, q.enqueued)
}

func TestSubmit_ExistingKeyReturnsStoredRecord(t *testing.T) {
	svc, repo, q := newTestMessageService()
	ctx := context.Background()

	first, _, err := svc.Submit(ctx, validInput("send_msg:abc123"))
	require.NoError(t, err)

	// Second call is not re-validated: a now-invalid body still returns the original.
	again := SubmitInput{IdempotencyKey: "send_msg:abc123", SenderID: "NOTLISTED", Recipient: "+1", Text: "STOP"}
	second, created, err := svc.Submit(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Hello", second.Text)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 1, q.enqueuedCount())
}

func TestLookup(t *testing.T) {
	svc, _, _ := newTestMessageService()
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "send_msg:abc123")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, _, err := svc.Submit(ctx, validInput("send_msg:abc123"))
	require.NoError(t, err)

	got, err := svc.Lookup(ctx, "send_msg: abc123")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)

	var ve *domain.ValidationError
	_, err = svc.Lookup(ctx, "abc123")
	assert.ErrorAs(t, err, &ve)
}

func TestSubmit_PaddedKeyMatchesStoredRecord(t *testing.T) {
	svc, repo, q := newTestMessageService()
	ctx := context.Background()

	first, _, err := svc.Submit(ctx, validInput("send_msg:abc123"))
	require.NoError(t, err)

	second, created, err := svc.Submit(ctx, validInput("send_msg: abc123 "))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 1, q.enqueuedCount())
}

func TestSubmit_ConcurrentDuplicatesCreateOnce(t *testing.T) {
	svc, repo, q := newTestMessageService()

	const callers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[uuid.UUID]struct{}{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, ok, err := svc.Submit(context.Background(), validInput("send_msg:same"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[msg.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 1, q.enqueuedCount())
}

func TestSubmit_ValidationGating(t *testing.T) {
	tests := []struct {
		name string
		in   SubmitInput
		code string
	}{
		{name: "missing key", in: SubmitInput{SenderID: "MYCO", Recipient: "+1555", Text: "Hi"}, code: domain.CodeInvalidIdempotencyKey},
		{name: "wrong prefix", in: SubmitInput{IdempotencyKey: "abc123", SenderID: "MYCO", Recipient: "+1555", Text: "Hi"}, code: domain.CodeInvalidIdempotencyKey},
		{name: "unlisted sender", in: SubmitInput{IdempotencyKey: "send_msg:1", SenderID: "EVIL", Recipient: "+1555", Text: "Hi"}, code: domain.CodeInvalidSender},
		{name: "stop upper", in: SubmitInput{IdempotencyKey: "send_msg:2", SenderID: "MYCO", Recipient: "+1555", Text: "Reply STOP"}, code: domain.CodeForbiddenContent},
		{name: "stop lower", in: SubmitInput{IdempotencyKey: "send_msg:3", SenderID: "MYCO", Recipient: "+1555", Text: "please stop"}, code: domain.CodeForbiddenContent},
		{name: "recipient too long", in: SubmitInput{IdempotencyKey: "send_msg:4", SenderID: "MYCO", Recipient: "+12345678901234567", Text: "Hi"}, code: domain.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, q := newTestMessageService()

			_, _, err := svc.Submit(context.Background(), tt.in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
			assert.Zero(t, repo.count())
			assert.Zero(t, q.enqueuedCount())
		})
	}
}

func TestSubmit_TrimmedWhitelistEntry(t *testing.T) {
	svc, _, _ := newTestMessageService()
	in := validInput("send_msg:acme")
	in.SenderID = "ACME"

	_, created, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSubmit_StoreAndQueueErrors(t *testing.T) {
	svc, repo, _ := newTestMessageService()
	repo.getErr = errors.New("db down")

	_, _, err := svc.Submit(context.Background(), validInput("send_msg:x"))
	require.Error(t, err)
	var ve *domain.ValidationError
	assert.False(t, errors.As(err, &ve))

	svc, _, q := newTestMessageService()
	q.enqueueErr = errors.New("redis down")
	_, _, err = svc.Submit(context.Background(), validInput("send_msg:y"))
	assert.ErrorContains(t, err, "redis down")
}

func TestGet(t *testing.T) {
	svc, _, _ := newTestMessageService()
	ctx := context.Background()

	msg, _, err := svc.Submit(ctx, validInput("send_msg:get"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
