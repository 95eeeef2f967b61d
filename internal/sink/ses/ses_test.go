package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	err       error
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestName(t *testing.T) {
	t.Parallel()
	if got := NewWithClient("", &mockSESClient{}).Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestAppend(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	s := NewWithClient("feeds@example.com", mock)
	raw := []byte("Subject: hi\r\n\r\nbody")
	if err := s.Append(context.Background(), "Feeds/Tech news", raw); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	in := mock.lastInput
	if string(in.Content.Raw.Data) != string(raw) {
		t.Errorf("raw data = %q", in.Content.Raw.Data)
	}
	if got := aws.ToString(in.FromEmailAddress); got != "feeds@example.com" {
		t.Errorf("FromEmailAddress = %q", got)
	}
	if len(in.EmailTags) != 1 || aws.ToString(in.EmailTags[0].Value) != "Feeds_Tech_news" {
		t.Errorf("EmailTags = %+v", in.EmailTags)
	}
}

func TestAppendWithoutSenderOrMailbox(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	if err := NewWithClient("", mock).Append(context.Background(), "", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if mock.lastInput.FromEmailAddress != nil || mock.lastInput.EmailTags != nil {
		t.Errorf("input = %+v", mock.lastInput)
	}
}

func TestAppendError(t *testing.T) {
	t.Parallel()

	boom := errors.New("throttled")
	err := NewWithClient("", &mockSESClient{err: boom}).Append(context.Background(), "INBOX", []byte("x"))
	if !errors.Is(err, boom) {
		t.Errorf("Append() error = %v, want wrapped %v", err, boom)
	}
}
