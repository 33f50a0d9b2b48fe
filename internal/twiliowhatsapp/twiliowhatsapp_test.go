package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "96170123456", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
}

func TestMockClient_SendTemplateCopiesParams(t *testing.T) {
	mock := NewMockClient()
	params := []string{"2 x Tawouk", "500000 LBP", "Zalka", "+96170"}
	if err := mock.SendTemplate(context.Background(), "96170123456", params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params[0] = "changed"
	if got := mock.SentTemplates[0].Params[0]; got != "2 x Tawouk" {
		t.Errorf("recorded params alias the caller's slice: %q", got)
	}
}

func TestMockClient_Err(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("boom")
	if err := mock.SendMessage(context.Background(), "96170123456", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.SentMessages) != 0 {
		t.Errorf("failed send was recorded")
	}
}

func TestContentVariables(t *testing.T) {
	got, err := ContentVariables([]string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `{"1":"a","2":"b"}`; got != want {
		t.Errorf("ContentVariables = %s, want %s", got, want)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without a sender number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("whatsapp:+15550001"), WithContentSID("HX1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.contentSID != "HX1" {
		t.Errorf("contentSID = %q", c.contentSID)
	}
}
