package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient implements SSMClient for testing. It records calls and
// returns configurable responses.
type mockSSMClient struct {
	getParameterFn func(ctx context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	putParameterFn func(ctx context.Context, input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	getCalls []*ssm.GetParameterInput
	putCalls []*ssm.PutParameterInput
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getParameterFn != nil {
		return m.getParameterFn(ctx, params)
	}
	return &ssm.GetParameterOutput{}, nil
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putParameterFn != nil {
		return m.putParameterFn(ctx, params)
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

// notFoundClient reports every parameter as missing.
func notFoundClient() *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
		},
	}
}

func newTestSSMManager(mock *mockSSMClient, env string) *SSMManager {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSSMManagerWithClient(mock, env, logger)
}

func TestSSMPath(t *testing.T) {
	tests := []struct {
		env            string
		categoryAndKey string
		expected       string
	}{
		{"dev", "identity/firebase_service_account", "/dev/meteonotify/identity/firebase_service_account"},
		{"prod", "email/resend_api_key", "/prod/meteonotify/email/resend_api_key"},
		{"staging", "site/url", "/staging/meteonotify/site/url"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := newTestSSMManager(&mockSSMClient{}, tt.env).SSMPath(tt.categoryAndKey)
			if got != tt.expected {
				t.Errorf("SSMPath(%q) = %q, want %q", tt.categoryAndKey, got, tt.expected)
			}
		})
	}
}

func TestParameterExists(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		mock := &mockSSMClient{}
		exists, err := newTestSSMManager(mock, "dev").ParameterExists(context.Background(), "/dev/meteonotify/site/url")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !exists {
			t.Error("expected parameter to exist")
		}
		if aws.ToBool(mock.getCalls[0].WithDecryption) {
			t.Error("existence probe must not request decryption")
		}
	})

	t.Run("not found", func(t *testing.T) {
		exists, err := newTestSSMManager(notFoundClient(), "dev").ParameterExists(context.Background(), "/dev/meteonotify/site/url")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exists {
			t.Error("expected parameter to be missing")
		}
	})

	t.Run("api error", func(t *testing.T) {
		mock := &mockSSMClient{
			getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
				return nil, errors.New("AccessDeniedException")
			},
		}
		_, err := newTestSSMManager(mock, "dev").ParameterExists(context.Background(), "/dev/meteonotify/site/url")
		if err == nil || !strings.Contains(err.Error(), "AccessDeniedException") {
			t.Errorf("expected wrapped API error, got %v", err)
		}
	})
}

func TestGetParameterValue(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: input.Name, Value: aws.String("re_secret")},
			}, nil
		},
	}

	value, err := newTestSSMManager(mock, "dev").GetParameterValue(context.Background(), "/dev/meteonotify/email/resend_api_key", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "re_secret" {
		t.Errorf("expected re_secret, got %q", value)
	}
	if !aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Error("expected decryption to be requested")
	}
}

func TestGetParameterValue_NilValue(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{}, nil
		},
	}
	if _, err := newTestSSMManager(mock, "dev").GetParameterValue(context.Background(), "/dev/x", false); err == nil {
		t.Error("expected error for parameter without value")
	}
}

func TestPutSecret(t *testing.T) {
	mock := &mockSSMClient{}
	if err := newTestSSMManager(mock, "dev").PutSecret(context.Background(), "/dev/meteonotify/email/resend_api_key", "re_x", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.putCalls[0]
	if input.Type != ssmtypes.ParameterTypeSecureString {
		t.Errorf("expected SecureString, got %s", input.Type)
	}
	if aws.ToBool(input.Overwrite) {
		t.Error("expected overwrite=false")
	}
}

func TestPutString_AlwaysOverwrites(t *testing.T) {
	mock := &mockSSMClient{}
	if err := newTestSSMManager(mock, "dev").PutString(context.Background(), "/dev/meteonotify/site/url", "https://meteoburkina.bf/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.putCalls[0].Type != ssmtypes.ParameterTypeString || !aws.ToBool(mock.putCalls[0].Overwrite) {
		t.Errorf("expected overwriting String parameter, got %+v", mock.putCalls[0])
	}
}

func TestPutParameter_RejectsEmpty(t *testing.T) {
	mgr := newTestSSMManager(&mockSSMClient{}, "dev")
	if err := mgr.PutString(context.Background(), "", "v"); err == nil {
		t.Error("expected error for empty path")
	}
	if err := mgr.PutSecret(context.Background(), "/dev/x", "", true); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestPutParameter_AlreadyExists(t *testing.T) {
	mock := &mockSSMClient{
		putParameterFn: func(context.Context, *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
			return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}
		},
	}
	err := newTestSSMManager(mock, "dev").PutSecret(context.Background(), "/dev/x", "v", false)

	var alreadyExists *ssmtypes.ParameterAlreadyExists
	if !errors.As(err, &alreadyExists) {
		t.Errorf("expected ParameterAlreadyExists in chain, got %v", err)
	}
}

func TestPutSecret_DoesNotLogValue(t *testing.T) {
	var buf bytes.Buffer
	mgr := NewSSMManagerWithClient(&mockSSMClient{}, "dev", slog.New(slog.NewTextHandler(&buf, nil)))

	if err := mgr.PutSecret(context.Background(), "/dev/x", "re_topsecret", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "re_topsecret") {
		t.Errorf("secret value leaked into log: %s", buf.String())
	}
}
