package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pthm-cable/blight/blob"
)

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestNew_StaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "exports",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Driver() != blob.DriverS3 {
		t.Fatalf("driver = %s", store.Driver())
	}
}

func TestNotFoundMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"head not found", fmt.Errorf("op: %w", &types.NotFound{}), true},
		{"other", errors.New("access denied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(notFound(tt.err, "k"), blob.ErrNotFound)
			if got != tt.want {
				t.Fatalf("ErrNotFound = %v, want %v", got, tt.want)
			}
		})
	}
}
