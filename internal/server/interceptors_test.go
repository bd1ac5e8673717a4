package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

func TestAuthInterceptor(t *testing.T) {
	const method = "/msgbus.v1.Bus/Publish"
	for _, tc := range []struct {
		name   string
		token  string
		method string
		md     metadata.MD
		want   codes.Code
	}{
		{"Disabled", "", method, nil, codes.OK},
		{"HealthCheckExempt", "secret", "/grpc.health.v1.Health/Check", nil, codes.OK},
		{"MissingMetadata", "secret", method, nil, codes.Unauthenticated},
		{"MissingHeader", "secret", method, metadata.Pairs("other", "v"), codes.Unauthenticated},
		{"WrongScheme", "secret", method, metadata.Pairs("authorization", "Basic abc"), codes.Unauthenticated},
		{"WrongToken", "secret", method, metadata.Pairs("authorization", "Bearer nope"), codes.Unauthenticated},
		{"Valid", "secret", method, metadata.Pairs("authorization", "Bearer secret"), codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			_, err := AuthInterceptor(tc.token)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, stubHandler)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %v, want %v (err=%v)", got, tc.want, err)
			}
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	panicking := func(context.Context, any) (any, error) { panic("boom") }
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, panicking)
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	resp, err := LoggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, stubHandler)
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := AuthMiddleware("secret", ok)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"HealthExempt", "GET", "/v1/health", "", 200},
		{"MetricsExempt", "GET", "/metrics", "", 200},
		{"Missing", "POST", "/v1/publish", "", 401},
		{"WrongScheme", "POST", "/v1/publish", "Token secret", 401},
		{"WrongToken", "POST", "/v1/publish", "Bearer other", 401},
		{"Valid", "POST", "/v1/publish", "Bearer secret", 200},
		{"HealthPostNotExempt", "POST", "/v1/health", "", 401},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	if AuthMiddleware("", ok) == nil {
		t.Fatal("disabled middleware returned nil")
	}
}
