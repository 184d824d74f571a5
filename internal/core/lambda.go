package core

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// LambdaHandler is the signature accepted by lambda.Start for function URL
// and API Gateway HTTP API (payload v2) events.
type LambdaHandler func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// NewLambdaHandler adapts h to Lambda. Each event is converted to an
// *http.Request and served by h, so the router and middleware behave the same
// as under the local HTTP server.
func NewLambdaHandler(h http.Handler) LambdaHandler {
	adapter := httpadapter.NewV2(h)
	return adapter.ProxyWithContext
}
