// Package httpclient issues the flow's HTTP calls.
//
// Every request goes to one gateway base URL; the target backend is chosen by
// overriding the Host header. Each call carries a bearer credential, a fresh
// X-Request-Id and, when tracing is on, W3C trace context.
//
// # Acceptable statuses
//
// A [Request] may list the statuses that count as non-failing for that call.
// With no list, 200-399 is non-failing. A status outside the set returns the
// [Response] together with a [*StatusError]:
//
//	resp, err := client.Do(ctx, httpclient.Request{
//		Method:     http.MethodPost,
//		Host:       "order-dev.example.com",
//		Path:       "/api/v2/orders",
//		Body:       order,
//		Acceptable: []int{200, 404, 500, 502, 503, 504},
//		Token:      token,
//		Step:       "STEP5",
//	})
//
// The client never retries. Retry and convergence policies live in the
// runner package.
//
// # Metrics
//
// Every exchange, including transport failures, is reported to the
// configured [Recorder] under the request's step tag.
package httpclient
