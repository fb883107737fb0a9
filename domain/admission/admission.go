// Package admission provides the client-facing rejection taxonomy shared by
// the HTTP middleware and the WebSocket handler. Rejections carry only what
// a client may see; internal error detail stays in logs.
package admission

// Rejection represents a denial to return to a client (value type).
// Status is used on the HTTP surface, WSCode when the denial is delivered
// over an established WebSocket.
type Rejection struct {
	Status  int
	WSCode  int
	Code    string
	Message string
}

// WebSocket close codes. 4xxx codes are application-defined; 1009 is the
// protocol's "message too big".
const (
	WSCloseRateLimited    = 4008
	WSCloseInvalidClient  = 4000
	WSCloseMessageTooBig  = 1009
	WSClosePolicyViolated = 1008
)

// Common rejections.
var (
	ErrRateLimited = Rejection{
		Status:  429,
		WSCode:  WSCloseRateLimited,
		Code:    "rate_limit_exceeded",
		Message: "Rate limit exceeded",
	}
	ErrStoreUnavailable = Rejection{
		Status:  503,
		WSCode:  WSCloseRateLimited,
		Code:    "store_unavailable",
		Message: "Service temporarily unavailable",
	}
	ErrPoolExhausted = Rejection{
		Status:  503,
		WSCode:  WSCloseRateLimited,
		Code:    "pool_exhausted",
		Message: "Service temporarily overloaded",
	}
	ErrPayloadTooLarge = Rejection{
		Status:  413,
		WSCode:  WSCloseMessageTooBig,
		Code:    "payload_too_large",
		Message: "Message exceeds maximum size",
	}
	ErrOriginForbidden = Rejection{
		Status:  403,
		WSCode:  WSClosePolicyViolated,
		Code:    "origin_forbidden",
		Message: "Origin not allowed",
	}
	ErrInvalidClientID = Rejection{
		Status:  400,
		WSCode:  WSCloseInvalidClient,
		Code:    "invalid_client_id",
		Message: "Invalid client ID",
	}
	ErrDuplicateSession = Rejection{
		Status:  409,
		WSCode:  WSCloseInvalidClient,
		Code:    "duplicate_session",
		Message: "Session already registered",
	}
	ErrUnknownSession = Rejection{
		Status:  400,
		WSCode:  WSClosePolicyViolated,
		Code:    "unknown_session",
		Message: "Session not registered",
	}
)
