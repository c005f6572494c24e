package bus

import "github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"

// ErrClosed is returned by Publish after Close.
var ErrClosed = domain.NewError(domain.ErrorTypeInternal, "event bus is closed").WithCode("bus_closed")
