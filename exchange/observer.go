package exchange

import "github.com/tailored-agentic-units/exchange/observability"

// Exchange event types emitted by the orchestrator.
const (
	EventStart        observability.EventType = "exchange.start"
	EventExtractError observability.EventType = "exchange.extract.error"
	EventController   observability.EventType = "exchange.controller"
	EventUpdate       observability.EventType = "exchange.update"
	EventFinish       observability.EventType = "exchange.finish"
	EventDiscard      observability.EventType = "exchange.discard"
	EventError        observability.EventType = "exchange.error"
	EventAbort        observability.EventType = "exchange.abort"
	EventRetry        observability.EventType = "exchange.retry"
	EventStop         observability.EventType = "exchange.stop"
)
