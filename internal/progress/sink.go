package progress

import "context"

// Sink receives batches of run events from the Hub. Consume is called from
// the Hub's single delivery goroutine and must honor ctx; Close is called
// once after the last batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. The Hub is the production Emitter; the
// Reporter only depends on this interface.
type Emitter interface {
	Emit(evt Event)
}
