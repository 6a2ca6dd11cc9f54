package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// backoff is the fixed reconnect delay per spec §5 "Client reconnection".
const backoff = time.Second

// Dialer constructs a fresh Client, used by RunWithReconnect to rebuild the
// connection after any subscription error.
type Dialer func(ctx context.Context) (Client, error)

// RunWithReconnect implements the `loop { client = connect(); while event =
// stream.next() {...} }` pattern from spec §5: it dials via dial, hands the
// live client to run, and on any error from run (subscription drop, stream
// error) closes the client, waits backoff, and reconnects. It returns only
// when ctx is cancelled.
func RunWithReconnect(ctx context.Context, who string, dial Dialer, run func(ctx context.Context, c Client) error) {
	for {
		if ctx.Err() != nil {
			return
		}

		client, err := dial(ctx)
		if err != nil {
			log.Error("reconnect: dial failed", "who", who, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				continue
			}
		}

		err = run(ctx, client)
		client.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("reconnect: subscription loop ended", "who", who, "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
