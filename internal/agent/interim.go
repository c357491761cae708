package agent

import "github.com/dusk-indust/inquest/internal/ctxstore"

// Board is the mid-phase peer channel. A running investigator can post a
// provisional entry for its peers, or poll for one, without blocking and
// without waiting for the phase merge. Interim entries never survive into a
// published snapshot on their own; they still have to come back as findings.
type Board interface {
	PostInterim(e ctxstore.Entry)
	Interim(key ctxstore.Key) (ctxstore.Entry, bool)
}

// InterimAware is optionally implemented by adapters that want the peer
// board. The core binds it before Run when the adapter asks for it.
type InterimAware interface {
	BindInterim(board Board)
}
