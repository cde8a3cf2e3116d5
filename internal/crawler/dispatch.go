package crawler

import (
	"fmt"

	"github.com/nao1215/threadcap/internal/activitypub"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/protocol"
)

// implementationFor resolves the implementation of a protocol tag.
// The other tags are reserved and have no implementation yet.
func implementationFor(p model.Protocol) (protocol.Implementation, error) {
	switch p.OrDefault() {
	case model.ProtocolActivityPub:
		return activitypub.New(), nil
	case model.ProtocolLightningComments, model.ProtocolTwitter, model.ProtocolBluesky, model.ProtocolNostr:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrUnsupportedProtocol, string(p))
	}
}
