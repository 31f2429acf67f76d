package realtime

import (
	"encoding/json"
	"time"

	"Pulse/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const bridgeSubject = "pulse.broadcast"

// NatsBridge relays broadcast fan-out between gateway nodes over NATS core
// pub/sub. Each node publishes every event it fans out and delivers
// foreign-origin events to its own local subscribers. At-least-once only;
// durable replay stays with the message history.
type NatsBridge struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// ConnectBridge dials NATS and starts consuming foreign events into the
// router's local delivery path.
func ConnectBridge(url string, router *Router) (*NatsBridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("pulse-gateway"),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}

	b := &NatsBridge{nc: nc}
	b.sub, err = nc.Subscribe(bridgeSubject, func(m *nats.Msg) {
		var evt BridgeEvent
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			logger.Warnf("[bridge] drop malformed event: %v", err)
			return
		}
		router.DeliverForeign(evt)
	})
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "subscribe bridge subject")
	}
	logger.Infof("[bridge] connected url=%s subject=%s", url, bridgeSubject)
	return b, nil
}

func (b *NatsBridge) Publish(evt BridgeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal bridge event")
	}
	return b.nc.Publish(bridgeSubject, data)
}

func (b *NatsBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
