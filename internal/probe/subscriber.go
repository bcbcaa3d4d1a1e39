package probe

import (
	"NetShaper/internal/core/model"
	"NetShaper/internal/logging"

	"github.com/nats-io/nats.go"
)

var subLog = logging.NewComponentLogger("probe.subscriber")

// PacketHandler is a function that processes a received PacketInfo.
type PacketHandler func(info *model.PacketInfo)

// Subscriber subscribes to NATS subjects and hands decoded packets to
// handlers.
type Subscriber struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber connects to the NATS server.
func NewSubscriber(natsURL string) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	subLog.Infof("connected to NATS server at %s", natsURL)
	return &Subscriber{nc: nc}, nil
}

// Subscribe starts processing messages on the given subject with the
// provided handler. Multiple subjects may be subscribed on one connection.
func (s *Subscriber) Subscribe(subject string, handler PacketHandler) error {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		info, err := decodeWirePacket(msg.Data)
		if err != nil {
			subLog.Warnf("dropping undecodable message on %q: %v", subject, err)
			return
		}
		handler(info)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	subLog.Infof("subscribed to %q", subject)
	return nil
}

// Close unsubscribes everything and closes the NATS connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		subLog.Info("NATS connection closed")
	}
}
