package probe

import (
	"bytes"
	"encoding/gob"
	"net"
	"time"

	"NetShaper/internal/core/model"
	"NetShaper/internal/logging"

	"github.com/nats-io/nats.go"
)

var pubLog = logging.NewComponentLogger("probe.publisher")

// wirePacket is the gob wire form of a PacketInfo. Payloads stay on the
// probe side; the engine shapes on metadata alone.
type wirePacket struct {
	Timestamp time.Time
	SrcIP     []byte
	DstIP     []byte
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	Length    int
}

// Publisher publishes packet metadata to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a publisher bound to the given
// subject.
func NewPublisher(natsURL, subject string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	pubLog.Infof("connected to NATS server at %s", natsURL)
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish serializes a PacketInfo with gob and publishes it.
func (p *Publisher) Publish(info *model.PacketInfo) error {
	wp := wirePacket{
		Timestamp: info.Timestamp,
		SrcIP:     info.FiveTuple.SrcIP,
		DstIP:     info.FiveTuple.DstIP,
		SrcPort:   info.FiveTuple.SrcPort,
		DstPort:   info.FiveTuple.DstPort,
		Protocol:  info.FiveTuple.Protocol,
		Length:    info.Length,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&wp); err != nil {
		return err
	}
	return p.nc.Publish(p.subject, buf.Bytes())
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		pubLog.Info("NATS connection drained and closed")
	}
}

// decodeWirePacket turns the gob wire form back into a PacketInfo.
func decodeWirePacket(data []byte) (*model.PacketInfo, error) {
	var wp wirePacket
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wp); err != nil {
		return nil, err
	}
	return &model.PacketInfo{
		Timestamp: wp.Timestamp,
		Length:    wp.Length,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.IP(wp.SrcIP),
			DstIP:    net.IP(wp.DstIP),
			SrcPort:  wp.SrcPort,
			DstPort:  wp.DstPort,
			Protocol: wp.Protocol,
		},
	}, nil
}
