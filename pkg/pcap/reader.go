package pcap

import (
	"NetShaper/internal/core/model"
	"NetShaper/internal/logging"
	"NetShaper/internal/protocol"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

var log = logging.NewComponentLogger("pcap.reader")

// Reader reads packets from a pcap file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets reads all packets from the pcap file and sends the parsed
// PacketInfo to the provided channel. It closes the channel when done.
func (r *Reader) ReadPackets(out chan<- *model.PacketInfo) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		info, err := protocol.ParsePacket(packet.Data())
		if err != nil {
			// Unsupported packet types and corrupt data are skipped, not
			// fatal.
			log.Debugf("skipping packet: %v", err)
			continue
		}
		if meta := packet.Metadata(); meta != nil {
			info.Timestamp = meta.Timestamp
		}
		out <- info
	}
}
