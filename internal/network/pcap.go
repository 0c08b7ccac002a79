package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// pcapngMagic is the section header block type that opens a pcapng file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// PCAPOptions selects which datagrams ReadPCAP delivers.
type PCAPOptions struct {
	// Port filters on UDP destination port. Zero accepts any port.
	Port int
	// UseCaptureTime replaces each sample timestamp with the capture time.
	UseCaptureTime bool
}

// ReadPCAPFile opens path and replays it through ReadPCAP.
func ReadPCAPFile(ctx context.Context, path string, opts PCAPOptions, sink imu.SampleSink, stats PacketStatsInterface) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReadPCAP(ctx, f, opts, sink, stats)
}

// ReadPCAP decodes IMU datagrams from a pcap or pcapng stream and delivers
// them to sink in capture order. It returns the number of samples delivered.
func ReadPCAP(ctx context.Context, r io.Reader, opts PCAPOptions, sink imu.SampleSink, stats PacketStatsInterface) (int, error) {
	if stats == nil {
		stats = &noopStats{}
	}

	src, err := openCapture(r)
	if err != nil {
		return 0, err
	}
	logf("Reading capture (link type %v, port filter %d)", src.LinkType(), opts.Port)

	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			logf("Capture complete: %d samples delivered", delivered)
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("failed to read packet %d: %w", delivered, err)
		}

		packet := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		payload := udp.Payload
		stats.AddPacket(len(payload))
		pkt, err := imu.DecodePacket(payload)
		if err != nil {
			stats.AddDropped()
			logf("Skipping datagram captured at %v: %v", ci.Timestamp, err)
			continue
		}
		stats.AddSamples(1)

		if opts.UseCaptureTime {
			pkt.Sample.TimestampNanos = ci.Timestamp.UnixNano()
		}
		if pkt.Flags&imu.FlagResync != 0 {
			if rs, ok := sink.(Resetter); ok {
				rs.Reset()
			}
		}
		if err := sink.HandleSample(pkt.Sample); err != nil {
			return delivered, fmt.Errorf("sink rejected sample %d: %w", pkt.Sample.Seq, err)
		}
		delivered++
	}
}

func openCapture(r io.Reader) (packetDataSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng stream: %w", err)
		}
		return ng, nil
	}

	rd, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap stream (magic %#x): %w", binary.LittleEndian.Uint32(magic), err)
	}
	return rd, nil
}
