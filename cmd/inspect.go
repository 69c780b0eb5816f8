package cmd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/vrtbridge/internal/capture"
	"firestige.xyz/vrtbridge/internal/pipeline"
	"firestige.xyz/vrtbridge/pkg/vrt"
)

var (
	inspectFormat string
	inspectLimit  int
	inspectPort   uint16
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Decode VRT packets from a capture",
	Long: `Decode and print the VRT packets stored in a file written by the file
output (packets back to back) or a pcap capture, either written by the pcap
output or taken on the wire (fragmented datagrams are reassembled). The
format is guessed from the extension unless --format is set.

Examples:
  vrtbridge inspect capture.vrt
  vrtbridge inspect capture.pcap --limit 20
  vrtbridge inspect tcpdump.pcap --port 4991`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0], inspectFormat, inspectPort, inspectLimit, cmd.OutOrStdout())
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "auto", "input format: auto, raw or pcap")
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 0, "stop after this many packets, 0 for all")
	inspectCmd.Flags().Uint16Var(&inspectPort, "port", 0, "pcap only: keep datagrams sent to this UDP port")
}

type inspectSummary struct {
	data, context, malformed int
}

func (s *inspectSummary) total() int {
	return s.data + s.context + s.malformed
}

func runInspect(path, format string, port uint16, limit int, out io.Writer) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	if format == "auto" {
		format = "raw"
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".pcap" || ext == ".cap" {
			format = "pcap"
		}
	}

	var sum inspectSummary
	switch format {
	case "raw":
		err = inspectStream(fh, limit, out, &sum)
	case "pcap":
		err = inspectPcap(fh, port, limit, out, &sum)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d packets: %d data, %d context, %d malformed\n",
		sum.total(), sum.data, sum.context, sum.malformed)
	return nil
}

// inspectStream prints packets stored back to back. It returns nil at the
// end of r or once limit packets have been printed.
func inspectStream(r io.Reader, limit int, out io.Writer, sum *inspectSummary) error {
	pr := vrt.NewReader(r)
	for limit <= 0 || sum.total() < limit {
		raw, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		describe(raw, out, sum)
	}
	return nil
}

// inspectPcap prints the packets carried in the capture's UDP datagrams,
// reassembling fragmented ones. A non-zero port keeps only datagrams sent to
// that port.
func inspectPcap(r io.Reader, port uint16, limit int, out io.Writer, sum *inspectSummary) error {
	cr, err := capture.NewReader(r)
	if err != nil {
		return err
	}
	for limit <= 0 || sum.total() < limit {
		d, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if port != 0 && d.Dst.Port() != port {
			continue
		}
		if err := inspectStream(bytes.NewReader(d.Payload), limit, out, sum); err != nil {
			sum.malformed++
			fmt.Fprintf(out, "#%d malformed datagram from %s: %v\n", sum.total(), d.Src, err)
		}
	}

	st := cr.Stats()
	if st.Malformed > 0 || st.Incomplete > 0 {
		fmt.Fprintf(out, "capture: %d frames, %d undecodable, %d datagrams missing fragments\n",
			st.Frames, st.Malformed, st.Incomplete)
	}
	return nil
}

func describe(raw []byte, out io.Writer, sum *inspectSummary) {
	n := sum.total() + 1
	h := vrt.DecodeHeader(binary.BigEndian.Uint32(raw))
	if h.PacketType.IsContext() {
		if info, err := pipeline.ParseContextPacket(raw); err == nil {
			sum.context++
			fmt.Fprintf(out, "#%d Context(bandwidth=%d, frequency=%d, sample_rate=%d, timestamp=%s)\n",
				n, info.Bandwidth, info.Frequency, info.SampleRate, info.Timestamp)
			return
		}
	}

	p, err := vrt.Decode(raw)
	if err != nil {
		sum.malformed++
		fmt.Fprintf(out, "#%d %v\n", n, err)
		return
	}
	if p.Type.IsContext() {
		sum.context++
	} else {
		sum.data++
	}
	fmt.Fprintf(out, "#%d %s\n", n, p)
}
