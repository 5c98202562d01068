// Command rexec is a thin demonstration client for rexecd: it parses a
// destination string, dials it, runs the handshake, and sends one request
// picked by its subcommand. A full-featured CLI is not a core concern
// here; this exists to exercise the wire protocol end to end, grounded on
// katzenpost's talek/frontend main (flag-based args, straight-line
// setup, no subcommand framework beyond flag.Args()).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/postoffice"
	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/session"
	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/frame"
	"github.com/kestrelsys/rexec/wire/handshake"
	"github.com/kestrelsys/rexec/wire/transport"
)

var log = logging.New("rexec")

func main() {
	var (
		destStr = flag.String("dest", "rexec://127.0.0.1:7700", "server destination string")
		timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rexec [-dest dest] <version|read PATH|exec CMD...>")
		os.Exit(2)
	}

	dest, err := session.Parse(*destStr)
	if err != nil {
		log.Fatalf("parse destination: %v", err)
	}

	conn, err := net.DialTimeout("tcp", dest.Host.String()+portSuffix(dest), *timeout)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	t := transport.New(conn, transport.DefaultBufferSize)
	defer t.Close()

	result, err := handshake.RunInitiator(t, handshake.Preferences{
		PreferredCompression: codec.TypeZlib,
		PreferredEncryption:  codec.TypeChaCha20P1305,
	})
	if err != nil {
		log.Fatalf("handshake: %v", err)
	}
	t.SetCodec(result.Codec)

	po := postoffice.New(postoffice.DefaultReapInterval)
	defer po.Close()

	c := &client{t: t, po: po}
	go c.readLoop()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "version":
		runVersion(ctx, c)
	case "read":
		if len(args) < 2 {
			log.Fatalf("read requires a path argument")
		}
		runReadFile(ctx, c, args[1])
	case "exec":
		if len(args) < 2 {
			log.Fatalf("exec requires a command argument")
		}
		runExec(ctx, c, args[1])
	default:
		log.Fatalf("unknown subcommand %q", args[0])
	}
}

func portSuffix(d session.Destination) string {
	if d.HasPort {
		return fmt.Sprintf(":%d", d.Port)
	}
	return ":7700"
}

// client is the minimal connection wrapper a subcommand needs: Send an
// envelope, and a post office that routes responses back by origin id, the
// same correlation discipline client/procmux relies on for its own
// multiplexed stdout/stderr/done stream.
type client struct {
	t  *transport.T
	po *postoffice.PostOffice
}

func (c *client) Send(e proto.Envelope) error {
	b, err := e.Marshal()
	if err != nil {
		return err
	}
	return c.t.WriteFrame(frame.Frame(b))
}

func (c *client) readLoop() {
	for {
		f, err := c.t.ReadFrame()
		if err != nil || f == nil {
			return
		}
		var env proto.Envelope
		if proto.Unmarshal(f, &env) != nil {
			continue
		}
		c.po.Deliver(env.OriginID, env)
	}
}

// request sends req and blocks for its correlated response.
func (c *client) request(ctx context.Context, typ string, body interface{}) (proto.Envelope, error) {
	cmd, err := proto.Encode(typ, body)
	if err != nil {
		return proto.Envelope{}, err
	}
	reqEnv := proto.NewRequest(proto.NewSingle(cmd), nil)
	mail := c.po.MakeMailbox(reqEnv.ID, 8)
	defer c.po.Cancel(reqEnv.ID)

	if err := c.Send(reqEnv); err != nil {
		return proto.Envelope{}, err
	}

	v, ok := mail.Next(ctx)
	if !ok {
		return proto.Envelope{}, fmt.Errorf("rexec: no response")
	}
	return v.(proto.Envelope), nil
}

func runVersion(ctx context.Context, c *client) {
	resp, err := c.request(ctx, "version", struct{}{})
	if err != nil {
		log.Fatalf("version: %v", err)
	}
	res, err := resp.Payload.DecodeSingleResult()
	if err != nil {
		log.Fatalf("decode response: %v", err)
	}
	if res.IsError() {
		log.Fatalf("version: %s", res.Error.Description)
	}
	var info struct {
		Version  string `cbor:"version"`
		Protocol int    `cbor:"protocol"`
	}
	if err := res.DecodeOk(&info); err != nil {
		log.Fatalf("decode version: %v", err)
	}
	fmt.Printf("rexecd %s (protocol %d)\n", info.Version, info.Protocol)
}

func runReadFile(ctx context.Context, c *client, path string) {
	resp, err := c.request(ctx, "read_file", struct {
		Path string `cbor:"path"`
		Text bool   `cbor:"text"`
	}{Path: path, Text: true})
	if err != nil {
		log.Fatalf("read_file: %v", err)
	}
	res, err := resp.Payload.DecodeSingleResult()
	if err != nil {
		log.Fatalf("decode response: %v", err)
	}
	if res.IsError() {
		log.Fatalf("read_file: %s", res.Error.Description)
	}
	var contents struct {
		Text string `cbor:"text"`
	}
	if err := res.DecodeOk(&contents); err != nil {
		log.Fatalf("decode contents: %v", err)
	}
	io.WriteString(os.Stdout, contents.Text)
}

func runExec(ctx context.Context, c *client, cmd string) {
	resp, err := c.request(ctx, "proc_spawn", struct {
		Cmd string `cbor:"cmd"`
		Pty bool   `cbor:"pty"`
	}{Cmd: cmd})
	if err != nil {
		log.Fatalf("proc_spawn: %v", err)
	}
	res, err := resp.Payload.DecodeSingleResult()
	if err != nil {
		log.Fatalf("decode response: %v", err)
	}
	if res.IsError() {
		log.Fatalf("proc_spawn: %s", res.Error.Description)
	}
	var spawned struct {
		ID uint64 `cbor:"id"`
	}
	if err := res.DecodeOk(&spawned); err != nil {
		log.Fatalf("decode spawned: %v", err)
	}
	fmt.Fprintf(os.Stderr, "spawned process %d\n", spawned.ID)
}
