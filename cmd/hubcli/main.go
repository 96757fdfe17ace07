// Command hubcli is an interactive shell for programming hubs: run
// scripts over the serial console, upload files, and flash firmware
// over a wireless bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/bootloader"
	"github.com/brickworks/hublink.go/pkg/firmware"
	"github.com/brickworks/hublink.go/pkg/hub"
	"github.com/brickworks/hublink.go/pkg/link"
	"github.com/brickworks/hublink.go/pkg/link/mqttlink"
	"github.com/brickworks/hublink.go/pkg/link/serialport"
	"github.com/brickworks/hublink.go/pkg/link/websocket"
	"github.com/brickworks/hublink.go/pkg/repl"
)

var (
	evalOnly = flag.Bool("e", false, "Evaluation only, no interactive shell.")

	hubKind   = flag.Uint("hub-kind", uint(hub.KindTechHub), "Hub type id for wireless uploads.")
	deviceID  = flag.Uint("device-id", 0x80, "Target hub type id for flashing.")
	maxSize   = flag.Int("max-size", 0x40000, "Maximum firmware size in bytes.")
	mpyOffset = flag.Int("mpy-offset", 0, "Program blob insertion offset.")
)

type session struct {
	port *serialport.Port
	repl *repl.REPL
}

func (s *session) console(c *ishell.Context) *repl.REPL {
	if s.repl == nil {
		c.Println("not connected, use: connect <port>")
		return nil
	}
	return s.repl
}

func progressPrinter(c *ishell.Context, total int) link.Reporter {
	return link.ReporterFunc(func(done int) {
		c.Printf("progress: %d/%d bytes\r", done, total)
	})
}

func main() {
	flag.Parse()
	defer glog.Flush()

	var s session
	shell := ishell.New()
	shell.Println("hubcli - hub programming shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			names, err := serialport.List()
			if err != nil {
				c.Err(err)
				return
			}
			for _, name := range names {
				c.Println(name)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "connect",
		Help: "connect <port>: open the hub console",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: connect <port>")
				return
			}
			port, err := serialport.Open(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s.port, s.repl = port, repl.New(port)
			if err := s.repl.Reset(context.Background()); err != nil {
				c.Err(err)
				return
			}
			c.Println("connected to", c.Args[0])
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "disconnect",
		Help: "close the hub console",
		Func: func(c *ishell.Context) {
			if s.port != nil {
				s.port.Close()
				s.port, s.repl = nil, nil
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "run",
		Help: "run <file>: execute a script via paste mode",
		Func: func(c *ishell.Context) {
			r := s.console(c)
			if r == nil || len(c.Args) != 1 {
				return
			}
			script, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := r.Reset(context.Background()); err != nil {
				c.Err(err)
				return
			}
			if err := r.ExecPaste(context.Background(), string(script), true, true); err != nil {
				c.Err(err)
				return
			}
			if err := r.Demux.Close(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "put",
		Help: "put <src> [dst]: upload a file to the hub",
		Func: func(c *ishell.Context) {
			r := s.console(c)
			if r == nil || len(c.Args) < 1 {
				return
			}
			contents, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			dst := c.Args[0]
			if len(c.Args) > 1 {
				dst = c.Args[1]
			}
			err = r.UploadFile(context.Background(), dst, contents, progressPrinter(c, len(contents)))
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("\nuploaded %s (%d bytes)\n", dst, len(contents))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "runble",
		Help: "runble <url> <file>: upload and run a compiled program over a wireless bridge",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: runble <url> <file>")
				return
			}
			program, err := os.ReadFile(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			transport, closeBridge, err := dialBridge(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			defer closeBridge()

			h := hub.New(transport, byte(*hubKind))
			h.Demux.Dir = filepath.Dir(c.Args[1])
			h.Reporter = progressPrinter(c, len(program))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go h.Run(ctx)
			if err := h.RunProgram(ctx, program, true); err != nil {
				c.Err(err)
				return
			}
			if err := h.Demux.Close(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "flash",
		Help: "flash <url> <base> <program>: flash firmware over a ws:// or mqtt:// bridge",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 3 {
				c.Println("usage: flash <url> <base> <program>")
				return
			}
			base, err := os.ReadFile(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			program, err := os.ReadFile(c.Args[2])
			if err != nil {
				c.Err(err)
				return
			}
			meta := firmware.Metadata{
				DeviceID:      byte(*deviceID),
				MaxSize:       *maxSize,
				ProgramOffset: *mpyOffset,
				ChecksumType:  firmware.ChecksumSum,
			}
			image, err := firmware.Build(base, program, meta)
			if err != nil {
				c.Err(err)
				return
			}
			transport, closeBridge, err := dialBridge(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			defer closeBridge()
			conn := bootloader.NewConn(transport)
			if err := conn.Flash(context.Background(), image, meta, progressPrinter(c, len(image))); err != nil {
				c.Err(err)
				return
			}
			c.Println("\nflashed", len(image), "bytes")
		},
	})

	if *evalOnly {
		if err := shell.Process(flag.Args()...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	shell.Run()
}

func dialBridge(url string) (link.Transport, func(), error) {
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		bridge, err := websocket.Dial(url, "http://localhost/")
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		go bridge.Run(ctx)
		return bridge, func() { cancel(); bridge.Close() }, nil
	case strings.HasPrefix(url, "mqtt://"), strings.HasPrefix(url, "tcp://"):
		bridge, err := mqttlink.Dial(url)
		if err != nil {
			return nil, nil, err
		}
		return bridge, bridge.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported bridge url: %s", url)
}
