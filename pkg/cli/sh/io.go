package sh

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/oilink/pkg/oi"
)

// ReadTimeout bounds each value read by ReadCmd.
var ReadTimeout = time.Second

var (
	// SendCmd sends raw bytes as a single command.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"w"},
		Help:    "BYTE...",
		Func: MustBeConnected(func(c *ishell.Context) {
			values, err := parseBytes(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Link.WriteBytes(values, 0, len(values)); err != nil {
				c.Err(err)
			}
		}),
	}

	// SendWordCmd sends a 16-bit value.
	SendWordCmd = ishell.Cmd{
		Name:    "sendword",
		Aliases: []string{"ww"},
		Help:    "s|u VALUE",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("s|u and VALUE required"))
				return
			}
			link := ShellFrom(c).Link
			var err error
			switch c.Args[0] {
			case "s":
				var v int64
				if v, err = strconv.ParseInt(c.Args[1], 0, 16); err == nil {
					err = link.WriteSignedWord(int16(v))
				}
			case "u":
				var v uint64
				if v, err = strconv.ParseUint(c.Args[1], 0, 16); err == nil {
					err = link.WriteUnsignedWord(uint16(v))
				}
			default:
				err = fmt.Errorf("Invalid word type: %s", c.Args[0])
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// ReadCmd reads typed values.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "s8|u8|s16|u16 [COUNT]",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("type required"))
				return
			}
			count := 1
			if len(c.Args) > 1 {
				n, err := strconv.Atoi(c.Args[1])
				if err != nil || n <= 0 {
					c.Err(fmt.Errorf("Invalid COUNT: %s", c.Args[1]))
					return
				}
				count = n
			}
			s := ShellFrom(c)
			values := make([]int, 0, count)
			for i := 0; i < count; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), ReadTimeout)
				v, err := readValue(ctx, s.Link, c.Args[0])
				cancel()
				if err != nil {
					c.Err(err)
					break
				}
				values = append(values, v)
			}
			if len(values) > 0 {
				s.Output(c, values, fmt.Sprint(values))
			}
		}),
	}
)

// ValueReader reads typed values from a link.
type ValueReader interface {
	ReadSignedByte(context.Context) (int8, error)
	ReadUnsignedByte(context.Context) (uint8, error)
	ReadSignedWord(context.Context) (int16, error)
	ReadUnsignedWord(context.Context) (uint16, error)
}

func readValue(ctx context.Context, r ValueReader, typ string) (int, error) {
	switch typ {
	case "s8":
		v, err := r.ReadSignedByte(ctx)
		return int(v), err
	case "u8":
		v, err := r.ReadUnsignedByte(ctx)
		return int(v), err
	case "s16":
		v, err := r.ReadSignedWord(ctx)
		return int(v), err
	case "u16":
		v, err := r.ReadUnsignedWord(ctx)
		return int(v), err
	}
	return 0, fmt.Errorf("Invalid type: %s", typ)
}

func parseBytes(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("BYTE required")
	}
	if len(args) > oi.MaxCommandSize {
		return nil, fmt.Errorf("at most %d bytes in a command", oi.MaxCommandSize)
	}
	values := make([]int, len(args))
	for n, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("Invalid BYTE %q: %v", arg, err)
		}
		values[n] = int(v)
	}
	return values, nil
}

func init() {
	AddCmds(
		&SendCmd,
		&SendWordCmd,
		&ReadCmd,
	)
}
