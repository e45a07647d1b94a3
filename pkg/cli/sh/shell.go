package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/oilink/pkg/env"
	"github.com/robotalks/oilink/pkg/oi"
	"github.com/robotalks/oilink/pkg/oi/serial"
	"github.com/robotalks/oilink/pkg/telemetry/mqtt"
)

// Shell provides ishell backed interactive shell over a link.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell    *ishell.Shell
	Config   *env.Config
	Link     *oi.Link
	Reporter *mqtt.Reporter
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	reporterConnectTimeout = 5 * time.Second
)

var (
	// flags

	evalOnly    bool
	outputJSON  bool
	autoConnect bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&CloseCmd,
		&StateCmd,
		&DebugCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.BoolVar(&autoConnect, "connect", autoConnect, "Connect the robot on start.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a ready link.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if l := ShellFrom(c).Link; l == nil || !l.State().IsReady() {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Output prints v as JSON or with the text form.
func (s *Shell) Output(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect creates a link on device and runs the handshake.
// An empty device uses the configured one.
func (s *Shell) Connect(ctx context.Context, device string) error {
	s.Disconnect()
	conf := *s.Config
	if device != "" {
		conf.Device = device
	}
	link, reporter, err := conf.NewLink()
	if err != nil {
		return err
	}
	if reporter != nil {
		if err := reporter.Connect(reporterConnectTimeout); err != nil {
			glog.Warningf("state reports disabled: %v", err)
			reporter.Close()
			link.Notifier, reporter = nil, nil
		}
	}
	if err := link.Connect(ctx); err != nil {
		if reporter != nil {
			reporter.Close()
		}
		return err
	}
	s.Link, s.Reporter = link, reporter
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.Device))
	return nil
}

// Disconnect closes the current link.
func (s *Shell) Disconnect() error {
	if s.Link == nil {
		return nil
	}
	err := s.Link.Close()
	if s.Reporter != nil {
		s.Reporter.Close()
	}
	s.Link, s.Reporter = nil, nil
	s.Shell.SetPrompt(unconnectedPrompt)
	return err
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Device)
		}
		if err := s.Connect(context.Background(), ""); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Device, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := serial.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if ports == nil {
					ports = []string{}
				}
				s.Output(c, ports, "")
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// ConnectCmd connects the robot.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[DEVICE]",
		Func: func(c *ishell.Context) {
			var device string
			if len(c.Args) > 0 {
				device = c.Args[0]
			}
			if err := ShellFrom(c).Connect(context.Background(), device); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the link.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"disconnect", "d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Disconnect(); err != nil {
				c.Err(err)
			}
		},
	}

	// StateCmd prints link state and traffic counters.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"stats", "s"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Link == nil {
				s.Output(c, map[string]string{"state": "none"}, "none")
				return
			}
			state, stats := s.Link.State(), s.Link.Stats()
			s.Output(c, struct {
				State string   `json:"state"`
				Stats oi.Stats `json:"stats"`
			}{state.String(), stats},
				fmt.Sprintf("%s sent=%d received=%d queries=%d",
					state, stats.BytesSent, stats.BytesReceived, stats.Queries))
		},
	}

	// DebugCmd toggles trace lines.
	DebugCmd = ishell.Cmd{
		Name: "debug",
		Help: "on|off",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("on or off required"))
				return
			}
			var on bool
			switch c.Args[0] {
			case "on":
				on = true
			case "off":
			default:
				c.Err(fmt.Errorf("Invalid setting: %s", c.Args[0]))
				return
			}
			s.Config.Debug = on
			if s.Link != nil {
				s.Link.SetDebug(on)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(autoConnect).Run(flag.Args()...)
}
