package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/config"
	"github.com/darkhz/btspp/spp"
	"github.com/darkhz/btspp/stack"
	"github.com/darkhz/btspp/stack/bluez"
)

// These values are set at compile-time.
var (
	Version  = ""
	Revision = ""
)

// Run runs the commandline application.
func Run() error {
	return newApp().Run(os.Args)
}

// newApp returns a new commandline application.
func newApp() *cli.App {
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s (%s)\n", Version, Revision)
	}

	return &cli.App{
		Name:                   "btspp",
		Usage:                  "Bluetooth Serial Port Profile link.",
		Version:                Version + " (" + Revision + ")",
		Description:            "Connects to a named Bluetooth Classic device, or accepts a connection from one, and exchanges bytes with it over the Serial Port Profile.",
		Copyright:              "(c) darkhz.",
		Compiled:               time.Now(),
		EnableBashCompletion:   true,
		UseShortOptionHandling: true,
		Suggest:                true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "list-adapters",
				Aliases: []string{"l"},
				Usage:   "List available adapters.",
				Action: func(*cli.Context, bool) error {
					adapters, err := bluez.Adapters()
					if err != nil {
						return err
					}

					var sb strings.Builder

					sb.WriteString("List of adapters:")
					for _, adapter := range adapters {
						sb.WriteString("\n")
						sb.WriteString("- ")
						sb.WriteString(adapter)
					}

					fmt.Println(sb.String())

					return nil
				},
			},
			&cli.BoolFlag{
				Name:    "generate",
				Aliases: []string{"g"},
				Usage:   "Generate configuration.",
				Action: func(*cli.Context, bool) error {
					k := koanf.New(".")

					conf := config.NewConfig()
					if err := conf.Load(k, nil); err != nil {
						return err
					}

					return conf.GenerateAndSave(k)
				},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   config.RoleMaster,
				Usage:  "Search for a device by name and connect to it.",
				Flags:  append(commonFlags(), masterFlags()...),
				Action: runMaster,
			},
			{
				Name:   config.RoleSlave,
				Usage:  "Advertise this device and accept a connection.",
				Flags:  commonFlags(),
				Action: runSlave,
			},
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(err)
		},
	}
}

// commonFlags returns the flags of both roles.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			EnvVars: []string{"BTSPP_NAME"},
			Usage:   "Specify the name this device advertises. (Default: btspp)",
		},
		&cli.StringFlag{
			Name:    "pin",
			Aliases: []string{"p"},
			EnvVars: []string{"BTSPP_PIN"},
			Usage:   "Specify the pairing PIN, up to 16 characters.",
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			EnvVars: []string{"BTSPP_ADAPTER"},
			Usage:   "Specify an adapter to use. (For example, hci0)",
		},
		&cli.IntFlag{
			Name:    "pipe-size",
			EnvVars: []string{"BTSPP_PIPE_SIZE"},
			Usage:   "Specify how many received bytes can wait to be read. (Default: 1024)",
		},
		&cli.DurationFlag{
			Name:    "auth-timeout",
			EnvVars: []string{"BTSPP_AUTH_TIMEOUT"},
			Usage:   "Specify how long a PIN request waits for a reply. (Default: 10s)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"BTSPP_LOG_LEVEL"},
			Usage:   "Specify the log level: debug, info, warn or error. (Default: info)",
		},
		&cli.StringFlag{
			Name:    "log-file",
			EnvVars: []string{"BTSPP_LOG_FILE"},
			Usage:   "Write logs to a file instead of stderr.",
		},
		&cli.BoolFlag{
			Name:    "console",
			Aliases: []string{"c"},
			EnvVars: []string{"BTSPP_CONSOLE"},
			Usage:   "Show an interactive console.",
		},
		&cli.StringFlag{
			Name:    "bridge",
			Aliases: []string{"b"},
			EnvVars: []string{"BTSPP_BRIDGE"},
			Usage:   "Bridge the link to a serial port. (For example, /dev/ttyUSB0)",
		},
		&cli.IntFlag{
			Name:    "baud",
			EnvVars: []string{"BTSPP_BAUD"},
			Usage:   "Specify the baud rate of the bridged serial port. (Default: 115200)",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			EnvVars: []string{"BTSPP_JSON"},
			Usage:   "Print a JSON summary of the session on exit.",
		},
	}
}

// masterFlags returns the flags of the master role.
func masterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			EnvVars: []string{"BTSPP_TARGET"},
			Usage:   "Specify the name of the device to connect to.",
		},
		&cli.IntFlag{
			Name:    "inquiry-duration",
			Aliases: []string{"d"},
			EnvVars: []string{"BTSPP_INQUIRY_DURATION"},
			Usage:   "Specify the inquiry length, in units of 1.28 seconds. (Default: 30)",
		},
		&cli.DurationFlag{
			Name:    "wait-timeout",
			Aliases: []string{"w"},
			EnvVars: []string{"BTSPP_WAIT_TIMEOUT"},
			Usage:   "Give up if no connection is made within this duration.",
		},
	}
}

// loadConfig loads and validates the configuration for a role.
func loadConfig(cliCtx *cli.Context, role string) (*config.Config, error) {
	// required for koanf to merge all command flags under the root namespace.
	cliCtx.Command.Name = "global"
	defer func() { cliCtx.Command.Name = role }()

	k, cfg := koanf.New("."), config.NewConfig()
	if err := cfg.Load(k, cliCtx); err != nil {
		return nil, err
	}
	if err := cfg.ValidateValues(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateRole(role); err != nil {
		return nil, err
	}

	return cfg, nil
}

// roleOptions returns the options shared by both roles.
func roleOptions(v config.Values, log *zap.Logger, notifier *spp.Notifier) []spp.Option {
	return []spp.Option{
		spp.WithLogger(log),
		spp.WithNotifier(notifier),
		spp.WithPipeSize(v.PipeSize),
	}
}

func newStack(v config.Values, log *zap.Logger) stack.Stack {
	return bluez.New(bluez.Config{
		Adapter:     v.Adapter,
		AuthTimeout: v.AuthTimeout,
		Logger:      log,
	})
}

func runMaster(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx, config.RoleMaster)
	if err != nil {
		return err
	}
	v := cfg.Values

	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer log.Sync()

	notifier := spp.NewNotifier()
	defer notifier.Close()

	inquiry := stack.DefaultInquiry()
	inquiry.Length = uint8(v.InquiryDuration)

	m := spp.NewMaster(newStack(v, log), append(roleOptions(v, log, notifier), spp.WithInquiry(inquiry))...)
	if err := m.Init(v.Name); err != nil {
		return err
	}
	defer deinit(m, log)

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Open(v.Target, v.Pin); err != nil {
		return err
	}

	if !v.Console {
		if err := waitReady(ctx, m, v.WaitTimeout, "Searching for "+v.Target); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		peer, _ := m.Connection().Peer()
		printInfo(fmt.Sprintf("Connected to %s (%s)", v.Target, peer))
	}

	return runSession(ctx, config.RoleMaster, m, v, log)
}

func runSlave(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx, config.RoleSlave)
	if err != nil {
		return err
	}
	v := cfg.Values

	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer log.Sync()

	notifier := spp.NewNotifier()
	defer notifier.Close()

	s := spp.NewSlave(newStack(v, log), roleOptions(v, log, notifier)...)
	if err := s.Init(v.Name, v.Pin); err != nil {
		return err
	}
	defer deinit(s, log)

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !v.Console {
		printInfo("Waiting for a connection as " + v.Name)
	}

	return runSession(ctx, config.RoleSlave, s, v, log)
}

func deinit(link sessionLink, log *zap.Logger) {
	if err := link.Deinit(); err != nil {
		log.Warn("Teardown failed", zap.Error(err))
		printWarn("Teardown failed: " + err.Error())
	}
}
