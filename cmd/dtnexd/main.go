// Command dtnexd runs the dtnex authenticated epidemic protocol engine
// against a reference in-memory router and a UDP convergence-layer
// transport: a gopkg.in/urfave/cli.v1 app with a Fatalf helper for
// unrecoverable startup errors and global flags parsed once in main
// before handing off to long-running code.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/samograsic/ion-dtn-dtnex/internal/config"
	"github.com/samograsic/ion-dtn-dtnex/internal/engine"
	"github.com/samograsic/ion-dtn-dtnex/internal/router"
	"github.com/samograsic/ion-dtn-dtnex/internal/supervisor"
	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
)

var (
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a JSON config file, merged over documented defaults",
	}
	LocalIDFlag = cli.StringFlag{
		Name:  "local-id",
		Usage: "local ipn node id this agent speaks as",
	}
	ListenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "UDP address to listen on for dtnex bundles",
		Value: ":12160",
	}
	PeerFlag = cli.StringSliceFlag{
		Name:  "peer",
		Usage: "neighbor in node=host:port form, repeatable",
	}
	SharedKeyFlag = cli.StringFlag{
		Name:  "shared-key",
		Usage: "override the config's shared_key",
	}
	VerbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level: debug, info, warn, error",
		Value: "info",
	}
	NATFlag = cli.BoolFlag{
		Name:  "nat-pmp",
		Usage: "attempt NAT-PMP port mapping (best-effort, never fatal)",
	}
)

// Fatalf prints a formatted error to stderr and exits nonzero.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "dtnexd"
	app.Usage = "dtnex authenticated epidemic protocol engine"
	app.Flags = []cli.Flag{
		ConfigFlag, LocalIDFlag, ListenFlag, PeerFlag, SharedKeyFlag, VerbosityFlag, NATFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		Fatalf("%v", err)
	}
}

func run(ctx *cli.Context) error {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(ctx.String(VerbosityFlag.Name))
	if err != nil {
		Fatalf("invalid verbosity: %v", err)
	}
	log.SetLevel(lvl)

	cfg := config.Default()
	if path := ctx.String(ConfigFlag.Name); path != "" {
		cfg, err = config.LoadJSON(path)
		if err != nil {
			Fatalf("loading config: %v", err)
		}
	}
	if key := ctx.String(SharedKeyFlag.Name); key != "" {
		cfg.SharedKey = key
	}
	if err := cfg.Validate(); err != nil {
		Fatalf("config invalid: %v", err)
	}

	localIDStr := ctx.String(LocalIDFlag.Name)
	if localIDStr == "" {
		Fatalf("--local-id is required and must be non-zero")
	}
	localID, err := strconv.ParseUint(localIDStr, 10, 64)
	if err != nil || localID == 0 {
		Fatalf("--local-id must be a non-zero unsigned integer: %v", err)
	}

	book, neighborIDs, err := parsePeers(ctx.StringSlice(PeerFlag.Name))
	if err != nil {
		Fatalf("parsing --peer: %v", err)
	}

	listen := ctx.String(ListenFlag.Name)
	useNAT := ctx.Bool(NATFlag.Name)

	var (
		activeRouterMu sync.Mutex
		activeRouter   *router.MemoryRouter
	)

	build := func(bctx context.Context) (*engine.Engine, transport.Adapter, error) {
		r := router.NewMemoryRouter(localID, func() []uint64 { return neighborIDs }, log)
		activeRouterMu.Lock()
		activeRouter = r
		activeRouterMu.Unlock()

		var nat transport.NAT
		if useNAT {
			if gw, gerr := defaultGateway(); gerr == nil {
				if n, nerr := transport.DiscoverNATPMP(gw); nerr == nil {
					nat = n
				} else {
					log.WithError(nerr).Debug("nat-pmp unavailable, continuing without it")
				}
			}
		}

		tp, terr := transport.ListenUDP(listen, transport.Endpoint{Node: localID, Service: cfg.ServiceNumber}, book, nat, log)
		if terr != nil {
			return nil, nil, terr
		}

		eng, eerr := engine.New(cfg, r, tp, engine.Options{
			ReplayCapacity: 0,
			Logger:         log,
		})
		if eerr != nil {
			tp.Close()
			return nil, nil, eerr
		}
		return eng, tp, nil
	}

	sup := supervisor.New(build, nil, log)

	runCtx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	go healthLoop(runCtx, sup, &activeRouterMu, &activeRouter, log)

	return sup.Run(runCtx)
}

func healthLoop(ctx context.Context, sup *supervisor.Supervisor, mu *sync.Mutex, r **router.MemoryRouter, log logrus.FieldLogger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := sup.Health()
			entry := log.WithField("state", h.State.String()).
				WithField("restarts", h.RestartCount).
				WithField("sent", h.Counters.Sent).
				WithField("forwarded", h.Counters.Forwarded).
				WithField("dropped", h.Counters.Dropped)

			mu.Lock()
			cur := *r
			mu.Unlock()
			if cur != nil {
				entry = entry.WithField("recent_installs", cur.RecentInstalls())
			}
			entry.Info("health")
		}
	}
}

// parsePeers parses repeated "node=host:port" flags into a StaticAddressBook
// and the neighbor id list the reference MemoryRouter reports.
func parsePeers(raw []string) (transport.StaticAddressBook, []uint64, error) {
	book := make(transport.StaticAddressBook)
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("peer %q: expected node=host:port", entry)
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("peer %q: bad node id: %w", entry, err)
		}
		addr, err := net.ResolveUDPAddr("udp", parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("peer %q: bad address: %w", entry, err)
		}
		book[id] = addr
		ids = append(ids, id)
	}
	return book, ids, nil
}

func defaultGateway() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr).IP.To4()
	if local == nil {
		return nil, fmt.Errorf("no ipv4 local address")
	}
	return net.IPv4(local[0], local[1], local[2], 1), nil
}
