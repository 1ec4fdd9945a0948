// Command chunkfabric launches one process of the replication fabric:
// rank 0 runs the tracker, every other rank runs a client (membership,
// downloader, uploader). Flags and config loading follow the teacher's own
// gopkg.in/urfave/cli.v1 + github.com/naoina/toml pairing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/config"
	"github.com/holisticode/chunkfabric/downloader"
	"github.com/holisticode/chunkfabric/manifestio"
	"github.com/holisticode/chunkfabric/member"
	"github.com/holisticode/chunkfabric/metrics"
	"github.com/holisticode/chunkfabric/progress"
	"github.com/holisticode/chunkfabric/registry"
	"github.com/holisticode/chunkfabric/tracing"
	"github.com/holisticode/chunkfabric/tracker"
	"github.com/holisticode/chunkfabric/transport"
	"github.com/holisticode/chunkfabric/uploader"

	"golang.org/x/sync/errgroup"
)

var (
	configFlag = cli.StringFlag{Name: "config", Usage: "path to the cluster TOML config"}
	rankFlag   = cli.IntFlag{Name: "rank", Usage: "this process's rank in the group"}
	verbFlag   = cli.IntFlag{Name: "verbosity", Value: int(ethlog.LvlInfo), Usage: "log verbosity (0-5)"}
)

func main() {
	app := cli.NewApp()
	app.Name = "chunkfabric"
	app.Usage = "swarm file-replication fabric: tracker + client process"
	app.Flags = []cli.Flag{configFlag, rankFlag, verbFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	chunkfabriclog.SetLevel(ethlog.Lvl(cctx.Int(verbFlag.Name)))

	cfgPath := cctx.String(configFlag.Name)
	if cfgPath == "" {
		return cli.NewExitError("missing --config", 1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	rank := transport.Rank(cctx.Int(rankFlag.Name))
	if int(rank) >= cfg.WorldSize() {
		return cli.NewExitError(fmt.Sprintf("rank %d out of range for world size %d", rank, cfg.WorldSize()), 1)
	}

	closer, err := tracing.Setup(fmt.Sprintf("chunkfabric-rank-%d", rank), cfg.TracingEnabled)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer closer.Close()

	if cfg.MetricsEnabled {
		metrics.Setup(metrics.Options{EnableExport: false})
	}

	t, err := transport.DialMesh(rank, transport.Addresses(cfg.Addresses))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if rank == 0 {
		return runTracker(t, cfg)
	}
	return runClient(t, rank, cfg)
}

func runTracker(t *transport.TCPTransport, cfg *config.Config) error {
	reg := registry.New()
	ctrl := tracker.New(t, reg)

	if cfg.HTTPAddr != "" {
		ins := tracker.NewInspector(reg, ctrl.Phase)
		go func() {
			chunkfabriclog.Root().Info("debug http listening", "addr", cfg.HTTPAddr)
			if err := http.ListenAndServe(cfg.HTTPAddr, ins.Handler()); err != nil {
				chunkfabriclog.Root().Error("debug http exited", "err", err)
			}
		}()
	}

	return ctrl.Run(context.Background())
}

func runClient(t *transport.TCPTransport, rank transport.Rank, cfg *config.Config) error {
	reader := manifestio.FileReader{Dir: cfg.DataDir}
	inv, wanted, err := reader.Read(int(rank))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	cl := member.New(t, inv, wanted)
	if err := cl.Announce(0); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := cl.WaitBarrier(0); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	g, ctx := errgroup.WithContext(context.Background())

	if inv.Kind().String() != "LEECHER" {
		up := uploader.New(t, inv)
		g.Go(up.Run)
	}
	if inv.Kind().String() != "SEEDER" {
		bars := progress.New()
		writer := manifestio.FileWriter{Dir: cfg.DataDir}
		dl := downloader.New(t, cl, 0, writer, downloader.WithBars(bars))
		g.Go(func() error { return dl.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return t.Close()
}
