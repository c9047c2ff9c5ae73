package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fogleman/gg"
	"github.com/spf13/cobra"

	"github.com/prismrt/prism/pkg/comm"
	"github.com/prismrt/prism/pkg/log"
	"github.com/prismrt/prism/pkg/metrics"
	"github.com/prismrt/prism/pkg/scene"
	"github.com/prismrt/prism/pkg/tracer"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one frame of a scene",
	Long: `Render traces one frame to quiescence and writes the composited
image on rank 0.

A single-rank render needs only a scene:

  prism render --scene cornell.yaml --out frame.png

A distributed render runs the same command once per rank, with the full
world address list and this rank's index:

  prism render --scene cornell.yaml --rank 0 --world :7000,host2:7000
  prism render --scene cornell.yaml --rank 1 --world host1:7000,:7000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenePath, _ := cmd.Flags().GetString("scene")
		outPath, _ := cmd.Flags().GetString("out")
		rank, _ := cmd.Flags().GetInt("rank")
		world, _ := cmd.Flags().GetString("world")
		depth, _ := cmd.Flags().GetInt("depth")
		seed, _ := cmd.Flags().GetInt64("seed")
		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: jsonLogs})

		scn, err := scene.LoadFile(scenePath)
		if err != nil {
			return err
		}

		var communicator *comm.Communicator
		if world != "" {
			addrs := strings.Split(world, ",")
			if len(addrs) > 1 {
				transport, err := comm.DialWorld(rank, addrs)
				if err != nil {
					return err
				}
				communicator = comm.New(rank, len(addrs), transport)
			}
		}

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorf("metrics server failed", err)
				}
			}()
		}

		primaries := scn.Camera.PrimaryRays(scn.Film, depth)

		t := tracer.New(tracer.Config{
			Scene:     scn,
			Rays:      primaries,
			Comm:      communicator,
			FrameSeed: seed,
		})
		if communicator != nil {
			communicator.Start()
			defer communicator.Stop()
		}

		if err := t.Render(); err != nil {
			return err
		}

		if communicator != nil {
			// cohorts hold the process open until rank 0 says the frame
			// was gathered
			<-communicator.Done()
		}

		if rank == 0 {
			if err := gg.SavePNG(outPath, t.Compositor().Image()); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			log.Logger.Info().Str("path", outPath).Msg("frame written")
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().String("scene", "scene.yaml", "Scene description file")
	renderCmd.Flags().String("out", "frame.png", "Output image path (rank 0)")
	renderCmd.Flags().Int("rank", 0, "This rank's index in the world")
	renderCmd.Flags().String("world", "", "Comma-separated listen addresses, one per rank")
	renderCmd.Flags().Int("depth", 3, "Maximum ray bounce depth")
	renderCmd.Flags().Int64("seed", 1, "Frame seed for Russian roulette")
	renderCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	renderCmd.Flags().Bool("json-logs", false, "Emit JSON logs instead of console output")
	renderCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}
