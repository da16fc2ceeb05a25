package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/zeusync/playsync/internal/config"
	"github.com/zeusync/playsync/internal/core/codec"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/ops"
	"github.com/zeusync/playsync/internal/core/remote"
	"github.com/zeusync/playsync/internal/core/replica"
	"github.com/zeusync/playsync/internal/injector"
)

type demoOptions struct {
	ticks     int
	corruptAt int
	dump      bool
}

func newDemoCommand(root *rootOptions) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Edit a sample scene and replicate it to a play replica and remotes",
		Long: `Build a small scene, derive a play replica from it and run a number of
ticks, each with a few edits. Every configured remote and one in-process
mirror receive the batches. Fingerprints of all copies are compared at
the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().IntVar(&opts.ticks, "ticks", 30, "number of ticks to run")
	cmd.Flags().IntVar(&opts.corruptAt, "corrupt-at", 0, "drop an identity map entry before this tick to force a resync")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "dump the identity map and last envelope at the end")
	return cmd
}

type sampleScene struct {
	ed    *ops.Editor
	rec   *ops.Recorder
	root  document.ObjectID
	crate document.ObjectID
	mat   document.ObjectID
	spawn []document.ObjectID
}

func buildScene(doc *document.Document) (*sampleScene, error) {
	s := &sampleScene{rec: ops.NewRecorder()}
	s.ed = ops.NewEditor(doc, s.rec)
	texture := doc.Library().AddAsset("crate.png", "image/png", []byte{0x89, 'P', 'N', 'G'})

	var err error
	if s.root, err = s.ed.AddEntity(document.ObjectID{}, "world"); err != nil {
		return nil, err
	}
	cam, err := s.ed.AddEntity(s.root, "camera")
	if err != nil {
		return nil, err
	}
	if _, err = s.ed.AddComponent(cam, document.ComponentCamera); err != nil {
		return nil, err
	}
	if s.crate, err = s.ed.AddEntity(s.root, "crate"); err != nil {
		return nil, err
	}
	if _, err = s.ed.AddComponent(s.crate, document.ComponentBox); err != nil {
		return nil, err
	}
	if s.mat, err = s.ed.AddComponent(s.crate, document.ComponentMaterial); err != nil {
		return nil, err
	}
	if err = s.ed.SetProperty(s.mat, "texture", document.AssetRefValue(texture)); err != nil {
		return nil, err
	}
	player, err := s.ed.AddEntity(s.root, "player")
	if err != nil {
		return nil, err
	}
	input, err := s.ed.AddComponent(player, document.ComponentInput)
	if err != nil {
		return nil, err
	}
	if err = s.ed.SetProperty(input, "target", document.ObjectRefValue(s.crate)); err != nil {
		return nil, err
	}
	s.rec.Drain()
	return s, nil
}

// edit makes the changes of tick n on the master.
func (s *sampleScene) edit(n int) error {
	angle := float64(n) * 0.1
	rot := document.Quat{Y: math.Sin(angle / 2), W: math.Cos(angle / 2)}
	if err := s.ed.SetTransform(s.crate, document.Vec3{Y: math.Sin(angle)}, rot, nil); err != nil {
		return err
	}
	if n%5 == 0 {
		if err := s.ed.SetProperty(s.mat, "visible", document.BoolValue(n%10 != 0)); err != nil {
			return err
		}
	}
	if n%7 == 0 {
		id, err := s.ed.AddEntity(s.root, fmt.Sprintf("spawn-%d", n))
		if err != nil {
			return err
		}
		if _, err := s.ed.AddComponent(id, document.ComponentSphere); err != nil {
			return err
		}
		s.spawn = append(s.spawn, id)
	}
	if n%11 == 0 && len(s.spawn) > 0 {
		if err := s.ed.DeleteEntity(s.spawn[0]); err != nil {
			return err
		}
		s.spawn = s.spawn[1:]
	}
	if n == 3 {
		s.ed.SetMode(document.ModePlay)
	}
	return nil
}

func runDemo(ctx context.Context, cfg *config.Config, opts *demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	masterDoc := document.New()
	scene, err := buildScene(masterDoc)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	m, cleanup, err := injector.InitializeMaster(cfg, masterDoc)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := m.Logger.With(log.String("component", "demo"))
	sy := m.Synchronizer

	if err := sy.DeriveReplica(); err != nil {
		return err
	}

	mirror := remote.NewMirror(m.Logger, m.Bus)
	local, err := m.Transports.Bind("in-process", config.TransportLoopback)
	if err != nil {
		return err
	}
	m.Transports.Loopback.Attach(local, mirror)
	if err := sy.RegisterRemoteReplica(ctx, local, scene.rec.Len()); err != nil {
		return err
	}
	for _, r := range cfg.Remotes {
		h, err := m.Transports.Bind(r.Address, cfg.RemoteTransport(r))
		if err != nil {
			return err
		}
		if err := sy.RegisterRemoteReplica(ctx, h, scene.rec.Len()); err != nil {
			logger.Warn("remote replica unreachable", log.String("address", r.Address), log.Error(err))
		}
	}

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	var (
		last    replica.TickResult
		resyncs int
		dropped int
	)
	for n := 1; n <= opts.ticks; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := scene.edit(n); err != nil {
			return fmt.Errorf("tick %d: %w", n, err)
		}
		if n == opts.corruptAt {
			sy.Identity().RemoveLocal(scene.mat)
		}
		sy.QueueInput(codec.InputEvent{Device: "clock", Code: uint32(n), Value: float64(n)})

		res, err := sy.ApplyTick(ctx, scene.rec.Drain())
		if err != nil {
			return fmt.Errorf("tick %d: %w", n, err)
		}
		if res.Outcome == replica.Resynced {
			resyncs++
		}
		dropped += len(res.Dropped)
		last = res
	}

	for _, e := range sy.DrainErrors() {
		logger.Warn("tick error", log.Error(e))
	}

	var mirrorFP uint64
	mirror.View(func(doc *document.Document) {
		if doc != nil {
			mirrorFP = doc.Fingerprint()
		}
	})
	masterFP, replicaFP := masterDoc.Fingerprint(), sy.Replica().Fingerprint()
	logger.Info("demo finished",
		log.Uint64("ticks", last.Tick),
		log.Stringer("last_outcome", last.Outcome),
		log.Int("resyncs", resyncs),
		log.Int("dropped_remotes", dropped),
		log.Int("mappings", sy.Identity().Len()),
	)
	fmt.Printf("master   %016x\nreplica  %016x\nmirror   %016x\n", masterFP, replicaFP, mirrorFP)

	if opts.dump {
		litter.Config.HidePrivateFields = false
		litter.Dump(sy.Identity().Pairs())
		litter.Dump(last.Envelope)
	}

	if masterFP != replicaFP || masterFP != mirrorFP {
		return fmt.Errorf("replicas diverged from master")
	}
	return nil
}
