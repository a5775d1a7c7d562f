package main

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/debugdraw"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/ecs/entity"
	"github.com/milk9111/navcore/prefabs"
	"golang.design/x/clipboard"
	"golang.org/x/image/colornames"
)

const (
	screenWidth     = 1280
	screenHeight    = 720
	screenMargin    = 40
	clickGoalRadius = 0.3
)

type sandbox struct {
	scene     *entity.Scene
	levelName string
	seed      uint64
	logger    *slog.Logger
	watcher   *prefabs.Watcher
	canCopy   bool

	cam      debugdraw.Camera
	opts     debugdraw.Options
	paused   bool
	speed    int
	selected int
	status   string
	timings  bool
}

func newSandbox(scene *entity.Scene, levelName string, seed uint64, logger *slog.Logger, watcher *prefabs.Watcher, canCopy bool) *sandbox {
	return &sandbox{
		scene:     scene,
		levelName: levelName,
		seed:      seed,
		logger:    logger,
		watcher:   watcher,
		canCopy:   canCopy,
		cam:       debugdraw.FitCamera(scene.Atlas.Bounds(), screenWidth, screenHeight, screenMargin),
		opts:      debugdraw.Options{Paths: true, Labels: true},
		speed:     1,
	}
}

func (g *sandbox) Update() error {
	g.reload()
	g.handleKeys()
	g.handleMouse()

	switch {
	case g.paused && inpututil.IsKeyJustPressed(ebiten.KeyPeriod):
		g.scene.Step(1)
	case !g.paused:
		g.scene.Step(g.speed)
	}
	return nil
}

func (g *sandbox) reload() {
	if g.watcher == nil {
		return
	}
	for _, c := range g.watcher.Drain() {
		if err := g.scene.Reload(c); err != nil {
			g.logger.Warn("sandbox: reload failed", slog.String("file", c.Name()), slog.Any("error", err))
			g.status = fmt.Sprintf("reload %s failed: %v", c.Name(), err)
			continue
		}
		g.status = "reloaded " + c.Name()
	}
}

func (g *sandbox) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.paused = !g.paused
	case inpututil.IsKeyJustPressed(ebiten.KeyP):
		g.opts.Paths = !g.opts.Paths
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		g.opts.Labels = !g.opts.Labels
	case inpututil.IsKeyJustPressed(ebiten.KeyD):
		g.opts.Physics = !g.opts.Physics
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		g.toggleCollisions()
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.restart()
	case inpututil.IsKeyJustPressed(ebiten.KeyY):
		g.copyReport()
	case inpututil.IsKeyJustPressed(ebiten.KeyT):
		g.timings = !g.timings
	case inpututil.IsKeyJustPressed(ebiten.KeyTab):
		if n := len(g.scene.Agents); n > 0 {
			g.selected = (g.selected + 1) % n
		}
	}
	for i, key := range []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4} {
		if inpututil.IsKeyJustPressed(key) {
			g.speed = 1 << i
		}
	}
}

// toggleCollisions flips recording in the steering config together with
// the overlay; nothing is recorded while it is off.
func (g *sandbox) toggleCollisions() {
	cfg := g.scene.Steering.Config()
	cfg.DrawCollisions = !cfg.DrawCollisions
	if err := g.scene.Steering.SetConfig(cfg); err != nil {
		g.status = err.Error()
		return
	}
	g.opts.Collisions = cfg.DrawCollisions
}

func (g *sandbox) restart() {
	scene, err := entity.LoadScene(g.levelName, entity.WithLogger(g.logger), entity.WithSeed(g.seed))
	if err != nil {
		g.status = fmt.Sprintf("restart failed: %v", err)
		return
	}
	g.scene = scene
	g.selected = 0
	g.status = "restarted"
}

func (g *sandbox) copyReport() {
	if !g.canCopy {
		g.status = "clipboard unavailable"
		return
	}
	clipboard.Write(clipboard.FmtText, []byte(g.scene.Report.String()))
	g.status = "report copied"
}

// handleMouse selects the agent under a left click and sends the selected
// agent to a right click.
func (g *sandbox) handleMouse() {
	left := inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft)
	right := inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight)
	if !left && !right {
		return
	}
	p := g.cam.ToWorld(ebiten.CursorPosition())

	if left {
		best, bestDist := -1, math.Inf(1)
		for i, a := range g.scene.Agents {
			tr, ok := ecs.Get(g.scene.World, a.Entity, component.TransformComponent.Kind())
			if !ok {
				continue
			}
			if d := tr.Position.Distance(p); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			g.selected = best
		}
		return
	}

	if g.selected >= len(g.scene.Agents) {
		return
	}
	a := g.scene.Agents[g.selected]
	nav, ok := g.scene.World.Navigation(a.Entity)
	if !ok {
		return
	}
	nav.SetGoal(component.NewReachSinglePointGoal(p, clickGoalRadius))
	g.status = fmt.Sprintf("%s -> (%.1f, %.1f)", a.Name, p.X, p.Y)
}

func (g *sandbox) Draw(screen *ebiten.Image) {
	screen.Fill(colornames.Black)
	debugdraw.DrawScene(screen, g.scene, g.cam, g.opts)
	g.drawSelection(screen)

	state := "running"
	if g.paused {
		state = "paused"
	}
	hud := fmt.Sprintf("%s  t=%.1fs  x%d  %s  FPS %.0f\n[space] pause [.] step [1-4] speed [tab/click] select [right click] goal\n[p] paths [l] labels [c] collisions [d] physics [r] restart [y] copy report [t] timings\n%s",
		g.scene.Level.Name, g.scene.World.Time(), g.speed, state, ebiten.ActualFPS(), g.status)
	ebitenutil.DebugPrint(screen, hud)
	if g.timings {
		g.drawTimings(screen)
	}
}

func (g *sandbox) drawTimings(screen *ebiten.Image) {
	var b strings.Builder
	for _, t := range g.scene.World.Timings() {
		fmt.Fprintf(&b, "%-22s %8s  max %8s\n", t.Name, t.Last.Round(time.Microsecond), t.Max.Round(time.Microsecond))
	}
	ebitenutil.DebugPrintAt(screen, b.String(), 8, screenHeight-16*len(g.scene.World.Timings())-8)
}

func (g *sandbox) drawSelection(screen *ebiten.Image) {
	if g.selected >= len(g.scene.Agents) {
		return
	}
	a := g.scene.Agents[g.selected]
	tr, ok := ecs.Get(g.scene.World, a.Entity, component.TransformComponent.Kind())
	if !ok {
		return
	}
	debugdraw.Marker(screen, g.cam, tr.Position.Add(cp.Vector{Y: 0.8}), colornames.Yellow)
}

func (g *sandbox) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}
