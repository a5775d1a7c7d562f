package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/milk9111/navcore/ecs/entity"
	"github.com/milk9111/navcore/prefabs"
	"golang.design/x/clipboard"
)

func main() {
	levelName := flag.String("level", "crossroads", "level name in levels/ (basename, .yaml optional)")
	debug := flag.Bool("debug", false, "start with the physics layer visible")
	watch := flag.Bool("watch", true, "reload prefabs when files under prefabs/ change")
	seed := flag.Uint64("seed", 1, "random seed")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	scene, err := entity.LoadScene(*levelName, entity.WithLogger(logger), entity.WithSeed(*seed))
	if err != nil {
		log.Fatal(err)
	}

	var watcher *prefabs.Watcher
	if *watch {
		watcher, err = prefabs.NewWatcher(prefabs.DiskDir, prefabs.DiskDir+"/scripts")
		if err != nil {
			logger.Warn("sandbox: hot reload disabled", slog.Any("error", err))
			watcher = nil
		} else {
			defer watcher.Close()
		}
	}

	canCopy := true
	if err := clipboard.Init(); err != nil {
		logger.Warn("sandbox: clipboard unavailable", slog.Any("error", err))
		canCopy = false
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("navsandbox - " + scene.Level.Name)

	game := newSandbox(scene, *levelName, *seed, logger, watcher, canCopy)
	game.opts.Physics = *debug
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
