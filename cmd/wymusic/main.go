// Package main provides the player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/wymusic/player/internal/app/audio"
	"github.com/wymusic/player/internal/app/library"
	"github.com/wymusic/player/internal/app/mediasession"
	"github.com/wymusic/player/internal/app/notify"
	"github.com/wymusic/player/internal/app/player"
	"github.com/wymusic/player/internal/domain/queue"
	"github.com/wymusic/player/internal/domain/song"
	"github.com/wymusic/player/internal/infra/catalog"
	"github.com/wymusic/player/internal/infra/config"
	"github.com/wymusic/player/internal/infra/localstore"
	"github.com/wymusic/player/internal/infra/logger"
	"github.com/wymusic/player/internal/infra/snapshot"
)

var (
	app        = kingpin.New("wymusic", "wymusic player")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	catalogClient, err := catalog.New(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Cookie:  cfg.Catalog.Cookie,
		Timeout: cfg.Catalog.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	store, err := localstore.New(cfg.Library.MusicDir)
	if err != nil {
		return fmt.Errorf("failed to create local store: %w", err)
	}

	snapshots, err := snapshot.New(cfg.Snapshot.Dir, cfg.Snapshot.Version)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	resolver := library.NewResolver(library.NewCache(), catalogClient, store, library.Config{
		Quality: cfg.Catalog.Quality,
	})

	engine, err := audio.NewBeepEngine()
	if err != nil {
		return fmt.Errorf("failed to create audio engine: %w", err)
	}

	pool := audio.NewPool(cfg.Playback.PoolSize)
	bridge := mediasession.NewBridge(mediasession.NewDesktopSurface())
	toaster := notify.NewToaster()

	ctrl := player.New(resolver, engine, pool, bridge, toaster, snapshots, player.Config{
		Volume:       cfg.Playback.Volume,
		TickInterval: cfg.Playback.ProgressTick(),
	})
	defer ctrl.Close()

	if err := ctrl.Restore(); err != nil {
		zlog.Warn().Msgf("Failed to restore player state: %v", err)
	}

	// Index local songs before the first command
	dirs := append([]string{cfg.Library.MusicDir}, cfg.Library.AudioDirs...)
	if added, err := resolver.ScanLocal(ctx, dirs); err != nil {
		zlog.Warn().Msgf("Local scan failed: %v", err)
	} else {
		zlog.Info().Msgf("Local library ready: %d new songs indexed", added)
	}

	// Command loop reads stdin; a closed stdin or quit ends it
	commandsDone := make(chan struct{})
	go func() {
		defer close(commandsDone)
		commandLoop(ctx, ctrl, resolver)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-commandsDone:
		zlog.Info().Msg("Command loop ended, shutting down...")
	}

	zlog.Info().Msg("Player stopped")
	return nil
}

// commandLoop runs the interactive prompt until quit or EOF.
func commandLoop(ctx context.Context, ctrl *player.Controller, resolver *library.Resolver) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("wymusic ready. Type 'help' for commands.")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "play":
			if len(args) == 0 {
				_ = ctrl.Resume(ctx)
				continue
			}
			if err := ctrl.Play(ctx, args[0]); err != nil {
				fmt.Printf("play failed: %v\n", err)
			}
		case "pause":
			ctrl.Pause()
		case "next":
			_ = ctrl.PlayNext(ctx, queue.DirectionNext)
		case "prev":
			_ = ctrl.PlayNext(ctx, queue.DirectionPrev)
		case "seek":
			if len(args) == 1 {
				if sec, err := strconv.ParseFloat(args[0], 64); err == nil {
					_ = ctrl.SetSeek(sec)
				}
			}
		case "vol":
			if len(args) == 1 {
				if v, err := strconv.ParseFloat(args[0], 64); err == nil {
					ctrl.SetVolume(v)
				}
			}
		case "add":
			for _, id := range args {
				ctrl.AddToQueue(id)
			}
		case "rm":
			ctrl.RemoveFromQueue(args...)
		case "queue":
			printQueue(ctx, ctrl, resolver)
		case "status":
			printStatus(ctrl)
		case "dl":
			for _, id := range args {
				if err := ctrl.Download(ctx, id); err != nil {
					fmt.Printf("download %s failed: %v\n", id, err)
				}
			}
		case "del":
			if len(args) == 1 {
				if err := ctrl.Delete(ctx, args[0]); err != nil {
					fmt.Printf("delete failed: %v\n", err)
				}
			}
		case "search":
			printRemote(resolverSearch(ctx, resolver, strings.Join(args, " ")))
		case "daily":
			printRemote(resolver.RecommendSongs(ctx))
		case "local":
			printLocal(resolver)
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

func resolverSearch(ctx context.Context, resolver *library.Resolver, keywords string) ([]song.RemoteSong, error) {
	if keywords == "" {
		return nil, fmt.Errorf("search needs keywords")
	}
	return resolver.Search(ctx, keywords)
}

func printHelp() {
	fmt.Println(`commands:
  play [id|path]   play a song (no arg: resume)
  pause            pause playback
  next / prev      move through the queue
  seek <sec>       jump to a position
  vol <0..1>       set volume
  add <id...>      append to the queue
  rm <id...>       remove from the queue
  queue / status   show state
  dl <id...>       download songs
  del <id|path>    delete a downloaded song
  search <words>   search the catalog
  daily            daily recommendations
  local            list local songs
  quit             exit`)
}

func printQueue(ctx context.Context, ctrl *player.Controller, resolver *library.Resolver) {
	ids := ctrl.Queue()
	if len(ids) == 0 {
		fmt.Println("queue is empty")
		return
	}
	resolved, err := resolver.Describe(ctx, ids)
	if err != nil {
		zlog.Warn().Msgf("Failed to describe queue: %v", err)
	}
	names := make(map[string]string, len(resolved))
	for _, r := range resolved {
		if r.Local != nil {
			names[r.Local.Path] = r.Name()
			if r.Local.CatalogID != "" {
				names[r.Local.CatalogID] = r.Name()
			}
		}
		if r.Remote != nil {
			names[r.Remote.ID] = r.Name()
		}
	}
	current := ctrl.State().Current
	for i, id := range ids {
		marker := "  "
		if id == current {
			marker = "> "
		}
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Printf("%s%2d. %s\n", marker, i+1, name)
	}
}

func printStatus(ctrl *player.Controller) {
	state := ctrl.State()
	mode := "stopped"
	switch {
	case state.Loading:
		mode = "loading"
	case state.Playing:
		mode = "playing"
	case state.Current != "":
		mode = "paused"
	}
	fmt.Printf("%s  current=%s  pos=%.0fs  vol=%.2f  queue=%d\n",
		mode, state.Current, state.Position, state.Volume, len(state.Queue))
}

func printRemote(songs []song.RemoteSong, err error) {
	if err != nil {
		fmt.Printf("catalog request failed: %v\n", err)
		return
	}
	for _, s := range songs {
		fmt.Printf("  %s  %s / %s  [%s]\n", s.ID, s.Name, song.ArtistLine(s.Artists), s.Album)
	}
}

func printLocal(resolver *library.Resolver) {
	for _, s := range resolver.Locals() {
		id := s.CatalogID
		if id == "" {
			id = "-"
		}
		fmt.Printf("  %s  %s / %s  (%s)\n", id, s.Name, song.ArtistLine(s.Artists), s.Path)
	}
}
