package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"tripsync/internal/client"
	"tripsync/internal/domain"
	"tripsync/internal/itinerary"
	"tripsync/internal/session"
	"tripsync/pkg/logger"
	"tripsync/pkg/redis"
)

const usage = `Usage: tripwatch [flags] <command> [args]

Commands:
  create-room <name>          create a room and print its id
  watch                       print the day timelines on every change
  list                        print the room's spots
  add <name> [lng lat]        add a candidate spot
  remove <id|name>            remove a spot
  confirm <id> [day]          confirm a spot onto a day (0 = every day)
  unconfirm <id>              move a spot back to the candidates
  vote <id>                   toggle your like on a spot
  tour                        fly the camera over the itinerary

Flags:
`

type options struct {
	server       string
	room         string
	name         string
	stateDir     string
	sessionStore string
	redisURL     string
	clientID     string
	logLevel     string
	acceptTerms  bool
	flight       time.Duration
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	opts := options{}
	fs := flag.NewFlagSet("tripwatch", flag.ExitOnError)
	fs.StringVar(&opts.server, "server", getEnv("TRIPSYNC_SERVER", "http://localhost:8080"), "tripsync server url")
	fs.StringVar(&opts.room, "room", os.Getenv("TRIPSYNC_ROOM"), "room id")
	fs.StringVar(&opts.name, "name", "", "join the room under this name")
	fs.StringVar(&opts.stateDir, "state-dir", getEnv("TRIPSYNC_STATE_DIR", defaultStateDir()), "directory for the file session store")
	fs.StringVar(&opts.sessionStore, "session-store", getEnv("SESSION_STORE", "file"), "session store: file or redis")
	fs.StringVar(&opts.redisURL, "redis-url", os.Getenv("REDIS_URL"), "redis url for the redis session store")
	fs.StringVar(&opts.clientID, "client-id", getEnv("TRIPSYNC_CLIENT_ID", defaultClientID()), "identity shared by terminals using the redis session store")
	fs.StringVar(&opts.logLevel, "log-level", getEnv("LOG_LEVEL", "warn"), "log level")
	fs.BoolVar(&opts.acceptTerms, "accept-terms", false, "accept the terms of use")
	fs.DurationVar(&opts.flight, "flight", 800*time.Millisecond, "simulated camera flight time during a tour")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	log := logger.NewConsole(opts.logLevel, os.Stderr)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, fs.Arg(0), fs.Args()[1:], log); err != nil {
		fmt.Fprintf(os.Stderr, "tripwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, command string, args []string, log *logger.Logger) error {
	backend := client.NewBackend(opts.server, log)

	if command == "create-room" {
		if len(args) == 0 {
			return errors.New("create-room needs a name")
		}
		room, err := backend.CreateRoom(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(room.ID)
		return nil
	}

	if opts.room == "" {
		return errors.New("no room: pass -room or set TRIPSYNC_ROOM")
	}

	feed, err := client.NewFeed(opts.server, log)
	if err != nil {
		return err
	}
	sessions, closeSessions, err := openSessionStore(opts, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	engine := itinerary.NewEngine(backend, feed, sessions, log.Logger)
	defer engine.Close()

	if err := engine.OpenRoom(ctx, opts.room); err != nil {
		return err
	}
	if opts.name != "" {
		if err := checkTerms(ctx, engine.Session(), opts.acceptTerms); err != nil {
			return err
		}
		if err := engine.Join(ctx, opts.name); err != nil {
			return err
		}
	}
	store := engine.Store()
	if err := store.Load(ctx); err != nil {
		return err
	}

	switch command {
	case "watch":
		return watch(ctx, engine, log)

	case "list":
		snap := store.Snapshot()
		printSpots(os.Stdout, snap.Spots, snap.Votes)
		return nil

	case "add":
		candidate, err := parseCandidate(args)
		if err != nil {
			return err
		}
		spot, err := store.Add(ctx, candidate, nil)
		if err != nil {
			return err
		}
		fmt.Printf("added %d %s\n", spot.ID, spot.Name)
		return nil

	case "remove":
		if len(args) == 0 {
			return errors.New("remove needs a spot id or name")
		}
		return store.Remove(ctx, parseRef(strings.Join(args, " ")))

	case "confirm", "unconfirm":
		if len(args) == 0 {
			return fmt.Errorf("%s needs a spot id", command)
		}
		spot, err := findSpot(store.Spots(), args[0])
		if err != nil {
			return err
		}
		status, day := domain.StatusCandidate, 0
		if command == "confirm" {
			status = domain.StatusConfirmed
			if len(args) > 1 {
				if day, err = strconv.Atoi(args[1]); err != nil || day < 0 {
					return fmt.Errorf("invalid day %q", args[1])
				}
			}
		}
		return store.UpdateStatus(ctx, spot, status, day)

	case "vote":
		if len(args) == 0 {
			return errors.New("vote needs a spot id")
		}
		spot, err := findSpot(store.Spots(), args[0])
		if err != nil {
			return err
		}
		res, err := store.ToggleVote(ctx, spot.ID)
		if err != nil {
			return err
		}
		verb := "unliked"
		if res.Liked {
			verb = "liked"
		}
		fmt.Printf("%s %s (%d likes)\n", verb, spot.Name, res.Votes)
		return nil

	case "tour":
		clock := clockwork.NewRealClock()
		viewport := newPrintViewport(os.Stdout, clock, opts.flight)
		choreographer := itinerary.NewChoreographer(viewport, clock, log.Logger)
		return choreographer.Play(ctx, store.Spots())

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// reconnectInterval is how often watch checks for a dropped change feed
const reconnectInterval = 5 * time.Second

// watch redraws the timelines on every change until ctx ends, reopening the
// change feed whenever it drops
func watch(ctx context.Context, engine *itinerary.Engine, log *logger.Logger) error {
	if !engine.Session().State().Joined {
		return errors.New("watch needs a joined room: pass -name")
	}

	// bursts of changes collapse into one redraw of the latest snapshot
	redraw := make(chan struct{}, 1)
	engine.OnChange(func(itinerary.Snapshot) {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})

	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	printDays(os.Stdout, engine.Store().Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-redraw:
			fmt.Println()
			printDays(os.Stdout, engine.Store().Snapshot())
		case <-ticker.C:
			if engine.SubscriberState() != itinerary.Disconnected {
				continue
			}
			fmt.Fprintln(os.Stderr, "change feed lost, reconnecting")
			if err := engine.Reconnect(ctx); err != nil {
				log.WithError(err).Warn("Reconnect failed, retrying")
			}
		}
	}
}

func checkTerms(ctx context.Context, s *itinerary.Session, accept bool) error {
	ok, err := s.TermsAccepted(ctx)
	if err != nil || ok {
		return err
	}
	if !accept {
		return fmt.Errorf("terms %s not accepted: rerun with -accept-terms", domain.TermsVersion)
	}
	return s.AcceptTerms(ctx)
}

func openSessionStore(opts options, log *logger.Logger) (session.Store, func(), error) {
	switch opts.sessionStore {
	case "file":
		store, err := session.NewFileStore(opts.stateDir, log.Logger)
		return store, func() {}, err
	case "redis":
		if opts.redisURL == "" {
			return nil, nil, errors.New("redis session store needs -redis-url or REDIS_URL")
		}
		rdb, err := redis.NewClient(opts.redisURL, getEnv("ENVIRONMENT", "development"), log.Logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := session.NewRedisStore(rdb, opts.clientID)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return store, func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", opts.sessionStore)
	}
}

func parseCandidate(args []string) (domain.Candidate, error) {
	switch len(args) {
	case 0:
		return domain.Candidate{}, errors.New("add needs a name")
	case 1, 2:
		return domain.Candidate{Name: strings.Join(args, " ")}, nil
	}

	// trailing "lng lat" when both parse as numbers
	lng, errLng := strconv.ParseFloat(args[len(args)-2], 64)
	lat, errLat := strconv.ParseFloat(args[len(args)-1], 64)
	if errLng != nil || errLat != nil {
		return domain.Candidate{Name: strings.Join(args, " ")}, nil
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return domain.Candidate{}, fmt.Errorf("coordinates out of range: %v %v", lng, lat)
	}
	pos := domain.LngLat{lng, lat}
	return domain.Candidate{Name: strings.Join(args[:len(args)-2], " "), Coordinates: &pos}, nil
}

// parseRef treats a positive integer as a spot id and anything else as a name
func parseRef(arg string) domain.SpotRef {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return domain.SpotRef{ID: id}
	}
	return domain.SpotRef{Name: arg}
}

func findSpot(spots []domain.Spot, arg string) (domain.Spot, error) {
	ref := parseRef(arg)
	for _, sp := range spots {
		if (ref.ID != 0 && sp.ID == ref.ID) || (ref.ID == 0 && sp.Name == ref.Name) {
			return sp, nil
		}
	}
	return domain.Spot{}, fmt.Errorf("no spot %q in this room", arg)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tripsync"
	}
	return filepath.Join(dir, "tripsync")
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}
