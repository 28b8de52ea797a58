package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/app"
	"github.com/vthunder/chorebot/internal/bot"
	"github.com/vthunder/chorebot/internal/config"
	"github.com/vthunder/chorebot/internal/effectors"
	"github.com/vthunder/chorebot/internal/senses"
	"github.com/vthunder/chorebot/internal/types"
)

func main() {
	console := flag.Bool("console", false, "read messages from stdin instead of Discord")
	consoleUser := flag.String("user", "me", "sender name in console mode")
	flag.Parse()

	log.Println("chorebot - household task manager")
	log.Println("=================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	if cfg.DiscordToken == "" && !*console {
		log.Fatal("DISCORD_TOKEN environment variable required (or run with -console)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer a.Close()

	handler := a.Handler()
	a.Memory.StartJanitor(ctx, 10*time.Minute)
	a.Sweeper.Start(ctx, cfg.SweepInterval)

	if *console {
		runConsole(ctx, handler, a.Activity, cfg.StatePath, *consoleUser)
	} else {
		runDiscord(ctx, handler, a.Activity, cfg)
	}

	cancel()
	a.Sweeper.Wait()
	log.Println("[main] Goodbye!")
}

// deliver handles one message with the typing indicator shown, then sends
// the replies
func deliver(ctx context.Context, handler *bot.Handler, trail *activity.Log, out effectors.Effector, msg types.Message) {
	stop := out.StartTyping(msg.ChatID)
	replies := handler.Handle(ctx, msg)
	stop()

	for _, reply := range replies {
		err := out.Send(ctx, reply)
		if err != nil {
			log.Printf("[main] Failed to deliver reply to %s: %v", reply.ChatID, err)
		}
		if err := trail.LogReply(msg.ID, reply.ChatID, len(reply.Content), err); err != nil {
			log.Printf("[main] Activity log: %v", err)
		}
	}
}

// inflight tracks messages being handled so shutdown can wait for them.
// Once closed it turns new messages away.
type inflight struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// enter registers one message; false after close has begun
func (f *inflight) enter() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closing {
		return false
	}
	f.wg.Add(1)
	return true
}

func (f *inflight) leave() {
	f.wg.Done()
}

// close stops admitting messages and waits for the ones in progress
func (f *inflight) close() {
	f.mu.Lock()
	f.closing = true
	f.mu.Unlock()
	f.wg.Wait()
}

func runDiscord(ctx context.Context, handler *bot.Handler, trail *activity.Log, cfg config.Config) {
	sense, err := senses.NewDiscordSense(senses.DiscordConfig{
		Token:     cfg.DiscordToken,
		ChannelID: cfg.DiscordChannelID,
	})
	if err != nil {
		log.Fatalf("Failed to create Discord sense: %v", err)
	}
	out := effectors.NewDiscordEffector(sense.Session())

	var pending inflight
	// discordgo runs handlers on their own goroutines; the handler
	// serializes per conversation
	err = sense.Start(func(msg types.Message) {
		if !pending.enter() {
			return
		}
		defer pending.leave()
		deliver(ctx, handler, trail, out, msg)
	})
	if err != nil {
		log.Fatalf("Failed to start Discord sense: %v", err)
	}
	log.Println("[main] Connected. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutting down...")
	pending.close()
	if err := sense.Stop(); err != nil {
		log.Printf("[main] Discord close: %v", err)
	}
}

func runConsole(ctx context.Context, handler *bot.Handler, trail *activity.Log, statePath, user string) {
	out := effectors.NewConsoleEffector(os.Stdout, statePath)
	in := senses.NewConsole(os.Stdin, user)
	log.Printf("[main] Console mode as %q. Type messages, Ctrl+D to quit.", user)

	err := in.Run(ctx, func(msg types.Message) {
		deliver(ctx, handler, trail, out, msg)
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("[main] Console input: %v", err)
	}
}
