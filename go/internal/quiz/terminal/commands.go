package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizsync/go/internal/logger"
	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/client"
	"github.com/mcdev12/quizsync/go/internal/quiz/config"
	"github.com/mcdev12/quizsync/go/internal/quiz/gateway"
)

type Globals struct {
	Debug   bool
	Version string
}

// HostCmd creates a session and lets the game master drive it.
type HostCmd struct {
	Category string `help:"Question category" default:"adult"`
	Count    int    `help:"Number of questions" default:"5"`
	Seconds  int    `help:"Seconds per question" default:"20"`
	Name     string `help:"Display name" default:"Game Master"`
	PlayerID string `help:"Player id, random when empty" name:"player-id"`
}

func (h *HostCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openEnv(ctx, globals)
	if err != nil {
		return err
	}
	defer env.close()

	r := NewTerminalRenderer(os.Stdout)
	c := client.New(env.clients, identity(h.PlayerID, h.Name))
	defer c.Close()

	code, err := c.CreateSession(ctx, models.SessionSettings{
		Category:           h.Category,
		QuestionCount:      h.Count,
		SecondsPerQuestion: h.Seconds,
	})
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	fmt.Printf("Game code: %s\n", code)

	if err := c.Watch(ctx, r); err != nil {
		return fmt.Errorf("failed to watch game: %w", err)
	}
	return Host(ctx, c, r, os.Stdin)
}

// PlayCmd joins a session as a player.
type PlayCmd struct {
	Code     string `arg:"" help:"Game code"`
	Name     string `help:"Display name" required:""`
	PlayerID string `help:"Player id, random when empty" name:"player-id"`
}

func (p *PlayCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openEnv(ctx, globals)
	if err != nil {
		return err
	}
	defer env.close()

	r := NewTerminalRenderer(os.Stdout)
	c := client.New(env.clients, identity(p.PlayerID, p.Name))
	defer c.Close()

	if err := c.JoinSession(ctx, p.Code); err != nil {
		return fmt.Errorf("failed to join game %s: %w", p.Code, err)
	}
	if err := c.Watch(ctx, r); err != nil {
		return fmt.Errorf("failed to watch game: %w", err)
	}
	return Play(ctx, c, r, os.Stdin)
}

// TokenCmd signs a gateway token for a player.
type TokenCmd struct {
	PlayerID string        `arg:"" help:"Player id"`
	Name     string        `help:"Display name"`
	TTL      time.Duration `help:"Token lifetime" default:"24h"`
	Secret   string        `help:"Signing secret" env:"JWT_SECRET" required:""`
}

func (t *TokenCmd) Run(ctx context.Context, globals *Globals) error {
	token, err := gateway.NewAuthenticator(t.Secret).IssueToken(client.Identity{
		PlayerID: t.PlayerID,
		Name:     t.Name,
	}, t.TTL)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// Host reads game master commands from in until the game is over or in is
// exhausted.
func Host(ctx context.Context, c *client.SessionClient, r *Renderer, in io.Reader) error {
	return readCommands(ctx, in, func(line string) (bool, error) {
		switch line {
		case "start":
			return false, c.Start(ctx)
		case "next", "advance":
			return false, c.Advance(ctx)
		case "end":
			return true, c.End(ctx)
		case "quit", "exit":
			return true, nil
		default:
			r.Printf("Unknown command %q. Use start, next, end or quit.\n", line)
			return false, nil
		}
	}, r)
}

// Play reads option numbers from in and submits them as answers.
func Play(ctx context.Context, c *client.SessionClient, r *Renderer, in io.Reader) error {
	return readCommands(ctx, in, func(line string) (bool, error) {
		if line == "quit" || line == "exit" {
			return true, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			r.Printf("Type an option number, or quit.\n")
			return false, nil
		}
		option, ok := r.Option(n)
		if !ok {
			r.Printf("There is no option %d.\n", n)
			return false, nil
		}
		res, err := c.SubmitAnswer(ctx, option)
		if err != nil {
			return false, err
		}
		if res.Correct {
			r.Printf("Correct! +%d (score %d)\n", res.Awarded, res.Score)
		} else {
			r.Printf("Wrong answer (score %d)\n", res.Score)
		}
		return false, nil
	}, r)
}

func readCommands(ctx context.Context, in io.Reader, handle func(string) (bool, error), r *Renderer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			done, err := handle(strings.ToLower(line))
			if err != nil {
				if quiz.IsSilent(err) {
					log.Debug().Err(err).Str("input", line).Msg("command rejected")
				} else {
					r.Printf("Error: %v\n", err)
				}
			}
			if done {
				return nil
			}
		}
	}
}

type env struct {
	clients client.Config
	close   func()
}

// openEnv loads configuration and connects the shared store. quizctl
// processes only see each other through a networked store.
func openEnv(ctx context.Context, globals *Globals) (*env, error) {
	cfg := config.Load()
	if globals.Debug {
		cfg.LogLevel = "debug"
	}
	log.Logger = logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("QUIZ_STORE is memory: other quizctl processes will not see this game")
	}

	st, err := cfg.OpenStore(ctx, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	supplier, closeSupplier, err := cfg.OpenSupplier(ctx, log.Logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open question supplier: %w", err)
	}

	return &env{
		clients: client.Config{
			Store:            st,
			Supplier:         supplier,
			Clock:            clockwork.NewRealClock(),
			RevealGrace:      cfg.RevealGrace,
			PointsPerCorrect: cfg.PointsPerCorrect,
			Logger:           log.Logger,
		},
		close: func() {
			closeSupplier()
			st.Close()
		},
	}, nil
}

func identity(playerID, name string) client.Identity {
	if playerID == "" {
		playerID = uuid.NewString()
	}
	if name == "" {
		name = playerID
	}
	return client.Identity{PlayerID: playerID, Name: name}
}

// WithInterrupt cancels ctx on SIGINT or SIGTERM.
func WithInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
