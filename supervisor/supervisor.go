// Package supervisor implements the Supervisor process: a watchdog that
// forks/monitors a worker child, restarts it with exponential backoff,
// and gates whether the child should be running at all against a
// configured trading-session schedule. Signal handling follows the
// standard context-cancellation pattern: os/signal.Notify on
// SIGINT/SIGTERM cancels a context that unwinds the process tree. The
// supervisor and worker run in separate processes and share no memory.
package supervisor

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/haka-quant/optionengine/config"
)

// backoffSchedule is the exponential restart delay ladder: 5s, 10s, 20s,
// 40s, ..., capped at 300s.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	80 * time.Second,
	160 * time.Second,
	300 * time.Second,
}

// maxConsecutiveRestarts bounds how many times the supervisor will restart
// a child that keeps dying quickly before it gives up and waits for the
// next session window (or a manual reload).
const maxConsecutiveRestarts = 10

// minUptimeToResetBackoff is the child uptime threshold after which the
// consecutive-restart counter resets to zero.
const minUptimeToResetBackoff = time.Hour

// Mode selects whether the supervisor runs a single process (standalone,
// useful for local development or a platform that already restarts
// crashed processes) or forks and watches a child (daemon).
type Mode string

const (
	ModeStandalone Mode = "standalone"
	ModeDaemon     Mode = "daemon"
)

// Config configures one Supervisor instance.
type Config struct {
	Mode Mode

	// Command/Args build the child process invocation (typically the same
	// binary re-invoked with a "worker" subcommand).
	Command string
	Args    []string

	// Schedule gates whether the child should be running right now. A nil
	// Schedule means "always in session" (useful for standalone/testing).
	Schedule *config.SessionSchedule

	// SessionPollInterval controls how often the daemon loop re-checks the
	// trading-session schedule against the wall clock.
	SessionPollInterval time.Duration

	// ReloadSignal, if non-zero, is the OS signal that triggers a
	// deliberate child restart (e.g. after a config change) without
	// counting against the backoff ladder.
	ReloadSignal os.Signal
}

func (c Config) withDefaults() Config {
	if c.SessionPollInterval <= 0 {
		c.SessionPollInterval = 10 * time.Second
	}
	if c.ReloadSignal == nil {
		c.ReloadSignal = syscall.SIGHUP
	}
	return c
}

// Supervisor owns the child process lifecycle.
type Supervisor struct {
	cfg Config

	mu               sync.Mutex
	cmd              *exec.Cmd
	consecutiveFails int
	startedAt        time.Time

	reload chan os.Signal
}

func New(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{cfg: cfg, reload: make(chan os.Signal, 1)}
}

// Run blocks until ctx is cancelled or a terminal shutdown signal arrives.
// In ModeStandalone it runs the child exactly once to completion (or until
// cancelled). In ModeDaemon it supervises restarts with backoff.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	if s.cfg.ReloadSignal != nil {
		signal.Notify(s.reload, s.cfg.ReloadSignal)
	}
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("🛑 supervisor: signal %v received, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.cfg.Mode == ModeStandalone {
		return s.runOnce(ctx)
	}
	return s.runDaemon(ctx)
}

// runOnce starts the child and waits for it to exit or ctx to be cancelled.
func (s *Supervisor) runOnce(ctx context.Context) error {
	if err := s.start(); err != nil {
		return err
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- s.wait() }()

	select {
	case <-ctx.Done():
		s.stop()
		<-waitErr
		return ctx.Err()
	case err := <-waitErr:
		return err
	}
}

// runDaemon implements the watchdog loop: session-gated start/stop plus
// exponential-backoff restart on unexpected child exit.
func (s *Supervisor) runDaemon(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SessionPollInterval)
	defer ticker.Stop()

	childExit := make(chan error, 1)
	running := false
	gaveUp := false

	startChild := func() {
		if err := s.start(); err != nil {
			log.Printf("⚠️  supervisor: failed to start child: %v", err)
			return
		}
		running = true
		go func() { childExit <- s.wait() }()
	}

	if s.inSession(time.Now()) {
		startChild()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				s.stop()
				<-childExit
			}
			return ctx.Err()

		case <-s.reload:
			log.Println("🔄 supervisor: reload signal received, restarting child")
			if running {
				s.stop()
				<-childExit
				running = false
			}
			gaveUp = false
			startChild()

		case err := <-childExit:
			running = false
			if err != nil {
				log.Printf("⚠️  supervisor: child exited: %v", err)
			} else {
				log.Println("ℹ️  supervisor: child exited cleanly")
			}
			if !s.inSession(time.Now()) {
				// Outside session — do not restart; the poll loop will
				// bring it back up once the next session opens.
				continue
			}
			delay, ok := s.nextBackoff()
			if !ok {
				log.Printf("❌ supervisor: %d consecutive restarts exceeded, giving up until next session window", maxConsecutiveRestarts)
				gaveUp = true
				continue
			}
			log.Printf("⏳ supervisor: restarting child in %s", delay)
			select {
			case <-time.After(delay):
				startChild()
			case <-ctx.Done():
				return ctx.Err()
			}

		case <-ticker.C:
			want := s.inSession(time.Now())
			if !want {
				gaveUp = false
			}
			switch {
			case want && !running && !gaveUp:
				log.Println("📈 supervisor: entering trading session, starting child")
				startChild()
			case !want && running:
				log.Println("📉 supervisor: leaving trading session, stopping child")
				s.stop()
				<-childExit
				running = false
			}
		}
	}
}

func (s *Supervisor) inSession(now time.Time) bool {
	if s.cfg.Schedule == nil {
		return true
	}
	return s.cfg.Schedule.InSession(now)
}

// nextBackoff returns the delay for the next restart attempt and advances
// the consecutive-failure counter, or (0, false) once the cap is reached.
// The counter is reset whenever the prior run's uptime met the reset
// threshold, so a long-lived worker that eventually crashes gets a fresh
// set of attempts rather than inheriting an exhausted counter.
func (s *Supervisor) nextBackoff() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.startedAt.IsZero() && time.Since(s.startedAt) >= minUptimeToResetBackoff {
		s.consecutiveFails = 0
	}
	if s.consecutiveFails >= maxConsecutiveRestarts {
		return 0, false
	}
	idx := s.consecutiveFails
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	s.consecutiveFails++
	return backoffSchedule[idx], true
}

func (s *Supervisor) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return err
	}
	s.cmd = cmd
	s.startedAt = time.Now()
	log.Printf("🚀 supervisor: child started (pid %d)", cmd.Process.Pid)
	return nil
}

func (s *Supervisor) wait() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	return cmd.Wait()
}

// stop sends SIGTERM to the child and returns; there is no grace-period
// timer and no SIGKILL fallback. Callers wait on the child's exit (the
// worker handles SIGTERM itself as part of its own graceful shutdown).
func (s *Supervisor) stop() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("⚠️  supervisor: failed to signal child: %v", err)
	}
}
