// Package app ties a game loop to everything around it: seeded obstacle
// randomness, run history, score submission and the shop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/shop"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/wallet"
)

// ErrRunInProgress is returned by operations that need the loop to be idle.
var ErrRunInProgress = errors.New("app: a run is in progress")

// Submitter records a finished run with the backend.
type Submitter interface {
	SubmitPlayed(ctx context.Context, req backend.PlayedRequest) (*backend.PlayedResult, error)
}

// SessionSource returns the stored player session.
type SessionSource interface {
	Load(profile string) (wallet.Session, error)
}

// Outcome is what became of a finished run.
type Outcome struct {
	RunID   string
	Score   int
	Best    int
	NewBest bool

	// Submitted is false when no session or wallet was available.
	Submitted    bool
	Reward       decimal.Decimal
	Achievements []string // display names
	Err          error
}

// Deps wires an App. Loop and DB are required.
type Deps struct {
	Loop      *game.Loop
	DB        store.DB
	Recorder  *store.FrameRecorder
	Submitter Submitter
	Sessions  SessionSource
	Profile   string
	Connector wallet.Connector
	Shop      *shop.Shop
	Balance   *shop.BalanceWatcher
	Version   string
	Logger    *log.Logger
}

// App owns the loop's surroundings. Tick the loop from one goroutine; App
// reacts to its RunEnded events and finishes the work in the background.
type App struct {
	loop      *game.Loop
	db        store.DB
	recorder  *store.FrameRecorder
	submitter Submitter
	sessions  SessionSource
	profile   string
	connector wallet.Connector
	shop      *shop.Shop
	balance   *shop.BalanceWatcher
	version   string
	logger    *log.Logger

	mu   sync.Mutex
	seq  *fairness.Sequence
	best int

	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	results chan Outcome
	unsub   func()
}

// New restores the seed pair and nonce from settings and subscribes to the
// loop.
func New(d Deps) (*App, error) {
	if d.Loop == nil || d.DB == nil {
		return nil, fmt.Errorf("app: loop and db are required")
	}
	if d.Logger == nil {
		d.Logger = log.New(os.Stdout, "[APP] ", log.LstdFlags)
	}
	if d.Profile == "" {
		d.Profile = "default"
	}

	seeds, nonce, err := loadSeeds(d.DB)
	if err != nil {
		return nil, err
	}
	best, err := d.DB.BestScore()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	a := &App{
		loop:      d.Loop,
		db:        d.DB,
		recorder:  d.Recorder,
		submitter: d.Submitter,
		sessions:  d.Sessions,
		profile:   d.Profile,
		connector: d.Connector,
		shop:      d.Shop,
		balance:   d.Balance,
		version:   d.Version,
		logger:    d.Logger,
		seq:       fairness.NewSequence(seeds, nonce),
		best:      best,
		ctx:       gctx,
		cancel:    cancel,
		g:         g,
		results:   make(chan Outcome, 16),
	}

	a.loop.SetRandFactory(a.issueStream)
	if a.recorder != nil {
		a.loop.SetRecorder(a.recorder)
	}
	a.unsub = a.loop.Subscribe(a.onRunEnded)

	if a.balance != nil {
		a.balance.Start(a.ctx)
	}
	a.logger.Printf("app_started server_seed_hash=%s nonce=%d best=%d", fairness.HashServerSeed(seeds.Server), nonce, best)
	return a, nil
}

func loadSeeds(db store.DB) (fairness.Seeds, uint64, error) {
	var seeds fairness.Seeds
	var err error
	if seeds.Server, err = settingOr(db, store.SettingServerSeed, fairness.NewServerSeed); err != nil {
		return seeds, 0, err
	}
	if seeds.Client, err = settingOr(db, store.SettingClientSeed, func() (string, error) { return uuid.NewString(), nil }); err != nil {
		return seeds, 0, err
	}

	var nonce uint64
	if v, err := db.GetSetting(store.SettingNextNonce); err == nil {
		if nonce, err = strconv.ParseUint(v, 10, 64); err != nil {
			return seeds, 0, fmt.Errorf("app: stored nonce %q: %w", v, err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return seeds, 0, fmt.Errorf("app: %w", err)
	}
	return seeds, nonce, nil
}

func settingOr(db store.DB, key string, gen func() (string, error)) (string, error) {
	v, err := db.GetSetting(key)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("app: %w", err)
	}
	if v, err = gen(); err != nil {
		return "", err
	}
	if err := db.SetSetting(key, v); err != nil {
		return "", fmt.Errorf("app: %w", err)
	}
	return v, nil
}

// Results delivers one Outcome per finished run.
func (a *App) Results() <-chan Outcome {
	return a.results
}

// Best returns the best score on record.
func (a *App) Best() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.best
}

// Seeds returns the active seed pair's public parts: the server seed hash,
// the client seed and the nonce of the next run.
func (a *App) Seeds() (serverHash, client string, nextNonce uint64) {
	a.mu.Lock()
	seq := a.seq
	a.mu.Unlock()
	s := seq.Seeds()
	return fairness.HashServerSeed(s.Server), s.Client, seq.NextNonce()
}

// RotateSeeds starts a new seed pair and returns the retired server seed so
// earlier runs can be checked. An empty client keeps the current one.
func (a *App) RotateSeeds(client string) (revealed string, err error) {
	if a.loop.State() == game.StateRunning {
		return "", ErrRunInProgress
	}
	server, err := fairness.NewServerSeed()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.seq.Seeds()
	if client == "" {
		client = old.Client
	}
	for key, v := range map[string]string{
		store.SettingServerSeed: server,
		store.SettingClientSeed: client,
		store.SettingNextNonce:  "0",
	} {
		if err := a.db.SetSetting(key, v); err != nil {
			return "", fmt.Errorf("app: rotate seeds: %w", err)
		}
	}
	a.seq = fairness.NewSequence(fairness.Seeds{Server: server, Client: client}, 0)
	a.logger.Printf("seeds_rotated old_hash=%s new_hash=%s", fairness.HashServerSeed(old.Server), fairness.HashServerSeed(server))
	return old.Server, nil
}

// Restart abandons the current run, dropping its recorded frames, and starts
// a new one.
func (a *App) Restart() {
	if a.loop.State() == game.StateRunning {
		prev := a.loop.RunID()
		if a.recorder != nil {
			a.recorder.Discard(prev)
		}
		a.mu.Lock()
		a.seq.Forget(prev)
		a.mu.Unlock()
	}
	a.loop.Restart()
}

// OpenShop shows the shop between runs.
func (a *App) OpenShop(ctx context.Context) error {
	if a.shop == nil {
		return fmt.Errorf("app: shop is not available")
	}
	if a.loop.State() == game.StateRunning {
		return ErrRunInProgress
	}
	if a.sessions != nil {
		if sess, err := a.sessions.Load(a.profile); err == nil {
			a.shop.SetAuth(sess.InitData)
		}
	}
	return a.shop.Show(ctx)
}

// CloseShop hides the shop.
func (a *App) CloseShop() {
	if a.shop != nil {
		a.shop.Hide()
	}
}

// onRunEnded runs on the ticking goroutine; everything slow happens in the
// errgroup.
func (a *App) onRunEnded(ev game.RunEnded) {
	a.mu.Lock()
	assignment, ok := a.seq.Lookup(ev.RunID)
	seq := a.seq
	a.mu.Unlock()
	if !ok {
		a.logger.Printf("run_ended_unknown run_id=%s", ev.RunID)
		return
	}

	skin := ""
	if a.shop != nil {
		skin = a.shop.CurrentSkin()
	}
	run := &store.Run{
		ID:            ev.RunID.String(),
		Score:         ev.Score,
		Ticks:         ev.Ticks,
		Cause:         string(ev.Cause),
		ServerSeed:    assignment.Seeds.Server,
		ClientSeed:    assignment.Seeds.Client,
		Nonce:         assignment.Nonce,
		Skin:          skin,
		EngineVersion: a.version,
	}
	a.logger.Printf("run_ended run_id=%s score=%d ticks=%d cause=%s nonce=%d", run.ID, run.Score, run.Ticks, run.Cause, run.Nonce)

	a.g.Go(func() error {
		a.finish(ev.RunID, run, seq)
		return nil
	})
}

// issueStream hands the next nonce to a starting run and persists the
// advanced counter before the run can consume any randomness, so a run
// abandoned by Restart or Close never shares its nonce with a later one.
func (a *App) issueStream(runID uuid.UUID) game.Rand {
	a.mu.Lock()
	defer a.mu.Unlock()
	stream := a.seq.Stream(runID)
	if err := a.db.SetSetting(store.SettingNextNonce, strconv.FormatUint(a.seq.NextNonce(), 10)); err != nil {
		a.logger.Printf("save_nonce_error run_id=%s err=%v", runID, err)
	}
	return stream
}

func (a *App) finish(runID uuid.UUID, run *store.Run, seq *fairness.Sequence) {
	out := Outcome{RunID: run.ID, Score: run.Score}

	if err := a.db.SaveRun(run); err != nil {
		a.logger.Printf("save_run_error run_id=%s err=%v", run.ID, err)
		out.Err = err
	}
	if a.recorder != nil {
		a.recorder.Finish(runID)
	}
	seq.Forget(runID)

	a.mu.Lock()
	if run.Score > a.best {
		a.best = run.Score
		out.NewBest = true
	}
	out.Best = a.best
	a.mu.Unlock()

	if out.Err == nil {
		a.submit(run, &out)
	}
	a.deliver(out)
}

func (a *App) submit(run *store.Run, out *Outcome) {
	req, ok := a.playedRequest(run.Score)
	if !ok || a.submitter == nil {
		return
	}

	res, err := a.submitter.SubmitPlayed(a.ctx, req)
	result := store.RunResult{}
	if err != nil {
		out.Err = fmt.Errorf("app: submit run: %w", err)
		result.Err = err.Error()
		a.logger.Printf("submit_error run_id=%s auth=%t err=%v", run.ID, backend.IsAuth(err), err)
	} else {
		out.Submitted = true
		out.Reward = res.Reward
		for _, id := range res.Achievements {
			out.Achievements = append(out.Achievements, backend.AchievementName(id))
		}
		result.Reward = decimal.NewNullDecimal(res.Reward)
		result.Achievements = res.Achievements
		a.logger.Printf("submit_ok run_id=%s reward=%s achievements=%d", run.ID, res.Reward, len(res.Achievements))
	}
	if err := a.db.UpdateRunResult(run.ID, result); err != nil {
		a.logger.Printf("update_run_error run_id=%s err=%v", run.ID, err)
	}
}

// playedRequest builds the submission from the stored session and the
// connected wallet. Only the session is needed; without a wallet the field
// is left out and the backend still counts the play.
func (a *App) playedRequest(score int) (backend.PlayedRequest, bool) {
	if a.sessions == nil {
		return backend.PlayedRequest{}, false
	}
	sess, err := a.sessions.Load(a.profile)
	if err != nil {
		if !errors.Is(err, wallet.ErrNoSession) {
			a.logger.Printf("session_error profile=%s err=%v", a.profile, err)
		}
		return backend.PlayedRequest{}, false
	}
	address := sess.Address
	if a.connector != nil {
		if acct, ok := a.connector.Account(); ok {
			address = acct.Address
		}
	}
	if sess.InitData == "" {
		return backend.PlayedRequest{}, false
	}
	return backend.PlayedRequest{TgData: sess.InitData, Wallet: address, Score: score}, true
}

func (a *App) deliver(out Outcome) {
	select {
	case a.results <- out:
	default:
		a.logger.Printf("outcome_dropped run_id=%s", out.RunID)
	}
}

// Close stops background work and waits for pending writes.
func (a *App) Close() error {
	a.unsub()
	if a.balance != nil {
		a.balance.Stop()
	}
	a.CloseShop()
	err := a.g.Wait()
	a.cancel()
	if a.recorder != nil {
		a.recorder.Wait()
	}
	return err
}
