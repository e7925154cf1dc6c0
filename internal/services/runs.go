package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pandeptwidyaop/card-runner/internal/automation"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/metrics"
	"github.com/pandeptwidyaop/card-runner/internal/models"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunNotActive = errors.New("run is not active")
	// ErrRunNotRecorded is returned when neither the outcome of a run nor
	// the fallback error could be written. The row is left running until
	// MarkInterrupted clears it on the next start.
	ErrRunNotRecorded = errors.New("run outcome could not be recorded")
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 100

	// interruptedRunError marks runs that were still running when the
	// process stopped.
	interruptedRunError = "interrupted"
	cancelledRunError   = "run cancelled"
)

const runColumns = `r.id, r.config_id, r.status, r.output, r.error, r.headless,
	r.cards_attempted, r.cards_created, r.cards_failed, r.started_at, r.ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, extra ...any) (*models.Run, error) {
	var run models.Run
	var runErr sql.NullString
	var endedAt sql.NullTime

	dest := []any{
		&run.ID, &run.ConfigID, &run.Status, &run.Output, &runErr, &run.Headless,
		&run.CardsAttempted, &run.CardsCreated, &run.CardsFailed, &run.StartedAt, &endedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if runErr.Valid {
		run.Error = &runErr.String
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// CardScript runs the card batch against a ready page.
type CardScript interface {
	Run(ctx context.Context, page automation.Page, out *automation.OutputCollector, in automation.CardInput) (automation.BatchReport, error)
}

// BrowserRunner owns the browser lifecycle around a script.
type BrowserRunner interface {
	Run(ctx context.Context, script automation.ScriptFunc, opts automation.RunOptions) automation.Result
}

// RunService orchestrates automation runs: it validates a config, records
// the run, drives the browser and records exactly one terminal outcome.
type RunService struct {
	db       *database.DB
	configs  *ConfigService
	runner   BrowserRunner
	script   CardScript
	metrics  *metrics.RunMetrics
	active   map[string]context.CancelFunc
	now      func() time.Time
	slowMo   time.Duration
	activeMu sync.Mutex
}

// NewRunService creates a RunService. A nil m disables run metrics.
func NewRunService(db *database.DB, configs *ConfigService, runner BrowserRunner, script CardScript, m *metrics.RunMetrics, slowMo time.Duration) *RunService {
	return &RunService{
		db:      db,
		configs: configs,
		runner:  runner,
		script:  script,
		metrics: m,
		active:  make(map[string]context.CancelFunc),
		now:     time.Now,
		slowMo:  slowMo,
	}
}

// PreparedRun is a validated config with its freshly created run record.
type PreparedRun struct {
	Run    *models.Run
	Config *models.Config
	Input  automation.CardInput
}

// Prepare loads and validates the config and creates the run record. No
// record is created when validation fails.
func (s *RunService) Prepare(req *models.RunRequest) (*PreparedRun, error) {
	cfg, err := s.configs.Get(req.ConfigID)
	if err != nil {
		return nil, err
	}

	in, err := automation.ParseCardInput(cfg.Settings)
	if err != nil {
		return nil, err
	}

	run, err := s.createRun(cfg.ID, req.Headless)
	if err != nil {
		return nil, err
	}

	return &PreparedRun{Run: run, Config: cfg, Input: in}, nil
}

func (s *RunService) createRun(configID string, headless bool) (*models.Run, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, config_id, status, output, headless, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, configID, models.RunStatusRunning, "", headless, s.now(),
	)
	if err != nil {
		return nil, err
	}

	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return &run.Run, nil
}

// Execute drives the browser for a prepared run, records its outcome and
// returns the run as stored. A failed script is a recorded run, not an
// error; the error return is reserved for storage failures.
func (s *RunService) Execute(ctx context.Context, p *PreparedRun) (*models.RunWithConfig, error) {
	runID := p.Run.ID
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(runID, cancel)
	defer s.untrack(runID)

	log.Printf("[Runs] Starting run %s for config %q (headless=%v)", runID, p.Config.Name, p.Run.Headless)
	s.metrics.RunStarted()
	started := s.now()

	out := automation.NewOutputCollector().Mirror(func(line string) {
		log.Printf("[Run %s] %s", runID, line)
	})

	var report automation.BatchReport
	in := p.Input
	script := func(ctx context.Context, page automation.Page, out *automation.OutputCollector) error {
		out.Logf("Running with config: %s", p.Config.Name)
		out.Logf("Email: %s", in.Email)
		out.Logf("Cards to create: %d", in.NumberOfCards)
		out.Logf("Amount per card: %s", strconv.FormatFloat(in.CardAmount, 'f', -1, 64))
		if in.DryRun {
			out.Log("Dry run mode: ENABLED")
		} else {
			out.Log("Dry run mode: disabled")
		}

		var err error
		report, err = s.script.Run(ctx, page, out, in)
		return err
	}

	result := s.runBrowser(ctx, script, out, automation.RunOptions{
		Collector: out,
		AccountID: in.Email,
		Headless:  p.Run.Headless,
		SlowMo:    s.slowMo,
	})
	if !result.Success && errors.Is(ctx.Err(), context.Canceled) {
		result.Error = cancelledRunError
	}

	status := models.RunStatusSuccess
	var runErr *string
	if !result.Success {
		status = models.RunStatusError
		msg := result.Error
		runErr = &msg
	}

	finish := models.RunFinish{
		EndedAt:        s.now(),
		Error:          runErr,
		Status:         status,
		Output:         result.Output,
		CardsAttempted: report.Attempted,
		CardsCreated:   report.Created,
		CardsFailed:    report.Failed,
	}
	var recordErr error
	if err := s.finishRun(runID, finish); err != nil {
		log.Printf("[Runs] Failed to record outcome of run %s: %v", runID, err)
		msg := fmt.Sprintf("failed to record run outcome: %v", err)
		finish.Status = models.RunStatusError
		finish.Error = &msg
		status = models.RunStatusError
		if retryErr := s.finishRun(runID, finish); retryErr != nil {
			log.Printf("[Runs] Failed to record error for run %s: %v", runID, retryErr)
			recordErr = fmt.Errorf("%w: run %s: %v", ErrRunNotRecorded, runID, errors.Join(err, retryErr))
		}
	}

	s.metrics.RunFinished(string(status), s.now().Sub(started), report.Created, report.Failed)
	if recordErr != nil {
		return nil, recordErr
	}
	log.Printf("[Runs] Finished run %s with status=%s (created=%d, failed=%d)", runID, status, report.Created, report.Failed)

	return s.Get(runID)
}

// runBrowser shields the orchestration from a panicking runner.
func (s *RunService) runBrowser(ctx context.Context, script automation.ScriptFunc, out *automation.OutputCollector, opts automation.RunOptions) (result automation.Result) {
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("panic: %v", p)
			log.Printf("[Runs] Browser runner panicked: %v", p)
			result = automation.Result{Success: false, Output: out.Output(), Error: msg}
		}
	}()
	return s.runner.Run(ctx, script, opts)
}

// RunScript prepares and executes a run synchronously.
func (s *RunService) RunScript(ctx context.Context, req *models.RunRequest) (*models.RunWithConfig, error) {
	p, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, p)
}

// finishRun applies the terminal update. Only a running run can finish.
func (s *RunService) finishRun(id string, f models.RunFinish) error {
	result, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, output = ?, error = ?, ended_at = ?,
		    cards_attempted = ?, cards_created = ?, cards_failed = ?
		WHERE id = ? AND status = ?
	`, f.Status, f.Output, f.Error, f.EndedAt,
		f.CardsAttempted, f.CardsCreated, f.CardsFailed,
		id, models.RunStatusRunning)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRunNotActive
	}
	return nil
}

func (s *RunService) track(id string, cancel context.CancelFunc) {
	s.activeMu.Lock()
	s.active[id] = cancel
	s.activeMu.Unlock()
}

func (s *RunService) untrack(id string) {
	s.activeMu.Lock()
	delete(s.active, id)
	s.activeMu.Unlock()
}

// Cancel stops an in-flight run. The run finishes as an error once the
// browser has closed.
func (s *RunService) Cancel(id string) error {
	s.activeMu.Lock()
	cancel, ok := s.active[id]
	s.activeMu.Unlock()

	if !ok {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return ErrRunNotActive
	}
	cancel()
	return nil
}

// ActiveCount returns the number of runs holding a browser.
func (s *RunService) ActiveCount() int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return len(s.active)
}

// List returns runs newest first, optionally for one config. The limit is
// clamped to 1..100 and defaults to 20.
func (s *RunService) List(configID string, limit int) ([]models.RunWithConfig, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}

	query := `SELECT ` + runColumns + `, c.name FROM runs r JOIN configs c ON r.config_id = c.id`
	args := []any{}
	if configID != "" {
		query += ` WHERE r.config_id = ?`
		args = append(args, configID)
	}
	query += ` ORDER BY r.started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.RunWithConfig, 0)
	for rows.Next() {
		var name string
		run, err := scanRun(rows, &name)
		if err != nil {
			return nil, err
		}
		runs = append(runs, models.RunWithConfig{Run: *run, ConfigName: name})
	}
	return runs, rows.Err()
}

// Get returns a run with its config name.
func (s *RunService) Get(id string) (*models.RunWithConfig, error) {
	var name string
	row := s.db.QueryRow(`SELECT `+runColumns+`, c.name FROM runs r JOIN configs c ON r.config_id = c.id WHERE r.id = ?`, id)
	run, err := scanRun(row, &name)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.RunWithConfig{Run: *run, ConfigName: name}, nil
}

// MarkInterrupted finishes runs left in "running" by a previous process.
// It must be called before any run starts.
func (s *RunService) MarkInterrupted() (int64, error) {
	result, err := s.db.Exec(
		"UPDATE runs SET status = ?, error = ?, ended_at = ? WHERE status = ?",
		models.RunStatusError, interruptedRunError, s.now(), models.RunStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
