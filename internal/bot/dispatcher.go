// Package bot routes inbound messenger updates. Each user gets a serial
// lane so one user's actions are processed strictly in order while users
// proceed independently.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/action"
	adminwizard "github.com/mishalinitiative/quizbot/internal/admin"
	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/flow"
	"github.com/mishalinitiative/quizbot/internal/messenger"
	"github.com/mishalinitiative/quizbot/internal/repository"
	"github.com/mishalinitiative/quizbot/internal/service"
)

// Dispatcher consumes the update stream and routes every event to the exam
// flow, the admin wizard, or a menu handler.
type Dispatcher struct {
	msg         messenger.Messenger
	src         messenger.UpdateSource
	machine     *flow.Machine
	wizard      *adminwizard.Wizard
	menus       *service.MenuService
	progress    *service.ProgressService
	loader      *content.Loader
	examRepo    *repository.ExamRepository
	adminUserID int64
	channelID   string
	log         zerolog.Logger

	mu    sync.Mutex
	lanes map[int64]chan messenger.Update
	wg    sync.WaitGroup
}

// NewDispatcher wires the update router.
func NewDispatcher(
	msg messenger.Messenger,
	src messenger.UpdateSource,
	machine *flow.Machine,
	wizard *adminwizard.Wizard,
	menus *service.MenuService,
	progress *service.ProgressService,
	loader *content.Loader,
	examRepo *repository.ExamRepository,
	adminUserID int64,
	channelID string,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		msg:         msg,
		src:         src,
		machine:     machine,
		wizard:      wizard,
		menus:       menus,
		progress:    progress,
		loader:      loader,
		examRepo:    examRepo,
		adminUserID: adminUserID,
		channelID:   channelID,
		log:         log.With().Str("component", "dispatcher").Logger(),
		lanes:       map[int64]chan messenger.Update{},
	}
}

// Run consumes updates until ctx is cancelled, then waits for every lane to
// drain its in-flight event.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().Msg("dispatcher started")
	for upd := range d.src.Updates(ctx) {
		d.enqueue(ctx, upd)
	}
	d.mu.Lock()
	for _, lane := range d.lanes {
		close(lane)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.log.Info().Msg("dispatcher stopped")
}

// enqueue places the update on its user's lane, creating the lane on first
// contact. Lanes live for the process lifetime; the per-lane goroutine is
// what guarantees in-order handling for one user.
func (d *Dispatcher) enqueue(ctx context.Context, upd messenger.Update) {
	d.mu.Lock()
	lane, ok := d.lanes[upd.UserID]
	if !ok {
		lane = make(chan messenger.Update, 32)
		d.lanes[upd.UserID] = lane
		d.wg.Add(1)
		go d.drainLane(ctx, lane)
	}
	d.mu.Unlock()

	select {
	case lane <- upd:
	default:
		d.log.Warn().Int64("user_id", upd.UserID).Msg("lane full, update dropped")
	}
}

func (d *Dispatcher) drainLane(ctx context.Context, lane <-chan messenger.Update) {
	defer d.wg.Done()
	for upd := range lane {
		d.handle(ctx, upd)
	}
}

func (d *Dispatcher) handle(ctx context.Context, upd messenger.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Int64("user_id", upd.UserID).Msg("handler panicked")
		}
	}()

	isAdmin := upd.UserID == d.adminUserID

	if upd.Action == "" {
		d.handleText(ctx, upd, isAdmin)
		return
	}

	if !isAdmin && d.menus.MaintenanceMode(ctx) {
		_, _ = d.msg.SendMessage(ctx, upd.UserID, "🔧 The bot is under maintenance. Please try again later.", nil)
		return
	}

	act := action.Parse(upd.Action)
	switch a := act.(type) {
	case action.ShowMainMenu:
		d.showMainMenu(ctx, upd.UserID)
	case action.CheckMembership:
		d.checkMembership(ctx, upd.UserID)
	case action.ShowResults:
		d.showResults(ctx, upd.UserID)
	case action.AdminReloadData:
		if !isAdmin {
			return
		}
		d.loader.Invalidate()
		_, _ = d.msg.SendMessage(ctx, upd.UserID, "♻️ Content cache cleared. Files reload on next access.", nil)
	case action.AdminToggleMaintenance:
		if !isAdmin {
			return
		}
		on := !d.menus.MaintenanceMode(ctx)
		if err := d.menus.SetMaintenanceMode(ctx, on); err != nil {
			d.log.Error().Err(err).Msg("maintenance toggle failed")
			_, _ = d.msg.SendMessage(ctx, upd.UserID, "⚠️ Could not change maintenance mode.", nil)
			return
		}
		state := "off"
		if on {
			state = "on"
		}
		_, _ = d.msg.SendMessage(ctx, upd.UserID, "Maintenance mode is now "+state+".", nil)
	case action.AdminNewExam:
		if !isAdmin {
			return
		}
		if err := d.wizard.Start(ctx, upd.UserID); err != nil {
			d.log.Error().Err(err).Msg("wizard start failed")
		}
	case action.AdminCancelWizard:
		if !isAdmin {
			return
		}
		if err := d.wizard.Cancel(ctx, upd.UserID); err != nil {
			d.log.Error().Err(err).Msg("wizard cancel failed")
		}
	case action.AdminToggleHidden:
		if !isAdmin {
			return
		}
		d.toggleHidden(ctx, upd.UserID, a.ExamID)
	case action.Unknown:
		d.log.Debug().Str("token", a.Raw).Int64("user_id", upd.UserID).Msg("unknown action token")
	default:
		if err := d.machine.Handle(ctx, upd.UserID, upd.DisplayName, act); err != nil {
			d.log.Error().Err(err).Int64("user_id", upd.UserID).Str("token", upd.Action).Msg("flow action failed")
		}
	}
}

func (d *Dispatcher) handleText(ctx context.Context, upd messenger.Update, isAdmin bool) {
	if isAdmin && d.wizard.Active(ctx, upd.UserID) {
		if err := d.wizard.HandleInput(ctx, upd); err != nil {
			d.log.Error().Err(err).Msg("wizard input failed")
			_, _ = d.msg.SendMessage(ctx, upd.UserID, "⚠️ Something went wrong. Send that again.", nil)
		}
		return
	}

	switch strings.TrimSpace(upd.Text) {
	case "/start":
		if !isAdmin && d.menus.MaintenanceMode(ctx) {
			_, _ = d.msg.SendMessage(ctx, upd.UserID, "🔧 The bot is under maintenance. Please try again later.", nil)
			return
		}
		d.checkMembership(ctx, upd.UserID)
	case "/admin":
		if isAdmin {
			d.showAdminMenu(ctx, upd.UserID)
		}
	}
}

// checkMembership enforces the channel-subscription gate, then shows the
// main menu. The gate is open when no channel is configured.
func (d *Dispatcher) checkMembership(ctx context.Context, userID int64) {
	if d.channelID != "" {
		member, err := d.msg.CheckMembership(ctx, userID)
		if err != nil {
			d.log.Warn().Err(err).Int64("user_id", userID).Msg("membership check failed")
		}
		if err == nil && !member {
			kb := messenger.Keyboard{
				messenger.Row(messenger.Button{Text: "📢 Join the channel", Action: channelURL(d.channelID)}),
				messenger.Row(messenger.Button{Text: "✅ I joined", Action: action.Encode(action.CheckMembership{})}),
			}
			_, _ = d.msg.SendMessage(ctx, userID, "Please join our channel first, then tap the button below.", kb)
			return
		}
	}
	d.showMainMenu(ctx, userID)
}

func (d *Dispatcher) showMainMenu(ctx context.Context, userID int64) {
	menu, err := d.menus.MainMenu(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("main menu unavailable")
		_, _ = d.msg.SendMessage(ctx, userID, "⚠️ The menu is unavailable right now. Please try again.", nil)
		return
	}

	kb := messenger.Keyboard{}
	for _, entry := range menu.Entries {
		kb = append(kb, messenger.Row(messenger.Button{Text: entry.Label, Action: entry.Action}))
	}
	title := menu.Title
	if title == "" {
		title = "📖 Choose a lesson:"
	}
	if _, err := d.msg.SendMessage(ctx, userID, title, kb); err != nil {
		d.log.Error().Err(err).Int64("user_id", userID).Msg("menu send failed")
	}
}

// showResults renders the user's best score per exam and the badges earned.
func (d *Dispatcher) showResults(ctx context.Context, userID int64) {
	scores, err := d.progress.ListBestScores(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Int64("user_id", userID).Msg("best scores unavailable")
		_, _ = d.msg.SendMessage(ctx, userID, "⚠️ Your results are unavailable right now. Please try again.", nil)
		return
	}

	var b strings.Builder
	if len(scores) == 0 {
		b.WriteString("You have no finished exams yet. Pick a lesson to get started!")
	} else {
		b.WriteString("🏅 Your best scores:\n")
		for _, s := range scores {
			fmt.Fprintf(&b, "• %s — %d/%d (%d attempts)\n", s.ExamKey, s.BestScore, s.TotalQuestions, s.AttemptCount)
		}
	}

	badges, err := d.progress.ListBadges(ctx, userID)
	if err != nil {
		d.log.Warn().Err(err).Int64("user_id", userID).Msg("badge list unavailable")
	} else if len(badges) > 0 {
		ids := make([]string, 0, len(badges))
		for _, badge := range badges {
			ids = append(ids, badge.BadgeID)
		}
		fmt.Fprintf(&b, "\n🎖 Badges: %s", strings.Join(ids, ", "))
	}

	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{Text: "⬅️ Menu", Action: action.Encode(action.ShowMainMenu{})}),
	}
	if _, err := d.msg.SendMessage(ctx, userID, b.String(), kb); err != nil {
		d.log.Error().Err(err).Int64("user_id", userID).Msg("results send failed")
	}
}

func (d *Dispatcher) showAdminMenu(ctx context.Context, userID int64) {
	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{Text: "♻️ Reload content", Action: action.Encode(action.AdminReloadData{})}),
		messenger.Row(messenger.Button{Text: "🔧 Toggle maintenance", Action: action.Encode(action.AdminToggleMaintenance{})}),
		messenger.Row(messenger.Button{Text: "➕ New exam", Action: action.Encode(action.AdminNewExam{})}),
	}

	defs, err := d.examRepo.List(ctx, true)
	if err != nil {
		d.log.Error().Err(err).Msg("exam list failed")
	}
	for _, def := range defs {
		label := "🙈 Hide " + def.ButtonText
		if def.IsHidden {
			label = "👁 Show " + def.ButtonText
		}
		kb = append(kb, messenger.Row(messenger.Button{
			Text:   label,
			Action: action.Encode(action.AdminToggleHidden{ExamID: def.ExamID}),
		}))
	}

	if _, err := d.msg.SendMessage(ctx, userID, "🛠 Admin panel", kb); err != nil {
		d.log.Error().Err(err).Msg("admin menu send failed")
	}
}

func (d *Dispatcher) toggleHidden(ctx context.Context, userID int64, examID string) {
	def, err := d.examRepo.GetByID(ctx, examID)
	if err != nil {
		d.log.Error().Err(err).Str("exam_id", examID).Msg("exam lookup failed")
		_, _ = d.msg.SendMessage(ctx, userID, "⚠️ Exam not found.", nil)
		return
	}
	if err := d.examRepo.SetHidden(ctx, examID, !def.IsHidden); err != nil {
		d.log.Error().Err(err).Str("exam_id", examID).Msg("visibility update failed")
		_, _ = d.msg.SendMessage(ctx, userID, "⚠️ Could not update visibility.", nil)
		return
	}
	d.loader.Invalidate()
	_, _ = d.msg.SendMessage(ctx, userID,
		fmt.Sprintf("Exam %s is now %s.", examID, visibility(!def.IsHidden)), nil)
}

func visibility(hidden bool) string {
	if hidden {
		return "hidden"
	}
	return "visible"
}

// channelURL turns an "@handle" channel id into its public join link.
func channelURL(channelID string) string {
	return "https://t.me/" + strings.TrimPrefix(channelID, "@")
}
