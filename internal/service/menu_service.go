package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/action"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
)

// MenuService resolves configurable menus and the maintenance flag.
type MenuService struct {
	menuRepo    *repository.MenuRepository
	settingRepo *repository.SettingRepository
	examRepo    *repository.ExamRepository
	dataDir     string
	log         zerolog.Logger
}

// NewMenuService creates a new MenuService.
func NewMenuService(
	menuRepo *repository.MenuRepository,
	settingRepo *repository.SettingRepository,
	examRepo *repository.ExamRepository,
	dataDir string,
	log zerolog.Logger,
) *MenuService {
	return &MenuService{
		menuRepo:    menuRepo,
		settingRepo: settingRepo,
		examRepo:    examRepo,
		dataDir:     dataDir,
		log:         log.With().Str("component", "menu_service").Logger(),
	}
}

// MainMenu builds the main menu: the configured static entries followed by
// one entry per visible dynamic exam.
func (s *MenuService) MainMenu(ctx context.Context) (*model.Menu, error) {
	menu, err := s.resolveMenu(ctx, "main")
	if err != nil {
		return nil, err
	}

	dynamic, err := s.examRepo.List(ctx, false)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list dynamic exams for menu")
		return menu, nil
	}

	for _, def := range dynamic {
		menu.Entries = append(menu.Entries, model.MenuEntry{
			Label:  def.ButtonText,
			Action: action.Encode(action.StartExam{ExamKey: def.Key()}),
		})
	}

	menu.Entries = append(menu.Entries, model.MenuEntry{
		Label:  "🏅 My results",
		Action: action.Encode(action.ShowResults{}),
	})
	return menu, nil
}

// resolveMenu loads a menu from the table, falling back to the menus.json
// bundle in the data directory.
func (s *MenuService) resolveMenu(ctx context.Context, key string) (*model.Menu, error) {
	menu, err := s.menuRepo.Get(ctx, key)
	if err == nil {
		return menu, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn().Err(err).Str("menu", key).Msg("menu table read failed, trying file fallback")
	}

	blob, err := os.ReadFile(filepath.Join(s.dataDir, "menus.json"))
	if err != nil {
		return nil, fmt.Errorf("menu %s unavailable: %w", key, err)
	}

	var menus map[string]model.Menu
	if err := json.Unmarshal(blob, &menus); err != nil {
		return nil, fmt.Errorf("decode menus.json: %w", err)
	}
	m, ok := menus[key]
	if !ok {
		return nil, fmt.Errorf("menu %s not in menus.json", key)
	}
	m.Key = key
	return &m, nil
}

// MaintenanceMode reports whether the bot is in maintenance mode. Missing
// setting means off.
func (s *MenuService) MaintenanceMode(ctx context.Context) bool {
	setting, err := s.settingRepo.Get(ctx, model.SettingMaintenanceMode)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Msg("maintenance flag read failed")
		}
		return false
	}
	return setting.Value == "on"
}

// SetMaintenanceMode toggles the maintenance flag and returns the new state.
func (s *MenuService) SetMaintenanceMode(ctx context.Context, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return s.settingRepo.Upsert(ctx, model.SettingMaintenanceMode, value)
}
