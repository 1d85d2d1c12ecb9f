package script

import (
	"fmt"
	"log/slog"

	"github.com/siohaza/bombard/internal/callbacks"
	"github.com/siohaza/bombard/internal/player"
	"github.com/siohaza/bombard/pkg/lua"
)

// Rules runs a Lua script alongside a match. Any of these globals may be defined:
//
//	name                                       display name of the rule set
//	on_player_join(player)
//	on_game_start(player_count)
//	on_turn_start(player, turn, wind)
//	on_shot(player)
//	on_player_damage(victim, shooter_id, damage)
//	on_player_eliminated(victim, shooter_id)
//	on_game_over(winner)                       winner is nil on a draw
//	next_wind(turn) -> number                  overrides the random wind
type Rules struct {
	vm     *lua.VM
	name   string
	logger *slog.Logger
}

var _ callbacks.Callbacks = (*Rules)(nil)

func Load(path string, view lua.MatchView, logger *slog.Logger) (*Rules, error) {
	return newRules(view, logger, func(vm *lua.VM) error { return vm.LoadFile(path) })
}

func LoadString(code string, view lua.MatchView, logger *slog.Logger) (*Rules, error) {
	return newRules(view, logger, func(vm *lua.VM) error { return vm.LoadString(code) })
}

func newRules(view lua.MatchView, logger *slog.Logger, load func(*lua.VM) error) (*Rules, error) {
	vm := lua.NewVM()
	if view != nil {
		lua.NewGameAPI(view, logger).RegisterFunctions(vm)
	}

	if err := load(vm); err != nil {
		vm.Close()
		return nil, fmt.Errorf("failed to load rules script: %w", err)
	}

	name, err := vm.GetGlobalString("name")
	if err != nil {
		name = "lua_rules"
	}

	return &Rules{
		vm:     vm,
		name:   name,
		logger: logger,
	}, nil
}

func (r *Rules) Name() string {
	return r.name
}

func (r *Rules) call(fn string, args ...interface{}) {
	if r.vm == nil || !r.vm.HasFunction(fn) {
		return
	}
	if err := r.vm.CallFunction(fn, args...); err != nil && r.logger != nil {
		r.logger.Error("lua rules "+fn+" error", "error", err)
	}
}

func (r *Rules) OnPlayerJoin(p *player.Player) {
	r.call("on_player_join", lua.PlayerArg(p))
}

func (r *Rules) OnGameStart(players []*player.Player) {
	r.call("on_game_start", len(players))
}

func (r *Rules) OnTurnStart(p *player.Player, turn uint32, wind float32) {
	r.call("on_turn_start", lua.PlayerArg(p), turn, wind)
}

func (r *Rules) OnShot(p *player.Player) {
	r.call("on_shot", lua.PlayerArg(p))
}

func (r *Rules) OnPlayerDamage(victim *player.Player, ownerID uint32, damage int32) {
	r.call("on_player_damage", lua.PlayerArg(victim), ownerID, damage)
}

func (r *Rules) OnPlayerEliminated(victim *player.Player, ownerID uint32) {
	r.call("on_player_eliminated", lua.PlayerArg(victim), ownerID)
}

func (r *Rules) OnGameOver(winner *player.Player) {
	r.call("on_game_over", lua.PlayerArg(winner))
}

// NextWind asks the script for the wind of the given turn.
func (r *Rules) NextWind(turn uint32) (float32, bool) {
	if r.vm == nil || !r.vm.HasFunction("next_wind") {
		return 0, false
	}

	results, err := r.vm.CallFunctionWithReturn("next_wind", 1, turn)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("lua rules next_wind error", "error", err)
		}
		return 0, false
	}
	if w, ok := results[0].(float64); ok {
		return float32(w), true
	}
	return 0, false
}

func (r *Rules) Close() {
	if r.vm != nil {
		r.vm.Close()
		r.vm = nil
	}
}
