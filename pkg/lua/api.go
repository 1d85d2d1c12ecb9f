package lua

import (
	"log/slog"

	"github.com/siohaza/bombard/internal/player"

	"github.com/Shopify/go-lua"
)

// MatchView is the read-only slice of a match that scripts may query. Script hooks
// run with the match lock held, so implementations must not lock again.
type MatchView interface {
	Player(id uint32) (*player.Player, bool)
	Players() []*player.Player
	Wind() float32
	TurnNumber() uint32
	MapSize() (int, int)
}

type GameAPI struct {
	match  MatchView
	logger *slog.Logger
}

func NewGameAPI(m MatchView, logger *slog.Logger) *GameAPI {
	return &GameAPI{
		match:  m,
		logger: logger,
	}
}

func (api *GameAPI) RegisterFunctions(vm *VM) {
	state := vm.State()

	state.Register("get_player", api.getPlayer)
	state.Register("get_player_count", api.getPlayerCount)
	state.Register("get_wind", api.getWind)
	state.Register("get_turn", api.getTurn)
	state.Register("get_map_width", api.getMapWidth)
	state.Register("get_map_height", api.getMapHeight)
	state.Register("log_info", api.logInfo)

	state.Register("clamp", api.clamp)
	state.Register("lerp", api.lerp)
}

func (api *GameAPI) getPlayer(state *lua.State) int {
	id, _ := state.ToInteger(1)

	p, _ := api.match.Player(uint32(id))
	pushPlayerTable(state, p)
	return 1
}

func (api *GameAPI) getPlayerCount(state *lua.State) int {
	state.PushInteger(len(api.match.Players()))
	return 1
}

func (api *GameAPI) getWind(state *lua.State) int {
	state.PushNumber(float64(api.match.Wind()))
	return 1
}

func (api *GameAPI) getTurn(state *lua.State) int {
	state.PushInteger(int(api.match.TurnNumber()))
	return 1
}

func (api *GameAPI) getMapWidth(state *lua.State) int {
	w, _ := api.match.MapSize()
	state.PushInteger(w)
	return 1
}

func (api *GameAPI) getMapHeight(state *lua.State) int {
	_, h := api.match.MapSize()
	state.PushInteger(h)
	return 1
}

func (api *GameAPI) logInfo(state *lua.State) int {
	msg, _ := state.ToString(1)
	if api.logger != nil {
		api.logger.Info("script", "message", msg)
	}
	return 0
}

func (api *GameAPI) clamp(state *lua.State) int {
	value, _ := state.ToNumber(1)
	min, _ := state.ToNumber(2)
	max, _ := state.ToNumber(3)

	if value < min {
		value = min
	} else if value > max {
		value = max
	}

	state.PushNumber(value)
	return 1
}

func (api *GameAPI) lerp(state *lua.State) int {
	a, _ := state.ToNumber(1)
	b, _ := state.ToNumber(2)
	t, _ := state.ToNumber(3)

	state.PushNumber(a + (b-a)*t)
	return 1
}

func pushPlayerTable(state *lua.State, p *player.Player) {
	if p == nil {
		state.PushNil()
		return
	}

	state.NewTable()
	state.PushInteger(int(p.ID))
	state.SetField(-2, "id")
	state.PushString(p.Name)
	state.SetField(-2, "name")
	state.PushInteger(int(p.HP))
	state.SetField(-2, "hp")
	state.PushBoolean(p.IsAlive())
	state.SetField(-2, "alive")
	state.PushBoolean(p.MyTurn)
	state.SetField(-2, "my_turn")
	state.PushBoolean(p.FacingRight)
	state.SetField(-2, "facing_right")
	state.PushNumber(float64(p.Angle))
	state.SetField(-2, "angle")
	state.PushNumber(float64(p.Power))
	state.SetField(-2, "power")

	state.NewTable()
	state.PushNumber(float64(p.Position.X))
	state.RawSetInt(-2, 1)
	state.PushNumber(float64(p.Position.Y))
	state.RawSetInt(-2, 2)
	state.SetField(-2, "position")
}

type playerArg struct {
	p *player.Player
}

func (a playerArg) PushLua(state *lua.State) {
	pushPlayerTable(state, a.p)
}

// PlayerArg wraps a player so it is passed to a script function as a table. A nil
// player is passed as nil.
func PlayerArg(p *player.Player) Pusher {
	return playerArg{p: p}
}
