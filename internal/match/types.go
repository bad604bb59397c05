package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// MatchID identifies one match on the server. It is assigned by the server
// when the match is created.
type MatchID = uuid.UUID

// ParseMatchID accepts the canonical UUID text, optionally JSON-quoted as it
// appears in match_id.json.
func ParseMatchID(s string) (MatchID, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse match id %q: %w", s, err)
	}
	return id, nil
}

// Team is the slot a client occupies in a match. team0 shoots first in the
// first end.
type Team string

const (
	Team0 Team = "team0"
	Team1 Team = "team1"
)

func (t Team) Valid() bool { return t == Team0 || t == Team1 }

func (t Team) String() string { return string(t) }

// Opponent returns the other slot.
func (t Team) Opponent() Team {
	if t == Team0 {
		return Team1
	}
	return Team0
}

func ParseTeam(s string) (Team, error) {
	t := Team(strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTeam, s)
	}
	return t, nil
}

// Player describes one thrower. Zero values let the server apply its
// defaults when UseDefaultConfig is set on the team.
type Player struct {
	PlayerName  string  `json:"player_name" yaml:"player_name"`
	MaxVelocity float64 `json:"max_velocity" yaml:"max_velocity"`
	ShotStdDev  float64 `json:"shot_std_dev" yaml:"shot_std_dev"`
	AngleStdDev float64 `json:"angle_std_dev" yaml:"angle_std_dev"`
}

// TeamConfig is sent once at registration. Player3 and Player4 are nil for
// mixed doubles.
type TeamConfig struct {
	UseDefaultConfig bool    `json:"use_default_config" yaml:"use_default_config"`
	TeamName         string  `json:"team_name" yaml:"team_name"`
	MatchTeamName    Team    `json:"match_team_name" yaml:"match_team_name"`
	Player1          Player  `json:"player1" yaml:"player1"`
	Player2          Player  `json:"player2" yaml:"player2"`
	Player3          *Player `json:"player3" yaml:"player3"`
	Player4          *Player `json:"player4" yaml:"player4"`
}

func (c TeamConfig) Validate() error {
	if strings.TrimSpace(c.TeamName) == "" {
		return fmt.Errorf("%w: team_name is required", ErrInvalidConfig)
	}
	if c.MatchTeamName != "" && !c.MatchTeamName.Valid() {
		return fmt.Errorf("%w: match_team_name %q", ErrInvalidConfig, c.MatchTeamName)
	}
	if c.UseDefaultConfig {
		return nil
	}
	if strings.TrimSpace(c.Player1.PlayerName) == "" || strings.TrimSpace(c.Player2.PlayerName) == "" {
		return fmt.Errorf("%w: player1 and player2 are required", ErrInvalidConfig)
	}
	return nil
}

// Doubles reports whether the config describes a two-player team.
func (c TeamConfig) Doubles() bool { return c.Player3 == nil && c.Player4 == nil }

// ShotCommand is one throw. ShotAngle is in radians with 0 on the +x axis,
// counter-clockwise positive. The sign of AngularVelocity selects the curl.
type ShotCommand struct {
	TranslationalVelocity float64 `json:"translational_velocity"`
	ShotAngle             float64 `json:"shot_angle"`
	AngularVelocity       float64 `json:"angular_velocity"`
}

// DefaultAngularVelocity is used when no rotation is requested.
const DefaultAngularVelocity = math.Pi / 2

func (s ShotCommand) Validate() error {
	for _, v := range []float64{s.TranslationalVelocity, s.ShotAngle, s.AngularVelocity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidShot)
		}
	}
	if s.TranslationalVelocity < 0 {
		return fmt.Errorf("%w: negative velocity %v", ErrInvalidShot, s.TranslationalVelocity)
	}
	return nil
}

// Rotation tags accepted by ShotFromVector.
const (
	RotationCW  = "cw"
	RotationCCW = "ccw"
)

// ShotFromVector builds a shot from a release velocity vector. Unknown
// rotation tags keep DefaultAngularVelocity.
func ShotFromVector(vx, vy float64, rotation string) ShotCommand {
	shot := ShotCommand{
		TranslationalVelocity: math.Hypot(vx, vy),
		ShotAngle:             math.Atan2(vy, vx),
		AngularVelocity:       DefaultAngularVelocity,
	}
	switch rotation {
	case RotationCW:
		shot.AngularVelocity = math.Pi / 2
	case RotationCCW:
		shot.AngularVelocity = -math.Pi / 2
	}
	return shot
}

// StonePlacement selects the pre-placed stone layout of a mixed doubles end.
type StonePlacement string

const (
	PlacementCenterGuard StonePlacement = "center_guard"
	PlacementCenterHouse StonePlacement = "center_house"
	PlacementPowerLeft   StonePlacement = "pp_left"
	PlacementPowerRight  StonePlacement = "pp_right"
)

func (p StonePlacement) String() string { return string(p) }

// Errors
var (
	ErrInvalidTeam   = errf("invalid team")
	ErrInvalidConfig = errf("invalid team config")
	ErrInvalidShot   = errf("invalid shot")
	ErrInvalidSetup  = errf("invalid match setup")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
