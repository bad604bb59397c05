package dcclient

import "github.com/park285/dc-curling-client/internal/match"

// The reads below forward to the store and return statestore.ErrNoState
// until the first snapshot arrives.

func (c *Client) CurrentEndNumber() (int, error) { return c.store.EndNumber() }

// CurrentShotNumber is the match-wide shot count.
func (c *Client) CurrentShotNumber() (int, error) { return c.store.ShotNumber() }

func (c *Client) CurrentScore() (first, second int, err error) { return c.store.Score() }

func (c *Client) NextTeamToMove() (match.Team, error) { return c.store.NextShotTeam() }

func (c *Client) LastMove() (match.Move, error) { return c.store.LastMove() }

// Winner is nil while the match is running.
func (c *Client) Winner() (*match.Team, error) { return c.store.Winner() }

// StoneCoordinates returns team0's stones then team1's.
func (c *Client) StoneCoordinates() (team0, team1 []match.Point, err error) {
	return c.store.StoneCoordinates()
}
