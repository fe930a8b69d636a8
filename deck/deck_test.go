package deck

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"meeting-room-backend/meeting"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDeck = `
slides:
  - id: intro
    title: Call to Order
  - id: budget
    title: Budget
    ballots: [treasury-report, new-business]
    floorVotes: true
  - id: close
    title: Adjourn
    ballots: [adjournment]
`

func newStore(canControl bool) *meeting.Store {
	return meeting.NewStore(meeting.Session{VoterID: "v1", VoterLabel: "Ann", CanControl: canControl}, meeting.Options{
		Clock: clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 14, 2, 0, 0, time.UTC)),
	})
}

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sampleDeck))
	require.NoError(t, err)
	require.Len(t, d.Slides, 3)
	assert.Equal(t, []string{"treasury-report", "new-business"}, d.Slides[1].Ballots)
	assert.True(t, d.Slides[1].FloorVotes)
	assert.Equal(t, []string{"treasury-report", "new-business", "adjournment"}, d.BallotKeys())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("slides: []"))
	assert.ErrorIs(t, err, ErrEmptyDeck)

	_, err = Parse([]byte("slides:\n  - title: no id\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("slides:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("slides: [\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), d)

	path := filepath.Join(t.TempDir(), "deck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDeck), 0o600))
	d, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "intro", d.Slides[0].ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNavigation(t *testing.T) {
	d, err := Parse([]byte(sampleDeck))
	require.NoError(t, err)
	c := NewController(d, newStore(true))

	assert.Equal(t, "intro", c.Prev().ID, "prev on the first slide stays put")
	assert.Equal(t, "budget", c.Next().ID)
	assert.Equal(t, "close", c.Next().ID)
	assert.Equal(t, "close", c.Next().ID, "next on the last slide stays put")

	s, err := c.GoTo("budget")
	require.NoError(t, err)
	assert.Equal(t, "budget", s.ID)

	s, err = c.GoTo("1")
	require.NoError(t, err)
	assert.Equal(t, "intro", s.ID)

	_, err = c.GoTo("missing")
	assert.Error(t, err)
	_, err = c.GoTo("9")
	assert.Error(t, err)
}

func TestCanVote(t *testing.T) {
	d, err := Parse([]byte(sampleDeck))
	require.NoError(t, err)

	c := NewController(d, newStore(true))
	assert.Empty(t, c.ActiveBallots())
	assert.False(t, c.CanVote("treasury-report"))
	assert.False(t, c.FloorVotesEnabled())

	c.Next()
	assert.Equal(t, []string{"treasury-report", "new-business"}, c.ActiveBallots())
	assert.True(t, c.CanVote("treasury-report"))
	assert.False(t, c.CanVote("adjournment"))
	assert.True(t, c.FloorVotesEnabled())

	viewer := NewController(d, newStore(false))
	viewer.Next()
	assert.False(t, viewer.CanVote("treasury-report"), "no control capability")
}

func TestRender(t *testing.T) {
	store := newStore(true)
	c := NewController(Default(), store)
	_, err := c.GoTo("agenda")
	require.NoError(t, err)

	store.CastVote("agenda-adoption", "yay")
	store.RaiseHand("Ann")
	store.SubmitMotion("Ann", "Adopt the agenda")
	store.CreateFloorVote("Coffee break?")

	out := c.Render()
	assert.Contains(t, out, "[2/6] Adoption of the Agenda")
	assert.Contains(t, out, "status: local-only")
	assert.Contains(t, out, "yay 1  nay 0  (you: yay)")
	assert.Contains(t, out, "1. Ann 14:02 *")
	assert.Contains(t, out, "Ann: Adopt the agenda")
	assert.Contains(t, out, `"Coffee break?" [open]`)
}
