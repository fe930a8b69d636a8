package deck

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"meeting-room-backend/meeting"
	"meeting-room-backend/models"
)

// Controller 跟踪当前页，并决定当前页上哪些表决可以投票
type Controller struct {
	deck  *Deck
	store *meeting.Store

	mu      sync.Mutex
	current int
}

// NewController 创建控制器，从第一页开始
func NewController(d *Deck, store *meeting.Store) *Controller {
	if d == nil || len(d.Slides) == 0 {
		d = Default()
	}
	return &Controller{deck: d, store: store}
}

// Current 当前页
func (c *Controller) Current() (int, Slide) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.deck.Slides[c.current]
}

// Next 下一页，已经是最后一页时不动
func (c *Controller) Next() Slide {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < len(c.deck.Slides)-1 {
		c.current++
	}
	return c.deck.Slides[c.current]
}

// Prev 上一页
func (c *Controller) Prev() Slide {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current > 0 {
		c.current--
	}
	return c.deck.Slides[c.current]
}

// GoTo 跳到指定下标或ID的页
func (c *Controller) GoTo(target string) (Slide, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.deck.Slides {
		if s.ID == target {
			c.current = i
			return s, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(target, "%d", &n); err == nil && n >= 1 && n <= len(c.deck.Slides) {
		c.current = n - 1
		return c.deck.Slides[c.current], nil
	}
	return Slide{}, fmt.Errorf("no slide %q", target)
}

// ActiveBallots 当前页开放的结构化表决键
func (c *Controller) ActiveBallots() []string {
	_, s := c.Current()
	return append([]string(nil), s.Ballots...)
}

// CanVote 表决在当前页开放，并且会话有控制权限
func (c *Controller) CanVote(key string) bool {
	if c.store == nil || !c.store.Session().CanControl {
		return false
	}
	for _, k := range c.ActiveBallots() {
		if k == key {
			return true
		}
	}
	return false
}

// FloorVotesEnabled 当前页是否允许发起临时表决
func (c *Controller) FloorVotesEnabled() bool {
	_, s := c.Current()
	return s.FloorVotes
}

// Render 纯文本视图
func (c *Controller) Render() string {
	idx, slide := c.Current()
	var b strings.Builder

	fmt.Fprintf(&b, "[%d/%d] %s\n", idx+1, len(c.deck.Slides), slide.Title)
	if c.store == nil {
		return b.String()
	}
	v := c.store.View()

	status := string(v.Status)
	if v.SyncError != nil {
		status += " (" + v.SyncError.Error() + ")"
	}
	fmt.Fprintf(&b, "status: %s\n", status)

	if len(slide.Ballots) > 0 {
		b.WriteString("\nBallots\n")
		for _, key := range slide.Ballots {
			votes := models.VoteCount{}
			if ballot := v.State.Ballots[key]; ballot != nil {
				votes = ballot.Votes
			}
			fmt.Fprintf(&b, "  %-20s yay %d  nay %d%s\n", key, votes.Yay, votes.Nay, mine(v.MyVotes[key]))
		}
	}

	if len(v.State.FloorVotes) > 0 {
		b.WriteString("\nFloor votes\n")
		for _, fv := range v.State.FloorVotes {
			state := "open"
			if fv.Closed {
				state = "closed"
			}
			fmt.Fprintf(&b, "  %s  %q [%s] yay %d  nay %d%s\n", fv.ID, fv.Question, state, fv.Votes.Yay, fv.Votes.Nay, mine(v.MyFloorVotes[fv.ID]))
		}
	}

	if len(v.State.Hands) > 0 {
		b.WriteString("\nHands\n")
		for i, h := range v.State.Hands {
			marker := ""
			if h.ID == v.MyHandID {
				marker = " *"
			}
			fmt.Fprintf(&b, "  %d. %s %s%s\n", i+1, h.Name, h.Time, marker)
		}
	}

	if len(v.State.Motions) > 0 {
		b.WriteString("\nMotions\n")
		for _, m := range v.State.Motions {
			seconded := ""
			if m.Seconded {
				seconded = " (seconded)"
			}
			fmt.Fprintf(&b, "  %s  %s: %s %s%s\n", m.ID, m.Author, m.Text, m.Time, seconded)
		}
	}

	return b.String()
}

func mine(option string) string {
	if option == "" {
		return ""
	}
	return "  (you: " + option + ")"
}

// SortedBallotKeys 按字母序返回状态里的所有表决键
func SortedBallotKeys(state *models.RoomState) []string {
	keys := make([]string, 0, len(state.Ballots))
	for k := range state.Ballots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
