package main

import (
	"fmt"
	"io"
	"strings"

	"meeting-room-backend/deck"
	"meeting-room-backend/meeting"
)

const helpText = `commands:
  show                      redraw the current slide
  next | prev | goto <n|id> move through the deck
  vote <key> <yay|nay>      vote on a ballot of the current slide
  unvote <key>              reset a ballot
  hand [name] | lower | lower-all
  motion <text> | second <id>
  floor <question> | fvote <id> <yay|nay> | close <id>
  reset                     clear the whole meeting
  state                     list every ballot tally
  quit
`

// execute 执行一行命令，返回 true 表示退出
func execute(line string, store *meeting.Store, ctrl *deck.Controller, name string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprint(out, helpText)
	case "show":
		fmt.Fprint(out, ctrl.Render())
	case "next":
		ctrl.Next()
		fmt.Fprint(out, ctrl.Render())
	case "prev":
		ctrl.Prev()
		fmt.Fprint(out, ctrl.Render())
	case "goto":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: goto <n|id>")
			break
		}
		if _, err := ctrl.GoTo(args[0]); err != nil {
			fmt.Fprintln(out, err)
			break
		}
		fmt.Fprint(out, ctrl.Render())
	case "vote":
		if len(args) != 2 {
			fmt.Fprintln(out, "usage: vote <key> <yay|nay>")
			break
		}
		if !ctrl.CanVote(args[0]) {
			fmt.Fprintf(out, "%s is not open on this slide\n", args[0])
			break
		}
		store.CastVote(args[0], args[1])
	case "unvote":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: unvote <key>")
			break
		}
		store.ResetVote(args[0])
	case "hand":
		handName := rest
		if handName == "" {
			handName = name
		}
		store.RaiseHand(handName)
	case "lower":
		store.LowerMyHand()
	case "lower-all":
		store.LowerAllHands()
	case "motion":
		if id := store.SubmitMotion(name, rest); id == "" {
			fmt.Fprintln(out, "motion text is empty")
		}
	case "second":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: second <id>")
			break
		}
		store.SecondMotion(args[0])
	case "floor":
		if !ctrl.FloorVotesEnabled() {
			fmt.Fprintln(out, "floor votes are not enabled on this slide")
			break
		}
		if id := store.CreateFloorVote(rest); id == "" {
			fmt.Fprintln(out, "question is empty")
		}
	case "fvote":
		if len(args) != 2 {
			fmt.Fprintln(out, "usage: fvote <id> <yay|nay>")
			break
		}
		store.CastFloorVote(args[0], args[1])
	case "close":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: close <id>")
			break
		}
		store.CloseFloorVote(args[0])
	case "reset":
		store.ResetMeeting()
	case "state":
		v := store.View()
		for _, key := range deck.SortedBallotKeys(v.State) {
			votes := v.State.Ballots[key].Votes
			fmt.Fprintf(out, "%-20s yay %d  nay %d\n", key, votes.Yay, votes.Nay)
		}
	default:
		fmt.Fprintf(out, "unknown command %q, try help\n", cmd)
	}
	return false
}
