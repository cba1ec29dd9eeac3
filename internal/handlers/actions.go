package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"contentplan-bot/internal/workflow"
)

// ActionKind identifies what an inline button does.
type ActionKind string

const (
	ActionApproveIdea  ActionKind = "idea_ok"
	ActionSetDate      ActionKind = "plan_date"
	ActionGeneratePost ActionKind = "post_gen"
	ActionApprovePost  ActionKind = "post_ok"
	ActionPublishNow   ActionKind = "post_pub"
)

// Action is the decoded payload of a callback button.
// ID is an idea id for ActionApproveIdea and ActionSetDate, a plan id otherwise.
type Action struct {
	Kind ActionKind
	ID   int64
	Day  workflow.Day // ActionSetDate only
}

// Encode renders the action as callback data, e.g. "plan_date:12:tomorrow".
func (a Action) Encode() string {
	if a.Kind == ActionSetDate {
		return fmt.Sprintf("%s:%d:%s", a.Kind, a.ID, a.Day)
	}
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

// ParseAction decodes callback data produced by Encode.
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return Action{}, fmt.Errorf("malformed callback data %q", data)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Action{}, fmt.Errorf("invalid id in callback data %q", data)
	}
	action := Action{Kind: ActionKind(parts[0]), ID: id}

	switch action.Kind {
	case ActionSetDate:
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("missing day in callback data %q", data)
		}
		day, err := workflow.ParseDay(parts[2])
		if err != nil {
			return Action{}, err
		}
		action.Day = day
	case ActionApproveIdea, ActionGeneratePost, ActionApprovePost, ActionPublishNow:
		if len(parts) != 2 {
			return Action{}, fmt.Errorf("unexpected fields in callback data %q", data)
		}
	default:
		return Action{}, fmt.Errorf("unknown action %q", parts[0])
	}
	return action, nil
}
