package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/homeconf/regbot/internal/lottery"
)

// noGroup in the speakers_group position means "static list only".
const noGroup = "-"

// eventArgs are the positional arguments shared by /create and /open.
type eventArgs struct {
	Amount       int // hours for /create, minutes for /open
	Places       int
	GroupRef     string
	TimeoutHours int
}

// parseEventArgs parses "<amount> <places> <speakers_group> [timeout_hours]".
func parseEventArgs(raw string) (eventArgs, error) {
	fields := strings.Fields(raw)
	if len(fields) < 3 || len(fields) > 4 {
		return eventArgs{}, fmt.Errorf("want 3 or 4 arguments, got %d", len(fields))
	}
	var a eventArgs
	var err error
	if a.Amount, err = positive(fields[0]); err != nil {
		return eventArgs{}, fmt.Errorf("duration: %w", err)
	}
	if a.Places, err = strconv.Atoi(fields[1]); err != nil || a.Places < 0 {
		return eventArgs{}, fmt.Errorf("places: invalid value %q", fields[1])
	}
	if fields[2] != noGroup {
		a.GroupRef = fields[2]
	}
	if len(fields) == 4 {
		if a.TimeoutHours, err = positive(fields[3]); err != nil {
			return eventArgs{}, fmt.Errorf("timeout: %w", err)
		}
	}
	return a, nil
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return n, nil
}

func (a eventArgs) createRequest(chatID int64) lottery.CreateEventRequest {
	return lottery.CreateEventRequest{
		ChatID:                    chatID,
		TotalPlaces:               a.Places,
		GroupRef:                  a.GroupRef,
		WaitlistTimeoutHours:      a.TimeoutHours,
		RegistrationDurationHours: a.Amount,
	}
}

func (a eventArgs) openRequest(chatID int64) lottery.CreateAndOpenRequest {
	return lottery.CreateAndOpenRequest{
		ChatID:               chatID,
		TotalPlaces:          a.Places,
		GroupRef:             a.GroupRef,
		WaitlistTimeoutHours: a.TimeoutHours,
		Duration:             time.Duration(a.Amount) * time.Minute,
	}
}

// callbackAction is a decoded inline button press.
type callbackAction int

const (
	callbackUnknown callbackAction = iota
	callbackAccept
	callbackDecline
	callbackUnregisterYes
	callbackUnregisterNo
)

// parseCallback decodes "<prefix><registration_id>" button data.
func parseCallback(data string) (callbackAction, int64) {
	prefixes := []struct {
		prefix string
		action callbackAction
	}{
		{lottery.AcceptPrefix, callbackAccept},
		{lottery.DeclinePrefix, callbackDecline},
		{lottery.UnregisterYesPrefix, callbackUnregisterYes},
		{lottery.UnregisterNoPrefix, callbackUnregisterNo},
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(data, p.prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return callbackUnknown, 0
		}
		return p.action, id
	}
	return callbackUnknown, 0
}
