package lottery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

func TestLotteryWithGuestAndSpeaker(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 5, "speaker")
	if _, err := h.svc.InviteGuest(context.Background(), speaker, "@guest"); err != nil {
		t.Fatalf("InviteGuest: %v", err)
	}
	h.open(t)
	for i := 1; i <= 5; i++ {
		h.register(t, user(i))
	}

	res := h.close(t)

	if res.GuestCount != 1 || res.SpeakerCount != 1 || res.PlacesAvailable != 3 {
		t.Fatalf("counts = guests %d speakers %d available %d, want 1 1 3", res.GuestCount, res.SpeakerCount, res.PlacesAvailable)
	}
	if len(res.Winners) != 3 || len(res.Waitlisted) != 2 {
		t.Fatalf("winners %d waitlisted %d, want 3 and 2", len(res.Winners), len(res.Waitlisted))
	}
	accepted := len(h.regs.withStatus(models.RegistrationStatusAccepted))
	if accepted+res.SpeakerCount > e.TotalPlaces {
		t.Errorf("accepted %d + speakers %d exceeds %d places", accepted, res.SpeakerCount, e.TotalPlaces)
	}
	if got := h.waitlistPriorities(e.ID); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("waitlist priorities = %v, want [0 1]", got)
	}
	for i := 1; i <= 3; i++ {
		if got := h.notifier.last(user(i).ChatID); got != messages.LotteryWinner {
			t.Errorf("user%d last message = %q, want winner notice", i, got)
		}
	}
	for i, n := range []int{4, 5} {
		want := fmt.Sprintf(messages.WaitlistNotification, i+1)
		if got := h.notifier.last(user(n).ChatID); got != want {
			t.Errorf("user%d last message = %q, want %q", n, got, want)
		}
	}
	if got := h.notifier.last(e.ChatID); got != fmt.Sprintf(messages.RegistrationClosedSummary, 3, 2) {
		t.Errorf("announcement = %q", got)
	}
	if len(h.archiver.results) != 1 {
		t.Errorf("archived %d results, want 1", len(h.archiver.results))
	}
	if h.actions.count(models.ActionLotteryDraw) != 1 {
		t.Errorf("expected one %s entry", models.ActionLotteryDraw)
	}
}

func TestLotteryLosersGoInFrontOfWaitlist(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 2)
	h.open(t)
	h.register(t, user(1), user(2), user(3))
	early := h.seedWaitlist(t, e.ID, user(9))[0]

	res := h.close(t)

	if len(res.Winners) != 2 || len(res.Waitlisted) != 1 {
		t.Fatalf("winners %d waitlisted %d, want 2 and 1", len(res.Winners), len(res.Waitlisted))
	}
	loser := h.regs.find(res.Waitlisted[0])
	if loser.Priority == nil || *loser.Priority != 0 {
		t.Errorf("loser priority = %v, want 0", loser.Priority)
	}
	pre := h.regs.find(early)
	if pre.Priority == nil || *pre.Priority != 1 {
		t.Errorf("pre-existing priority = %v, want 1", pre.Priority)
	}
	if res.PromotedLeftover != 0 {
		t.Errorf("promoted %d, want 0", res.PromotedLeftover)
	}
}

func TestLotteryLeftoverPlacesPromoteWaitlist(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 5)
	h.open(t)
	h.register(t, user(1), user(2))
	waiting := h.seedWaitlist(t, e.ID, user(8), user(9))

	res := h.close(t)

	if len(res.Winners) != 2 {
		t.Fatalf("winners = %d, want 2", len(res.Winners))
	}
	if res.PromotedLeftover != 2 {
		t.Errorf("promoted = %d, want 2", res.PromotedLeftover)
	}
	for _, id := range waiting {
		r := h.regs.find(id)
		if r.Status != models.RegistrationStatusInvited {
			t.Errorf("registration %d status = %s, want INVITED", id, r.Status)
		}
		if r.ExpiresAt == nil || !r.ExpiresAt.Equal(h.now.Add(e.WaitlistTimeout())) {
			t.Errorf("registration %d expires_at = %v", id, r.ExpiresAt)
		}
		if _, ok := h.sched.timeouts[id]; !ok {
			t.Errorf("no timeout armed for registration %d", id)
		}
	}
	msgs := h.notifier.to(user(8).ChatID)
	if len(msgs) != 1 || len(msgs[0].Buttons) != 2 {
		t.Fatalf("invitation prompt = %+v", msgs)
	}
	if !strings.HasPrefix(msgs[0].Buttons[0].Data, AcceptPrefix) || !strings.HasPrefix(msgs[0].Buttons[1].Data, DeclinePrefix) {
		t.Errorf("buttons = %+v", msgs[0].Buttons)
	}
}

func TestLotteryDropsRegisteredSpeaker(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 10)
	h.open(t)
	h.register(t, user(1), user(2))
	// user1 is recognised as a speaker only after registering.
	if _, err := h.speakers.Add(context.Background(), e.ID, user(1).Username); err != nil {
		t.Fatal(err)
	}

	res := h.close(t)

	dropped := h.regs.byUser(user(1).UserID)
	if !slices.Equal(res.DroppedSpeakers, []int64{dropped.ID}) {
		t.Errorf("dropped = %v, want [%d]", res.DroppedSpeakers, dropped.ID)
	}
	if slices.Contains(res.Winners, dropped.ID) {
		t.Error("speaker counted among winners")
	}
	if dropped.Status != models.RegistrationStatusRegistered {
		t.Errorf("dropped speaker status = %s, want untouched REGISTERED", dropped.Status)
	}
	if len(res.Winners) != 1 {
		t.Errorf("winners = %d, want 1", len(res.Winners))
	}
}

func TestLotteryEmptyPool(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 3)
	h.open(t)
	waiting := h.seedWaitlist(t, e.ID, user(9))

	res := h.close(t)

	if len(res.Winners) != 0 || len(res.Waitlisted) != 0 {
		t.Errorf("result = %+v, want no winners", res)
	}
	if res.PromotedLeftover != 1 {
		t.Errorf("promoted = %d, want 1", res.PromotedLeftover)
	}
	if got := h.regs.find(waiting[0]).Status; got != models.RegistrationStatusInvited {
		t.Errorf("waitlisted status = %s, want INVITED", got)
	}
	if got := h.notifier.last(e.ChatID); got != messages.RegistrationClosedNoReg {
		t.Errorf("announcement = %q", got)
	}
	if len(h.archiver.results) != 1 {
		t.Errorf("empty draw not archived")
	}
}

func TestLotteryResumesAfterFailedDraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.createEvent(t, 2)
	h.open(t)
	h.register(t, user(1), user(2), user(3), user(4))
	h.svc.registrations = &flakyRegistrations{fakeRegistrations: h.regs, failOn: models.RegistrationStatusWaitlist, failures: 1}

	if err := h.svc.CloseByTimer(ctx, e.ID); !errors.Is(err, errFake) {
		t.Fatalf("first attempt err = %v, want store failure", err)
	}
	if !h.events.find(e.ID).DrawPending() {
		t.Fatal("failed draw marked as complete")
	}

	if err := h.svc.CloseByTimer(ctx, e.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.events.find(e.ID).DrawPending() {
		t.Error("draw still pending after retry")
	}
	if n := len(h.regs.withStatus(models.RegistrationStatusRegistered)); n != 0 {
		t.Errorf("%d registrations left in the pool", n)
	}
	if n := len(h.regs.withStatus(models.RegistrationStatusAccepted)); n != 2 {
		t.Errorf("%d accepted, want 2", n)
	}
	if got := h.waitlistPriorities(e.ID); len(got) != 2 || !contiguous(got) || got[0] != 0 {
		t.Errorf("waitlist = %v, want [0 1]", got)
	}

	if err := h.svc.CloseByTimer(ctx, e.ID); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if n := h.actions.count(models.ActionLotteryDraw); n != 1 {
		t.Errorf("lottery completed %d times, want 1", n)
	}
	if n := h.actions.count(models.ActionCloseEvent); n != 1 {
		t.Errorf("%d close entries, want 1", n)
	}
}

func TestLotteryManualCloseFailureIsRecovered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.createEvent(t, 2)
	h.open(t)
	h.register(t, user(1), user(2), user(3))
	h.svc.registrations = &flakyRegistrations{fakeRegistrations: h.regs, failOn: models.RegistrationStatusAccepted, failures: 1}

	if _, err := h.svc.CloseEvent(ctx, admin); !errors.Is(err, errFake) {
		t.Fatalf("CloseEvent err = %v, want store failure", err)
	}
	if got, ok := h.sched.closes[e.ID]; !ok || !got.Equal(h.now) {
		t.Errorf("retry armed at %v (%v), want %v", got, ok, h.now)
	}

	if err := h.svc.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if h.events.find(e.ID).DrawPending() {
		t.Fatal("Recover left the draw unfinished")
	}
	if n := len(h.regs.withStatus(models.RegistrationStatusAccepted)); n != 2 {
		t.Errorf("%d accepted, want 2", n)
	}
	if got := h.status(t, user(3).UserID); got != models.RegistrationStatusWaitlist {
		t.Errorf("loser status = %s, want WAITLIST", got)
	}
}

func TestLotteryOracleFailureDegrades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.CreateEvent(ctx, admin, CreateEventRequest{
		TotalPlaces: 2, GroupRef: "@speakers", RegistrationDurationHours: 1,
	}); err != nil {
		t.Fatal(err)
	}
	h.open(t)
	h.register(t, user(1), user(2), user(3))
	h.oracle.sizeErr = errFake
	h.oracle.memberErr = errFake

	res := h.close(t)

	if res.SpeakerCount != 0 || len(res.Winners) != 2 {
		t.Errorf("speakers %d winners %d, want 0 and 2", res.SpeakerCount, len(res.Winners))
	}
}

func TestLotteryGroupSizeExcludesBot(t *testing.T) {
	h := newHarness(t)
	h.oracle.botID = 999
	h.oracle.members[-100] = []int64{speaker.UserID, 3, 999}
	ctx := context.Background()
	if _, err := h.svc.CreateEvent(ctx, admin, CreateEventRequest{
		TotalPlaces: 4, GroupRef: "@speakers", RegistrationDurationHours: 1,
	}); err != nil {
		t.Fatal(err)
	}
	h.open(t)
	h.register(t, user(1), user(2), user(3))

	res := h.close(t)

	if res.SpeakerCount != 2 || res.PlacesAvailable != 2 {
		t.Errorf("speakers %d available %d, want 2 and 2", res.SpeakerCount, res.PlacesAvailable)
	}
}

func TestLotteryWinnerNotificationFailureKeepsPlace(t *testing.T) {
	h := newHarness(t)
	h.createEvent(t, 1)
	h.open(t)
	h.register(t, user(1))
	h.notifier.unreachable[user(1).ChatID] = true

	h.close(t)

	if got := h.status(t, user(1).UserID); got != models.RegistrationStatusAccepted {
		t.Errorf("status = %s, want ACCEPTED", got)
	}
}

func TestLotteryDrawsDiffer(t *testing.T) {
	const draws = 8
	seen := make(map[string]struct{})
	for range draws {
		h := newHarness(t, withRandomShuffle())
		h.createEvent(t, 3)
		h.open(t)
		for i := 1; i <= 8; i++ {
			h.register(t, user(i))
		}
		res := h.close(t)
		winners := slices.Clone(res.Winners)
		slices.Sort(winners)
		seen[fmt.Sprint(winners)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Errorf("all %d draws picked the same winners", draws)
	}
}

func TestLotteryRunsOncePerEvent(t *testing.T) {
	h := newHarness(t)
	e := h.createEvent(t, 1)
	h.open(t)
	h.register(t, user(1), user(2))
	h.close(t)

	if err := h.svc.CloseByTimer(context.Background(), e.ID); err != nil {
		t.Fatalf("CloseByTimer: %v", err)
	}
	if h.actions.count(models.ActionLotteryDraw) != 1 {
		t.Errorf("lottery ran %d times", h.actions.count(models.ActionLotteryDraw))
	}
}
