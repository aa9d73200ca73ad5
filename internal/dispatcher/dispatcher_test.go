package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sheikh-saqib/dubloons/internal/directory"
	"github.com/sheikh-saqib/dubloons/internal/ledger"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
	"github.com/sheikh-saqib/dubloons/internal/storage/memory"
)

const announcements = "C-general"

var (
	alice = models.User{ID: "U1", Mention: "@alice"}
	bob   = models.User{ID: "U2", Mention: "@bob"}
	carol = models.User{ID: "U3", Mention: "@carol"}
)

type fixture struct {
	store      *memory.MemoryLedgerStore
	ledger     *ledger.Ledger
	dispatcher *Dispatcher
	next       int
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store)
	cfg.Announcements = announcements
	if cfg.Messages == (Messages{}) {
		cfg.Messages = DefaultMessages()
	}
	dir := directory.New(alice, bob, carol)
	return &fixture{store: store, ledger: l, dispatcher: New(l, dir, cfg, nil)}
}

func (f *fixture) send(from models.User, text string) Reply {
	f.next++
	return f.dispatcher.Handle(context.Background(), models.Message{
		ID:      fmt.Sprintf("msg-%d", f.next),
		Sender:  from,
		Text:    text,
		Channel: announcements,
	})
}

func (f *fixture) balance(t *testing.T, u models.User) int64 {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (f *fixture) seed(t *testing.T, u models.User, amount int64) {
	t.Helper()
	if err := f.store.SetBalance(context.Background(), u.ID, amount); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func expectReply(t *testing.T, got Reply, kind models.DestinationKind, id, text string) {
	t.Helper()
	if got.To.Kind != kind || got.To.ID != id {
		t.Fatalf("reply destination = %+v, want kind %d id %s", got.To, kind, id)
	}
	if got.Text != text {
		t.Fatalf("reply text = %q, want %q", got.Text, text)
	}
}

func TestPayInsufficientFunds(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, alice, 3)
	f.seed(t, bob, 1)

	reply := f.send(alice, "pay 5 to @bob")

	expectReply(t, reply, models.ToSender, alice.ID, "You don't have enough dubloons!")
	if got := f.balance(t, alice); got != 3 {
		t.Fatalf("alice balance = %d, want 3", got)
	}
	if got := f.balance(t, bob); got != 1 {
		t.Fatalf("bob balance = %d, want 1", got)
	}
}

func TestPayAnnouncesTransfer(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, alice, 10)

	reply := f.send(alice, "pay 4 to @Bob")

	expectReply(t, reply, models.ToChannel, announcements, "@alice paid @bob 4 dubloons! 🎉")
	if f.balance(t, alice) != 6 || f.balance(t, bob) != 4 {
		t.Fatalf("unexpected balances alice=%d bob=%d", f.balance(t, alice), f.balance(t, bob))
	}
}

func TestGiveMints(t *testing.T) {
	f := newFixture(t, Config{})

	reply := f.send(alice, "give 10 to @bob")

	expectReply(t, reply, models.ToChannel, announcements, "@alice gave @bob 10 dubloons! 🎉")
	if got := f.balance(t, bob); got != 10 {
		t.Fatalf("bob balance = %d, want 10", got)
	}
	if got := f.balance(t, alice); got != 0 {
		t.Fatalf("alice was debited: %d", got)
	}
}

func TestGiveBankerPolicy(t *testing.T) {
	f := newFixture(t, Config{Bankers: []string{"@Alice"}, EnforceBankers: true})

	reply := f.send(bob, "give 10 to @carol")
	expectReply(t, reply, models.ToSender, bob.ID, "Only bankers can give dubloons.")
	if got := f.balance(t, carol); got != 0 {
		t.Fatalf("carol balance = %d, want 0", got)
	}

	reply = f.send(alice, "give 10 to @carol")
	if reply.To.Kind != models.ToChannel {
		t.Fatalf("banker give should be announced, got %+v", reply)
	}
	if got := f.balance(t, carol); got != 10 {
		t.Fatalf("carol balance = %d, want 10", got)
	}
}

func TestGiveBankersListedButNotEnforced(t *testing.T) {
	f := newFixture(t, Config{Bankers: []string{"@alice"}})
	f.send(bob, "give 2 to @carol")
	if got := f.balance(t, carol); got != 2 {
		t.Fatalf("carol balance = %d, want 2", got)
	}
}

func TestBalanceQueries(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, alice, 7)
	f.seed(t, carol, 12)

	expectReply(t, f.send(alice, "  balance "), models.ToSender, alice.ID, "You have 7 dubloons.")
	expectReply(t, f.send(bob, "balance"), models.ToSender, bob.ID, "You have 0 dubloons.")
	expectReply(t, f.send(alice, "balance of @carol"), models.ToSender, alice.ID, "@carol has 12 dubloons.")
}

func TestUnknownMentionIsGenericError(t *testing.T) {
	f := newFixture(t, Config{})
	want := "*" + DefaultMessages().Error + "*\n\n" + DefaultMessages().Usage

	expectReply(t, f.send(alice, "balance of @zed"), models.ToSender, alice.ID, want)
	expectReply(t, f.send(alice, "give 3 to @zed"), models.ToSender, alice.ID, want)
}

func TestHelpAndUnrecognized(t *testing.T) {
	f := newFixture(t, Config{})
	msgs := DefaultMessages()

	expectReply(t, f.send(alice, "help"), models.ToSender, alice.ID, msgs.Usage)
	expectReply(t, f.send(alice, "USAGE"), models.ToSender, alice.ID, msgs.Usage)
	expectReply(t, f.send(alice, "gibberish"), models.ToSender, alice.ID, "*"+msgs.Unknown+"*\n\n"+msgs.Usage)
}

func TestBalancesRanking(t *testing.T) {
	f := newFixture(t, Config{Groups: map[string][]string{
		"crew":  {"@alice", "@bob"},
		"solo":  {"@carol"},
		"ghost": {"@nobody"},
	}})
	f.seed(t, alice, 5)
	f.seed(t, bob, 9)
	f.seed(t, carol, 12)
	f.seed(t, models.User{ID: "U-gone"}, 1)

	reply := f.send(alice, "balances")

	want := "Users:\n" +
		"  @carol: *12* dubloons, ripping!\n" +
		"  @bob: *9* dubloons\n" +
		"  @alice: *5* dubloons\n" +
		"  U-gone: *1* dubloons\n\n" +
		"Groups:\n" +
		"  crew: *14* dubloons, shaka brah!\n" +
		"  solo: *12* dubloons\n" +
		"  ghost: *0* dubloons"
	expectReply(t, reply, models.ToChannel, announcements, want)
}

func TestBalancesTiesByMention(t *testing.T) {
	f := newFixture(t, Config{})
	reply := f.send(alice, "balances")
	want := "Users:\n" +
		"  @alice: *0* dubloons, ripping!\n" +
		"  @bob: *0* dubloons\n" +
		"  @carol: *0* dubloons"
	expectReply(t, reply, models.ToChannel, announcements, want)
}

func TestDuplicateDeliveryIsSilent(t *testing.T) {
	f := newFixture(t, Config{})
	msg := models.Message{ID: "evt-7", Sender: alice, Text: "give 5 to @bob", Channel: announcements}

	first := f.dispatcher.Handle(context.Background(), msg)
	if first.Empty() {
		t.Fatal("first delivery should reply")
	}
	second := f.dispatcher.Handle(context.Background(), msg)
	if !second.Empty() {
		t.Fatalf("duplicate delivery replied: %+v", second)
	}
	if got := f.balance(t, bob); got != 5 {
		t.Fatalf("bob balance = %d, want 5", got)
	}
}

type brokenLedger struct {
	panicOn string
}

func (b brokenLedger) PostTransaction(context.Context, models.Transaction) error {
	if b.panicOn == "post" {
		panic("boom")
	}
	return &storage.Error{Backend: "fake", Op: "update balances", Err: errors.New("i/o timeout")}
}

func (b brokenLedger) GetBalance(context.Context, string) (int64, error) {
	return 0, &storage.Error{Backend: "fake", Op: "get balance", Err: errors.New("i/o timeout")}
}

func (b brokenLedger) Balances(context.Context) ([]models.LedgerEntry, error) {
	return nil, errors.New("unexpected")
}

func TestFailuresBecomeGenericError(t *testing.T) {
	want := "*" + DefaultMessages().Error + "*\n\n" + DefaultMessages().Usage
	dir := directory.New(alice, bob)

	for _, tt := range []struct {
		name   string
		ledger brokenLedger
		text   string
	}{
		{"storage error on pay", brokenLedger{}, "pay 1 to @bob"},
		{"storage error on balance", brokenLedger{}, "balance"},
		{"other error on balances", brokenLedger{}, "balances"},
		{"panic", brokenLedger{panicOn: "post"}, "give 1 to @bob"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.ledger, dir, Config{Announcements: announcements, Messages: DefaultMessages()}, nil)
			reply := d.Handle(context.Background(), models.Message{ID: "m", Sender: alice, Text: tt.text})
			expectReply(t, reply, models.ToSender, alice.ID, want)
		})
	}
}

func TestWelcome(t *testing.T) {
	f := newFixture(t, Config{})
	expectReply(t, f.dispatcher.Welcome(), models.ToChannel, announcements, DefaultMessages().Welcome)
}

func TestZeroAmountPaySucceeds(t *testing.T) {
	f := newFixture(t, Config{})
	reply := f.send(alice, "pay 0 to @bob")
	expectReply(t, reply, models.ToChannel, announcements, "@alice paid @bob 0 dubloons! 🎉")
}

func TestExpiredContextChangesNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, alice, 10)

	msg := models.Message{ID: "late-1", Sender: alice, Text: "pay 5 to @bob", Channel: announcements}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	want := "*" + DefaultMessages().Error + "*\n\n" + DefaultMessages().Usage
	expectReply(t, f.dispatcher.Handle(ctx, msg), models.ToSender, alice.ID, want)
	if a, b := f.balance(t, alice), f.balance(t, bob); a != 10 || b != 0 {
		t.Fatalf("balances changed: alice=%d bob=%d", a, b)
	}

	// The message id was not consumed, so a redelivery still goes through.
	expectReply(t, f.dispatcher.Handle(context.Background(), msg), models.ToChannel, announcements,
		"@alice paid @bob 5 dubloons! 🎉")
}
