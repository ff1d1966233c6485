package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/confide/internal/model"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []model.IdentityEvent
}

func (r *eventRecorder) record(ev model.IdentityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []model.IdentityEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.IdentityEventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestLocalProvider_SignUpSignInSignOut(t *testing.T) {
	svc, _, _ := newTestService()
	p := svc.ForClient("client-1")
	ctx := context.Background()
	rec := &eventRecorder{}
	p.OnIdentityChange(rec.record)

	identity, err := p.SignUp(ctx, "a@b.com", "secret1", map[string]string{"display_name": "A"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if identity.Email != "a@b.com" || identity.DisplayNameHint() != "A" {
		t.Errorf("identity = %+v", identity)
	}

	current, err := p.CurrentIdentity(ctx)
	if err != nil || current == nil || current.ID != identity.ID {
		t.Fatalf("CurrentIdentity() = %+v, %v", current, err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if current, _ := p.CurrentIdentity(ctx); current != nil {
		t.Errorf("CurrentIdentity() after sign out = %+v, want nil", current)
	}

	signedIn, err := p.SignIn(ctx, "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.ID != identity.ID {
		t.Errorf("SignIn() id = %q, want %q", signedIn.ID, identity.ID)
	}

	want := []model.IdentityEventKind{model.EventSignedIn, model.EventSignedOut, model.EventSignedIn}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if rec.events[0].Identity == nil || rec.events[0].Identity.ID != identity.ID {
		t.Errorf("signed_in event identity = %+v", rec.events[0].Identity)
	}
}

func TestLocalProvider_ClientsAreIsolated(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	first := svc.ForClient("client-1")
	second := svc.ForClient("client-2")

	if _, err := first.SignUp(ctx, "a@b.com", "secret1", nil); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if got, _ := second.CurrentIdentity(ctx); got != nil {
		t.Errorf("second client identity = %+v, want nil", got)
	}
	if second.ClientID() != "client-2" {
		t.Errorf("ClientID() = %q", second.ClientID())
	}
}

func TestLocalProvider_FailuresDoNotEmit(t *testing.T) {
	svc, _, sessions := newTestService()
	p := svc.ForClient("client-1")
	ctx := context.Background()
	rec := &eventRecorder{}
	p.OnIdentityChange(rec.record)

	if _, err := p.SignIn(ctx, "a@b.com", "secret1"); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("SignIn() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := p.SignUp(ctx, "a@b.com", "123", nil); !errors.Is(err, model.ErrRegistrationRejected) {
		t.Errorf("SignUp() error = %v, want ErrRegistrationRejected", err)
	}
	sessions.deleteErr = errors.New("db down")
	if err := p.SignOut(ctx); err == nil {
		t.Error("SignOut() expected error")
	}

	if got := rec.kinds(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestLocalProvider_Unsubscribe(t *testing.T) {
	svc, _, _ := newTestService()
	p := svc.ForClient("client-1")
	rec := &eventRecorder{}
	unsubscribe := p.OnIdentityChange(rec.record)
	unsubscribe()
	unsubscribe()

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if got := rec.kinds(); len(got) != 0 {
		t.Errorf("events after unsubscribe = %v", got)
	}
}

func TestLocalProvider_ListenersNotifiedInRegistrationOrder(t *testing.T) {
	svc, _, _ := newTestService()
	p := svc.ForClient("client-1")
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		p.OnIdentityChange(func(model.IdentityEvent) { order = append(order, i) })
	}

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
}
