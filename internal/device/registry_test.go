package device

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegistry_Enroll(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	id, token, updated := r.Enroll("office-pc")
	if id == "" || token == "" {
		t.Fatalf("Enroll returned empty credentials: id=%q token=%q", id, token)
	}
	if updated {
		t.Error("Enroll of new name reported updatedExisting = true")
	}

	d := r.Get(id)
	if d == nil {
		t.Fatal("Get after Enroll returned nil")
	}
	if d.Name != "office-pc" {
		t.Errorf("Name = %q, want %q", d.Name, "office-pc")
	}
	if d.TokenHash == token {
		t.Error("stored TokenHash equals plaintext token, want digest")
	}
}

func TestRegistry_EnrollSameNameReplacesCredentials(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	id1, token1, _ := r.Enroll("office-pc")
	id2, token2, updated := r.Enroll("OFFICE-PC")

	if !updated {
		t.Error("re-enroll by name did not report updatedExisting")
	}
	if id1 == id2 {
		t.Error("re-enroll kept the old id, want a fresh one")
	}
	if r.Get(id1) != nil {
		t.Error("old id still resolves after re-enrollment")
	}
	if r.Verify(id2, token1) {
		t.Error("old token verifies against new id")
	}
	if !r.Verify(id2, token2) {
		t.Error("new token does not verify")
	}

	if got := len(r.List()); got != 1 {
		t.Errorf("device count after re-enroll = %d, want 1", got)
	}
}

func TestRegistry_Verify(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	id, token, _ := r.Enroll("box")

	cases := []struct {
		name  string
		id    string
		token string
		want  bool
	}{
		{"valid", id, token, true},
		{"wrong token", id, "nope", false},
		{"unknown id", "other", token, false},
		{"empty token", id, "", false},
		{"empty id", "", token, false},
	}
	for _, tc := range cases {
		if got := r.Verify(tc.id, tc.token); got != tc.want {
			t.Errorf("%s: Verify(%q, %q) = %v, want %v", tc.name, tc.id, tc.token, got, tc.want)
		}
	}
}

func TestRegistry_EnsureAutoProvisions(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	d := r.Ensure("abc-123", "secret", "lab-host")
	if d == nil {
		t.Fatal("Ensure returned nil")
	}
	if d.ID != "abc-123" {
		t.Errorf("ID = %q, want %q", d.ID, "abc-123")
	}
	if d.Name != "lab-host" {
		t.Errorf("Name = %q, want hostname", d.Name)
	}
	if !r.Verify("abc-123", "secret") {
		t.Error("auto-provisioned token does not verify")
	}

	// Second call with the same id returns the same record.
	again := r.Ensure("abc-123", "other", "lab-host")
	if again != d {
		t.Error("Ensure with known id created a new record")
	}
	if !r.Verify("abc-123", "secret") {
		t.Error("known-id Ensure replaced the stored token")
	}
}

func TestRegistry_EnsureDefaultName(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	d := r.Ensure("0123456789", "tok", "")
	if d.Name != "device-012345" {
		t.Errorf("Name = %q, want %q", d.Name, "device-012345")
	}
}

func TestRegistry_EnsureMigratesByHostname(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	oldID, _, _ := r.Enroll("lab-host")

	d := r.Ensure("new-id", "new-token", "lab-host")
	if d.ID != "new-id" {
		t.Errorf("ID after migration = %q, want %q", d.ID, "new-id")
	}
	if r.Get(oldID) != nil {
		t.Error("old id still resolves after hostname migration")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("device count after migration = %d, want 1", got)
	}
	if !r.Verify("new-id", "new-token") {
		t.Error("migrated token does not verify")
	}
}

func TestRegistry_SetOnlineThreshold(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	id, _, _ := r.Enroll("box")
	r.Touch(id, "")
	r.now = func() time.Time { return base.Add(30 * time.Second) }

	if got := r.List()[0].Status; got != "online" {
		t.Fatalf("status = %q, want online under default threshold", got)
	}

	r.SetOnlineThreshold(10 * time.Second)
	if got := r.List()[0].Status; got != "offline" {
		t.Errorf("status = %q, want offline under 10s threshold", got)
	}

	// Non-positive values are ignored.
	r.SetOnlineThreshold(0)
	if got := r.List()[0].Status; got != "offline" {
		t.Errorf("status = %q, want threshold unchanged by zero", got)
	}
}

func TestRegistry_ListPresence(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	onlineID, _, _ := r.Enroll("fresh")
	staleID, _, _ := r.Enroll("stale")
	r.Enroll("never-seen")

	r.Touch(onlineID, "fresh-host")
	r.Touch(staleID, "")

	// Advance the clock past the threshold for the stale device only.
	r.now = func() time.Time { return base.Add(30 * time.Second) }
	r.Touch(onlineID, "")
	r.now = func() time.Time { return base.Add(100 * time.Second) }

	views := r.List()
	if len(views) != 3 {
		t.Fatalf("List returned %d devices, want 3", len(views))
	}

	byName := map[string]int{}
	for i, v := range views {
		byName[v.Name] = i
	}

	fresh := views[byName["fresh"]]
	if fresh.Status != "online" {
		t.Errorf("fresh device status = %q, want online", fresh.Status)
	}
	if fresh.SecondsSinceSeen == nil || *fresh.SecondsSinceSeen != 70 {
		t.Errorf("fresh SecondsSinceSeen = %v, want 70", fresh.SecondsSinceSeen)
	}
	if fresh.Hostname != "fresh-host" {
		t.Errorf("fresh hostname = %q, want fresh-host", fresh.Hostname)
	}

	stale := views[byName["stale"]]
	if stale.Status != "offline" {
		t.Errorf("stale device status = %q, want offline", stale.Status)
	}

	never := views[byName["never-seen"]]
	if never.Status != "offline" {
		t.Errorf("never-seen status = %q, want offline", never.Status)
	}
	if never.SecondsSinceSeen != nil {
		t.Errorf("never-seen SecondsSinceSeen = %v, want nil", never.SecondsSinceSeen)
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	a := HashToken("secret")
	b := HashToken("secret")
	if a != b {
		t.Errorf("HashToken not deterministic: %q != %q", a, b)
	}
	if a == "secret" {
		t.Error("HashToken returned the plaintext")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
}
