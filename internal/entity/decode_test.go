package entity

import "testing"

func TestDecodeMessage(t *testing.T) {
	raw := []byte(`{"id":"m1","conversationId":"c1","senderId":"u1","text":"hey","createdAt":1000}`)
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || m.Text != "hey" || m.CreatedAt != 1000 {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Lifecycle != Confirmed {
		t.Errorf("lifecycle = %q, want confirmed", m.Lifecycle)
	}
}

func TestDecodeMessageOptionalFieldsDefault(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":"m1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.CreatedAt != 0 || m.MediaURL != "" || m.Deleted {
		t.Errorf("defaults not applied: %+v", m)
	}
}

func TestDecodeMessageMissingID(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"text":"no id"}`)); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDecodePostBatchSkipsMalformedElements(t *testing.T) {
	raw := []byte(`[{"id":"p1","createdAt":1},{"text":"no id"},{"id":"p2","createdAt":2}]`)
	posts, err := DecodePostBatch(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if posts[0].EntityID() != "p1" || posts[1].EntityID() != "p2" {
		t.Errorf("unexpected batch: %v, %v", posts[0], posts[1])
	}
}

func TestDecodePostBatchMalformedArray(t *testing.T) {
	if _, err := DecodePostBatch([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}

func TestLocalID(t *testing.T) {
	id := NewLocalID()
	if !IsLocalID(id) {
		t.Errorf("NewLocalID() = %q, not recognized as local", id)
	}
	if IsLocalID("m1") {
		t.Error("server id recognized as local")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := &Message{ID: "m1", Text: "original"}
	cp := m.Clone().(*Message)
	cp.Text = "changed"
	if m.Text != "original" {
		t.Error("clone shares state with original")
	}
}
