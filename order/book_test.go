package order

import "testing"

func TestBookSetGetList(t *testing.T) {
	b := NewBook()
	b.Set(Order{ID: "2", Side: SideAsk, Timestamp: 2})
	b.Set(Order{ID: "1", Side: SideBid, Timestamp: 1, Status: StatusPending})
	got, ok := b.Get("1")
	if !ok || got.Side != SideBid {
		t.Fatalf("get failed: %+v %v", got, ok)
	}
	list := b.List()
	if len(list) != 2 || list[0].ID != "1" {
		t.Fatalf("expected 2 orders oldest first, got %+v", list)
	}
	if _, err := b.Cancel("1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if list := b.List(); len(list) != 1 || list[0].ID != "2" {
		t.Fatalf("expected only order 2 left, got %+v", list)
	}
}
