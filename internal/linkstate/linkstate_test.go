package linkstate

import "testing"

func TestMarkDownCanonicalizesOrdering(t *testing.T) {
	ls := New()
	ls.MarkDown(17, 4)

	if !ls.IsBad(4, 17) {
		t.Error("IsBad(4,17) should be true after MarkDown(17,4)")
	}
	if !ls.IsBad(17, 4) {
		t.Error("IsBad(17,4) should be true after MarkDown(17,4)")
	}
}

func TestMarkDownIsIdempotent(t *testing.T) {
	ls := New()
	if !ls.MarkDown(1, 2) {
		t.Error("first MarkDown(1,2) should return true")
	}
	if ls.MarkDown(2, 1) {
		t.Error("second MarkDown on the same link should return false")
	}
	if ls.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ls.Count())
	}
}

func TestMarkUpClearsBadSet(t *testing.T) {
	ls := New()
	ls.MarkDown(1, 2)

	if !ls.MarkUp(2, 1) {
		t.Error("MarkUp should return true when clearing a broken link")
	}
	if ls.IsBad(1, 2) {
		t.Error("IsBad(1,2) should be false after MarkUp")
	}
	if ls.Count() != 0 {
		t.Errorf("Count() = %d, want 0", ls.Count())
	}
}

func TestMarkUpOnHealthyLinkIsNoop(t *testing.T) {
	ls := New()
	if ls.MarkUp(1, 2) {
		t.Error("MarkUp on a link that was never down should return false")
	}
}
