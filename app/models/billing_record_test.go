package models

import "testing"

func TestAppendHistory(t *testing.T) {
	rec := &BillingRecord{}

	rec.AppendHistory("sub_1")
	if ids := rec.HistoryIDs(); len(ids) != 1 || ids[0] != "sub_1" {
		t.Fatalf("history = %v, want [sub_1]", ids)
	}

	// duplicates and empties are skipped
	rec.AppendHistory("sub_1", "", "  ", "sub_2")
	ids := rec.HistoryIDs()
	if len(ids) != 2 || ids[0] != "sub_1" || ids[1] != "sub_2" {
		t.Fatalf("history = %v, want [sub_1 sub_2]", ids)
	}

	rec.AppendHistory("sub_2")
	if ids := rec.HistoryIDs(); len(ids) != 2 {
		t.Fatalf("re-appending must not grow the set: %v", ids)
	}
}

func TestHistoryIDsEmptyAndMalformed(t *testing.T) {
	rec := &BillingRecord{}
	if ids := rec.HistoryIDs(); ids != nil {
		t.Fatalf("empty history should be nil, got %v", ids)
	}

	rec.SubscriptionHistory = "not json"
	if ids := rec.HistoryIDs(); ids != nil {
		t.Fatalf("malformed history should be treated as empty, got %v", ids)
	}
}
