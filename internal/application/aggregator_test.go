package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fundsync/internal/domain"
)

func seedCampaigns(t *testing.T, ledger *fakeLedger, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if _, err := ledger.SubmitCreate(context.Background(), fmt.Sprintf("campaign %d", i), "d", 1000, 30); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListAllAscendingOrder(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 5)

	aggregator, err := NewAggregator(ledger)
	if err != nil {
		t.Fatal(err)
	}
	campaigns, err := aggregator.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(campaigns) != 5 {
		t.Fatalf("len = %d, want 5", len(campaigns))
	}
	for i, campaign := range campaigns {
		if campaign.ID != uint64(i+1) {
			t.Fatalf("campaigns[%d].ID = %d, want %d", i, campaign.ID, i+1)
		}
	}
}

func TestListAllSkipsFailedFetches(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 5)
	ledger.fetchErr[3] = fmt.Errorf("campaign 3: %w", domain.ErrNotFound)

	aggregator, _ := NewAggregator(ledger)
	campaigns, err := aggregator.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []uint64{1, 2, 4, 5}
	if len(campaigns) != len(want) {
		t.Fatalf("len = %d, want %d", len(campaigns), len(want))
	}
	for i, id := range want {
		if campaigns[i].ID != id {
			t.Fatalf("campaigns[%d].ID = %d, want %d", i, campaigns[i].ID, id)
		}
	}
}

func TestListAllStableAcrossCalls(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 3)

	aggregator, _ := NewAggregator(ledger)
	first, err := aggregator.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := aggregator.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestListAllReflectsDonationToSingleCampaign(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 3)
	ctx := context.Background()

	before, err := NewAggregator(ledger)
	if err != nil {
		t.Fatal(err)
	}
	baseline, err := before.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ledger.SubmitFund(ctx, 2, 250); err != nil {
		t.Fatal(err)
	}

	after, err := before.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := range after {
		want := baseline[i].AmountCollected
		if after[i].ID == 2 {
			want += 250
		}
		if after[i].AmountCollected != want {
			t.Fatalf("campaign %d amount = %d, want %d", after[i].ID, after[i].AmountCollected, want)
		}
	}
}

func TestListAllCountFailure(t *testing.T) {
	ledger := newFakeLedger(true)
	ledger.countErr = errors.New("connection refused")

	aggregator, _ := NewAggregator(ledger)
	if _, err := aggregator.ListAll(context.Background()); err == nil {
		t.Fatal("expected error when count read fails")
	}
}
