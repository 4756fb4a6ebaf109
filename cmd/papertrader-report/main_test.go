package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"papertrader/internal/model"
	"papertrader/internal/store/memory"
)

func TestReport(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Commit(ctx, model.Position{BaseQty: 9.99, Cash: 0, AvgPrice: 100},
		&model.Trade{ID: "t1", TS: 1773144000000, Side: model.SideBuy, Qty: 9.99, Price: 100, Fee: 0.999, BaseAfter: 9.99},
		1773144000000)

	var buf bytes.Buffer
	if err := report(ctx, &buf, store, 110, 10); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"equity     1098.90 @ 110.00", "unrealized 99.90", "2026-03-10T12:00:00Z", "buy", "fees       0.9990"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReport_EmptyStore(t *testing.T) {
	var buf bytes.Buffer
	if err := report(context.Background(), &buf, memory.New(), 0, 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "last candle -") {
		t.Errorf("output:\n%s", buf.String())
	}
}
