package dynamodb

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
)

func TestModelRecordItemRoundTrip(t *testing.T) {
	trainedAt := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)
	record := port.ModelRecord{
		MonitorID:    "pump-1",
		Version:      "a1b2c3d4",
		TrainedAt:    trainedAt,
		FeatureNames: []string{"moisture", "oil_temperature"},
		SampleCount:  480,
		StorageKey:   "models/pump-1/artifact.json",
	}

	item, err := toItem(record)
	if err != nil {
		t.Fatalf("toItem() error = %v", err)
	}

	pk, ok := item[attrPK].(*types.AttributeValueMemberS)
	if !ok || pk.Value != "MONITOR#pump-1" {
		t.Fatalf("unexpected PK: %v", item[attrPK])
	}
	sk, ok := item[attrSK].(*types.AttributeValueMemberS)
	if !ok || sk.Value != buildSK(trainedAt.UnixMilli(), "a1b2c3d4") {
		t.Fatalf("unexpected SK: %v", item[attrSK])
	}

	restored, err := fromItem(item)
	if err != nil {
		t.Fatalf("fromItem() error = %v", err)
	}
	if restored.MonitorID != record.MonitorID ||
		restored.Version != record.Version ||
		!restored.TrainedAt.Equal(trainedAt) ||
		restored.SampleCount != record.SampleCount ||
		restored.StorageKey != record.StorageKey {
		t.Fatalf("round trip mismatch: %+v", restored)
	}
	if len(restored.FeatureNames) != 2 || restored.FeatureNames[0] != "moisture" {
		t.Fatalf("feature names lost in round trip: %v", restored.FeatureNames)
	}
}

func TestSortKeyOrdersByTrainingTime(t *testing.T) {
	earlier := buildSK(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), "zzzzzzzz")
	later := buildSK(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), "aaaaaaaa")

	// zero-padded timestamp dominates the version suffix
	if !(earlier < later) {
		t.Fatalf("sort keys must order by training time: %q !< %q", earlier, later)
	}
}

func TestToItemRejectsBadMonitorID(t *testing.T) {
	_, err := toItem(port.ModelRecord{MonitorID: "bad id with spaces", Version: "v1"})
	if err == nil {
		t.Fatal("expected error for invalid monitor id")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	key := map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: "MONITOR#pump-1"},
		attrSK: &types.AttributeValueMemberS{Value: "TS#0001770000000000#VER#a1b2c3d4"},
	}

	cursor, err := encodeCursor(key, "pump-1")
	if err != nil {
		t.Fatalf("encodeCursor() error = %v", err)
	}

	decoded, err := decodeCursor(cursor, "pump-1")
	if err != nil {
		t.Fatalf("decodeCursor() error = %v", err)
	}
	sk, ok := decoded[attrSK].(*types.AttributeValueMemberS)
	if !ok || sk.Value != "TS#0001770000000000#VER#a1b2c3d4" {
		t.Fatalf("cursor lost sort key: %v", decoded[attrSK])
	}
}

func TestCursorRejectsForeignMonitor(t *testing.T) {
	key := map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: "MONITOR#pump-1"},
		attrSK: &types.AttributeValueMemberS{Value: "TS#0001770000000000#VER#a1b2c3d4"},
	}

	cursor, err := encodeCursor(key, "pump-1")
	if err != nil {
		t.Fatalf("encodeCursor() error = %v", err)
	}

	if _, err := decodeCursor(cursor, "pump-2"); err == nil {
		t.Fatal("cursor issued for one monitor must not resume another monitor's listing")
	}
}
