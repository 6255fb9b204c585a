package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileExporter_BasicExport(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	if err != nil {
		t.Fatalf("NewFileExporter failed: %v", err)
	}

	record := &Record{
		Timestamp:   time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
		OperationID: "op-1",
		Operation:   "search",
		TenantID:    "tenant-a",
		DurationMs:  42,
		Status:      "success",
		Counters:    map[string]int64{"results": 3},
	}

	if err := exporter.Export(context.Background(), record); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("Read trace file failed: %v", err)
	}

	var readRecord Record
	if err := json.Unmarshal(data, &readRecord); err != nil {
		t.Fatalf("Unmarshal trace record failed: %v", err)
	}

	if readRecord.OperationID != "op-1" {
		t.Errorf("Expected operationId 'op-1', got '%s'", readRecord.OperationID)
	}
	if readRecord.Operation != "search" {
		t.Errorf("Expected operation 'search', got '%s'", readRecord.Operation)
	}
	if readRecord.Counters["results"] != 3 {
		t.Errorf("Expected results counter 3, got %d", readRecord.Counters["results"])
	}
}

func TestFileExporter_MultipleRecordsAreJSONLines(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	if err != nil {
		t.Fatalf("NewFileExporter failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		record := &Record{
			Timestamp:   time.Now(),
			OperationID: "op",
			Operation:   "recall",
			DurationMs:  int64(i),
			Status:      "success",
		}
		if err := exporter.Export(context.Background(), record); err != nil {
			t.Fatalf("Export %d failed: %v", i, err)
		}
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	file, err := os.Open(tracePath)
	if err != nil {
		t.Fatalf("Open trace file failed: %v", err)
	}
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("Expected 3 JSON lines, got %d", lines)
	}
}

func TestFileExporter_Rotation(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "traces.jsonl")

	// Tiny limit so the first export triggers rotation.
	exporter, err := NewFileExporter(tracePath, WithMaxSize(10), WithMaxRotatedFiles(2))
	if err != nil {
		t.Fatalf("NewFileExporter failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		record := &Record{
			Timestamp:   time.Now(),
			OperationID: "op",
			Operation:   "consolidate",
			DurationMs:  int64(i),
			Status:      "success",
		}
		if err := exporter.Export(context.Background(), record); err != nil {
			t.Fatalf("Export %d failed: %v", i, err)
		}
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(tracePath + ".1"); err != nil {
		t.Errorf("Expected rotated file %s.1 to exist: %v", tracePath, err)
	}

	matches, err := filepath.Glob(tracePath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 rotated files, got %d: %v", len(matches), matches)
	}
}

func TestFileExporter_ExportAfterClose(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewFileExporter(filepath.Join(dir, "traces.jsonl"))
	if err != nil {
		t.Fatalf("NewFileExporter failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	record := &Record{Timestamp: time.Now(), Operation: "search", Status: "success"}
	if err := exporter.Export(context.Background(), record); err == nil {
		t.Error("Expected error exporting after close")
	}

	// Second close is a no-op.
	if err := exporter.Close(); err != nil {
		t.Errorf("Second Close should succeed, got: %v", err)
	}
}

func TestNoopExporter(t *testing.T) {
	exporter := NewNoop()
	record := &Record{Timestamp: time.Now(), Operation: "search", Status: "success"}

	if err := exporter.Export(context.Background(), record); err != nil {
		t.Errorf("Noop Export should succeed, got: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Errorf("Noop Close should succeed, got: %v", err)
	}
}
