package datalog

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cantelemetry/internal/testutil/testlog"
)

func fixedNow() time.Time {
	return time.UnixMilli(1700000000123)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}

func TestLoggerWritesHeadersAndRows(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	logger := New(Options{Now: fixedNow})
	if err := logger.Init(dir); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	if err := logger.LogIMU(-1, 2, 300); err != nil {
		t.Fatalf("log imu: %v", err)
	}
	if err := logger.LogSuspension([4]uint16{1, 2, 3, 1023}); err != nil {
		t.Fatalf("log suspension: %v", err)
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	imu := readLines(t, filepath.Join(dir, IMUFileName))
	want := []string{"timestamp,IMU_Ang_X,IMU_Ang_Y,IMU_Ang_Z", "1700000000123,-1,2,300"}
	if strings.Join(imu, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected imu file: %q", imu)
	}
	sus := readLines(t, filepath.Join(dir, SuspensionFileName))
	want = []string{"timestamp,SUS_1,SUS_2,SUS_3,SUS_4", "1700000000123,1,2,3,1023"}
	if strings.Join(sus, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected suspension file: %q", sus)
	}
}

func TestLoggerAppendsAcrossRestarts(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	logger := New(Options{Now: fixedNow})
	for i := 0; i < 2; i++ {
		if err := logger.Init(dir); err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
		if err := logger.LogIMU(int16(i), 0, 0); err != nil {
			t.Fatalf("log imu %d: %v", i, err)
		}
		if err := logger.Shutdown(); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}
	lines := readLines(t, filepath.Join(dir, IMUFileName))
	if len(lines) != 3 {
		t.Fatalf("expected one header and two rows, got %q", lines)
	}
	if lines[1] != "1700000000123,0,0,0" || lines[2] != "1700000000123,1,0,0" {
		t.Fatalf("unexpected rows: %q", lines)
	}
}

func TestLoggerPreservesArrivalOrder(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	logger := New(Options{Now: fixedNow})
	if err := logger.Init(dir); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	for i := 0; i < 200; i++ {
		if err := logger.LogSuspension([4]uint16{uint16(i)}); err != nil {
			t.Fatalf("log suspension %d: %v", i, err)
		}
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	lines := readLines(t, filepath.Join(dir, SuspensionFileName))
	if len(lines) != 201 {
		t.Fatalf("expected 201 lines, got %d", len(lines))
	}
	for i, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if fields[1] != strconv.Itoa(i) {
			t.Fatalf("row %d out of order: %q", i, line)
		}
	}
}

func TestLoggerLifecycleIsIdempotent(t *testing.T) {
	testlog.Start(t)
	logger := New(Options{})
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("shutdown before init: %v", err)
	}
	if err := logger.LogIMU(1, 2, 3); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	dir := t.TempDir()
	if err := logger.Init(dir); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := logger.Init(filepath.Join(dir, "other")); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if logger.Dir() != dir {
		t.Fatalf("second init must not move the logger: %s", logger.Dir())
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if logger.Initialized() {
		t.Fatalf("logger still active after shutdown")
	}
}

func TestLoggerRejectsUnknownChannel(t *testing.T) {
	testlog.Start(t)
	logger := New(Options{})
	if err := logger.Enqueue(Event{Channel: "GPS"}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestLoggerRewritesHeaderForRecreatedFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	logger := New(Options{Now: fixedNow})
	if err := logger.Init(dir); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, IMUFileName)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := logger.Init(dir); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if err := logger.LogIMU(7, 8, 9); err != nil {
		t.Fatalf("log imu: %v", err)
	}
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	lines := readLines(t, filepath.Join(dir, IMUFileName))
	if len(lines) != 2 || lines[0] != "timestamp,IMU_Ang_X,IMU_Ang_Y,IMU_Ang_Z" {
		t.Fatalf("expected fresh header and one row, got %q", lines)
	}
}

func TestWriterOpenRetriesOnWrite(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	w := newWriter(dir)
	defer w.close()
	if err := w.write(Event{Channel: ChannelSuspension, Timestamp: 5, Fields: []string{"1", "2", "3", "4"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.close()
	lines := readLines(t, filepath.Join(dir, SuspensionFileName))
	if len(lines) != 2 || lines[1] != "5,1,2,3,4" {
		t.Fatalf("unexpected lines: %q", lines)
	}
}
