package testcase

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devtester/internal/signalbus"
	"devtester/testutil"
)

func TestGetFilenameIsStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	tc := newContext(signalbus.New(nil), nil, "", "", dir, "", func() time.Time { return start })

	a := tc.GetFilename("capture", "pcap")
	b := tc.GetFilename("capture", "pcap")
	if a != b {
		t.Fatalf("GetFilename not stable: %q vs %q", a, b)
	}
	if filepath.Dir(a) != dir {
		t.Errorf("GetFilename dir = %q, want %q", filepath.Dir(a), dir)
	}
}

func TestOpenDataFileReadsBundledVector(t *testing.T) {
	dataDir := t.TempDir()
	if err := testutil.WriteFiles(dataDir, map[string]string{"vectors.txt": "1 2 3"}); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	tc := newContext(signalbus.New(nil), nil, "", "", t.TempDir(), dataDir, time.Now)

	f, err := tc.OpenDataFile("vectors.txt")
	if err != nil {
		t.Fatalf("OpenDataFile: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "1 2 3" {
		t.Errorf("content = %q, want %q", data, "1 2 3")
	}

	noDir := newContext(signalbus.New(nil), nil, "", "", "", "", time.Now)
	if _, err := noDir.OpenDataFile("vectors.txt"); err == nil {
		t.Error("expected an error for a test registered without a DataDir")
	}
}

func TestRecordDataEmitsTestData(t *testing.T) {
	bus := signalbus.New(nil)
	var got signalbus.Payload
	bus.Connect(signalbus.SigTestData, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
		got = p
		return nil
	})
	tc := newContext(bus, nil, "", "", "", "", time.Now)
	tc.RecordData(map[string]int{"n": 1})

	if got == nil {
		t.Fatal("test-data signal not delivered")
	}
	if d, ok := got["data"].(map[string]int); !ok || d["n"] != 1 {
		t.Errorf("payload data = %#v", got["data"])
	}
}

func TestRecordDataAppendsToDataFileAsList(t *testing.T) {
	dir := t.TempDir()
	tc := newContext(signalbus.New(nil), nil, "MyTest", "", dir, "", time.Now)

	tc.RecordData(map[string]interface{}{"n": 1})
	tc.RecordData(map[string]interface{}{"n": 2})

	data, err := os.ReadFile(filepath.Join(dir, "MyTest_data.json"))
	if err != nil {
		t.Fatalf("reading data file: %v", err)
	}
	var docs []map[string]interface{}
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("second record should turn the file into a list: %v\n%s", err, data)
	}
	if len(docs) != 2 || docs[0]["n"] != float64(1) || docs[1]["n"] != float64(2) {
		t.Errorf("docs = %v, want the two records in order", docs)
	}
}

func TestBugIDRewritesFailed(t *testing.T) {
	bus := signalbus.New(nil)
	var sawSignal string
	for _, name := range []string{signalbus.SigTestFailure, signalbus.SigTestExpectedFailure} {
		name := name
		bus.Connect(name, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
			sawSignal = name
			return nil
		})
	}
	tc := newContext(bus, nil, "", "b/1", "", "", time.Now)
	tc.Failed("known breakage")

	if sawSignal != signalbus.SigTestExpectedFailure {
		t.Errorf("signal = %q, want %q", sawSignal, signalbus.SigTestExpectedFailure)
	}
}
