package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// funcRegistry maps a CallRequest.FuncName to its implementation. Each
// function here blocks until interrupted is closed, then returns whatever
// it accumulated; the parent's release surfaces that as its result.
var funcRegistry = map[string]func(args []interface{}) (interface{}, error){
	"logcat.stream": logcatStream,
	"monsoon.sample": monsoonSample,
}

// logcatStream shells out to `adb -s <serial> logcat`, appending every
// line to outputPath until interrupted, then returns the line count.
func logcatStream(args []interface{}) (interface{}, error) {
	serial, _ := args[0].(string)
	outputPath, _ := args[1].(string)

	cmd := exec.Command("adb", "-s", serial, "logcat")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	lines := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			fmt.Fprintln(f, scanner.Text())
			lines++
		}
	}()

	<-interrupted
	cmd.Process.Signal(os.Interrupt)
	<-done
	cmd.Wait()

	return map[string]interface{}{"lines": int64(lines)}, nil
}

// monsoonSample polls a simulated power-meter channel at a fixed interval
// until interrupted, aggregating the mean current/voltage/power over the
// span. The real power-meter driver is an external collaborator; this
// worker owns only the sampling loop and the aggregation it hands back to
// ReleaseFor.
func monsoonSample(args []interface{}) (interface{}, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var captured, dropped int64
	var sumCurrent, sumVoltage, sumPower float64

	for {
		select {
		case <-interrupted:
			var meanCurrent, meanVoltage, meanPower float64
			if captured > 0 {
				meanCurrent = sumCurrent / float64(captured)
				meanVoltage = sumVoltage / float64(captured)
				meanPower = sumPower / float64(captured)
			}
			return map[string]interface{}{
				"captured": captured,
				"dropped": dropped,
				"mean_current": meanCurrent,
				"mean_voltage": meanVoltage,
				"mean_power": meanPower,
			}, nil
		case <-ticker.C:
			current, voltage, err := readPowerMeterSample()
			if err != nil {
				dropped++
				continue
			}
			captured++
			sumCurrent += current
			sumVoltage += voltage
			sumPower += current * voltage
		}
	}
}

// readPowerMeterSample is a placeholder for the real USB power-meter
// driver call; wiring an actual device SDK here is out of scope.
func readPowerMeterSample() (current, voltage float64, err error) {
	return 0, 0, nil
}
