package service

import "time"

// timeNow is substituted in tests for deterministic diagnostic timestamps.
var timeNow = time.Now
