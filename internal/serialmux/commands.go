package serialmux

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IMU stream commands. Each is sent as one newline-terminated line and the
// device acknowledges with a '#'-prefixed status line.
const (
	CmdStop         = "STOP"
	CmdStart        = "START"
	CmdFormatCSV    = "FMT=CSV"
	CmdFormatJSON   = "FMT=JSON"
	CmdUnitsRadians = "UNITS=RAD"
	CmdStatus       = "STATUS"
	CmdZeroGyro     = "ZERO"
)

// RateCommand returns the command selecting the output rate in Hz.
func RateCommand(hz int) string {
	return "RATE=" + strconv.Itoa(hz)
}

// SyncCommand returns the command setting the device clock to t.
func SyncCommand(t time.Time) string {
	return fmt.Sprintf("SYNC=%d", t.UnixNano())
}

var staticCommands = map[string]bool{
	CmdStop:         true,
	CmdStart:        true,
	CmdFormatCSV:    true,
	CmdFormatJSON:   true,
	CmdUnitsRadians: true,
	CmdStatus:       true,
	CmdZeroGyro:     true,
}

// IsAllowedCommand reports whether command may be forwarded to the device
// from the admin console.
func IsAllowedCommand(command string) bool {
	if staticCommands[command] {
		return true
	}
	if v, ok := strings.CutPrefix(command, "RATE="); ok {
		hz, err := strconv.Atoi(v)
		return err == nil && hz > 0 && hz <= 10000
	}
	if v, ok := strings.CutPrefix(command, "SYNC="); ok {
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	}
	return false
}
