// Package config loads per-module tunables from a TOML file, mirroring the
// configuration style of the retrieved node-software example's
// cmd/gprobe/config.go: a defaulted struct overlaid by whatever the file
// supplies, decoded with github.com/naoina/toml.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// CacheSizes lists the ack-cache and mailbox sizes. The kernel reads only
// MailboxCapacity; the host-comms and system ack caches are sized by their
// own package constants, and AggregatorQueue is not read by any package.
type CacheSizes struct {
	GCodeCache       int
	DeactivateCache  int
	BootloaderPrep   int
	AggregatorQueue  int
	MailboxCapacity  int
}

// Serial configures the production transport (serialtransport).
type Serial struct {
	Device      string
	BaudRate    int
	ReadTimeoutMillis int
}

// Thermal holds the PID gains and the tolerance used for AtTarget, which the
// kernel applies to the plate and lid tasks. MinSetpointC and MaxSetpointC
// are loaded but no task checks a SetTemperature against them.
type Thermal struct {
	MinSetpointC   float64
	MaxSetpointC   float64
	AtTargetToleranceC float64
	PlateKp, PlateKi, PlateKd float64
	LidKp, LidKi, LidKd       float64
}

// Motor holds motion settings. No package reads these fields; the motor
// task bounds its polling with its own motor.MaxCheckStatusRetries constant.
type Motor struct {
	MaxCheckStatusRetries int
	DefaultRPM            int32
}

// Config is the full set of module tunables, loaded from TOML.
type Config struct {
	Cache   CacheSizes
	Serial  Serial
	Thermal Thermal
	Motor   Motor
}

// Defaults mirrors the constants scattered through the task packages so a
// module started with no config file behaves exactly as the hardcoded
// defaults did.
var Defaults = Config{
	Cache: CacheSizes{
		GCodeCache:      16,
		DeactivateCache: 4,
		BootloaderPrep:  3,
		AggregatorQueue: 4,
		MailboxCapacity: 16,
	},
	Serial: Serial{
		Device:            "/dev/ttyACM0",
		BaudRate:          115200,
		ReadTimeoutMillis: 500,
	},
	Thermal: Thermal{
		MinSetpointC:       4,
		MaxSetpointC:       110,
		AtTargetToleranceC: 0.5,
		PlateKp:            0.5,
		PlateKi:            0.1,
		PlateKd:            0.05,
		LidKp:              0.3,
		LidKi:              0.05,
		LidKd:              0.02,
	},
	Motor: Motor{
		MaxCheckStatusRetries: 50,
		DefaultRPM:            0,
	},
}

// tomlSettings keeps TOML keys identical to Go struct field names, as the
// retrieved node-software example does for its own config.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads file and overlays it onto Defaults. A file that cannot be
// opened (including a missing one) returns Defaults together with the open
// error.
func Load(file string) (Config, error) {
	cfg := Defaults
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}
