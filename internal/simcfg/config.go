// Package simcfg reads the simulator's key:value configuration file
// (spec.md §6 "CLI / environment"). No configuration library appears
// anywhere in the retrieved corpus, so this is deliberately built on
// bufio/strings rather than a third-party format — the ambient-stack
// justification recorded in DESIGN.md.
package simcfg

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/oisee/dpusim/internal/simerr"
)

// Config holds every recognized key, raw (string) and pre-parsed where a
// typed accessor is provided below.
type Config struct {
	values map[string]string
}

// Default returns a Config with every recognized key set to its
// reference default.
func Default() *Config {
	return &Config{values: map[string]string{
		"hp_width":                "16",
		"run_mode":                "release",
		"isa_version":             "",
		"debug":                   "0",
		"debug_path":              "./debug",
		"debug_layer":             "0",
		"ddr_dump_net":            "0",
		"ddr_dump_layer":          "0",
		"ddr_dump_init":           "0",
		"ddr_dump_end":            "1",
		"ddr_dump_end_fast":       "0",
		"ddr_dump_split":          "0",
		"ddr_dump_format":         "hex_continuous_big_end",
		"dump_inst":               "0",
		"gen_aie_data":            "0",
		"gen_aie_data_format":     "1",
		"co_sim_on":               "0",
		"memory_doubleWrite_check": "0",
		"save_parallel":           "0",
		"load_img_parallel":       "0",
		"load_wgt_parallel":       "0",
		"pool_parallel":           "0",
		"dump_ddr_all":            "0",
		"fuzz_seed":               "0",
	}}
}

// Parse reads key:value lines from r, "#"-prefixed comments and blank
// lines ignored, merging over Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, simerr.New(simerr.ParameterFailed, "simcfg: line %d: expected \"key : value\", got %q", lineNo, line)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		cfg.values[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) String(key string) string { return c.values[key] }

func (c *Config) Bool(key string) bool {
	v := c.values[key]
	return v == "1" || v == "true" || v == "on"
}

func (c *Config) Int(key string) int {
	n, _ := strconv.Atoi(c.values[key])
	return n
}

// Set overrides a key; used by tests and by CLI flags that shadow the
// config file.
func (c *Config) Set(key, value string) {
	c.values[key] = value
}

func (c *Config) DebugEnabled() bool   { return c.Bool("debug") }
func (c *Config) HPWidth() int         { return c.Int("hp_width") }
func (c *Config) RunMode() string      { return c.String("run_mode") }
func (c *Config) ISAVersion() string   { return c.String("isa_version") }
func (c *Config) CoSimOn() bool        { return c.Bool("co_sim_on") }
func (c *Config) DDRDumpEndFast() bool { return c.Bool("ddr_dump_end_fast") }

// PoolWorkers returns the worker count for the opt-in pool/avg-pool-fix
// worker-pool back-end (spec.md §5: "opt-in via a mode flag... defaultable
// to none"). 0 or unset means sequential.
func (c *Config) PoolWorkers() int { return c.Int("pool_parallel") }

// FuzzSeed returns the PRNG seed for ddr.Store.FillRandom's compiler
// fuzz-testing fill (SPEC_FULL.md Supplemented Features #4). 0 means
// disabled: regs without CONST data stay zeroed.
func (c *Config) FuzzSeed() int64 {
	n, _ := strconv.ParseInt(c.values["fuzz_seed"], 10, 64)
	return n
}
