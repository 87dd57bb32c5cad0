package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/oisee/dpusim/internal/dlog"
	"github.com/oisee/dpusim/internal/simcfg"
	"github.com/oisee/dpusim/internal/trace"
	"github.com/oisee/dpusim/pkg/ddr"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/program"
	"github.com/oisee/dpusim/pkg/sim"
	"github.com/oisee/dpusim/pkg/target"
	"github.com/spf13/cobra"
)

// dumpFormat maps the config file's ddr_dump_format string (spec.md §6) to
// pkg/ddr's DumpFormat enum.
func dumpFormat(name string) ddr.DumpFormat {
	switch name {
	case "hex_continuous_small_end":
		return ddr.HexContSmallEnd
	case "hex_continuous_small_end_ddraddr":
		return ddr.HexContSmallEndDDRAddr
	case "hex_continuous_big_end_ddraddr":
		return ddr.HexContBigEndDDRAddr
	case "dec":
		return ddr.Dec
	case "bin":
		return ddr.Bin
	default:
		return ddr.HexContBigEnd
	}
}

// parseDumpSlices parses repeated "reg:offset:size" flag values into
// ddr.Slice windows for Store.SaveSlice.
func parseDumpSlices(raw []string) ([]ddr.Slice, error) {
	out := make([]ddr.Slice, 0, len(raw))
	for _, s := range raw {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("--dump-slice %q: want reg:offset:size", s)
		}
		reg, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("--dump-slice %q: bad reg: %w", s, err)
		}
		offset, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--dump-slice %q: bad offset: %w", s, err)
		}
		size, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--dump-slice %q: bad size: %w", s, err)
		}
		out = append(out, ddr.Slice{RegID: reg, Offset: offset, Size: size})
	}
	return out, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "dpusim",
		Short: "DPU instruction-set simulator — bit-accurate reference execution",
	}

	// run command
	var configPath string
	var programPath string
	var outDir string
	var traceOutPath string
	var fuzzSeed int64
	var dumpSlices []string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a compiled program manifest and dump its output tensors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := simcfg.Default()
			if configPath != "" {
				f, err := os.Open(configPath)
				if err != nil {
					return err
				}
				defer f.Close()
				cfg, err = simcfg.Parse(f)
				if err != nil {
					return err
				}
			}
			if fuzzSeed != 0 {
				cfg.Set("fuzz_seed", strconv.FormatInt(fuzzSeed, 10))
			}

			slices, err := parseDumpSlices(dumpSlices)
			if err != nil {
				return err
			}

			pf, err := os.Open(programPath)
			if err != nil {
				return err
			}
			defer pf.Close()
			prog, err := program.Load(pf)
			if err != nil {
				return err
			}

			gen := target.DPUV2
			if cfg.ISAVersion() != "" {
				if p, err := target.ByName(cfg.ISAVersion()); err == nil {
					gen = p.Generation
				}
			}
			params := target.Builtin[gen]

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
			}

			var tf *os.File
			if traceOutPath != "" {
				tf, err = os.Create(traceOutPath)
				if err != nil {
					return err
				}
				defer tf.Close()
			}

			for i, sg := range prog.Subgraphs {
				s := sim.New(cfg, params, isa.Builtin)
				if err := s.Execute(sg); err != nil {
					return fmt.Errorf("subgraph %d: %w", i, err)
				}
				for j, t := range sg.Outputs {
					host, err := program.CopyOut(s.Result(), t)
					if err != nil {
						return fmt.Errorf("subgraph %d output %d: %w", i, j, err)
					}
					if outDir == "" {
						fmt.Printf("subgraph %d output %d: %d bytes\n", i, j, len(host))
						continue
					}
					path := fmt.Sprintf("%s/subgraph%d_output%d.bin", outDir, i, j)
					if err := os.WriteFile(path, host, 0o644); err != nil {
						return err
					}
					fmt.Printf("wrote %s (%d bytes)\n", path, len(host))
				}

				if outDir != "" && cfg.Bool("ddr_dump_end") {
					path := fmt.Sprintf("%s/subgraph%d_ddr.dump", outDir, i)
					df, err := os.Create(path)
					if err != nil {
						return err
					}
					format := dumpFormat(cfg.String("ddr_dump_format"))
					if cfg.DDRDumpEndFast() {
						err = s.Result().SaveUsedOnly(df, format)
					} else {
						err = s.Result().SaveAll(df, format, 0)
					}
					df.Close()
					if err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", path)
				}

				if outDir != "" && len(slices) > 0 {
					path := fmt.Sprintf("%s/subgraph%d_ddr.slice", outDir, i)
					df, err := os.Create(path)
					if err != nil {
						return err
					}
					err = s.Result().SaveSlice(df, slices, dumpFormat(cfg.String("ddr_dump_format")))
					df.Close()
					if err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", path)
				}

				if tf != nil {
					run := &trace.Run{
						Events:         s.Trace().Events(),
						NextInstrIndex: s.Trace().Len(),
						LayerName:      fmt.Sprintf("subgraph%d", i),
					}
					if err := trace.SaveRun(tf, run); err != nil {
						return fmt.Errorf("subgraph %d: saving trace checkpoint: %w", i, err)
					}
				}
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a key:value simulator config file")
	runCmd.Flags().StringVar(&programPath, "program", "", "Path to a compiled program manifest (JSON)")
	runCmd.Flags().StringVar(&outDir, "out", "", "Directory to write output tensors into (stdout summary if empty)")
	runCmd.Flags().StringVar(&traceOutPath, "trace-out", "", "Write a gob-encoded co-sim trace checkpoint per subgraph (internal/trace.Run)")
	runCmd.Flags().Int64Var(&fuzzSeed, "fuzz-seed", 0, "PRNG seed to fill regs without CONST data (0 disables fuzzing)")
	runCmd.Flags().StringArrayVar(&dumpSlices, "dump-slice", nil, "reg:offset:size window to dump (repeatable)")
	runCmd.MarkFlagRequired("program")

	// decode command
	var decodeGen string
	var decodeProgramPath string
	var mcCodePath string

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Disassemble a program's mc_code, or a standalone mc_code byte file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := target.ByName(decodeGen)
			if err != nil {
				return err
			}
			dec := isa.NewDecoder(isa.Builtin, p.Generation)

			if decodeProgramPath != "" {
				pf, err := os.Open(decodeProgramPath)
				if err != nil {
					return err
				}
				defer pf.Close()
				prog, err := program.Load(pf)
				if err != nil {
					return err
				}
				var mcCode []byte
				if mcCodePath != "" {
					mcCode, err = os.ReadFile(mcCodePath)
					if err != nil {
						return err
					}
				}
				for i, sg := range prog.Subgraphs {
					instrs, err := dec.DecodeProgram(sg.McCode)
					if err != nil {
						return fmt.Errorf("subgraph %d: %w", i, err)
					}
					fmt.Printf("subgraph %d:\n", i)
					printInstrs(instrs)
					if mcCodePath != "" {
						if err := dec.CrossCheck(instrs, mcCode); err != nil {
							return fmt.Errorf("subgraph %d: %w", i, err)
						}
					}
				}
				return nil
			}

			if mcCodePath == "" {
				return fmt.Errorf("decode: one of --program or --mc-code is required")
			}
			data, err := os.ReadFile(mcCodePath)
			if err != nil {
				return err
			}
			instrs, err := dec.DecodeProgram(data)
			if err != nil {
				return err
			}
			printInstrs(instrs)
			return nil
		},
	}
	decodeCmd.Flags().StringVar(&decodeGen, "isa", "DPUV2", "Target generation (DPUV2, DPUV3E, DPUV3ME, DPUV4E, DPU4F, XVDPU, XV2DPU, XV3DPU)")
	decodeCmd.Flags().StringVar(&decodeProgramPath, "program", "", "Path to a compiled program manifest (JSON); decodes every subgraph's mc_code")
	decodeCmd.Flags().StringVar(&mcCodePath, "mc-code", "", "Path to a raw mc_code byte file (standalone, or cross-checked against --program)")

	rootCmd.AddCommand(runCmd, decodeCmd)
	if err := rootCmd.Execute(); err != nil {
		dlog.Fatal("SIM_CLI_FAILED", "%v", err)
		os.Exit(1)
	}
}

func printInstrs(instrs []isa.Instruction) {
	for i, instr := range instrs {
		fmt.Printf("%4d: %-10s %s\n", i, instr.Type, formatFields(instr.Fields))
	}
}

func formatFields(fields map[string]uint32) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	out := ""
	for i, k := range names {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", k, fields[k])
	}
	return out
}
