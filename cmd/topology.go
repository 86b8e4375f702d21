package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/topology"
)

var (
	showYAML bool

	genVersion uint32
	genFanout  string
	outURI     string

	applyVersion uint32
	applyTarget  uint32
	applyStatus  string
	applyFseq    uint32
	applyInVer   uint32
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show, generate or update pool map documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fetchMap(cmd)
		if err != nil {
			return err
		}
		if showYAML {
			data, err := topology.Encode(m)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}
		fmt.Println(m)
		for _, d := range m.Domains() {
			fmt.Printf("  %-12s %4d %-9s targets %d-%d\n", d.Type, d.ID, d.Status,
				d.FirstTarget, d.FirstTarget+d.TargetCount-1)
		}
		for _, t := range m.Targets() {
			if t.Status == domain.StatusUpIn {
				continue
			}
			fmt.Printf("  target %4d %-9s fseq %d\n", t.ID, t.Status, t.Fseq)
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a balanced healthy pool map",
	Example: "  zplace topology generate --fanout 8,4 --out topology.yaml\n" +
		"  zplace topology generate --fanout 2,4,2,8 --out s3://pools/topology.yaml",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var fanout []int
		for _, f := range strings.Split(genFanout, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return fmt.Errorf("invalid fan-out %q: %w", genFanout, err)
			}
			fanout = append(fanout, n)
		}
		m, err := topology.Uniform(genVersion, fanout...)
		if err != nil {
			return err
		}
		return storeMap(cmd, m)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Change the state of a target and write the next map version",
	Example: "  zplace topology apply --target 5 --status down --fseq 3 --version 3 --out topology.v3.yaml",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := fetchMap(cmd)
		if err != nil {
			return err
		}
		status, err := domain.ParseStatus(applyStatus)
		if err != nil {
			return err
		}
		version := applyVersion
		if !cmd.Flags().Changed("version") {
			version = m.Version() + 1
		}
		next, err := m.Apply(version, topology.TargetUpdate{
			ID:        applyTarget,
			Status:    status,
			Fseq:      applyFseq,
			InVersion: applyInVer,
		})
		if err != nil {
			return err
		}
		return storeMap(cmd, next)
	},
}

func fetchMap(cmd *cobra.Command) (*topology.Map, error) {
	data, err := docs.Fetch(cmd.Context(), cfg.TopologySource)
	if err != nil {
		return nil, err
	}
	return topology.Parse(data)
}

func storeMap(cmd *cobra.Command, m *topology.Map) error {
	data, err := topology.Encode(m)
	if err != nil {
		return err
	}
	if outURI == "" {
		fmt.Print(string(data))
		return nil
	}
	where, err := docs.Store(cmd.Context(), outURI, data)
	if err != nil {
		return err
	}
	fmt.Printf("Map version %d written to %s (%s)\n", m.Version(), where.Location, where.Storage)
	return nil
}

func init() {
	topologyCmd.Flags().BoolVar(&showYAML, "yaml", false, "print the normalised YAML document")

	generateCmd.Flags().Uint32Var(&genVersion, "version", 1, "map version")
	generateCmd.Flags().StringVar(&genFanout, "fanout", "4,4", "fan-out per level, last value is targets per node")
	generateCmd.Flags().StringVarP(&outURI, "out", "o", "", "where to write the map (default stdout)")

	applyCmd.Flags().Uint32Var(&applyVersion, "version", 0, "version of the new map (default: current + 1)")
	applyCmd.Flags().Uint32Var(&applyTarget, "target", 0, "target id")
	applyCmd.Flags().StringVar(&applyStatus, "status", "down", "new status: new, up, upin, down, downout, drain")
	applyCmd.Flags().Uint32Var(&applyFseq, "fseq", 0, "failure sequence of the change")
	applyCmd.Flags().Uint32Var(&applyInVer, "in-ver", 0, "version the target came back in")
	applyCmd.Flags().StringVarP(&outURI, "out", "o", "", "where to write the map (default stdout)")
	_ = applyCmd.MarkFlagRequired("target")

	topologyCmd.AddCommand(generateCmd)
	topologyCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(topologyCmd)
}
