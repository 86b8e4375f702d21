package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/placement"
)

// objectOpts are the flags shared by the per-object commands.
type objectOpts struct {
	class    string
	group    int
	pda      uint32
	version  uint32
	capacity int
	readOnly bool
	asJSON   bool
}

func addObjectFlags(cmd *cobra.Command, o *objectOpts, work bool) {
	cmd.Flags().StringVarP(&o.class, "class", "c", "RP_3G1", "object class")
	cmd.Flags().IntVarP(&o.group, "group", "g", -1, "only compute this redundancy group")
	cmd.Flags().Uint32Var(&o.pda, "pda", 0, "shards kept in one performance domain (0: one group)")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print JSON")
	if work {
		cmd.Flags().Uint32Var(&o.version, "version", 0, "pool map version to compute up to (default: map version)")
		cmd.Flags().IntVar(&o.capacity, "capacity", 64, "maximum number of work items")
	} else {
		cmd.Flags().BoolVar(&o.readOnly, "read-only", false, "never extend the layout with moving targets")
	}
}

func (o *objectOpts) metadata(arg string, info placement.Info) (domain.ObjectMetadata, *domain.ShardMetadata, error) {
	oid, err := domain.ParseObjectID(arg)
	if err != nil {
		return domain.ObjectMetadata{}, nil, err
	}
	md := domain.ObjectMetadata{
		ID:            oid,
		Class:         o.class,
		Version:       info.MapVersion,
		PDA:           o.pda,
		LayoutVersion: cfg.Placement.LayoutVersion,
	}
	var shard *domain.ShardMetadata
	if o.group >= 0 {
		shard = &domain.ShardMetadata{GroupIndex: uint32(o.group)}
	}
	return md, shard, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var placeOpts objectOpts

var placeCmd = &cobra.Command{
	Use:   "place [oid]",
	Short: "Print the layout of an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, info, err := loadPool(ctx)
		if err != nil {
			return err
		}
		md, shard, err := placeOpts.metadata(args[0], info)
		if err != nil {
			return err
		}

		var mode placement.Mode
		if placeOpts.readOnly {
			mode |= placement.ModeReadOnly
		}
		layout, err := placements.Place(ctx, pool, md, shard, mode)
		if err != nil {
			return err
		}
		if placeOpts.asJSON {
			return printJSON(layout)
		}
		fmt.Printf("%s %s\n", md.ID, layout)
		return nil
	},
}

type findFunc func(ctx context.Context, pool uuid.UUID, md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error)

// workCommand builds a command printing the work list returned by find.
func workCommand(use, short string, find func() findFunc) *cobra.Command {
	var opts objectOpts
	cmd := &cobra.Command{
		Use:   use + " [oid]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, info, err := loadPool(ctx)
			if err != nil {
				return err
			}
			md, shard, err := opts.metadata(args[0], info)
			if err != nil {
				return err
			}
			version := opts.version
			if !cmd.Flags().Changed("version") {
				version = info.MapVersion
			}

			items, err := find()(ctx, pool, md, shard, version, opts.capacity)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(items)
			}
			for _, it := range items {
				fmt.Printf("%s shard %d -> target %d (%s)\n", md.ID, it.Shard, it.Target, it.Kind)
			}
			return nil
		},
	}
	addObjectFlags(cmd, &opts, true)
	return cmd
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Describe the placement map built from the topology",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, info, err := loadPool(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("pool:         %s\n", pool)
		fmt.Printf("strategy:     %s\n", info.Strategy)
		fmt.Printf("map version:  %d\n", info.MapVersion)
		fmt.Printf("fault domain: %s\n", info.FaultDomain)
		fmt.Printf("domains:      %d\n", info.DomainCount)
		fmt.Printf("targets:      %d\n", info.TargetCount)
		return nil
	},
}

func init() {
	addObjectFlags(placeCmd, &placeOpts, false)
	rootCmd.AddCommand(placeCmd)
	rootCmd.AddCommand(queryCmd)

	// The service is built in initConfig, after the commands are registered.
	rootCmd.AddCommand(workCommand("rebuild", "List the shards to rebuild after target failures",
		func() findFunc { return placements.FindRebuild }))
	rootCmd.AddCommand(workCommand("reint", "List the shards moving back onto reintegrated targets",
		func() findFunc { return placements.FindReintegration }))
	rootCmd.AddCommand(workCommand("addition", "List the shards moving onto newly added targets",
		func() findFunc { return placements.FindAddition }))
}
