// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// collectives builds a small program of replicated collective ops, reports their shapes and which values are
// replica-equal, lowers it to the simulated collective runtime and executes it on every replica.
//
// Example:
//
//	collectives -replicas=8 -group=Orthogonal -group_size=4 -shape=2,3 -hlo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "",
		fmt.Sprintf("Session configuration, e.g. \"replicas=4,collective.method=ring\". "+
			"If empty, it is read from $%s.", session.ConfigEnv))
	flagReplicas  = flag.Int("replicas", 0, "Number of replicas. If set, it overrides the value in the session configuration.")
	flagGroup     = flag.String("group", "All", "Communication group type, one of "+strings.Join(replicas.CommGroupTypeStrings(), ", ")+".")
	flagGroupSize = flag.Int("group_size", 0, "Replica group size, used by Consecutive and Orthogonal groups.")
	flagShape     = flag.String("shape", "8", "Comma-separated dimensions of the per-replica input.")
	flagDType     = flag.String("dtype", "Float32", "Input dtype: one of Float32, Float16, Int32 or Uint32.")
	flagEqual     = flag.Bool("equal", false, "Whether the input is replica-equal, for the replica-equal analysis.")
	flagHLO       = flag.Bool("hlo", false, "Print the lowered program in StableHLO-like text.")
	flagLegacy    = flag.Bool("legacy", false, "Simulated runtime only accepts legacy communication groups.")
	flagSteps     = flag.Int("steps", 1, "Number of times to execute the program.")
	flagValues    = flag.Bool("values", true, "Print the per-replica values of the outputs of the last execution.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(context.Background()); err != nil {
		klog.Errorf("collectives failed: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	sess, err := sessionFromFlags()
	if err != nil {
		return err
	}
	groupType, err := replicas.CommGroupTypeString(*flagGroup)
	if err != nil {
		return err
	}
	grouping, err := replicas.CommGroup{Type: groupType, ReplicaGroupSize: *flagGroupSize}.ToGrouping(
		sess.GlobalReplicationFactor())
	if err != nil {
		return err
	}
	inShape, err := parseShape(*flagDType, *flagShape)
	if err != nil {
		return err
	}
	d, err := newDemo(sess, grouping, inShape)
	if err != nil {
		return err
	}
	klog.V(1).Infof("Graph:\n%s", d.g)
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s, %s", sess, grouping)))

	analysis, err := d.analyze(*flagEqual)
	if err != nil {
		return err
	}
	fmt.Println(opsTable(d, analysis).Render())

	program, rt, err := d.lower(*flagLegacy)
	if err != nil {
		return err
	}
	if *flagHLO {
		fmt.Println(program.Sequence)
	}
	if *flagSteps <= 0 {
		return nil
	}
	result, err := d.execute(ctx, program, rt, *flagSteps)
	if err != nil {
		return err
	}
	if *flagValues {
		table, err := valuesTable(d, program, result)
		if err != nil {
			return err
		}
		fmt.Println(table.Render())
	}
	return nil
}

func sessionFromFlags() (*session.Options, error) {
	var sess *session.Options
	var err error
	if *flagConfig != "" {
		sess, err = session.NewWithConfig(*flagConfig)
	} else {
		sess, err = session.New()
	}
	if err != nil {
		return nil, err
	}
	if *flagReplicas > 0 {
		sess = sess.WithReplicas(*flagReplicas)
	}
	return sess, nil
}

// parseShape parses the dtype name and the comma-separated dimensions.
func parseShape(dtypeName, dims string) (shapes.Shape, error) {
	dtype := dtypes.InvalidDType
	for _, candidate := range ops.CollectiveDTypes {
		if strings.EqualFold(candidate.String(), dtypeName) {
			dtype = candidate
		}
	}
	if dtype == dtypes.InvalidDType {
		return shapes.Shape{}, errors.Errorf("unsupported -dtype=%q, valid values are %v", dtypeName, ops.CollectiveDTypes)
	}
	var dimensions []int
	for _, part := range strings.Split(dims, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil || dim < 0 {
			return shapes.Shape{}, errors.Errorf("invalid dimension %q in -shape=%q", part, dims)
		}
		dimensions = append(dimensions, dim)
	}
	return shapes.Make(dtype, dimensions...), nil
}
