// Package cli turns a [bench.Suite] into a load-testing command.
//
// A workload binary registers the harness flags on its cobra command, builds its
// suite from its own flags, and hands both to [Run]:
//
//	cmd := &cobra.Command{
//		Use: "my-bench",
//		RunE: func(cmd *cobra.Command, args []string) error {
//			cfg, err := cli.LoadConfig(cmd)
//			if err != nil {
//				return err
//			}
//			return cli.Run[*myState](cmd.Context(), cfg, mySuite{}, cli.Env{Workload: "my-bench"})
//		},
//	}
//	cli.RegisterFlags(cmd)
//
// Run drives the progress line or dashboard while the run is in progress, prints
// the report in the configured format, appends to the history file, and returns
// [ErrThresholdsFailed] when an assertion does not hold.
package cli
