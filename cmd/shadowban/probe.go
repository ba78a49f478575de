package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	shadowban "github.com/anatolykoptev/go-shadowban"
)

func newProbeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <screen_name>...",
		Short: "Run the visibility tests once and print the results as JSON",
		Example: `  shadowban probe jack
  SHADOWBAN_GUESTS=2 shadowban probe --no-barrier alice bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), v, cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().Bool("no-barrier", false, "skip the reply-barrier test")
	return cmd
}

func runProbe(ctx context.Context, v *viper.Viper, out io.Writer, names []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if v.GetInt("guests") > len(names) {
		v.Set("guests", len(names))
	}

	cfg, closer, err := buildConfig(v)
	if err != nil {
		return err
	}
	defer closer.Close()

	pool := shadowban.NewSessionPool(cfg)
	if err := pool.Start(ctx); err != nil {
		return err
	}

	var opts []shadowban.DetectorOption
	if v.GetBool("no-barrier") {
		opts = append(opts, shadowban.WithoutBarrierTest())
	}
	detector := shadowban.NewDetector(pool, opts...)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, name := range names {
		res, err := detector.Probe(ctx, name)
		if err != nil {
			return fmt.Errorf("probe %s: %w", name, err)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}
