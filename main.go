package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"git.fiblab.net/sim/evacuation/config"
	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/router"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// 配置信息
	configPath string
	logLevel   string
	debugAddr  string

	// paths
	pathsAlgorithm  string
	pathsContaining bool

	LOG_LEVELS = map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

var rootCmd = &cobra.Command{
	Use:           "evacuation",
	Short:         "Risk-aware evacuation path re-planning",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate the risk field and evacuate all configured groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSimulation(cmd, func(ctx context.Context, s *Simulation) error {
			addr := debugAddr
			if addr == "" {
				addr = s.cfg.DebugAddr
			}
			if addr != "" {
				// 启动pprof与指标
				server := startHTTPDebugger(addr, s)
				defer server.Close()
			}
			_, err := s.Run(ctx)
			return err
		})
	},
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Simulate the risk field only and write every frame to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSimulation(cmd, func(ctx context.Context, s *Simulation) error {
			_, err := s.RunRisk(ctx)
			return err
		})
	},
}

var pathsCmd = &cobra.Command{
	Use:   "paths <floor> <node>",
	Short: "List candidate evacuation paths from a node",
	Long: `List the candidate evacuation paths from a node, ordered by the chosen algorithm.
With --containing, list the memoized paths passing through the node instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		floor, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid floor %q: %w", args[0], err)
		}
		node := layout.NodeKey{Floor: floor, ID: args[1]}
		return withSimulation(cmd, func(ctx context.Context, s *Simulation) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			if pathsContaining {
				records, err := s.store.PathsContainingNode(ctx, node)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "SOURCE\tTARGET\tCOST\tPATH")
				for _, rec := range records {
					fmt.Fprintf(w, "%v\t%v\t%.2f\t%v\n", rec.Source, rec.Target, rec.Cost, rec.Path)
				}
				return nil
			}
			algorithm, err := router.ParseAlgorithm(pathsAlgorithm)
			if err != nil {
				return err
			}
			candidates, err := s.router.Candidates(node, algorithm, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "COST\tCENTRALITY\tPATH")
			for _, c := range candidates {
				fmt.Fprintf(w, "%.2f\t%.3f\t%v\n", c.Cost, c.Centrality, c.Path)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print risk exposure aggregates and experiment results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSimulation(cmd, func(ctx context.Context, s *Simulation) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			for _, agg := range []struct {
				name string
				fn   func(context.Context) (float64, error)
			}{
				{"total risk", s.store.TotalRisk},
				{"max risk", s.store.MaxRisk},
				{"average risk", s.store.AverageRisk},
				{"average combined risk", s.store.AverageCombinedRisk},
			} {
				v, err := agg.fn(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%.1f\n", agg.name, v)
			}
			high, err := s.store.HighRisks(ctx)
			if err != nil {
				return err
			}
			memo, err := s.store.AllPaths(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "high risk rows\t%d\n", len(high))
			fmt.Fprintf(w, "memoized paths\t%d\n", len(memo))
			results, err := s.store.ExperimentResults(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "ID\tRUN\tALGORITHM\tAWARENESS\tRECORDS\tMEAN RISK\tMEAN VAR\tPATH LEN\tMAX TIME")
			for _, r := range results {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%.3f\t%.3f\t%.2f\t%.0f\n",
					r.ID, r.RunID, r.Algorithm, r.Awareness, r.NRecords, r.MeanRisk, r.MeanRiskVar, r.AvgPathLength, r.MaxTime)
			}
			return nil
		})
	},
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure route decisions from random sources under random risk snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSimulation(cmd, func(ctx context.Context, s *Simulation) error {
			runBenchmark(ctx, s)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (empty means defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level [trace, debug, info, warn, error, fatal, panic], overrides the config")
	runCmd.Flags().StringVar(&debugAddr, "debug", "", "pprof and metrics listening address, overrides the config")
	pathsCmd.Flags().StringVar(&pathsAlgorithm, "algorithm", "efficient", "path ordering [efficient, centrality]")
	pathsCmd.Flags().BoolVar(&pathsContaining, "containing", false, "list memoized paths passing through the node")
	benchmarkCmd.Flags().IntVar(&benchmarkCount, "count", 1000, "the random decision count for benchmark")
	benchmarkCmd.Flags().Int64Var(&benchmarkSeed, "seed", 0, "the seed for benchmark")
	benchmarkCmd.Flags().IntVar(&benchmarkCPU, "cpu", 1, "the cpu count for benchmark")
	rootCmd.AddCommand(runCmd, riskCmd, pathsCmd, statsCmd, benchmarkCmd)
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		c := config.Default()
		return c, c.Validate()
	}
	return config.Load(configPath)
}

func setupLogging(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.0000",
	})
	l, ok := LOG_LEVELS[level]
	if !ok {
		return fmt.Errorf("invalid log level: %s", level)
	}
	logrus.SetLevel(l)
	return nil
}

// 读取配置并构造模拟，收到SIGINT/SIGTERM时取消ctx
func withSimulation(cmd *cobra.Command, fn func(ctx context.Context, s *Simulation) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := setupLogging(level); err != nil {
		return err
	}
	// 优雅退出
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	s, err := NewSimulation(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	go func() {
		<-ctx.Done()
		// 暂停中的循环需要恢复才能退出
		s.Resume()
	}()
	return fn(ctx, s)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
