package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/handler"
	"github.com/xxxsen/mailrag/internal/job"
	"github.com/xxxsen/mailrag/internal/middleware"
	"github.com/xxxsen/mailrag/internal/schedule"
)

func main() {
	var (
		configPath string
		class      string
		rebuild    bool
		topK       int
	)

	rootCmd := &cobra.Command{
		Use:          "mailrag",
		Short:        "answer questions over documents delivered by email",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), a)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "pull matching attachments from the mailbox into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if class == "" {
				counts, err := a.pipeline.SyncAll(ctx)
				printJSON(counts)
				return err
			}
			n, err := a.pipeline.Sync(ctx, class)
			printJSON(map[string]int{class: n})
			return err
		},
	}
	syncCmd.Flags().StringVar(&class, "class", "", "document class, all classes when empty")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "load or build the vector index of a class",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			fn := a.pipeline.Index
			if rebuild {
				fn = a.pipeline.Rebuild
			}
			st, err := fn(cmd.Context(), class)
			if st != nil {
				printJSON(st)
			}
			return err
		},
	}
	indexCmd.Flags().StringVar(&class, "class", "", "document class")
	indexCmd.Flags().BoolVar(&rebuild, "rebuild", false, "ignore the persisted artifact and rebuild")
	_ = indexCmd.MarkFlagRequired("class")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer a question from the documents of a class",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			ans, err := a.pipeline.Ask(cmd.Context(), class, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			fmt.Println(ans.Text)
			for _, src := range ans.Sources {
				fmt.Printf("  [%.3f] %s #%d\n", src.Score, src.DocumentKey, src.SequenceIndex)
			}
			return nil
		},
	}
	askCmd.Flags().StringVar(&class, "class", "", "document class")
	askCmd.Flags().IntVar(&topK, "k", 0, "number of chunks to retrieve, config top_k when 0")
	_ = askCmd.MarkFlagRequired("class")

	mirrorCmd := &cobra.Command{
		Use:   "mirror",
		Short: "upload documents the remote store is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			n, err := a.pipeline.Mirror(cmd.Context(), class)
			printJSON(map[string]int{class: n})
			return err
		},
	}
	mirrorCmd.Flags().StringVar(&class, "class", "", "document class")
	_ = mirrorCmd.MarkFlagRequired("class")

	rootCmd.AddCommand(runCmd, syncCmd, indexCmd, askCmd, mirrorCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func printJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(raw))
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	deps := handler.RouterDeps{
		Pipeline:       handler.NewPipelineHandler(a.pipeline),
		QueryRateLimit: time.Duration(cfg.RateLimit) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	for _, c := range cfg.Classes {
		jobs := []struct {
			job  schedule.Job
			spec string
		}{
			{job: job.NewSyncJob(a.pipeline, c.Name), spec: c.SyncCron},
			{job: job.NewMirrorJob(a.pipeline, c.Name), spec: c.MirrorCron},
			{job: job.NewIndexJob(a.pipeline, c.Name), spec: c.IndexCron},
		}
		for _, j := range jobs {
			if err := scheduler.AddJob(j.job, j.spec); err != nil {
				return err
			}
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr), zap.Strings("jobs", scheduler.Jobs()))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
